package transcoder

import (
	"fmt"
	"os"
)

// RemuxJob builds a copy-mode remux command array: native container in,
// portable container out, no re-encode (spec §4.4 post-segment remux).
func RemuxJob(label, inputPath, outputPath string) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-i", inputPath,
			"-c", "copy",
			outputPath,
		},
	}
}

// HLSRemuxJob builds the copy-remux command used by the HLS sub-recorder
// (spec §4.4): an HLS playlist input remuxed into a transport-stream file
// without re-encoding, with the child left reading stdin so a later
// Handle.Stop can deliver the `q` graceful-stop keystroke.
func HLSRemuxJob(label, playlistURL, outputPath string) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-i", playlistURL,
			"-c", "copy",
			"-f", "mpegts",
			outputPath,
		},
	}
}

// ConcatJob builds a copy-only concat command array from an ffmpeg concat
// demuxer list file (spec §4.6 merge phase: "concatenate clip files into
// one merged file by copy-only concat").
func ConcatJob(label, listFilePath, outputPath string) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-f", "concat",
			"-safe", "0",
			"-i", listFilePath,
			"-c", "copy",
			outputPath,
		},
	}
}

// ClipCopyJob builds a copy-only trim command array: -ss/-to placed before
// the input for fast keyframe-accurate seeking, no re-encode (spec §4.6
// clip phase, "copy" decision).
func ClipCopyJob(label, inputPath, outputPath string, startSeconds, endSeconds float64) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-ss", fmt.Sprintf("%.3f", startSeconds),
			"-to", fmt.Sprintf("%.3f", endSeconds),
			"-i", inputPath,
			"-c", "copy",
			outputPath,
		},
	}
}

// ClipReencodeJob builds a re-encode trim command array, used when
// ClipCopyJob's copy-only cut would land off a keyframe (spec §4.6 clip
// phase, "reencode" decision).
func ClipReencodeJob(label, inputPath, outputPath string, startSeconds, endSeconds float64) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-i", inputPath,
			"-ss", fmt.Sprintf("%.3f", startSeconds),
			"-to", fmt.Sprintf("%.3f", endSeconds),
			"-c:v", "libx264",
			"-c:a", "aac",
			outputPath,
		},
	}
}

// WriteConcatList writes an ffmpeg concat-demuxer list file naming each of
// paths in order, for use with ConcatJob.
func WriteConcatList(listFilePath string, paths []string) error {
	f, err := os.Create(listFilePath)
	if err != nil {
		return fmt.Errorf("transcoder: create concat list: %w", err)
	}
	defer f.Close()
	for _, p := range paths {
		if _, err := fmt.Fprintf(f, "file '%s'\n", p); err != nil {
			return fmt.Errorf("transcoder: write concat list entry: %w", err)
		}
	}
	return nil
}

// SegmentJob builds a fixed-seconds, copy-only segmentation command array
// (spec §4.6 optional re-segment phase). outputPattern is an ffmpeg
// segment-muxer strftime/index pattern, e.g. "part-%03d.mp4".
func SegmentJob(label, inputPath, outputPattern string, segmentSeconds int) Job {
	return Job{
		Label: label,
		Args: []string{
			"-y",
			"-i", inputPath,
			"-c", "copy",
			"-f", "segment",
			"-segment_time", fmt.Sprintf("%d", segmentSeconds),
			"-reset_timestamps", "1",
			outputPattern,
		},
	}
}
