package transcoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRemuxJobUsesCopyMode(t *testing.T) {
	job := RemuxJob("task-1", "in.flv", "out.mp4")
	args := strings.Join(job.Args, " ")
	if !strings.Contains(args, "-c copy") {
		t.Fatalf("expected copy mode in args, got %q", args)
	}
	if job.Args[len(job.Args)-1] != "out.mp4" {
		t.Fatalf("expected output path last, got %v", job.Args)
	}
}

func TestConcatJobReferencesListFile(t *testing.T) {
	job := ConcatJob("task-1", "list.txt", "merged.mp4")
	args := strings.Join(job.Args, " ")
	if !strings.Contains(args, "-f concat") || !strings.Contains(args, "list.txt") {
		t.Fatalf("expected concat demuxer referencing list file, got %q", args)
	}
	if !strings.Contains(args, "-c copy") {
		t.Fatalf("expected copy-only concat, got %q", args)
	}
}

func TestWriteConcatListFormatsEntries(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "list.txt")
	if err := WriteConcatList(listPath, []string{"a.mp4", "b.mp4"}); err != nil {
		t.Fatalf("write concat list: %v", err)
	}
	contents, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read concat list: %v", err)
	}
	expected := "file 'a.mp4'\nfile 'b.mp4'\n"
	if string(contents) != expected {
		t.Fatalf("expected %q, got %q", expected, string(contents))
	}
}

func TestSegmentJobUsesFixedSeconds(t *testing.T) {
	job := SegmentJob("task-1", "in.mp4", "part-%03d.mp4", 600)
	args := strings.Join(job.Args, " ")
	if !strings.Contains(args, "-segment_time 600") {
		t.Fatalf("expected segment_time 600, got %q", args)
	}
	if !strings.Contains(args, "-f segment") {
		t.Fatalf("expected segment muxer, got %q", args)
	}
}

func TestHLSRemuxJobUsesMpegTS(t *testing.T) {
	job := HLSRemuxJob("room-1", "https://example.com/live.m3u8", "out.ts")
	args := strings.Join(job.Args, " ")
	if !strings.Contains(args, "-f mpegts") {
		t.Fatalf("expected mpegts output format, got %q", args)
	}
}
