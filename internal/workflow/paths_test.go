package workflow

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBuildTaskPathsFreshRun(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	paths := BuildTaskPaths("/data", "task-1", false, now)
	if paths.Root != filepath.Join("/data", "task-1") {
		t.Errorf("unexpected root: %s", paths.Root)
	}
	if paths.Clip != filepath.Join(paths.Root, "cut") {
		t.Errorf("unexpected clip dir: %s", paths.Clip)
	}
	if paths.Merge != filepath.Join(paths.Root, "merge") {
		t.Errorf("unexpected merge dir: %s", paths.Merge)
	}
	if paths.Output != filepath.Join(paths.Root, "output") {
		t.Errorf("unexpected output dir: %s", paths.Output)
	}
}

func TestBuildTaskPathsUpdateRunIsIsolatedByTimestamp(t *testing.T) {
	first := BuildTaskPaths("/data", "task-1", true, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	second := BuildTaskPaths("/data", "task-1", true, time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC))
	if first.Root == second.Root {
		t.Fatal("expected distinct update runs to land in distinct directories")
	}
	expectedPrefix := filepath.Join("/data", "task-1", "updates")
	if filepath.Dir(first.Root) != expectedPrefix {
		t.Errorf("expected update root under %s, got %s", expectedPrefix, first.Root)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"plain.mp4":        "plain.mp4",
		"has space.mp4":    "has_space.mp4",
		"路径/测试.mp4":        "_____.mp4",
		"a:b*c?d":          "a_b_c_d",
	}
	for input, want := range cases {
		if got := SanitizeFilename(input); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
