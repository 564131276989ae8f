package workflow

import "testing"

func TestBuildPartTitle(t *testing.T) {
	cases := []struct {
		prefix string
		index  int
		want   string
	}{
		{"", 1, "P1"},
		{"  ", 3, "P3"},
		{"Part", 2, "Part2"},
	}
	for _, tc := range cases {
		if got := BuildPartTitle(tc.prefix, tc.index); got != tc.want {
			t.Errorf("BuildPartTitle(%q, %d) = %q, want %q", tc.prefix, tc.index, got, tc.want)
		}
	}
}

func TestResolveExistingPartTitle(t *testing.T) {
	if got := ResolveExistingPartTitle("", 2, "P"); got != "P2" {
		t.Errorf("empty name: got %q, want P2", got)
	}
	if got := ResolveExistingPartTitle("Part 2", 2, "P"); got != "P2" {
		t.Errorf("unedited placeholder: got %q, want P2", got)
	}
	if got := ResolveExistingPartTitle("My custom title", 2, "P"); got != "My custom title" {
		t.Errorf("user-edited name should be kept, got %q", got)
	}
}

func TestResolveUpdateNameStartIndex(t *testing.T) {
	cases := []struct {
		existingCount        int
		hasPriorMergedUpload bool
		want                 int
	}{
		{0, true, 2},
		{0, false, 1},
		{3, true, 4},
		{3, false, 4},
	}
	for _, tc := range cases {
		if got := resolveUpdateNameStartIndex(tc.existingCount, tc.hasPriorMergedUpload); got != tc.want {
			t.Errorf("resolveUpdateNameStartIndex(%d, %v) = %d, want %d", tc.existingCount, tc.hasPriorMergedUpload, got, tc.want)
		}
	}
}
