package models

import "testing"

func TestBuildPartTitle(t *testing.T) {
	cases := []struct {
		prefix string
		index  int
		want   string
	}{
		{"", 1, "P1"},
		{"", 3, "P3"},
		{"ep", 2, "ep2"},
	}
	for _, tc := range cases {
		if got := BuildPartTitle(tc.prefix, tc.index); got != tc.want {
			t.Errorf("BuildPartTitle(%q, %d) = %q, want %q", tc.prefix, tc.index, got, tc.want)
		}
	}
}

func TestValidateTitle(t *testing.T) {
	ok := ""
	for i := 0; i < 80; i++ {
		ok += "a"
	}
	if err := ValidateTitle(ok); err != nil {
		t.Fatalf("80 chars should be valid: %v", err)
	}
	if err := ValidateTitle(ok + "a"); err == nil {
		t.Fatal("expected error for 81 char title")
	}
}

func TestUploadSessionResumable(t *testing.T) {
	s := UploadSession{
		SessionID:   "sess",
		Endpoint:    "upos-host",
		SessionAuth: "auth",
		URI:         "/path",
		ChunkSize:   4 << 20,
		BizID:       1,
		TotalBytes:  17 << 20,
	}
	if !s.Resumable(17 << 20) {
		t.Fatal("expected resumable session")
	}
	if s.Resumable(18 << 20) {
		t.Fatal("size mismatch should not be resumable")
	}
	s.BizID = 0
	if s.Resumable(17 << 20) {
		t.Fatal("missing biz_id should not be resumable")
	}
}

func TestTaskOutputSegmentValidForSubmission(t *testing.T) {
	seg := TaskOutputSegment{UploadStatus: UploadStatusSuccess, AssignedCID: 10, RemoteFilename: "f"}
	if !seg.ValidForSubmission() {
		t.Fatal("expected valid segment")
	}
	seg.RemoteFilename = ""
	if seg.ValidForSubmission() {
		t.Fatal("expected invalid segment with empty filename")
	}
}
