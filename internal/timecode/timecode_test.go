package timecode

import "testing"

func TestFormatParseRoundTrip(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{61, "00:01:01"},
		{3661.5, "01:01:01.500"},
		{7325.125, "02:02:05.125"},
	}
	for _, tc := range cases {
		got := Format(tc.seconds)
		if got != tc.want {
			t.Errorf("Format(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
		parsed, err := Parse(got)
		if err != nil {
			t.Fatalf("Parse(%q): %v", got, err)
		}
		if !EqualWithinEpsilon(parsed, tc.seconds) {
			t.Errorf("round trip mismatch: got %v, want %v", parsed, tc.seconds)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, bad := range []string{"", "1:2", "aa:bb:cc", "01:02:03."} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) expected error", bad)
		}
	}
}

func TestEqualWithinEpsilon(t *testing.T) {
	if !EqualWithinEpsilon(1.0001, 1.0) {
		t.Fatal("expected equal within epsilon")
	}
	if EqualWithinEpsilon(1.01, 1.0) {
		t.Fatal("expected not equal beyond epsilon")
	}
}
