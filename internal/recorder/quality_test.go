package recorder

import "testing"

func TestParseQualityHintFirstPositiveDigitRun(t *testing.T) {
	cases := map[string]int{
		"10000":       10000,
		"  400,10000": 400,
		"abc,,250":    250,
		"":            DefaultQualityHint,
		"abc":         DefaultQualityHint,
		"0,0,400":     400,
	}
	for input, want := range cases {
		if got := ParseQualityHint(input); got != want {
			t.Errorf("ParseQualityHint(%q) = %d, want %d", input, got, want)
		}
	}
}
