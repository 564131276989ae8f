package apperr

import (
	"errors"
	"testing"

	"golang.org/x/text/language"
)

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"request failed (code: -101)", true},
		{"request failed (code: -111)", true},
		{"request failed (code: 86095)", true},
		{"账号未登录 not logged in", true},
		{"please log in to continue", true},
		{"some other failure", false},
	}
	for _, tc := range cases {
		if got := IsAuthError(tc.msg); got != tc.want {
			t.Errorf("IsAuthError(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestIsAuthErrorErr(t *testing.T) {
	tagged := New(KindAuthRequired, "refresh required")
	if !IsAuthErrorErr(tagged) {
		t.Fatal("expected tagged auth error to be detected")
	}
	plain := errors.New("upstream says code: -101")
	if !IsAuthErrorErr(plain) {
		t.Fatal("expected substring match on plain error")
	}
	if IsAuthErrorErr(errors.New("unrelated")) {
		t.Fatal("unexpected auth error match")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(New(KindRateLimited, "x")) != KindRateLimited {
		t.Fatal("expected rate limited kind")
	}
	if KindOf(errors.New("plain")) != KindTransient {
		t.Fatal("expected default transient kind for untagged error")
	}
}

func TestLocalize(t *testing.T) {
	en := Localize(language.English, MsgTitleTooLong)
	if en != MsgTitleTooLong {
		t.Fatalf("expected english passthrough, got %q", en)
	}
	zh := Localize(language.SimplifiedChinese, MsgTitleTooLong)
	if zh == MsgTitleTooLong {
		t.Fatal("expected a translated Chinese string, got the English literal")
	}
}
