package recorder

import (
	"testing"
	"time"
)

func TestParseStreamExpireValueDecimalAndHex(t *testing.T) {
	if v, ok := ParseStreamExpireValue("1700000000"); !ok || v != 1700000000 {
		t.Fatalf("decimal parse failed: %d %v", v, ok)
	}
	if v, ok := ParseStreamExpireValue("5f5e100"); !ok || v != 0x5f5e100 {
		t.Fatalf("hex parse failed: %d %v", v, ok)
	}
	if _, ok := ParseStreamExpireValue(""); ok {
		t.Fatal("expected empty value to have no expiry")
	}
}

func TestStreamURLExpireAtPicksEarliest(t *testing.T) {
	url := "https://example.com/live.flv?expires=200&txTime=100&wsTime=300"
	got, ok := StreamURLExpireAt(url)
	if !ok || got != 100 {
		t.Fatalf("expected earliest expiry 100, got %d %v", got, ok)
	}
}

func TestStreamURLExpireAtNoneFound(t *testing.T) {
	if _, ok := StreamURLExpireAt("https://example.com/live.flv"); ok {
		t.Fatal("expected no expiry when no recognized query param present")
	}
}

func TestShouldRefreshStreamURLWithinLead(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	url := "https://example.com/live.flv?expire=1000010"
	expireAt, refresh := ShouldRefreshStreamURL(url, 30, now)
	if !refresh || expireAt != 1000010 {
		t.Fatalf("expected refresh within lead, got refresh=%v expireAt=%d", refresh, expireAt)
	}
}

func TestShouldRefreshStreamURLOutsideLead(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	url := "https://example.com/live.flv?expire=1001000"
	_, refresh := ShouldRefreshStreamURL(url, 30, now)
	if refresh {
		t.Fatal("expected no refresh when expiry is well beyond the lead window")
	}
}
