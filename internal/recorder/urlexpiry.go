package recorder

import (
	"net/url"
	"strconv"
	"time"
)

// expiryQueryKeys lists the query parameters a playback URL may carry an
// expiry timestamp under. Several platform CDNs use different names for the
// same concept, and all are honored (spec §4.4).
var expiryQueryKeys = []string{"expires", "expire", "deadline", "txTime", "wsTime"}

// ParseStreamExpireValue decodes one query-parameter value as a Unix
// timestamp. An all-digit value is parsed as decimal; anything else is
// tried as hexadecimal. An empty value has no expiry.
func ParseStreamExpireValue(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	if isAllDigits(value) {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	n, err := strconv.ParseInt(value, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// StreamURLExpireAt returns the earliest expiry timestamp found across all
// of expiryQueryKeys in rawURL's query string, if any.
func StreamURLExpireAt(rawURL string) (int64, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	query := parsed.Query()

	var earliest int64
	found := false
	for _, key := range expiryQueryKeys {
		for _, value := range query[key] {
			ts, ok := ParseStreamExpireValue(value)
			if !ok {
				continue
			}
			if !found || ts < earliest {
				earliest = ts
				found = true
			}
		}
	}
	return earliest, found
}

// ShouldRefreshStreamURL reports whether rawURL's earliest expiry falls
// within leadSecs of now, per spec §4.4's 30-second refresh lead.
func ShouldRefreshStreamURL(rawURL string, leadSecs int, now time.Time) (expireAt int64, shouldRefresh bool) {
	expireAt, ok := StreamURLExpireAt(rawURL)
	if !ok {
		return 0, false
	}
	nowUnix := now.Unix()
	if nowUnix < 0 {
		return expireAt, false
	}
	return expireAt, expireAt <= nowUnix+int64(leadSecs)
}
