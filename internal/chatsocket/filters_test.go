package chatsocket

import "testing"

func TestFiltersAllows(t *testing.T) {
	cases := []struct {
		name    string
		filters Filters
		cmd     string
		want    bool
	}{
		{"danmaku enabled", Filters{RecordDanmaku: true}, "DANMU_MSG", true},
		{"danmaku disabled", Filters{}, "DANMU_MSG", false},
		{"superchat jpn", Filters{RecordSuperChat: true}, "SUPER_CHAT_MESSAGE_JPN", true},
		{"gift disabled still dropped", Filters{RecordDanmaku: true}, "SEND_GIFT", false},
		{"guard via toast", Filters{RecordGuard: true}, "USER_TOAST_MSG", true},
		{"unknown cmd dropped", Filters{RecordDanmaku: true, RecordGift: true, RecordGuard: true, RecordSuperChat: true}, "UNKNOWN_CMD", false},
		{"raw overrides everything", Filters{RecordRaw: true}, "UNKNOWN_CMD", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filters.Allows(tc.cmd); got != tc.want {
				t.Fatalf("Allows(%q) = %v, want %v", tc.cmd, got, tc.want)
			}
		})
	}
}
