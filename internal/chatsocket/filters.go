package chatsocket

// Filters selects which incoming message cmds get written to the sidecar.
// RecordRaw overrides the rest and writes every message, matching the
// original recorder's record_danmaku_raw escape hatch.
type Filters struct {
	RecordRaw       bool
	RecordDanmaku   bool
	RecordGift      bool
	RecordGuard     bool
	RecordSuperChat bool
}

// Allows reports whether a message with the given cmd should be written to
// the sidecar under these filters.
func (f Filters) Allows(cmd string) bool {
	if f.RecordRaw {
		return true
	}
	switch cmd {
	case "DANMU_MSG":
		return f.RecordDanmaku
	case "SUPER_CHAT_MESSAGE", "SUPER_CHAT_MESSAGE_JPN":
		return f.RecordSuperChat
	case "SEND_GIFT":
		return f.RecordGift
	case "GUARD_BUY", "USER_TOAST_MSG":
		return f.RecordGuard
	default:
		return false
	}
}
