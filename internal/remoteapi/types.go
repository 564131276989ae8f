package remoteapi

// VideoPart is one finished, already-uploaded file contributed to a
// submission: the transcoded/uploaded filename bilibili's storage
// returned, the cid the preupload step minted for it, and the title it
// should carry as a numbered part (spec §4.7's build_part_title /
// resolve_existing_part_title).
type VideoPart struct {
	Filename string
	CID      int64
	Title    string
}

// SubmissionInfo is the slice of a SubmissionTask the Create/Edit payload
// builders read (spec §4.8's build_add_payload / build_edit_payload).
type SubmissionInfo struct {
	Title        string
	Description  string
	CoverURL     string
	PartitionID  int64
	Tags         string
	Original     bool // true picks copyright=1, false (reprint) picks copyright=2
	CollectionID int64
}

// SubmissionResult is what a successful Create returns. Edit returns
// nothing new: the aid it was called with stays authoritative.
type SubmissionResult struct {
	BVID string
	AID  int64
}

// AuditEntry is one bilibili-side row surfaced by FetchAuditPage and
// consumed by the Reconciliation Loop (spec §4.9): the remote review state
// and, when rejected, bilibili's stated reason.
type AuditEntry struct {
	BVID         string
	State        int64
	RejectReason string
}
