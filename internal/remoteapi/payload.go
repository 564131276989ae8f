package remoteapi

import (
	"fmt"
	"strings"

	"reactioncut/internal/apperr"
)

// buildSubmissionVideos renders parts into the "videos" array both Create
// and Edit payloads carry (spec §4.8's build_submission_videos).
func buildSubmissionVideos(parts []VideoPart) []map[string]any {
	videos := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		videos = append(videos, map[string]any{
			"filename": part.Filename,
			"title":    part.Title,
			"desc":     "",
			"cid":      part.CID,
		})
	}
	return videos
}

func copyrightFor(info SubmissionInfo) int {
	if info.Original {
		return 1
	}
	return 2
}

// buildAddPayload mirrors build_add_payload: the fixed technical fields
// bilibili's web uploader sends alongside the caller-controlled title,
// tags, description, cover and parts, with web_os=3 for a fresh create.
func buildAddPayload(info SubmissionInfo, parts []VideoPart) map[string]any {
	payload := map[string]any{
		"videos":              buildSubmissionVideos(parts),
		"cover":               info.CoverURL,
		"cover43":             "",
		"title":               info.Title,
		"copyright":           copyrightFor(info),
		"tid":                 info.PartitionID,
		"human_type2":         info.PartitionID,
		"tag":                 info.Tags,
		"desc_format_id":      9999,
		"desc":                info.Description,
		"recreate":            -1,
		"dynamic":             "",
		"interactive":         0,
		"act_reserve_create":  0,
		"no_disturbance":      0,
		"no_reprint":          1,
		"subtitle":            map[string]any{"open": 0, "lan": ""},
		"dolby":               0,
		"lossless_music":      0,
		"up_selection_reply":  false,
		"up_close_reply":      false,
		"up_close_danmu":      false,
		"web_os":              3,
	}
	if info.CollectionID > 0 {
		payload["season_id"] = info.CollectionID
	}
	return payload
}

// buildEditPayload mirrors build_edit_payload: identical to the add
// payload save for the required aid, the omitted human_type2, and
// web_os=1 to mark an edit of an existing submission.
func buildEditPayload(info SubmissionInfo, parts []VideoPart, aid int64) map[string]any {
	payload := map[string]any{
		"aid":                 aid,
		"videos":              buildSubmissionVideos(parts),
		"cover":               info.CoverURL,
		"cover43":             "",
		"title":               info.Title,
		"copyright":           copyrightFor(info),
		"tid":                 info.PartitionID,
		"tag":                 info.Tags,
		"desc_format_id":      9999,
		"desc":                info.Description,
		"recreate":            -1,
		"dynamic":             "",
		"interactive":         0,
		"act_reserve_create":  0,
		"no_disturbance":      0,
		"no_reprint":          1,
		"subtitle":            map[string]any{"open": 0, "lan": ""},
		"dolby":               0,
		"lossless_music":      0,
		"up_selection_reply":  false,
		"up_close_reply":      false,
		"up_close_danmu":      false,
		"web_os":              1,
	}
	if info.CollectionID > 0 {
		payload["season_id"] = info.CollectionID
	}
	return payload
}

// parseAuditPage extracts the bvid/state/reject_reason rows the
// Reconciliation Loop needs out of one page of the audit listing.
func parseAuditPage(data map[string]any) []AuditEntry {
	raw, _ := data["arc_audits"].([]any)
	entries := make([]AuditEntry, 0, len(raw))
	for _, item := range raw {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		archive, ok := row["Archive"].(map[string]any)
		if !ok {
			continue
		}
		bvid := trimmed(stringField(archive, "bvid"))
		if bvid == "" {
			continue
		}
		state, _ := asInt64(archive["state"])
		reason := firstRejectReason(row)
		if reason == "" {
			reason = trimmed(stringField(archive, "reject_reason"))
		}
		entries = append(entries, AuditEntry{BVID: bvid, State: state, RejectReason: reason})
	}
	return entries
}

func firstRejectReason(row map[string]any) string {
	details, _ := row["problem_detail"].([]any)
	for _, raw := range details {
		detail, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if reason := stringField(detail, "reject_reason"); reason != "" {
			return reason
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func asInt64(v any) (int64, bool) {
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// raiseIfError implements the "code != 0 raises the message" convention
// every bilibili JSON endpoint shares (spec §4.8): a zero or absent code
// is success, anything else becomes "<message> (code: <code>)", tagged as
// an auth error when apperr.IsAuthError recognizes the rendered message.
func raiseIfError(data map[string]any, fallback string) error {
	code, ok := asInt64(data["code"])
	if !ok || code == 0 {
		return nil
	}
	message := fallback
	if m := stringField(data, "message"); m != "" {
		message = m
	}
	msg := fmt.Sprintf("%s (code: %d)", message, code)
	if apperr.IsAuthError(msg) {
		return apperr.New(apperr.KindAuthRequired, msg)
	}
	return apperr.New(apperr.KindBadResponse, msg)
}
