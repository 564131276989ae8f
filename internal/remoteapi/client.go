package remoteapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"reactioncut/internal/apperr"
	"reactioncut/internal/mediaclient"
)

// CredentialRefresher is the narrow slice of *mediaclient.Client the Remote
// Submission Client needs to renew a session once an in-flight call comes
// back as an authentication error.
type CredentialRefresher interface {
	RefreshCookie(ctx context.Context, provider mediaclient.CredentialProvider) (mediaclient.AuthInfo, error)
}

// Client implements the Remote Submission Client (spec §4.8): Create,
// Edit, AddToCollection, SwitchCollection, FetchAIDByBVID and
// FetchAuditPage, each wrapped in the same refresh-once-on-auth-error
// envelope.
type Client struct {
	Media       *mediaclient.Client
	Credentials mediaclient.CredentialProvider
	Refresher   CredentialRefresher
	Logger      *slog.Logger

	// Endpoints overrides the real bilibili URLs below; left zero in
	// production, set by tests to point at an httptest server.
	Endpoints Endpoints
}

// Endpoints is the set of remote URLs Client calls. Any field left empty
// falls back to the real bilibili endpoint.
type Endpoints struct {
	Create           string
	Edit             string
	AddToCollection  string
	SwitchCollection string
	ListCollections  string
	AuditPage        string
	ViewByBVID       string
}

func orDefault(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// call loads the current credentials, invokes fn, and raises a tagged
// error for any non-zero "code" the response carries (the convention
// every one of these JSON endpoints shares). When that error (or a
// transport-level one) looks like an authentication failure, it refreshes
// the session once and retries exactly once more. This is the
// refresh-once envelope spec §4.8 wraps every remote call in.
func (c *Client) call(ctx context.Context, fallback string, fn func(auth mediaclient.AuthInfo) (map[string]any, error)) (map[string]any, error) {
	auth, err := c.Credentials.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("remoteapi: load credentials: %w", err)
	}

	data, err := callOnce(fn, auth, fallback)
	if err == nil {
		return data, nil
	}
	if !apperr.IsAuthErrorErr(err) || c.Refresher == nil {
		return nil, err
	}

	c.logger().Info("remoteapi: refreshing credentials after auth error", "error", err)
	refreshed, refreshErr := c.Refresher.RefreshCookie(ctx, c.Credentials)
	if refreshErr != nil {
		return nil, fmt.Errorf("remoteapi: refresh credentials: %w", refreshErr)
	}
	return callOnce(fn, refreshed, fallback)
}

func callOnce(fn func(auth mediaclient.AuthInfo) (map[string]any, error), auth mediaclient.AuthInfo, fallback string) (map[string]any, error) {
	data, err := fn(auth)
	if err != nil {
		return nil, err
	}
	if err := raiseIfError(data, fallback); err != nil {
		return nil, err
	}
	return data, nil
}

func nowMillisParam() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// Create submits a brand new video (spec §4.8: POST /x/vu/web/add/v3) and
// returns the bvid/aid bilibili assigned it.
func (c *Client) Create(ctx context.Context, info SubmissionInfo, parts []VideoPart) (SubmissionResult, error) {
	data, err := c.call(ctx, "投稿失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
		params := url.Values{"ts": {nowMillisParam()}, "csrf": {auth.CSRF}}
		payload := buildAddPayload(info, parts)
		return c.Media.PostJSON(ctx, orDefault(c.Endpoints.Create, createURL), params, payload, &auth)
	})
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("remoteapi: create: %w", err)
	}
	bvid, ok := data["bvid"].(string)
	if !ok || bvid == "" {
		return SubmissionResult{}, fmt.Errorf("remoteapi: create: response missing bvid")
	}
	aid, ok := asInt64(data["aid"])
	if !ok {
		return SubmissionResult{}, fmt.Errorf("remoteapi: create: response missing aid")
	}
	return SubmissionResult{BVID: bvid, AID: aid}, nil
}

// Edit appends parts to (or otherwise updates) an existing submission
// (spec §4.8: POST /x/vu/web/edit). Unlike Create it returns nothing new:
// the caller already holds the authoritative aid/bvid.
func (c *Client) Edit(ctx context.Context, info SubmissionInfo, parts []VideoPart, aid int64) error {
	_, err := c.call(ctx, "稿件更新失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
		params := url.Values{"t": {nowMillisParam()}, "csrf": {auth.CSRF}}
		payload := buildEditPayload(info, parts, aid)
		return c.Media.PostJSON(ctx, orDefault(c.Endpoints.Edit, editURL), params, payload, &auth)
	})
	if err != nil {
		return fmt.Errorf("remoteapi: edit: %w", err)
	}
	return nil
}

// AddToCollection binds aid/cid into collectionID's first section (spec
// §4.8: POST …/season/section/episodes/add). A collectionID of 0 is a
// caller error, not something this method silently tolerates.
func (c *Client) AddToCollection(ctx context.Context, title string, collectionID, aid, cid int64) error {
	if collectionID <= 0 || aid <= 0 || cid <= 0 {
		return fmt.Errorf("remoteapi: add to collection: missing collection id, aid or cid")
	}
	_, err := c.call(ctx, "合集绑定失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
		sectionID := c.fetchCollectionSectionID(ctx, auth, collectionID)
		params := url.Values{"csrf": {auth.CSRF}}
		payload := map[string]any{
			"sectionId": sectionID,
			"episodes": []map[string]any{{
				"title":        title,
				"aid":          aid,
				"cid":          cid,
				"charging_pay": 0,
			}},
		}
		return c.Media.PostJSON(ctx, orDefault(c.Endpoints.AddToCollection, addToCollectionURL), params, payload, &auth)
	})
	if err != nil {
		return fmt.Errorf("remoteapi: add to collection: %w", err)
	}
	return nil
}

// SwitchCollection moves an already-submitted aid into a different
// collection (spec §4.8: POST …/season/switch). Callers are expected to
// have already checked that the target collection differs from the
// current one; a collectionID of 0 here is a caller error.
func (c *Client) SwitchCollection(ctx context.Context, title string, collectionID, aid int64) error {
	if collectionID <= 0 || aid <= 0 {
		return fmt.Errorf("remoteapi: switch collection: missing collection id or aid")
	}
	_, err := c.call(ctx, "合集切换失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
		sectionID := c.fetchCollectionSectionID(ctx, auth, collectionID)
		params := url.Values{"csrf": {auth.CSRF}}
		payload := map[string]any{
			"season_id":  collectionID,
			"section_id": sectionID,
			"title":      title,
			"aid":        aid,
			"csrf":       auth.CSRF,
		}
		return c.Media.PostJSON(ctx, orDefault(c.Endpoints.SwitchCollection, switchCollectionURL), params, payload, &auth)
	})
	if err != nil {
		return fmt.Errorf("remoteapi: switch collection: %w", err)
	}
	return nil
}

// fetchCollectionSectionID looks up the first section id of collectionID.
// Like its original_source counterpart it degrades to 0 on any failure
// rather than aborting the caller: bilibili accepts a 0 section id as
// "the collection's default section".
func (c *Client) fetchCollectionSectionID(ctx context.Context, auth mediaclient.AuthInfo, collectionID int64) int64 {
	params := url.Values{
		"pn":     {"1"},
		"ps":     {"100"},
		"order":  {"desc"},
		"sort":   {"mtime"},
		"filter": {"1"},
	}
	data, err := c.Media.GetJSON(ctx, orDefault(c.Endpoints.ListCollections, listCollectionsURL), params, &auth, false)
	if err != nil {
		return 0
	}
	seasons, _ := data["seasons"].([]any)
	for _, raw := range seasons {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		season, ok := item["season"].(map[string]any)
		if !ok {
			continue
		}
		id, ok := asInt64(season["id"])
		if !ok || id != collectionID {
			continue
		}
		sections, ok := item["sections"].(map[string]any)
		if !ok {
			return 0
		}
		list, ok := sections["sections"].([]any)
		if !ok || len(list) == 0 {
			return 0
		}
		first, ok := list[0].(map[string]any)
		if !ok {
			return 0
		}
		sectionID, _ := asInt64(first["id"])
		return sectionID
	}
	return 0
}

// FetchAIDByBVID resolves a bvid to its numeric aid (spec §4.8), used when
// only a bvid is on hand but a downstream call (AddToCollection,
// SwitchCollection) needs the aid. An empty bvid is a no-op: it returns 0.
func (c *Client) FetchAIDByBVID(ctx context.Context, bvid string) (int64, error) {
	bvid = trimmed(bvid)
	if bvid == "" {
		return 0, nil
	}
	data, err := c.call(ctx, "查询AID失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
		params := url.Values{"bvid": {bvid}}
		return c.Media.GetJSON(ctx, orDefault(c.Endpoints.ViewByBVID, viewByBVIDURL), params, &auth, false)
	})
	if err != nil {
		return 0, fmt.Errorf("remoteapi: fetch aid: %w", err)
	}
	inner, ok := data["data"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("remoteapi: fetch aid: response missing data")
	}
	aid, ok := asInt64(inner["aid"])
	if !ok {
		return 0, fmt.Errorf("remoteapi: fetch aid: response missing aid")
	}
	return aid, nil
}

// FetchAuditPage pages through the creator-center audit listing (spec
// §4.9) and returns every entry across every page, 20 rows at a time,
// until bilibili reports an empty page or the advertised total is
// exhausted.
func (c *Client) FetchAuditPage(ctx context.Context) ([]AuditEntry, error) {
	var entries []AuditEntry
	page := int64(1)
	for {
		data, err := c.call(ctx, "审核列表查询失败", func(auth mediaclient.AuthInfo) (map[string]any, error) {
			params := url.Values{
				"status":      {auditStatus},
				"pn":          {strconv.FormatInt(page, 10)},
				"ps":          {strconv.FormatInt(auditPageSize, 10)},
				"coop":        {"1"},
				"interactive": {"1"},
			}
			return c.Media.GetJSON(ctx, orDefault(c.Endpoints.AuditPage, auditPageURL), params, &auth, false)
		})
		if err != nil {
			return nil, fmt.Errorf("remoteapi: fetch audit page %d: %w", page, err)
		}
		pageEntries := parseAuditPage(data)
		entries = append(entries, pageEntries...)

		total := int64(0)
		if pageInfo, ok := data["page"].(map[string]any); ok {
			total, _ = asInt64(pageInfo["count"])
		}
		if total <= 0 || int64(len(entries)) >= total || len(pageEntries) == 0 {
			break
		}
		page++
	}
	return entries, nil
}
