package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"reactioncut/internal/apperr"
	"reactioncut/internal/mediaclient"
)

const uposScheme = "upos://"

// transport issues the four raw HTTP calls the Chunked Upload Client's
// state machine drives: pre-upload, meta-post, chunk PUT, and finalize.
// It is deliberately unaware of retry/backoff policy — that lives in
// client.go and session.go — so each method here either succeeds, reports
// a rate-limit via apperr.KindRateLimited, or returns a plain error.
type transport struct {
	httpClient HTTPDoer
}

type preuploadResult struct {
	Auth      string
	BizID     int64
	ChunkSize int64
	Endpoint  string
	UposURI   string
}

type preuploadResponse struct {
	OK        int    `json:"OK"`
	Auth      string `json:"auth"`
	BizID     int64  `json:"biz_id"`
	ChunkSize int64  `json:"chunk_size"`
	Endpoint  string `json:"endpoint"`
	UposURI   string `json:"upos_uri"`
}

// preUpload performs the pre-upload GET (spec §4.5): {name, r=upos,
// profile, version, size}. A 406 response is reported as
// apperr.KindRateLimited with whatever Retry-After the response carried; a
// non-JSON success body is reported as apperr.KindPreUploadParse so the
// Upload Queue's separate preupload_retry_round counter can take over.
func (t *transport) preUpload(ctx context.Context, req Request) (preuploadResult, error) {
	u, err := url.Parse(req.PreUploadURL)
	if err != nil {
		return preuploadResult{}, fmt.Errorf("uploadclient: parse pre-upload url: %w", err)
	}
	q := u.Query()
	q.Set("name", req.Name)
	q.Set("r", "upos")
	q.Set("profile", req.Profile)
	q.Set("version", "2.14.0.0")
	q.Set("size", strconv.FormatInt(req.FileSize, 10))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return preuploadResult{}, fmt.Errorf("uploadclient: build pre-upload request: %w", err)
	}
	if req.Credentials != nil {
		if auth, loadErr := req.Credentials.Load(ctx); loadErr == nil {
			applyCookie(httpReq, auth)
		}
	}

	body, status, header, err := t.do(httpReq)
	if err != nil {
		return preuploadResult{}, fmt.Errorf("uploadclient: pre-upload: %w", err)
	}
	if status == http.StatusNotAcceptable {
		return preuploadResult{}, apperr.RateLimited(parseRetryAfter(header))
	}
	if status < 200 || status >= 300 {
		return preuploadResult{}, classifyNon2xx("pre-upload", status, body)
	}

	var parsed preuploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return preuploadResult{}, apperr.Wrap(apperr.KindPreUploadParse, "pre-upload response parse failure", err)
	}
	if parsed.Endpoint == "" || parsed.UposURI == "" {
		return preuploadResult{}, apperr.Wrap(apperr.KindPreUploadParse, "pre-upload response missing endpoint/upos_uri",
			fmt.Errorf("body: %s", strings.TrimSpace(string(body))))
	}
	if parsed.ChunkSize <= 0 {
		parsed.ChunkSize = defaultChunkSize
	}
	return preuploadResult{
		Auth:      parsed.Auth,
		BizID:     parsed.BizID,
		ChunkSize: parsed.ChunkSize,
		Endpoint:  parsed.Endpoint,
		UposURI:   parsed.UposURI,
	}, nil
}

type metaPostResponse struct {
	UploadID string `json:"upload_id"`
}

// metaPost performs the meta-post POST (spec §4.5): {uploads, output=json,
// profile, filesize, partsize, biz_id} with header X-Upos-Auth, against
// the object endpoint derived from the pre-upload response.
func (t *transport) metaPost(ctx context.Context, objectURL string, req Request, pre preuploadResult) (string, error) {
	q := url.Values{}
	q.Set("uploads", "1")
	q.Set("output", "json")
	q.Set("profile", req.Profile)
	q.Set("filesize", strconv.FormatInt(req.FileSize, 10))
	q.Set("partsize", strconv.FormatInt(pre.ChunkSize, 10))
	q.Set("biz_id", strconv.FormatInt(pre.BizID, 10))

	body, status, header, err := t.postForm(ctx, objectURL, q, pre.Auth)
	if err != nil {
		return "", fmt.Errorf("uploadclient: meta-post: %w", err)
	}
	if status == http.StatusNotAcceptable {
		return "", apperr.RateLimited(parseRetryAfter(header))
	}
	if status < 200 || status >= 300 {
		return "", classifyNon2xx("meta-post", status, body)
	}

	var parsed metaPostResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("uploadclient: decode meta-post response: %w", err)
	}
	if parsed.UploadID == "" {
		return "", fmt.Errorf("uploadclient: meta-post response missing upload_id: %s", strings.TrimSpace(string(body)))
	}
	return parsed.UploadID, nil
}

// putChunk PUTs one part's bytes (spec §4.5 chunk loop). The response body
// must contain MULTIPART_PUT_SUCCESS or the attempt is treated as failed.
func (t *transport) putChunk(ctx context.Context, objectURL string, auth, uploadID string, partIndex int, chunks int, data []byte, start, end, total int64) error {
	q := url.Values{}
	q.Set("partNumber", strconv.Itoa(partIndex+1))
	q.Set("uploadId", uploadID)
	q.Set("chunk", strconv.Itoa(partIndex))
	q.Set("chunks", strconv.Itoa(chunks))
	q.Set("size", strconv.FormatInt(int64(len(data)), 10))
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))
	q.Set("total", strconv.FormatInt(total, 10))

	u, err := url.Parse(objectURL)
	if err != nil {
		return fmt.Errorf("uploadclient: parse object url: %w", err)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("uploadclient: build chunk request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.ContentLength = int64(len(data))
	if auth != "" {
		httpReq.Header.Set("X-Upos-Auth", auth)
	}

	body, status, header, err := t.do(httpReq)
	if err != nil {
		return fmt.Errorf("uploadclient: put chunk %d: %w", partIndex, err)
	}
	if status == http.StatusNotAcceptable {
		return apperr.RateLimited(parseRetryAfter(header))
	}
	if status < 200 || status >= 300 {
		return classifyNon2xx(fmt.Sprintf("put chunk %d", partIndex), status, body)
	}
	if !bytes.Contains(body, []byte("MULTIPART_PUT_SUCCESS")) {
		return fmt.Errorf("uploadclient: chunk %d response missing MULTIPART_PUT_SUCCESS: %s", partIndex, strings.TrimSpace(string(body)))
	}
	return nil
}

type finalizeResponse struct {
	OK   int `json:"OK"`
	Data struct {
		CID int64  `json:"cid"`
		Key string `json:"key"`
	} `json:"data"`
}

// finalize performs the finalize POST (spec §4.5): {output=json, name,
// profile, uploadId, biz_id} with a {parts:[{partNumber, eTag}]} body.
func (t *transport) finalize(ctx context.Context, objectURL string, req Request, pre preuploadResult, uploadID string, totalParts int) (Result, error) {
	q := url.Values{}
	q.Set("output", "json")
	q.Set("name", req.Name)
	q.Set("profile", req.Profile)
	q.Set("uploadId", uploadID)
	q.Set("biz_id", strconv.FormatInt(pre.BizID, 10))

	type part struct {
		PartNumber int    `json:"partNumber"`
		ETag       string `json:"eTag"`
	}
	parts := make([]part, totalParts)
	for i := range parts {
		parts[i] = part{PartNumber: i + 1, ETag: "etag"}
	}
	payload, err := json.Marshal(struct {
		Parts []part `json:"parts"`
	}{Parts: parts})
	if err != nil {
		return Result{}, fmt.Errorf("uploadclient: encode finalize body: %w", err)
	}

	u, err := url.Parse(objectURL)
	if err != nil {
		return Result{}, fmt.Errorf("uploadclient: parse object url: %w", err)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("uploadclient: build finalize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if pre.Auth != "" {
		httpReq.Header.Set("X-Upos-Auth", pre.Auth)
	}

	body, status, header, err := t.do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("uploadclient: finalize: %w", err)
	}
	if status == http.StatusNotAcceptable {
		return Result{}, apperr.RateLimited(parseRetryAfter(header))
	}
	if status < 200 || status >= 300 {
		return Result{}, classifyNon2xx("finalize", status, body)
	}

	var parsed finalizeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("uploadclient: decode finalize response: %w", err)
	}
	if parsed.OK != 1 {
		return Result{}, fmt.Errorf("uploadclient: finalize response not OK: %s", strings.TrimSpace(string(body)))
	}

	cid := parsed.Data.CID
	if cid == 0 {
		cid = pre.BizID
	}
	return Result{
		CID:      cid,
		Filename: deriveFilename(parsed.Data.Key, req.Name),
	}, nil
}

// postForm issues an authenticated POST with the given query parameters
// applied to the URL and an empty body, mirroring the real endpoint's
// form-via-querystring convention for meta-post.
func (t *transport) postForm(ctx context.Context, objectURL string, q url.Values, uposAuth string) ([]byte, int, http.Header, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("parse object url: %w", err)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}
	if uposAuth != "" {
		httpReq.Header.Set("X-Upos-Auth", uposAuth)
	}
	return t.do(httpReq)
}

func (t *transport) do(httpReq *http.Request) ([]byte, int, http.Header, error) {
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

func classifyNon2xx(step string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if apperr.IsAuthError(msg) {
		return apperr.Wrap(apperr.KindAuthRequired, step+" requires authentication", fmt.Errorf("status %d: %s", status, msg))
	}
	return fmt.Errorf("uploadclient: %s failed: status %d: %s", step, status, msg)
}

// parseRetryAfter extracts a Retry-After header's seconds value, returning
// 0 when absent or unparseable. The value only travels on the
// apperr.RateLimited error; the 406 backoff loops in this package wait by
// the capped exponential formula whether or not it is set.
func parseRetryAfter(header http.Header) int {
	if header == nil {
		return 0
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// uposObjectURL derives "https://<endpoint><path-from-upos-uri>" (spec
// §4.5 meta-post contract) from a pre-upload response.
func uposObjectURL(pre preuploadResult) (string, error) {
	if !strings.HasPrefix(pre.UposURI, uposScheme) {
		return "", fmt.Errorf("uploadclient: unexpected upos_uri shape: %q", pre.UposURI)
	}
	rest := strings.TrimPrefix(pre.UposURI, uposScheme)
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", fmt.Errorf("uploadclient: upos_uri has no object path: %q", pre.UposURI)
	}
	objectPath := rest[slash:]
	return "https://" + pre.Endpoint + objectPath, nil
}

// deriveFilename implements spec §4.5's finalize filename rule: the last
// path segment of key without its extension, falling back to the input
// name (already extension-free) when key is absent.
func deriveFilename(key, fallbackName string) string {
	if key == "" {
		return fallbackName
	}
	base := path.Base(key)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// applyCookie attaches the platform session cookie to a pre-upload
// request, the one call in this package that needs site-level auth rather
// than the upos object-storage auth.
func applyCookie(req *http.Request, auth mediaclient.AuthInfo) {
	if auth.Cookie != "" {
		req.Header.Set("Cookie", auth.Cookie)
	}
}
