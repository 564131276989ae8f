package uploadclient

import (
	"context"
	"net/http"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
)

// HTTPDoer is the narrow slice of *http.Client the transport calls need,
// letting tests substitute a fake round tripper without a real socket.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionStore persists the evolving UploadSession checkpoint (and the
// upload status alongside it) on the caller's row — a models.MergedVideo
// or models.TaskOutputSegment, both of which embed models.UploadSession.
// The Chunked Upload Client never chooses which row that is; the caller
// (Workflow Engine or Upload Queue) supplies this adapter bound to one row.
type SessionStore interface {
	Persist(ctx context.Context, session models.UploadSession, status models.UploadStatus) error
}

// CredentialRefresher is the narrow slice of *mediaclient.Client the
// retry envelope needs to renew an expired session on an authentication
// error. *mediaclient.Client satisfies this directly.
type CredentialRefresher interface {
	RefreshCookie(ctx context.Context, provider mediaclient.CredentialProvider) (mediaclient.AuthInfo, error)
}

// Request describes one file's upload: its identity, the pre-upload
// endpoint to call, any resumable checkpoint to try first, and the
// collaborators the state machine persists progress through and
// authenticates with.
type Request struct {
	// FilePath is the local file to read chunks from.
	FilePath string
	// FileSize is the authoritative size used both as the pre-upload
	// "size" parameter and to validate a resumable checkpoint.
	FileSize int64
	// Name is the base filename (no extension) sent as the pre-upload
	// and finalize "name" parameter, and used as the finalize filename
	// fallback when the response carries no "key".
	Name string
	// Profile is the upstream upload profile string, "ugcfx/bup" for
	// every request regardless of segmented or merged mode.
	Profile string
	// PreUploadURL is the GET endpoint pre-upload is issued against.
	PreUploadURL string

	// Checkpoint is a previously persisted session to resume from, or
	// the zero value to start fresh. Resumability is decided by
	// Checkpoint.Resumable(FileSize).
	Checkpoint models.UploadSession

	Store       SessionStore
	Credentials mediaclient.CredentialProvider
	Refresher   CredentialRefresher
}

// Result is what a completed upload yields: the remote content id and
// derived filename the Workflow Engine / Remote Submission Client
// attaches to a VideoClip/TaskOutputSegment row.
type Result struct {
	CID      int64
	Filename string
	Session  models.UploadSession
}
