package reconcile

import (
	"context"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
)

// Store is the slice of the Persistent Store the Reconciliation Loop
// needs, defined locally following internal/uploadqueue.Store's idiom.
type Store interface {
	ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error)
	UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (models.SubmissionTask, error)
}

// AuditFetcher is the narrow slice of *remoteapi.Client the loop drives
// once per pass.
type AuditFetcher interface {
	FetchAuditPage(ctx context.Context) ([]remoteapi.AuditEntry, error)
}

// CredentialProvider mirrors mediaclient.CredentialProvider's read side:
// the loop only ever needs to know whether a usable session exists before
// spending a pass on the audit endpoint.
type CredentialProvider interface {
	Load(ctx context.Context) (mediaclient.AuthInfo, error)
}
