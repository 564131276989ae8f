package remoteapi

import (
	"context"
	"fmt"
)

// Submit carries out the MAX_PARTS_PER_SUBMISSION batching invariant (spec
// §4.8): a new submission with up to 100 parts is a single Create; beyond
// that, Create takes the first 100 and every subsequent batch of up to 100
// more is appended with Edit against the aid Create returned, each Edit
// call resending every part accumulated so far (bilibili's edit endpoint
// replaces the whole part list, it does not append).
func (c *Client) Submit(ctx context.Context, info SubmissionInfo, parts []VideoPart) (SubmissionResult, error) {
	if len(parts) <= MaxPartsPerSubmission {
		return c.Create(ctx, info, parts)
	}

	result, err := c.Create(ctx, info, parts[:MaxPartsPerSubmission])
	if err != nil {
		return SubmissionResult{}, err
	}

	endIndex := MaxPartsPerSubmission
	for endIndex < len(parts) {
		nextEnd := endIndex + MaxPartsPerSubmission
		if nextEnd > len(parts) {
			nextEnd = len(parts)
		}
		if err := c.Edit(ctx, info, parts[:nextEnd], result.AID); err != nil {
			return SubmissionResult{}, fmt.Errorf("remoteapi: submit batch 1-%d: %w", nextEnd, err)
		}
		endIndex = nextEnd
	}
	return result, nil
}

// SubmitUpdate carries out the same batching invariant for an edit-only
// resubmission of an already-published task (spec §4.8): every batch is
// an Edit against the known aid, expanding by 100 parts each round until
// every part has been sent once.
func (c *Client) SubmitUpdate(ctx context.Context, info SubmissionInfo, parts []VideoPart, aid int64) error {
	if len(parts) <= MaxPartsPerSubmission {
		return c.Edit(ctx, info, parts, aid)
	}

	endIndex := MaxPartsPerSubmission
	for {
		nextEnd := endIndex
		if nextEnd > len(parts) {
			nextEnd = len(parts)
		}
		if err := c.Edit(ctx, info, parts[:nextEnd], aid); err != nil {
			return fmt.Errorf("remoteapi: submit update batch 1-%d: %w", nextEnd, err)
		}
		if nextEnd >= len(parts) {
			return nil
		}
		endIndex = nextEnd + MaxPartsPerSubmission
	}
}
