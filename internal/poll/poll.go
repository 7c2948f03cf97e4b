// Package poll implements the shared wait loop used by provider clients.
package poll

import (
	"context"
	"time"

	"tryon/internal/domain"
)

// Status is one classified observation of a remote job.
type Status struct {
	Outcome domain.JobStatus
	Raw     map[string]any
	Reason  string
}

// FetchFunc performs one status request and classifies the response.
// Errors it returns are propagated unchanged.
type FetchFunc func(ctx context.Context) (Status, error)

// Until calls fetch until it observes a terminal outcome. Pending results
// sleep for interval; a failed outcome becomes domain.JobFailed. There is no
// attempt bound, only ctx.
func Until(ctx context.Context, jobID string, interval time.Duration, fetch FetchFunc) (Status, error) {
	for {
		status, err := fetch(ctx)
		if err != nil {
			return Status{}, err
		}
		switch status.Outcome {
		case domain.JobStatusSucceeded:
			return status, nil
		case domain.JobStatusPending:
		default:
			reason := status.Reason
			if reason == "" {
				reason = "unknown failure"
			}
			return status, &domain.JobFailed{JobID: jobID, Reason: reason}
		}
		if err := Sleep(ctx, interval); err != nil {
			return Status{}, &domain.TransportError{Op: "poll " + jobID, Err: err}
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
