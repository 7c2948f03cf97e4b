package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"tryon/internal/domain"
)

func scripted(outcomes ...domain.JobStatus) (FetchFunc, *int) {
	calls := 0
	return func(ctx context.Context) (Status, error) {
		idx := calls
		calls++
		if idx >= len(outcomes) {
			return Status{}, errors.New("unexpected extra fetch")
		}
		return Status{Outcome: outcomes[idx], Reason: "boom", Raw: map[string]any{"n": idx}}, nil
	}, &calls
}

func TestUntilReturnsOnSuccess(t *testing.T) {
	fetch, calls := scripted(domain.JobStatusPending, domain.JobStatusPending, domain.JobStatusSucceeded)
	status, err := Until(context.Background(), "job-1", time.Millisecond, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", *calls)
	}
	if status.Raw["n"] != 2 {
		t.Fatalf("raw = %#v, want third payload", status.Raw)
	}
}

func TestUntilFailsImmediately(t *testing.T) {
	fetch, calls := scripted(domain.JobStatusFailed, domain.JobStatusSucceeded)
	_, err := Until(context.Background(), "job-2", time.Millisecond, fetch)
	var failed *domain.JobFailed
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want JobFailed", err)
	}
	if failed.Reason != "boom" || failed.JobID != "job-2" {
		t.Fatalf("unexpected failure detail: %#v", failed)
	}
	if *calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", *calls)
	}
}

func TestUntilTreatsUnknownOutcomeAsFailure(t *testing.T) {
	fetch, calls := scripted(domain.JobStatus("mystery"))
	_, err := Until(context.Background(), "job-3", time.Millisecond, fetch)
	var failed *domain.JobFailed
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want JobFailed", err)
	}
	if *calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", *calls)
	}
}

func TestUntilPropagatesFetchError(t *testing.T) {
	want := &domain.TransportError{Op: "status", Status: 502}
	_, err := Until(context.Background(), "job-4", time.Millisecond, func(ctx context.Context) (Status, error) {
		return Status{}, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

func TestUntilStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Until(ctx, "job-5", time.Hour, func(ctx context.Context) (Status, error) {
		return Status{Outcome: domain.JobStatusPending}, nil
	})
	var transport *domain.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}
