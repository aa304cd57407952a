package job

import (
	"context"
	"errors"
	"testing"
)

func TestJobLifecycle(t *testing.T) {
	j := New(context.Background(), "job-1")
	if j.StatusNow() != StatusPending {
		t.Fatalf("new job status = %v, want pending", j.StatusNow())
	}
	j.Start()
	if !j.IsRunning() {
		t.Fatalf("IsRunning() = false after Start()")
	}

	j.Update(Update{Phase: "sumsqr", Iteration: 1})
	if len(j.Updates()) != 1 {
		t.Fatalf("len(Updates()) = %d, want 1", len(j.Updates()))
	}

	j.Finish(nil)
	select {
	case <-j.Done():
	default:
		t.Fatal("Done() channel not closed after Finish()")
	}
	if j.StatusNow() != StatusSucceeded {
		t.Errorf("status = %v, want succeeded", j.StatusNow())
	}
	if j.IsRunning() {
		t.Errorf("IsRunning() = true after terminal Finish()")
	}
}

func TestJobFinishWithError(t *testing.T) {
	j := New(context.Background(), "job-2")
	j.Start()
	boom := errors.New("boom")
	j.Finish(boom)

	if j.StatusNow() != StatusFailed {
		t.Errorf("status = %v, want failed", j.StatusNow())
	}
	if !errors.Is(j.Err(), boom) {
		t.Errorf("Err() = %v, want %v", j.Err(), boom)
	}
}

func TestJobCancelReflectsInContext(t *testing.T) {
	j := New(context.Background(), "job-3")
	j.Start()
	j.Cancel()

	select {
	case <-j.Context().Done():
	default:
		t.Fatal("Context() not cancelled after Cancel()")
	}
	j.Finish(j.Context().Err())
	if j.StatusNow() != StatusCancelled {
		t.Errorf("status = %v, want cancelled", j.StatusNow())
	}
}

func TestJobFinishIsIdempotent(t *testing.T) {
	j := New(context.Background(), "job-4")
	j.Finish(nil)
	j.Finish(errors.New("ignored"))
	if j.StatusNow() != StatusSucceeded {
		t.Errorf("second Finish() must not override terminal status, got %v", j.StatusNow())
	}
}
