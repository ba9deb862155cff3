package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsInvalidSchedule(t *testing.T) {
	s := New(nil)
	if _, err := s.Add("bad", "not a cron expr", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestAddAndRemove(t *testing.T) {
	s := New(nil)

	id, err := s.Add("report", "0 8 * * *", func(context.Context) {})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(s.Jobs()) != 1 {
		t.Fatalf("got %d jobs, want 1", len(s.Jobs()))
	}

	s.Remove(id)
	if len(s.Jobs()) != 0 {
		t.Errorf("got %d jobs after remove, want 0", len(s.Jobs()))
	}
}

func TestRunningJobNotDuplicated(t *testing.T) {
	s := New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	var fired atomic.Int32
	blocker := make(chan struct{})
	id, err := s.Add("slow", "@every 1h", func(context.Context) {
		fired.Add(1)
		<-blocker
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	go s.fire(id)

	// Wait for the first run to be marked active.
	deadline := time.After(time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first firing never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// A second firing while the first is active must be skipped.
	s.fire(id)
	if got := fired.Load(); got != 1 {
		t.Errorf("job fired %d times, want 1", got)
	}
	close(blocker)
}
