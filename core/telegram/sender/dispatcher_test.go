package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		if err := d.Enqueue(context.Background(), "test", "sendMessage", func() error {
			n.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	d.Close()
	if n.Load() != 10 {
		t.Fatalf("ran %d jobs, want 10", n.Load())
	}
	if err := d.Enqueue(context.Background(), "test", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "test", "", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	d.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("error count = %d, want 0", d.ErrorCount())
	}
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "test", "", func() error {
		calls.Add(1)
		return errors.New("message to delete not found")
	})
	d.Close()
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("error count = %d, want 1", d.ErrorCount())
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	_ = d.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	_ = d.Enqueue(context.Background(), "fill", "", func() error { return nil })
	if err := d.Enqueue(context.Background(), "overflow", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue = %v, want ErrQueueFull", err)
	}
	close(release)
	d.Close()
}

func TestDispatcherEnqueueAfter(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	done := make(chan struct{})
	if err := d.EnqueueAfter(context.Background(), 10*time.Millisecond, "delete", "deleteMessage", func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("enqueue after: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("delayed job did not run")
	}
	d.Close()
}

func TestDispatcherCloseDropsDelayedJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	var ran atomic.Bool
	_ = d.EnqueueAfter(context.Background(), time.Hour, "delete", "", func() error {
		ran.Store(true)
		return nil
	})
	if d.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", d.Pending())
	}
	d.Close()
	if d.Pending() != 0 || ran.Load() {
		t.Fatalf("delayed job survived close")
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	got := sanitizeErrorMessage(errors.New(`Post "https://api.telegram.org/bot123:AbC-d_e/sendMessage": timeout`))
	want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`
	if got != want {
		t.Fatalf("sanitize = %q, want %q", got, want)
	}
}

func TestClassifyError(t *testing.T) {
	if got := classifyError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("deadline kind = %q", got)
	}
	if got := classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}); got != "dial" {
		t.Fatalf("dial kind = %q", got)
	}
	if got := classifyError(errors.New("boom")); got != "unknown" {
		t.Fatalf("plain kind = %q", got)
	}
}
