package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/structex/structex/internal/logger"
)

func testQueue(cfg *QueueConfig) *Queue {
	if cfg == nil {
		cfg = &QueueConfig{Workers: 2, MaxRetries: 1}
	}
	return NewQueue(logger.New(nil), cfg)
}

func TestQueue_RunsJob(t *testing.T) {
	q := testQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	done := make(chan struct{})
	id, err := q.Enqueue("test", func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == "" {
		t.Error("expected a job ID")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	q := testQueue(&QueueConfig{Workers: 1, MaxRetries: 2})

	var attempts int32
	failed := make(chan error, 1)
	q.OnFailure(func(job *Job, err error) {
		failed <- err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop(context.Background())

	boom := errors.New("boom")
	if _, err := q.Enqueue("failing", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return boom
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case err := <-failed:
		if !errors.Is(err, boom) {
			t.Errorf("failure hook got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("failure hook never fired")
	}

	// Initial attempt plus two retries
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestQueue_FullBuffer(t *testing.T) {
	q := testQueue(&QueueConfig{Workers: 1, MaxRetries: 1, BufferSize: 1})
	// Not started: nothing drains the buffer

	if _, err := q.Enqueue("first", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first enqueue should fit: %v", err)
	}
	if _, err := q.Enqueue("second", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected buffer-full error")
	}
}

func TestQueue_Periodic(t *testing.T) {
	q := testQueue(nil)

	var runs int32
	q.RegisterPeriodic("tick", 20*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	q.Stop(context.Background())

	if got := atomic.LoadInt32(&runs); got < 2 {
		t.Errorf("periodic job ran %d times, want at least 2", got)
	}
}

func TestQueue_StopPreventsNewWork(t *testing.T) {
	q := testQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Stop(context.Background())

	var ran int32
	_, _ = q.Enqueue("late", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("job ran after Stop")
	}
}
