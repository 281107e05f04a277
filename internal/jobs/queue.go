package jobs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/logger"
)

// Handler is the work a job performs.
type Handler func(ctx context.Context) error

// Job is one queued unit of work.
type Job struct {
	ID      string
	Name    string
	Handler Handler
	attempt int
}

// Queue is an in-process job runner: a bounded worker pool with retry,
// exponential backoff and periodic jobs. Background work (preprocessing
// runs, trials, the sweeper) all goes through here so the HTTP handlers
// only ever enqueue.
type Queue struct {
	logger     *logger.Logger
	workers    int
	maxRetries int
	jobs       chan *Job

	mu        sync.Mutex
	periodic  []periodicJob
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onFailure func(job *Job, err error)
}

type periodicJob struct {
	name     string
	interval time.Duration
	handler  Handler
}

// QueueConfig holds queue tuning knobs.
type QueueConfig struct {
	Workers    int
	MaxRetries int
	BufferSize int
}

// NewQueue creates a Queue.
// Parameters:
//   - log: logger instance.
//   - cfg: queue tuning knobs.
// Returns:
//   - *Queue: initialized queue; call Start before enqueueing.
func NewQueue(log *logger.Logger, cfg *QueueConfig) *Queue {
	workers := cfg.Workers
	if workers == 0 {
		workers = 4
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	buffer := cfg.BufferSize
	if buffer == 0 {
		buffer = 256
	}
	return &Queue{
		logger:     log,
		workers:    workers,
		maxRetries: maxRetries,
		jobs:       make(chan *Job, buffer),
	}
}

// OnFailure registers a hook called when a job exhausts its retries.
func (q *Queue) OnFailure(hook func(job *Job, err error)) {
	q.mu.Lock()
	q.onFailure = hook
	q.mu.Unlock()
}

// RegisterPeriodic schedules a handler to run at a fixed interval once the
// queue starts. Must be called before Start.
// Parameters:
//   - name: job name for logging.
//   - interval: time between runs.
//   - handler: the work to run.
func (q *Queue) RegisterPeriodic(name string, interval time.Duration, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.periodic = append(q.periodic, periodicJob{name: name, interval: interval, handler: handler})
}

// Start launches the workers and periodic tickers.
// Parameters:
//   - ctx: parent context; cancelling it stops the queue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	periodic := q.periodic
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.worker(runCtx, workerID)
		}(i)
	}

	for _, p := range periodic {
		q.wg.Add(1)
		go func(p periodicJob) {
			defer q.wg.Done()
			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					if err := p.handler(runCtx); err != nil {
						q.logger.WithField("job", p.name).WithError(err).Error("Periodic job failed")
					}
				}
			}
		}(p)
	}

	q.logger.WithFields(logger.Fields{
		"workers":  q.workers,
		"periodic": len(periodic),
	}).Info("Job queue started")
}

// Enqueue submits a job for asynchronous execution.
// Parameters:
//   - name: job name for logging.
//   - handler: the work to run.
// Returns:
//   - string: assigned job ID.
//   - error: non-nil if the queue buffer is full.
func (q *Queue) Enqueue(name string, handler Handler) (string, error) {
	job := &Job{
		ID:      uuid.New().String(),
		Name:    name,
		Handler: handler,
	}
	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		return "", fmt.Errorf("job queue is full")
	}
}

// Stop drains the queue: no new jobs run, in-flight jobs get until the
// context deadline.
// Parameters:
//   - ctx: deadline for the drain.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("Job queue stopped")
	case <-ctx.Done():
		q.logger.Warn("Job queue stop timed out")
	}
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, workerID, job)
		}
	}
}

// run executes a job with retries. Backoff doubles per attempt starting at
// one second.
func (q *Queue) run(ctx context.Context, workerID int, job *Job) {
	log := q.logger.WithFields(logger.Fields{
		"job_id": job.ID,
		"job":    job.Name,
		"worker": workerID,
	})

	for {
		job.attempt++
		start := time.Now()
		err := job.Handler(ctx)
		if err == nil {
			log.WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).Info("Job completed")
			return
		}
		if ctx.Err() != nil {
			log.Warn("Job aborted by shutdown")
			return
		}

		if job.attempt > q.maxRetries {
			log.WithError(err).Error("Job failed permanently")
			q.mu.Lock()
			hook := q.onFailure
			q.mu.Unlock()
			if hook != nil {
				hook(job, err)
			}
			return
		}

		backoff := time.Duration(math.Pow(2, float64(job.attempt-1))) * time.Second
		log.WithFields(logger.Fields{
			"attempt": job.attempt,
			"backoff": backoff.String(),
		}).WithError(err).Warn("Job failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
