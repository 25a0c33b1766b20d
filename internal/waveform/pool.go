package waveform

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/metrics"
)

// ErrPoolStopped is returned by Enqueue once Stop has been called.
var ErrPoolStopped = errors.New("ingest pool stopped")

// Runner executes one ingestion job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// QueueStats reports the current state of the ingestion queue. Interrupted
// counts runs cancelled at shutdown; their videos stay pending.
type QueueStats struct {
	Pending     int   `json:"pending"`
	InFlight    int   `json:"in_flight"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Interrupted int64 `json:"interrupted"`
}

// PoolOptions configures the ingestion worker pool.
type PoolOptions struct {
	Runner    Runner
	Workers   int
	QueueSize int
	Timeout   time.Duration // per job; 0 disables
	Log       zerolog.Logger
}

// WorkerPool runs ingestion jobs on its own goroutines so request handlers
// never wait on external processes.
type WorkerPool struct {
	jobs   chan Job
	runner Runner
	opts   PoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	quit    chan struct{}
	senders sync.WaitGroup
	active  map[Job]struct{} // queued or running

	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	interrupt atomic.Int64
}

// NewWorkerPool creates a new ingestion worker pool.
func NewWorkerPool(opts PoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		runner: opts.Runner,
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
		active: make(map[Job]struct{}),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().
		Int("workers", wp.opts.Workers).
		Int("queue_size", wp.opts.QueueSize).
		Dur("timeout", wp.opts.Timeout).
		Msg("ingest worker pool started")
}

// Stop refuses new jobs and waits for queued and running jobs to finish.
// If ctx expires first, running jobs are cancelled and ctx's error returned.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.quit)
	wp.mu.Unlock()

	// Blocked senders see quit and leave; only then is the queue closed.
	wp.senders.Wait()
	close(wp.jobs)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		wp.cancel()
		<-done
	}
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Int64("interrupted", wp.interrupt.Load()).
		Msg("ingest worker pool stopped")
	return err
}

// Enqueue adds a job, waiting for queue space until ctx is done. A job that
// is already queued or running is accepted without being added twice.
// Returns ctx's error on timeout and ErrPoolStopped after Stop.
func (wp *WorkerPool) Enqueue(ctx context.Context, j Job) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return ErrPoolStopped
	}
	if _, ok := wp.active[j]; ok {
		wp.mu.Unlock()
		return nil
	}
	wp.active[j] = struct{}{}
	wp.senders.Add(1)
	wp.mu.Unlock()
	defer wp.senders.Done()

	select {
	case wp.jobs <- j:
		return nil
	case <-ctx.Done():
		wp.release(j)
		return ctx.Err()
	case <-wp.quit:
		wp.release(j)
		return ErrPoolStopped
	}
}

func (wp *WorkerPool) release(j Job) {
	wp.mu.Lock()
	delete(wp.active, j)
	wp.mu.Unlock()
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:     len(wp.jobs),
		InFlight:    int(wp.inFlight.Load()),
		Completed:   wp.completed.Load(),
		Failed:      wp.failed.Load(),
		Interrupted: wp.interrupt.Load(),
	}
}

func (wp *WorkerPool) Pending() int  { return len(wp.jobs) }
func (wp *WorkerPool) InFlight() int { return int(wp.inFlight.Load()) }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		wp.process(log, job)
	}
}

func (wp *WorkerPool) process(log zerolog.Logger, job Job) {
	wp.inFlight.Add(1)
	defer wp.inFlight.Add(-1)
	defer wp.release(job)

	ctx := wp.ctx
	if wp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wp.runner.Run(ctx, job)
	if err == nil {
		wp.completed.Add(1)
		metrics.IngestJobsTotal.WithLabelValues("ok").Inc()
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
		return
	}

	if errors.Is(err, ErrInterrupted) || (wp.ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		wp.interrupt.Add(1)
		metrics.IngestJobsTotal.WithLabelValues("interrupted").Inc()
		log.Info().
			Str("video", job.Video).
			Int64("project_id", job.ProjectID).
			Msg("waveform ingestion interrupted, left pending")
		return
	}

	wp.failed.Add(1)
	step := "unknown"
	var se *StepError
	if errors.As(err, &se) {
		step = se.Step
	}
	metrics.IngestJobsTotal.WithLabelValues(step).Inc()
	log.Warn().Err(err).
		Str("video", job.Video).
		Int64("project_id", job.ProjectID).
		Str("step", step).
		Msg("waveform ingestion failed")
}
