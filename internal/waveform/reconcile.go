package waveform

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/database"
)

// PendingStore lists projects whose video still has no waveform and no
// recorded failure.
type PendingStore interface {
	PendingIngests(ctx context.Context) ([]database.PendingIngest, error)
}

// Queue accepts ingestion jobs. *WorkerPool implements it.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Store    PendingStore
	Queue    Queue
	Interval time.Duration // between sweeps after the first; 0 means 5m
	Wait     time.Duration // per-job queue wait; 0 means 10s
	Log      zerolog.Logger
}

// Reconciler requeues ingestion for videos left pending: jobs that never
// reached the queue, and runs interrupted by a shutdown. Videos whose run
// failed at a step are marked and never requeued.
type Reconciler struct {
	store    PendingStore
	queue    Queue
	interval time.Duration
	wait     time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	wait := opts.Wait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Reconciler{
		store:    opts.Store,
		queue:    opts.Queue,
		interval: interval,
		wait:     wait,
		log:      opts.Log.With().Str("component", "ingest-reconciler").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs a sweep immediately, then every interval until Stop.
func (r *Reconciler) Start() { go r.loop() }

// Stop ends the loop and waits for an in-progress sweep to return.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.Reconcile(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Reconcile(ctx)
		case <-r.stop:
			return
		}
	}
}

// Reconcile enqueues every pending project once and returns how many jobs
// were accepted. Jobs already queued or running are accepted by the queue
// without duplication. A queue that stays full ends the sweep early; the
// rest is picked up next time.
func (r *Reconciler) Reconcile(ctx context.Context) int {
	pending, err := r.store.PendingIngests(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn().Err(err).Msg("listing pending ingests failed")
		}
		return 0
	}

	queued := 0
	for _, p := range pending {
		jctx, cancel := context.WithTimeout(ctx, r.wait)
		err := r.queue.Enqueue(jctx, Job{ProjectID: p.ProjectID, Video: p.Video})
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				r.log.Warn().Err(err).
					Int("remaining", len(pending)-queued).
					Msg("ingest queue busy, deferring rest of sweep")
			}
			break
		}
		queued++
	}

	if len(pending) > 0 {
		r.log.Info().
			Int("pending", len(pending)).
			Int("queued", queued).
			Msg("ingest reconcile complete")
	}
	return queued
}
