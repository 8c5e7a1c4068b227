// Package dispatcher runs background jobs on a bounded worker pool with
// per-resource deduplication and classified retries.
package dispatcher

import (
	"context"
	"sync"

	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/retry"

	"github.com/sirupsen/logrus"
)

// JobKind names a category of background work. Kind plus resource key
// identifies a unit of in-flight work.
type JobKind string

const (
	JobProcessEvent               JobKind = "process_event"
	JobSyncGroupMetadata          JobKind = "sync_group_metadata"
	JobSyncGroupMemberships       JobKind = "sync_group_memberships"
	JobSyncUserMetadata           JobKind = "sync_user_metadata"
	JobSendIntro                  JobKind = "send_intro"
	JobSendReply                  JobKind = "send_reply"
	JobReconcileGroupsMetadata    JobKind = "reconcile_groups_metadata"
	JobReconcileGroupsMemberships JobKind = "reconcile_groups_memberships"
	JobReconcileUsers             JobKind = "reconcile_users"
	JobTruncateEventLog           JobKind = "truncate_event_log"
)

// GlobalKey is the resource key for singleton jobs that act on the whole
// store rather than one entity.
const GlobalKey = "global"

// Job is one unit of background work. Run is retried per the dispatcher's
// backoff policy unless its errors are classified non-retryable.
type Job struct {
	Kind        JobKind
	ResourceKey string
	Run         func(ctx context.Context) error
}

func (j Job) key() string {
	return string(j.Kind) + "/" + j.ResourceKey
}

// Config sizes the dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	Backoff   retry.BackoffConfig
}

// Dispatcher owns the worker pool. At most one job per (kind, resource key)
// is queued or running at any time; duplicates are discarded at enqueue.
type Dispatcher struct {
	logger  *logrus.Logger
	queue   chan Job
	backoff *retry.Backoff

	mu       sync.Mutex
	inflight map[string]struct{}
	stopped  bool

	workers int
	wg      sync.WaitGroup
}

func New(cfg Config, logger *logrus.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Dispatcher{
		logger:   logger,
		queue:    make(chan Job, cfg.QueueSize),
		backoff:  retry.NewBackoff(cfg.Backoff),
		inflight: make(map[string]struct{}),
		workers:  cfg.Workers,
	}
}

// Start launches the worker pool. Workers exit when Stop is called; ctx
// cancels jobs in progress.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
}

// Enqueue submits a job unless an identical one is already queued or
// running, or the queue is full. It reports whether the job was accepted;
// a discard is not an error.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	key := job.key()
	if _, dup := d.inflight[key]; dup {
		d.logger.WithFields(logrus.Fields{
			"job_kind":     job.Kind,
			"resource_key": job.ResourceKey,
		}).Debug("Discarding duplicate job")
		return false
	}

	select {
	case d.queue <- job:
		d.inflight[key] = struct{}{}
		return true
	default:
		d.logger.WithFields(logrus.Fields{
			"job_kind":     job.Kind,
			"resource_key": job.ResourceKey,
		}).Warn("Job queue full, discarding job")
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		d.runJob(ctx, job)

		d.mu.Lock()
		delete(d.inflight, job.key())
		d.mu.Unlock()
	}
}

// runJob executes one job with backoff. Rate-limit and transient gateway
// errors back off and retry; forbidden and payload errors stop immediately.
func (d *Dispatcher) runJob(ctx context.Context, job Job) {
	fields := logrus.Fields{
		"job_kind":     job.Kind,
		"resource_key": job.ResourceKey,
	}

	err := d.backoff.RetryWithPredicate(ctx, func() error {
		return job.Run(ctx)
	}, apperrors.IsRetryable)

	switch {
	case err == nil:
		d.logger.WithFields(fields).Debug("Job completed")
	case ctx.Err() != nil:
		d.logger.WithFields(fields).Info("Job cancelled during shutdown")
	case apperrors.IsForbidden(err):
		d.logger.WithFields(fields).WithError(err).
			Error("Job failed with a permissions error, not retrying")
	default:
		d.logger.WithFields(fields).WithError(err).
			WithField("error_code", apperrors.GetCode(err)).
			Error("Job failed")
	}
}
