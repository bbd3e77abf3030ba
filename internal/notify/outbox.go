package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Policy bounds how a job is attempted.
type Policy struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // doubled after each failed attempt
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	return p
}

// OutboxConfig sizes the worker pool.
type OutboxConfig struct {
	Workers   int
	QueueSize int
	Policy    Policy
}

// Outbox runs jobs on a fixed pool of workers fed by a bounded queue.
type Outbox struct {
	dispatcher Dispatcher
	config     OutboxConfig
	logger     *slog.Logger
	jobs       chan Job

	// ctx is cancelled when Stop gives up waiting; in-flight attempts and
	// backoff sleeps end early.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	startDone sync.Once
}

var _ Runner = (*Outbox)(nil)

// NewOutbox creates an Outbox. Call Start to begin processing.
func NewOutbox(d Dispatcher, cfg OutboxConfig, logger *slog.Logger) *Outbox {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	cfg.Policy = cfg.Policy.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		dispatcher: d,
		config:     cfg,
		logger:     logger,
		jobs:       make(chan Job, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (o *Outbox) Start() {
	o.startDone.Do(func() {
		o.logger.Info("starting notification outbox",
			slog.Int("workers", o.config.Workers),
			slog.Int("queueSize", o.config.QueueSize),
		)
		for i := 0; i < o.config.Workers; i++ {
			o.wg.Add(1)
			go o.worker()
		}
	})
}

// Enqueue queues job without blocking. It returns false, and logs the drop,
// if the queue is full or the outbox is stopped.
func (o *Outbox) Enqueue(job Job) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		o.logDrop(job, "outbox stopped")
		return false
	}

	select {
	case o.jobs <- job:
		return true
	default:
		o.logDrop(job, "queue full")
		return false
	}
}

// Stop refuses new jobs and waits for queued ones to finish. If ctx ends
// first, remaining attempts are cancelled and ctx.Err() is returned once the
// workers exit.
func (o *Outbox) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.jobs)
	o.mu.Unlock()

	o.logger.Info("draining notification outbox", slog.Int("queued", len(o.jobs)))

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-finished
		return ctx.Err()
	}
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for job := range o.jobs {
		deliver(o.ctx, o.dispatcher, o.config.Policy, o.logger, job)
	}
}

func (o *Outbox) logDrop(job Job, reason string) {
	o.logger.Error("notification dropped",
		slog.String("jobID", job.ID.String()),
		slog.String("kind", job.Kind),
		slog.String("subjectID", job.SubjectID),
		slog.String("reason", reason),
	)
}

// deliver runs job until it succeeds, runs out of attempts, or base is
// cancelled. It reports whether the job succeeded.
func deliver(base context.Context, d Dispatcher, p Policy, logger *slog.Logger, job Job) bool {
	attrs := []any{
		slog.String("jobID", job.ID.String()),
		slog.String("kind", job.Kind),
		slog.String("subjectID", job.SubjectID),
	}

	backoff := p.Backoff
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(base, p.Timeout)
		err := safeRun(ctx, d, job)
		cancel()

		if err == nil {
			logger.Debug("notification delivered", append(attrs, slog.Int("attempt", attempt))...)
			return true
		}

		logger.Warn("notification attempt failed",
			append(attrs, slog.Int("attempt", attempt), slog.String("error", err.Error()))...)

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-base.Done():
			logger.Error("notification dropped", append(attrs, slog.String("reason", "shutting down"))...)
			return false
		}
	}

	logger.Error("notification dropped", append(attrs, slog.String("reason", "attempts exhausted"))...)
	return false
}

// safeRun turns a panicking job into an error so one bad job cannot take a
// worker down.
func safeRun(ctx context.Context, d Dispatcher, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: job panicked: %v", r)
		}
	}()
	if job.Run == nil {
		return errors.New("notify: job has no Run func")
	}
	return job.Run(ctx, d)
}
