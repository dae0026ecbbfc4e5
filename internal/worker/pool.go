// Package worker runs queued jobs on a go-pkgz/pool worker group with retries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"triage/internal/apperr"
	"triage/internal/queue"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often and how long a job runs
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        []time.Duration // delay after the n-th failed attempt; the last entry repeats
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is 3 attempts, 10s/30s/60s backoff and 120s per attempt
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		AttemptTimeout: 120 * time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based)
func (p RetryPolicy) Delay(n int) time.Duration {
	if len(p.Backoff) == 0 || n < 1 {
		return 0
	}
	if n > len(p.Backoff) {
		n = len(p.Backoff)
	}
	return p.Backoff[n-1]
}

// Handler executes one job attempt
type Handler interface {
	Handle(ctx context.Context, msg *queue.Message) error
}

// Settler records the final outcome of a message
type Settler interface {
	Ack(ctx context.Context, msg *queue.Message) error
	DeadLetter(ctx context.Context, msg *queue.Message, cause error) error
}

// Metrics are pool counters
type Metrics struct {
	Processed int64
	Retried   int64
	Failed    int64
}

// Pool runs messages through a Handler with the retry policy
type Pool struct {
	handler Handler
	settler Settler
	policy  RetryPolicy
	size    int
	group   *pool.WorkerGroup[*queue.Message]
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger

	processed atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// messageWorker adapts the pool to the go-pkgz worker interface
type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker. Errors are settled in Execute, never returned,
// so one failed job does not stop the group.
func (w *messageWorker) Do(ctx context.Context, msg *queue.Message) error {
	_ = w.pool.Execute(ctx, msg)
	return nil
}

// NewPool creates a pool of size workers
func NewPool(handler Handler, settler Settler, policy RetryPolicy, size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		handler: handler,
		settler: settler,
		policy:  policy,
		size:    size,
		sleep:   sleepCtx,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (p *Pool) Start(ctx context.Context) error {
	p.group = pool.New[*queue.Message](p.size, &messageWorker{pool: p}).
		WithWorkerChanSize(p.size).
		WithContinueOnError()
	if err := p.group.Go(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	p.logger.Info().
		Int("workers", p.size).
		Int("max_attempts", p.policy.MaxAttempts).
		Dur("attempt_timeout", p.policy.AttemptTimeout).
		Msg("Worker pool started")
	return nil
}

// Submit queues msg for a worker. It blocks while all workers are busy.
func (p *Pool) Submit(msg *queue.Message) {
	p.group.Submit(msg)
}

// Close stops accepting messages and waits for running jobs
func (p *Pool) Close(ctx context.Context) error {
	if p.group == nil {
		return nil
	}
	err := p.group.Close(ctx)
	m := p.Metrics()
	p.logger.Info().
		Int64("processed", m.Processed).
		Int64("retried", m.Retried).
		Int64("failed", m.Failed).
		Msg("Worker pool stopped")
	return err
}

// Metrics returns a snapshot of the counters
func (p *Pool) Metrics() Metrics {
	return Metrics{
		Processed: p.processed.Load(),
		Retried:   p.retried.Load(),
		Failed:    p.failed.Load(),
	}
}

// Execute runs msg until it succeeds, fails permanently or ctx ends. Success
// acks the message; permanent failure dead-letters it. When ctx ends the
// message is left pending so another worker can reclaim it.
func (p *Pool) Execute(ctx context.Context, msg *queue.Message) error {
	log := p.logger.With().Str("job_id", msg.ID).Str("queue", msg.Queue).Logger()
	start := time.Now()

	var err error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		msg.Attempt = attempt
		err = p.attempt(ctx, msg)
		if err == nil {
			p.processed.Add(1)
			log.Info().Int("attempt", attempt).Dur("elapsed", time.Since(start)).Msg("Job completed")
			if aerr := p.settler.Ack(ctx, msg); aerr != nil {
				log.Error().Err(aerr).Msg("Failed to ack job")
			}
			return nil
		}
		if ctx.Err() != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Job interrupted by shutdown")
			return ctx.Err()
		}
		if !apperr.IsRetryable(err) {
			log.Error().Err(err).Int("attempt", attempt).Msg("Job failed with a non-retryable error")
			break
		}
		if attempt == p.policy.MaxAttempts {
			break
		}

		delay := p.policy.Delay(attempt)
		p.retried.Add(1)
		ev := log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay)
		if reason, ok := apperr.Detail(err, "reason"); ok {
			ev = ev.Interface("reason", reason)
		}
		ev.Msg("Job attempt failed")
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	p.failed.Add(1)
	log.Error().
		Str("severity", "critical").
		Err(err).
		Int("attempts", msg.Attempt).
		Dur("elapsed", time.Since(start)).
		Msg("Job permanently failed")
	if derr := p.settler.DeadLetter(context.WithoutCancel(ctx), msg, err); derr != nil {
		log.Error().Err(derr).Msg("Failed to dead-letter job")
	}
	return err
}

// attempt runs one bounded attempt. A panic is an internal error.
func (p *Pool) attempt(ctx context.Context, msg *queue.Message) (err error) {
	actx, cancel := context.WithTimeout(ctx, p.policy.AttemptTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal(fmt.Errorf("%v", r), "job panicked")
		}
	}()

	err = p.handler.Handle(actx, msg)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return apperr.Upstream(err, "job attempt timed out").WithDetail("reason", "timeout")
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
