// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers request events to a message bus.
//
// In synchronous mode a Pipeline publishes on the caller's goroutine. In
// non-blocking mode events go through a bounded queue to a single background
// sender. A supervisor owns the sender and replaces it if it crashes; the
// notification being sent at the time of the crash is lost. Events that do
// not fit in the queue are dropped and counted.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/cadf"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/utils"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"
)

// ErrPipelineStopped is returned by Deliver after Stop.
var ErrPipelineStopped = errors.New("delivery pipeline stopped")

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	Mode          string `json:"mode"`
	Publisher     string `json:"publisher"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
	Restarts      uint64 `json:"restarts"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	SenderAlive   bool   `json:"sender_alive"`
}

// Pipeline hands events to a Publisher.
type Pipeline struct {
	pub   Publisher
	cfg   Config
	queue chan *Notification

	mu      sync.RWMutex
	started atomic.Bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}

	// sendCtx parents every background publish. It is cancelled when the
	// Stop deadline passes.
	sendCtx    context.Context
	cancelSend context.CancelFunc

	senderAlive atomic.Bool
	delivered   atomic.Uint64
	dropped     atomic.Uint64
	failed      atomic.Uint64
	restarts    atomic.Uint64

	dropWarn    *rate.Limiter
	publishWarn *rate.Limiter
}

// NewPipeline creates a pipeline publishing through pub. In non-blocking mode
// the background sender starts on the first Deliver or an explicit Start.
func NewPipeline(pub Publisher, cfg Config) *Pipeline {
	cfg.Validate()
	sendCtx, cancelSend := context.WithCancel(context.Background())
	p := &Pipeline{
		pub:         pub,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		sendCtx:     sendCtx,
		cancelSend:  cancelSend,
		dropWarn:    rate.NewLimiter(rate.Every(time.Second), 5),
		publishWarn: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	if cfg.NonblockingNotify {
		p.queue = make(chan *Notification, cfg.SendQueueSize)
	}
	return p
}

// Deliver publishes event. In synchronous mode the publisher error is
// returned. In non-blocking mode Deliver never waits: the event is queued, or
// dropped when the queue is full.
func (p *Pipeline) Deliver(ctx context.Context, event *cadf.Event) error {
	n := NewNotification(p.cfg.PublisherID, event)

	if !p.cfg.NonblockingNotify {
		p.mu.RLock()
		stopped := p.stopped
		p.mu.RUnlock()
		if stopped {
			p.drop(n, "stopped")
			return ErrPipelineStopped
		}
		return p.publishSync(ctx, n)
	}

	if !p.started.Load() {
		if err := p.Start(); err != nil {
			p.drop(n, "stopped")
			return err
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.drop(n, "stopped")
		return ErrPipelineStopped
	}

	select {
	case p.queue <- n:
		QueueDepth.Set(float64(len(p.queue)))
		logger.Debug().Str("event_id", event.ID).Msg("event queued for delivery")
	default:
		p.drop(n, "queue_full")
		if p.dropWarn.Allow() {
			logger.Warn().
				Str("event_id", event.ID).
				Int("queue_size", cap(p.queue)).
				Uint64("dropped_total", p.dropped.Load()).
				Msg("send queue full, event dropped")
		}
	}
	return nil
}

func (p *Pipeline) publishSync(ctx context.Context, n *Notification) error {
	if err := p.publish(ctx, n); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("publish %s: %w", n.Payload.ID, err)
	}
	p.delivered.Add(1)
	return nil
}

// Start launches the background sender. It is safe to call more than once
// and is a no-op in synchronous mode.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPipelineStopped
	}
	if !p.cfg.NonblockingNotify || p.started.Load() {
		return nil
	}

	p.started.Store(true)
	p.senderAlive.Store(true)
	go p.supervise()

	logger.Info().
		Str("publisher", p.pub.Name()).
		Int("queue_size", p.cfg.SendQueueSize).
		Dur("send_timeout", p.cfg.SendTimeout).
		Msg("event sender started")
	return nil
}

// Stop rejects further events and lets the sender drain the queue until ctx
// is done. At that point in-flight publishes are cancelled and whatever is
// still queued is dropped and counted. Stop does not close the publisher.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	started := p.started.Load()
	p.mu.Unlock()

	defer p.cancelSend()
	if !started {
		return nil
	}

	stopCancel := context.AfterFunc(ctx, p.cancelSend)
	defer stopCancel()
	<-p.done

	logger.Info().
		Uint64("delivered", p.delivered.Load()).
		Uint64("dropped", p.dropped.Load()).
		Msg("event sender stopped")
	return ctx.Err()
}

// SenderAlive reports whether the background sender is running. It is always
// true in synchronous mode.
func (p *Pipeline) SenderAlive() bool {
	if !p.cfg.NonblockingNotify {
		return true
	}
	return p.senderAlive.Load()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Mode:        "sync",
		Publisher:   p.pub.Name(),
		Delivered:   p.delivered.Load(),
		Dropped:     p.dropped.Load(),
		Failed:      p.failed.Load(),
		Restarts:    p.restarts.Load(),
		SenderAlive: p.SenderAlive(),
	}
	if p.cfg.NonblockingNotify {
		s.Mode = "nonblocking"
		s.QueueDepth = len(p.queue)
		s.QueueCapacity = cap(p.queue)
	}
	return s
}

// supervise runs the sender until it exits cleanly, replacing it after each
// crash.
func (p *Pipeline) supervise() {
	defer close(p.done)

	exit := make(chan error, 1)
	crashes := 0
	for {
		startedAt := time.Now()
		p.senderAlive.Store(true)
		go p.runSender(exit)

		err := <-exit
		p.senderAlive.Store(false)
		if err == nil {
			return
		}

		// A sender that ran longer than the maximum backoff is considered
		// healthy again.
		if time.Since(startedAt) > p.cfg.MaxRestartBackoff {
			crashes = 0
		}
		crashes++
		p.restarts.Add(1)
		SenderRestartsTotal.Inc()
		sentry.CaptureException(err)

		delay := utils.Backoff(p.cfg.RestartBackoff, p.cfg.MaxRestartBackoff, crashes)
		logger.Error().
			Err(err).
			Int("consecutive_crashes", crashes).
			Dur("restart_in", delay).
			Msg("event sender crashed")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
		}
	}
}

// runSender consumes the queue until Stop. It reports a crash on exit
// instead of propagating it.
func (p *Pipeline) runSender(exit chan<- error) {
	defer func() {
		if rec := recover(); rec != nil {
			exit <- fmt.Errorf("event sender panic: %v", rec)
		}
	}()

	for {
		select {
		case n := <-p.queue:
			QueueDepth.Set(float64(len(p.queue)))
			p.send(n)
		case <-p.stopCh:
			p.drain()
			exit <- nil
			return
		}
	}
}

// drain publishes queued notifications until the queue is empty or the
// Stop deadline passes.
func (p *Pipeline) drain() {
	for {
		select {
		case n := <-p.queue:
			if p.sendCtx.Err() != nil {
				p.dropRemaining(n)
				return
			}
			p.send(n)
		default:
			QueueDepth.Set(0)
			return
		}
	}
}

func (p *Pipeline) dropRemaining(first *Notification) {
	count := 1
	p.drop(first, "shutdown")
	for {
		select {
		case n := <-p.queue:
			p.drop(n, "shutdown")
			count++
		default:
			QueueDepth.Set(0)
			logger.Warn().Int("count", count).Msg("shutdown deadline reached, queued events dropped")
			return
		}
	}
}

// send publishes n, retrying attempts that hit SendTimeout. Other publish
// errors are not retried.
func (p *Pipeline) send(n *Notification) {
	ctx := p.sendCtx
	for attempt := 1; ; attempt++ {
		err := p.attempt(ctx, n)
		if err == nil {
			p.delivered.Add(1)
			return
		}

		switch {
		case ctx.Err() != nil:
			p.drop(n, "shutdown")
		case errors.Is(err, context.DeadlineExceeded):
			SendTimeoutsTotal.Inc()
			if attempt < p.cfg.SendAttempts {
				logger.Warn().
					Str("event_id", n.Payload.ID).
					Int("attempt", attempt).
					Dur("send_timeout", p.cfg.SendTimeout).
					Msg("event send timed out, retrying")
				continue
			}
			p.drop(n, "timeout")
		default:
			p.failed.Add(1)
		}

		// Every failure is logged; bursts past the limiter drop to debug.
		log := logger.Ctx(ctx)
		ev := log.Debug()
		if p.publishWarn.Allow() {
			ev = log.Error()
		}
		ev.Err(err).
			Str("event_id", n.Payload.ID).
			Int("attempts", attempt).
			Msg("failed to send event")
		return
	}
}

type attemptResult struct {
	err   error
	panic any
}

// attempt runs one publish bounded by SendTimeout. A publish that outlives
// the timeout is abandoned with its context cancelled. A panic in the
// publisher is re-raised on the sender goroutine.
func (p *Pipeline) attempt(ctx context.Context, n *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	result := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				result <- attemptResult{panic: rec}
			}
		}()
		result <- attemptResult{err: p.publish(ctx, n)}
	}()

	select {
	case r := <-result:
		if r.panic != nil {
			panic(r.panic)
		}
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) publish(ctx context.Context, n *Notification) error {
	name := p.pub.Name()
	start := time.Now()
	err := p.pub.Publish(ctx, n)
	PublishDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		PublishErrorsTotal.WithLabelValues(name).Inc()
		return err
	}
	NotificationsDeliveredTotal.WithLabelValues(name).Inc()
	logger.Debug().
		Str("event_id", n.Payload.ID).
		Str("message_id", n.MessageID).
		Msg("event published")
	return nil
}

func (p *Pipeline) drop(n *Notification, reason string) {
	p.dropped.Add(1)
	NotificationsDroppedTotal.WithLabelValues(reason).Inc()
}
