// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// flushWait is how often a background mode Flush rechecks the outstanding
// count.
const flushWait = 10 * time.Millisecond

// Flush waits until every accepted message has had its delivery report handed
// out, or ctx is done.  In manual poll mode Flush polls on the calling
// goroutine.
//
// It returns the number of messages still outstanding.  When ctx ends first
// the error wraps ErrTimeout and the context error.
//
// Flush must not be called from a delivery handler without a deadline: the
// report being handled is outstanding until the handler returns.
func (p *Producer) Flush(ctx context.Context) (int, error) {
	if err := stateError(p.State()); err != nil {
		return 0, err
	}

	for {
		remaining := p.transport.Outstanding()
		if remaining == 0 {
			return 0, nil
		}

		if err := ctx.Err(); err != nil {
			return remaining, errors.Join(ErrTimeout,
				fmt.Errorf("flush incomplete with %d outstanding: %w", remaining, err))
		}

		if p.State() != StateActive {
			return remaining, ErrClosed
		}

		if p.ManualPoll {
			p.pollOnce(stepTimeout(ctx, p.PollInterval))
			continue
		}

		timer := time.NewTimer(stepTimeout(ctx, flushWait))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
}

// stepTimeout is step, shortened to the time left before ctx's deadline.
func stepTimeout(ctx context.Context, step time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < step {
			return max(left, 0)
		}
	}
	return step
}

// Close stops the producer.  It rejects new produce calls, stops the poll
// loop, releases the transport and abandons every request still waiting for
// a report: futures fail with ErrClosed and callbacks are never invoked.
// Messages that were not flushed may be lost; use Stop to flush first.
//
// Close blocks until the transport is released, so no handler or listener is
// running once it returns.  The exception is a Close called from a delivery
// handler or listener: it returns at once and the release happens when the
// poll that invoked the handler returns.
//
// Close is idempotent and safe to call concurrently.
func (p *Producer) Close() {
	p.stateMu.Lock()
	switch p.State() {
	case StateIdle:
		p.stateMu.Unlock()
		return
	case StateActive:
		p.state.Store(int32(StateDraining))
		p.closed.Store(true)
		p.stateMu.Unlock()

		p.logger.Log(kgo.LogLevelInfo, "Closing producer")
		if p.cancelPoll != nil {
			p.cancelPoll()
		}
	default:
		p.stateMu.Unlock()
	}

	if p.polling() {
		// This goroutine holds the poll slot; releasePoll finishes the job.
		return
	}

	if p.pollDone != nil {
		<-p.pollDone
	}

	p.pollSem <- struct{}{}
	p.releasePoll()
}

// releaseTransport closes the transport and abandons the remaining requests.
// It runs exactly once, while holding the poll slot.
func (p *Producer) releaseTransport() {
	p.releaseOnce.Do(func() {
		p.transport.Close()
		p.released.Store(true)

		abandoned := p.table.drain()
		for _, pr := range abandoned {
			pr.release()
			if pr.abandon != nil {
				pr.abandon(ErrClosed)
			}
		}

		p.state.Store(int32(StateStopped))
		p.logger.Log(kgo.LogLevelInfo, "Producer stopped successfully", "abandoned", len(abandoned))
	})
}

// Stop gracefully shuts down: it flushes outstanding messages and then
// closes the producer.  Blocks until messages are delivered or the flush
// times out.  Safe to call multiple times (idempotent).
func (p *Producer) Stop(ctx context.Context) {
	if p.State() != StateActive {
		return
	}

	p.logger.Log(kgo.LogLevelInfo, "Stopping producer, flushing outstanding messages")

	// Apply CleanupTimeout only if the context doesn't already have a deadline.
	if p.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.CleanupTimeout)
			defer cancel()
		}
	}

	if remaining, err := p.Flush(ctx); err != nil {
		p.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown",
			"remaining", remaining, "error", err.Error())
	}

	p.Close()
}
