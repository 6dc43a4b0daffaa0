// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"time"
)

// Poll delivers the reports that are ready, waiting up to timeout for at
// least one.  It returns the number of completions handled.  Handlers run on
// the calling goroutine.
//
// Poll is only available when ManualPoll is set; otherwise it returns
// ErrManualPollDisabled.
func (p *Producer) Poll(timeout time.Duration) (int, error) {
	if err := stateError(p.State()); err != nil {
		return 0, err
	}

	if !p.ManualPoll {
		return 0, ErrManualPollDisabled
	}

	return p.pollOnce(timeout), nil
}

// pollLoop polls the transport until ctx is cancelled or the producer closes.
func (p *Producer) pollLoop(ctx context.Context) {
	defer close(p.pollDone)

	for ctx.Err() == nil && !p.closed.Load() {
		p.pollOnce(p.PollInterval)
	}
}

// pollOnce runs a single transport poll while holding the poll slot.  The
// whole call, slot wait included, is bounded by timeout.
func (p *Producer) pollOnce(timeout time.Duration) int {
	start := time.Now()
	if !p.acquirePoll(timeout) {
		return 0
	}
	defer p.releasePoll()

	if p.released.Load() {
		return 0
	}

	remaining := timeout - time.Since(start)
	if remaining < 0 {
		remaining = 0
	}

	p.poller.Store(goroutineID())
	defer p.poller.Store(0)

	return p.transport.Poll(remaining, p.dispatch)
}

// polling reports whether the calling goroutine is the one inside
// transport.Poll, that is, whether it is running a handler or listener.
func (p *Producer) polling() bool {
	id := p.poller.Load()
	return id != 0 && id == goroutineID()
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID returns the id of the calling goroutine, parsed from the
// header line of its stack trace.  It returns 0 if the header is not
// recognized.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]

	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}

	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// acquirePoll takes the poll slot, giving up after timeout.
func (p *Producer) acquirePoll(timeout time.Duration) bool {
	select {
	case p.pollSem <- struct{}{}:
		return true
	default:
	}

	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.pollSem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// releasePoll gives the slot back.  Once the producer is closed the holder
// releases the transport first, which finishes a Close issued from inside a
// handler or listener.
func (p *Producer) releasePoll() {
	if p.closed.Load() {
		p.releaseTransport()
	}
	<-p.pollSem
}
