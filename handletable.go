// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token correlates a send with its completion.  The zero Token means the send
// carries no correlation and its completion is not routed anywhere.
type Token uint64

// pending is a produce request waiting for its completion.  Key and value are
// the cached raw bytes, already reduced by the report field mask.
type pending struct {
	topic  string
	key    []byte
	value  []byte
	sentAt time.Time

	// handler receives the report.  Invoked at most once, by whoever removes
	// the entry from the table.
	handler func(*DeliveryReport)

	// abandon, when set, is told why the entry will never be delivered
	// (cancellation or shutdown).  Raw callbacks leave it nil.
	abandon func(error)

	// stop detaches the caller context watch, if any.
	stop func() bool
}

func (pr *pending) release() {
	if pr.stop != nil {
		pr.stop()
	}
}

// handleTable maps tokens to pending requests.  It is the only structure
// shared between produce callers and the polling goroutine.  The lock is held
// for single map operations only.
type handleTable struct {
	next atomic.Uint64

	mu      sync.Mutex
	entries map[Token]*pending
}

func newHandleTable() *handleTable {
	return &handleTable{
		entries: make(map[Token]*pending),
	}
}

// register mints a fresh token and stores pr under it.
func (t *handleTable) register(pr *pending) Token {
	token := Token(t.next.Add(1))

	t.mu.Lock()
	t.entries[token] = pr
	t.mu.Unlock()

	return token
}

// resolve removes and returns the request stored under token.  A token is
// resolved at most once; later calls report false.
func (t *handleTable) resolve(token Token) (*pending, bool) {
	t.mu.Lock()
	pr, ok := t.entries[token]
	if ok {
		delete(t.entries, token)
	}
	t.mu.Unlock()

	return pr, ok
}

// cancel drops the entry for token, reporting whether it was still pending.
func (t *handleTable) cancel(token Token) bool {
	_, ok := t.resolve(token)
	return ok
}

// drain removes every entry and returns them.
func (t *handleTable) drain() []*pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]*pending, 0, len(t.entries))
	for token, pr := range t.entries {
		list = append(list, pr)
		delete(t.entries, token)
	}
	return list
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
