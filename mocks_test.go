// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) TryProduce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

// sentMessage is one Send observed by fakeTransport.
type sentMessage struct {
	dest  TopicPartition
	msg   *Message
	token Token
}

// fakeTransport is a scripted in-memory Transport.  Completions are queued
// with complete, or generated on Send when autoComplete is set.
type fakeTransport struct {
	// sendErr, when set, rejects every Send.
	sendErr error

	// maxOutstanding rejects sends with ErrQueueFull beyond the bound.
	maxOutstanding int

	// autoComplete turns every accepted send into a completion.
	autoComplete func(sentMessage) Completion

	mu          sync.Mutex
	sent        []sentMessage
	ready       []Completion
	outstanding int
	closed      bool
	closeCalls  int

	notify chan struct{}

	polling  atomic.Int32
	overlaps atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		notify: make(chan struct{}, 1),
	}
}

// succeed is an autoComplete that acknowledges every send at offset = token.
func succeed(s sentMessage) Completion {
	return Completion{
		Token:     s.token,
		Topic:     s.dest.Topic,
		Partition: max(s.dest.Partition, 0),
		Offset:    int64(s.token),
	}
}

func (f *fakeTransport) Send(_ context.Context, dest TopicPartition, msg *Message, token Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.maxOutstanding > 0 && f.outstanding >= f.maxOutstanding {
		return ErrQueueFull
	}

	s := sentMessage{dest: dest, msg: msg, token: token}
	f.sent = append(f.sent, s)
	f.outstanding++

	if f.autoComplete != nil {
		f.ready = append(f.ready, f.autoComplete(s))
		f.signal()
	}
	return nil
}

// complete queues a completion for a previous send.
func (f *fakeTransport) complete(c Completion) {
	f.mu.Lock()
	f.ready = append(f.ready, c)
	f.mu.Unlock()
	f.signal()
}

func (f *fakeTransport) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *fakeTransport) take() []Completion {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	batch := f.ready
	f.ready = nil
	return batch
}

func (f *fakeTransport) Poll(timeout time.Duration, deliver func(*Completion)) int {
	if f.polling.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.polling.Add(-1)

	batch := f.take()
	if len(batch) == 0 && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for len(batch) == 0 {
			select {
			case <-f.notify:
				batch = f.take()
			case <-timer.C:
				return 0
			}
		}
	}

	for i := range batch {
		deliver(&batch[i])
		f.mu.Lock()
		f.outstanding--
		f.mu.Unlock()
	}
	return len(batch)
}

func (f *fakeTransport) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCalls++
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// lastToken returns the token of the most recent send.
func (f *fakeTransport) lastToken(t *testing.T) Token {
	t.Helper()
	sent := f.sentMessages()
	require.NotEmpty(t, sent, "nothing was sent")
	return sent[len(sent)-1].token
}

// startProducer starts a producer over ft, applying opts first, and closes it
// when the test ends.
func startProducer(t *testing.T, ft *fakeTransport, opts ...func(*Producer)) *Producer {
	t.Helper()

	p := &Producer{Transport: ft}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, p.Start())
	t.Cleanup(p.Close)
	return p
}

func manualPoll(p *Producer) {
	p.ManualPoll = true
}

func withFields(fields string) func(*Producer) {
	return func(p *Producer) {
		p.DeliveryReportFields = fields
	}
}
