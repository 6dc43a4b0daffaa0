// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaTransport adapts the franz-go client to the Transport contract.
//
// franz-go reports results through per-record promises on its own goroutine.
// The promises only append a Completion to a queue; the completions are
// handed to the producer when it polls, on the polling goroutine.
type kafkaTransport struct {
	client         kafkaClient
	maxOutstanding int64
	onError        func(error)

	outstanding atomic.Int64
	closed      atomic.Bool
	done        chan struct{}

	mu     sync.Mutex
	queue  []Completion
	notify chan struct{}
}

// newKafkaTransport creates the transport and its client.  onError receives
// connection level errors until the transport is closed.
func newKafkaTransport(factory clientFactory, maxOutstanding int, onError func(error), opts ...kgo.Opt) (*kafkaTransport, error) {
	t := &kafkaTransport{
		maxOutstanding: int64(maxOutstanding),
		onError:        onError,
		done:           make(chan struct{}),
		notify:         make(chan struct{}, 1),
	}

	opts = append(opts,
		kgo.RecordPartitioner(newDestinationPartitioner()),
		kgo.WithHooks(&connectHook{t: t}),
	)

	client, err := factory(opts...)
	if err != nil {
		return nil, err
	}
	t.client = client
	return t, nil
}

// Send hands msg to the client.  The record is detached from ctx cancellation:
// once accepted, a send is never retracted.
func (t *kafkaTransport) Send(ctx context.Context, dest TopicPartition, msg *Message, token Token) error {
	if t.closed.Load() {
		return ErrClosed
	}

	if n := t.outstanding.Add(1); t.maxOutstanding > 0 && n > t.maxOutstanding {
		t.outstanding.Add(-1)
		return ErrQueueFull
	}

	record := &kgo.Record{
		Topic:     dest.Topic,
		Partition: dest.Partition,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   toRecordHeaders(msg.Headers),
	}
	if msg.Timestamp.Type == TimestampCreateTime {
		record.Timestamp = msg.Timestamp.Time
	}

	t.client.TryProduce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		t.complete(token, r, err)
	})
	return nil
}

// complete runs on the franz-go promise goroutine.
func (t *kafkaTransport) complete(token Token, r *kgo.Record, err error) {
	if t.closed.Load() {
		return
	}

	c := Completion{
		Token:     token,
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Err:       classifyDeliveryError(err),
		Headers:   fromRecordHeaders(r.Headers),
	}
	if err != nil {
		c.Offset = OffsetUnset
	}
	if !r.Timestamp.IsZero() {
		c.Timestamp = r.Timestamp
		c.TimestampType = timestampType(r.Attrs)
	}

	t.mu.Lock()
	t.queue = append(t.queue, c)
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *kafkaTransport) take() []Completion {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch := t.queue
	t.queue = nil
	return batch
}

// Poll waits up to timeout for completions and delivers every queued one.
func (t *kafkaTransport) Poll(timeout time.Duration, deliver func(*Completion)) int {
	if t.closed.Load() {
		return 0
	}

	batch := t.take()
	if len(batch) == 0 && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for len(batch) == 0 {
			select {
			case <-t.notify:
				batch = t.take()
			case <-timer.C:
				return 0
			case <-t.done:
				return 0
			}
		}
	}

	for i := range batch {
		deliver(&batch[i])
		t.outstanding.Add(-1)
	}
	return len(batch)
}

func (t *kafkaTransport) Outstanding() int {
	return int(t.outstanding.Load())
}

// Close releases the client.  Records still buffered are failed by the
// client, but their completions are discarded.
func (t *kafkaTransport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	close(t.done)
	t.client.Close()
}

// connectHook forwards broker connection failures to the transport's error
// callback.
type connectHook struct {
	t *kafkaTransport
}

var _ kgo.HookBrokerConnect = (*connectHook)(nil)

func (h *connectHook) OnBrokerConnect(meta kgo.BrokerMetadata, _ time.Duration, _ net.Conn, err error) {
	if err == nil || h.t.onError == nil || h.t.closed.Load() {
		return
	}
	h.t.onError(fmt.Errorf("connecting to broker %s:%d: %w", meta.Host, meta.Port, err))
}

// classifyDeliveryError tags client and broker errors with the package's
// sentinel errors.
func classifyDeliveryError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, kgo.ErrRecordTimeout), errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	case errors.Is(err, kgo.ErrMaxBuffered):
		return errors.Join(ErrBufferFull, err)
	case errors.Is(err, kgo.ErrClientClosed):
		return errors.Join(ErrClosed, err)
	case errors.Is(err, kgo.ErrRecordRetries):
		return errors.Join(ErrBroker, err)
	}

	var ke *kerr.Error
	if errors.As(err, &ke) {
		return errors.Join(ErrBroker, err)
	}
	return err
}

func timestampType(attrs kgo.RecordAttrs) TimestampType {
	switch attrs.TimestampType() {
	case 0:
		return TimestampCreateTime
	case 1:
		return TimestampLogAppendTime
	default:
		return TimestampNotAvailable
	}
}

func toRecordHeaders(headers []Header) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kgo.RecordHeader, 0, len(headers))
	for _, h := range headers {
		out = append(out, kgo.RecordHeader{Key: h.Key, Value: h.Value})
	}
	return out
}

func fromRecordHeaders(headers []kgo.RecordHeader) []Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		out = append(out, Header{Key: h.Key, Value: h.Value})
	}
	return out
}
