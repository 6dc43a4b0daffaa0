// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DeliveryEvent is broadcast for every completion the producer receives while
// it is active, whether or not a handler was registered for it.
type DeliveryEvent struct {
	Topic     string
	Partition int32

	// Offset is OffsetUnset for failed deliveries.
	Offset int64

	// Error is nil for successful deliveries.
	Error error

	// ErrorType is the error classification (empty for success).
	// Values: "broker_error", "timeout", "buffer_full", "closed", etc.
	ErrorType string

	// Latency is the time from the produce call to the completion.  It is
	// zero when the request was cancelled or abandoned.
	Latency time.Duration
}

// FaultEvent is broadcast when a delivery handler or listener panics.  The
// panic is recovered and polling continues with the next completion.
type FaultEvent struct {
	Topic     string
	Partition int32

	// Recovered is the value passed to panic.
	Recovered any

	// Err wraps ErrHandlerPanic.
	Err error
}

// AddDeliveryListener adds a listener for completed deliveries.  The returned
// function removes the listener.
//
// Events cover every completion the transport reports, including those of
// requests that were cancelled or abandoned before their report arrived.
// Such events carry no Latency.
//
// Listeners are called from the polling goroutine and must not block.  A
// listener may call Close.
func (p *Producer) AddDeliveryListener(fn func(*DeliveryEvent)) func() {
	return p.deliveryListeners.Add(fn)
}

// AddFaultListener adds a listener for panics raised by delivery handlers.
// The returned function removes the listener.
func (p *Producer) AddFaultListener(fn func(*FaultEvent)) func() {
	return p.faultListeners.Add(fn)
}

// AddErrorListener adds a listener for transport level errors, such as failed
// broker connections.  Listeners are no longer called once the producer is
// closing.  The returned function removes the listener.
func (p *Producer) AddErrorListener(fn func(error)) func() {
	return p.errorListeners.Add(fn)
}

func (p *Producer) notifyDelivery(c *Completion, pr *pending) {
	event := DeliveryEvent{
		Topic:     c.Topic,
		Partition: c.Partition,
		Offset:    c.Offset,
		Error:     c.Err,
		ErrorType: errorType(c.Err),
	}
	if pr != nil {
		event.Topic = pr.topic
		event.Latency = time.Since(pr.sentAt)
	}

	p.deliveryListeners.Visit(func(listener func(*DeliveryEvent)) {
		p.guard(event.Topic, event.Partition, func() { listener(&event) })
	})
}

// reportError forwards transport errors to the error listeners.
func (p *Producer) reportError(err error) {
	if p.closed.Load() {
		return
	}

	logAt(p.logger, kgo.LogLevelWarn, "transport error", "error", err.Error())
	p.errorListeners.Visit(func(listener func(error)) {
		p.guard("", PartitionAny, func() { listener(err) })
	})
}

// guard runs fn and turns a panic into a FaultEvent.
func (p *Producer) guard(topic string, partition int32, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			p.reportFault(topic, partition, v)
		}
	}()
	fn()
}

func (p *Producer) reportFault(topic string, partition int32, v any) {
	event := FaultEvent{
		Topic:     topic,
		Partition: partition,
		Recovered: v,
		Err:       fmt.Errorf("%w: %v", ErrHandlerPanic, v),
	}

	logAt(p.logger, kgo.LogLevelError, "recovered panic in delivery handler",
		"topic", topic, "partition", partition, "error", event.Err.Error())

	p.faultListeners.Visit(func(listener func(*FaultEvent)) {
		defer func() {
			if v := recover(); v != nil {
				logAt(p.logger, kgo.LogLevelError, "recovered panic in fault listener", "panic", fmt.Sprint(v))
			}
		}()
		listener(&event)
	})
}
