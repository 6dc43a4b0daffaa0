// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"time"
)

// Completion is a raw completion event surfaced by a Transport.
type Completion struct {
	// Token is the correlation token passed to Send, unchanged.
	Token Token

	Topic     string
	Partition int32

	// Offset is OffsetUnset when Err is set.
	Offset int64
	Err    error

	Timestamp     time.Time
	TimestampType TimestampType
	Headers       []Header
}

// Transport is the wire side of a Producer.
//
// Send either accepts the message for asynchronous delivery or rejects it
// immediately.  Every accepted message eventually surfaces exactly one
// Completion through Poll.  Poll runs deliver on the calling goroutine and
// never blocks longer than timeout waiting for events.  Outstanding counts
// accepted messages whose completion has not yet been delivered.  After Close
// every method is a no-op and Send fails with ErrClosed.
//
// A Producer never calls Poll concurrently with itself or with Close.
type Transport interface {
	Send(ctx context.Context, dest TopicPartition, msg *Message, token Token) error
	Poll(timeout time.Duration, deliver func(*Completion)) int
	Outstanding() int
	Close()
}
