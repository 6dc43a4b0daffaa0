// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"fmt"
	"time"
)

const (
	// PartitionAny leaves partition selection to the transport.
	PartitionAny int32 = -1

	// OffsetUnset is reported when a message was never assigned an offset,
	// either because it failed or because delivery reports are disabled.
	OffsetUnset int64 = -1001
)

// TimestampType describes where a message timestamp came from.
type TimestampType int

const (
	// TimestampNotAvailable indicates no timestamp is known.
	TimestampNotAvailable TimestampType = iota

	// TimestampCreateTime indicates the timestamp was set by the producer.
	TimestampCreateTime

	// TimestampLogAppendTime indicates the timestamp was set by the broker.
	TimestampLogAppendTime
)

// String returns the string representation of the TimestampType.
func (t TimestampType) String() string {
	switch t {
	case TimestampNotAvailable:
		return "NotAvailable"
	case TimestampCreateTime:
		return "CreateTime"
	case TimestampLogAppendTime:
		return "LogAppendTime"
	default:
		return "Unknown"
	}
}

// Timestamp is a message timestamp together with its source.  The zero value
// is the default timestamp: the transport assigns the time of the send.
type Timestamp struct {
	Time time.Time
	Type TimestampType
}

// CreateTime returns an explicit, caller supplied create timestamp.
func CreateTime(t time.Time) Timestamp {
	return Timestamp{Time: t, Type: TimestampCreateTime}
}

// IsDefault reports whether ts is the default timestamp.
func (ts Timestamp) IsDefault() bool {
	return ts.Type == TimestampNotAvailable && ts.Time.IsZero()
}

// validate enforces that only the default timestamp or a create time may be
// sent.
func (ts Timestamp) validate() error {
	if ts.Type == TimestampCreateTime || ts.IsDefault() {
		return nil
	}
	return fmt.Errorf("%w: got type %s", ErrInvalidTimestamp, ts.Type)
}

// Header is a single record header.  Names may repeat.
type Header struct {
	Key   string
	Value []byte
}

// Message is an already encoded message.
type Message struct {
	Key       []byte
	Value     []byte
	Timestamp Timestamp
	Headers   []Header
}

// TopicPartition is a produce destination.  Partition is either an explicit
// partition or PartitionAny.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// ToTopic returns a destination that lets the transport pick the partition.
func ToTopic(topic string) TopicPartition {
	return TopicPartition{Topic: topic, Partition: PartitionAny}
}

func (tp TopicPartition) String() string {
	if tp.Partition == PartitionAny {
		return tp.Topic + "[any]"
	}
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// DeliveryReport is the outcome of a produce attempt.  Offset is only
// meaningful when Err is nil.  Fields masked by DeliveryReportFields are left
// at their zero values.
type DeliveryReport struct {
	TopicPartition
	Offset  int64
	Err     error
	Message Message
}

// ErrorType returns the classification of the report's error or "" on
// success.
func (r *DeliveryReport) ErrorType() string {
	return errorType(r.Err)
}
