// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates configuration or argument validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrInvalidTimestamp indicates a message timestamp that is neither the
	// default nor an explicit create time.
	ErrInvalidTimestamp = &metricError{
		metric:  "invalid_timestamp",
		message: "timestamp must be either the default or of type CreateTime",
	}

	// ErrNoSerializer indicates no serializer is registered for a type.
	ErrNoSerializer = &metricError{
		metric:  "no_serializer",
		message: "no serializer for type",
	}

	// ErrManualPollDisabled indicates Poll was called while background polling
	// is enabled.
	ErrManualPollDisabled = &metricError{
		metric:  "manual_poll_disabled",
		message: "poll called, but manual polling is not enabled",
	}

	// ErrNotStarted indicates the producer has not been started.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "producer not started",
	}

	// ErrAlreadyStarted indicates the producer has already been started.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "producer already started",
	}

	// ErrClosed indicates the producer or its transport has been closed.
	ErrClosed = &metricError{
		metric:  "closed",
		message: "producer closed",
	}

	// ErrQueueFull indicates the local outstanding queue is at capacity.  It is
	// always returned synchronously from a produce call.
	ErrQueueFull = &metricError{
		metric:  "queue_full",
		message: "local queue full",
	}

	// ErrEncoding indicates a key or value could not be serialized.
	ErrEncoding = &metricError{
		metric:  "encoding_error",
		message: "encoding failed",
	}

	// ErrBufferFull indicates the client buffer rejected the record after it
	// was accepted locally.
	ErrBufferFull = &metricError{
		metric:  "buffer_full",
		message: "buffer full",
	}

	// ErrBroker indicates the Kafka broker rejected the message.
	ErrBroker = &metricError{
		metric:  "broker_error",
		message: "broker error",
	}

	// ErrTimeout indicates the message timed out before it was acknowledged.
	ErrTimeout = &metricError{
		metric:  "timeout",
		message: "timeout",
	}

	// ErrHandlerPanic classifies a panic raised by a delivery handler or listener.
	ErrHandlerPanic = &metricError{
		metric:  "handler_panic",
		message: "delivery handler panicked",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability.
type metricError struct {
	metric  string // Type classification for metrics (e.g., "queue_full", "broker_error")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.metric == t.metric
	}
	return false
}

// errorType extracts the error type string for metrics classification.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}

// ErrorType returns the classification label of err, "" for nil and
// "unknown" for errors that carry no classification.
func ErrorType(err error) string {
	return errorType(err)
}

// DeliveryError is returned by the blocking produce calls when the transport
// reports a failed delivery.  The full report is available to the caller.
type DeliveryError struct {
	Report *DeliveryReport
}

func (e *DeliveryError) Error() string {
	if e.Report == nil {
		return "delivery failed"
	}
	return fmt.Sprintf("delivery to %s failed: %v", e.Report.TopicPartition, e.Report.Err)
}

func (e *DeliveryError) Unwrap() error {
	if e.Report == nil {
		return nil
	}
	return e.Report.Err
}
