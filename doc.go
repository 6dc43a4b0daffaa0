// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package kproducer provides an asynchronous Kafka producer that routes every
// delivery report back to the produce call that caused it.
//
// # Overview
//
// A Producer accepts messages without blocking and hands them to a
// Transport (by default a franz-go client).  Each accepted message is
// registered under a correlation token.  When the transport reports the
// outcome, the producer looks the token up and hands a DeliveryReport to the
// matching caller, exactly once.
//
// # Quick Start
//
//	producer := &kproducer.Producer{
//	    Brokers: []string{"localhost:9092"},
//	}
//	if err := producer.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer producer.Stop(context.Background())
//
//	report, err := producer.Produce(ctx, kproducer.ToTopic("events"), &kproducer.Message{
//	    Key:   []byte("device-1"),
//	    Value: []byte(`{"status":"online"}`),
//	})
//	if err != nil {
//	    log.Printf("produce failed: %v", err)
//	}
//	log.Printf("delivered to %s at offset %d", report.TopicPartition, report.Offset)
//
// # Produce Styles
//
// Three styles share one code path:
//
//   - ProduceFunc: fire-and-forget with an optional callback.  The callback
//     runs on the polling goroutine and must not block.
//   - ProduceAsync: returns a Future.  Cancelling the context fails the future
//     with the context error; the message is not retracted.
//   - Produce: blocks for the report.  A failed delivery returns the report
//     together with a *DeliveryError.
//
// TypedProducer offers the same styles over typed keys and values, encoded
// with the serializers in a SerializerRegistry.
//
// # Polling
//
// By default a background goroutine polls the transport.  With ManualPoll the
// application calls Poll itself and delivery handlers run on its goroutine.
// Handlers are never invoked concurrently.  A handler that panics is
// recovered and reported to the fault listeners.
//
// # Delivery Reports
//
// DeliveryReportFields limits which message fields are copied into reports.
// With DisableDeliveryReports set, futures resolve as soon as the message is
// accepted, with Offset set to OffsetUnset, and callbacks are never invoked.
//
// # Shutdown
//
// Stop flushes outstanding messages, bounded by CleanupTimeout when the
// context has no deadline, and then calls Close.  Close stops polling,
// releases the transport and fails every future still waiting with
// ErrClosed.  Close returns once the transport is released.  It may also be
// called from inside a delivery handler or listener, in which case it returns
// at once and the release completes when that poll returns.
//
// # Error Handling
//
// Errors wrap sentinel values matchable with errors.Is, for example
// ErrQueueFull, ErrClosed, ErrBroker and ErrTimeout.  ErrorType returns the
// classification label used in events and metrics.
//
// # Observability
//
// AddDeliveryListener, AddFaultListener and AddErrorListener subscribe to the
// producer's events.  Metrics turns them into Prometheus collectors.
package kproducer
