// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaClient is the subset of the franz-go client used by kafkaTransport.
// It allows the client to be mocked in tests.
type kafkaClient interface {
	// TryProduce buffers a record without blocking and calls promise exactly
	// once with the outcome.
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// Close fails any buffered records and releases the client.
	Close()
}

// clientFactory creates a Kafka client from options.
type clientFactory func(opts ...kgo.Opt) (kafkaClient, error)

// defaultClientFactory is the production client factory that uses franz-go.
func defaultClientFactory(opts ...kgo.Opt) (kafkaClient, error) {
	return kgo.NewClient(opts...)
}

var _ kafkaClient = (*kgo.Client)(nil)
