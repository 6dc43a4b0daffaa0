// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package kproducer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kproducer"
)

const (
	messageConsumeWait = 10 * time.Second
)

// setupKafka starts a single node Kafka with testcontainers and returns its
// broker address.  The container is terminated when the test completes.
func setupKafka(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// DOCKER_HOST and TESTCONTAINERS_DOCKER_SOCKET_OVERRIDE come from the
	// environment when running under Podman.
	kafkaContainer, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("kproducer-test"),
	)
	require.NoError(t, err, "Failed to start Kafka container")

	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "Failed to get Kafka brokers")
	require.NotEmpty(t, brokers, "No Kafka brokers available")

	require.NoError(t, waitForKafka(ctx, t, brokers[0]))
	return brokers[0]
}

// waitForKafka pings broker until it responds or 30 seconds pass.
func waitForKafka(ctx context.Context, t *testing.T, broker string) error {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(broker),
			kgo.RequestTimeoutOverhead(5*time.Second),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx)
			cancel()
			client.Close()

			if err == nil {
				return nil
			}
			t.Logf("Kafka not ready yet: %v", err)
		}

		time.Sleep(time.Second)
	}

	return context.DeadlineExceeded
}

// createTestProducer creates a Producer against broker with topic
// auto-creation enabled.
func createTestProducer(t *testing.T, broker string, opts ...func(*kproducer.Producer)) *kproducer.Producer {
	t.Helper()

	p := &kproducer.Producer{
		Brokers:                []string{broker},
		AllowAutoTopicCreation: true,
		CleanupTimeout:         10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Stop(context.Background()) })
	return p
}

// consumeMessages consumes messages from a Kafka topic until want records
// arrived or timeout passes.
func consumeMessages(t *testing.T, broker string, topic string, want int, timeout time.Duration) []*kgo.Record {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err, "Failed to create Kafka consumer")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			t.Logf("Fetch error on %s[%d]: %v", topic, partition, err)
		})

		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}

	return records
}
