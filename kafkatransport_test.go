// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// promiseRecorder captures the promises handed to TryProduce so tests can
// complete records in any order.
type promiseRecorder struct {
	mu       sync.Mutex
	records  []*kgo.Record
	promises []func(*kgo.Record, error)
}

func (pr *promiseRecorder) run(args mock.Arguments) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.records = append(pr.records, args.Get(1).(*kgo.Record))
	pr.promises = append(pr.promises, args.Get(2).(func(*kgo.Record, error)))
}

func (pr *promiseRecorder) finish(i int, offset int64, err error) {
	pr.mu.Lock()
	r, promise := pr.records[i], pr.promises[i]
	pr.mu.Unlock()

	r.Offset = offset
	promise(r, err)
}

func newTestKafkaTransport(t *testing.T, maxOutstanding int) (*kafkaTransport, *mockKafkaClient, *promiseRecorder, *[]error) {
	t.Helper()

	client := new(mockKafkaClient)
	recorder := new(promiseRecorder)
	client.On("TryProduce", mock.Anything, mock.Anything, mock.Anything).Run(recorder.run)
	client.On("Close").Return()

	var (
		mu     sync.Mutex
		errs   []error
		gotOpt int
	)
	factory := func(opts ...kgo.Opt) (kafkaClient, error) {
		gotOpt = len(opts)
		return client, nil
	}

	tr, err := newKafkaTransport(factory, maxOutstanding, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}, kgo.SeedBrokers("localhost:9092"))
	require.NoError(t, err)
	assert.Equal(t, 3, gotOpt, "partitioner and hooks are added to the caller's options")

	return tr, client, recorder, &errs
}

func TestKafkaTransport_Send(t *testing.T) {
	t.Parallel()
	tr, client, recorder, _ := newTestKafkaTransport(t, 0)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err := tr.Send(context.Background(), TopicPartition{Topic: "events", Partition: 2}, &Message{
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: CreateTime(created),
		Headers:   []Header{{Key: "h", Value: []byte("1")}, {Key: "h", Value: []byte("2")}},
	}, Token(7))
	require.NoError(t, err)

	err = tr.Send(context.Background(), ToTopic("events"), &Message{Value: []byte("v2")}, Token(8))
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "TryProduce", 2)
	assert.Equal(t, 2, tr.Outstanding())

	first := recorder.records[0]
	assert.Equal(t, "events", first.Topic)
	assert.Equal(t, int32(2), first.Partition)
	assert.Equal(t, []byte("k"), first.Key)
	assert.Equal(t, []byte("v"), first.Value)
	assert.Equal(t, created, first.Timestamp)
	assert.Equal(t, []kgo.RecordHeader{{Key: "h", Value: []byte("1")}, {Key: "h", Value: []byte("2")}}, first.Headers)

	second := recorder.records[1]
	assert.Equal(t, PartitionAny, second.Partition)
	assert.True(t, second.Timestamp.IsZero(), "default timestamp is left to the client")
	assert.Nil(t, second.Headers)
}

func TestKafkaTransport_SendDetachesContext(t *testing.T) {
	t.Parallel()

	client := new(mockKafkaClient)
	var recordCtx context.Context
	client.On("TryProduce", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recordCtx = args.Get(0).(context.Context)
	})
	tr, err := newKafkaTransport(func(...kgo.Opt) (kafkaClient, error) { return client, nil }, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Send(ctx, ToTopic("events"), &Message{}, Token(1)))
	cancel()

	require.NotNil(t, recordCtx)
	assert.NoError(t, recordCtx.Err(), "cancelling the caller must not cancel the record")
}

func TestKafkaTransport_PollDeliversCompletions(t *testing.T) {
	t.Parallel()
	tr, _, recorder, _ := newTestKafkaTransport(t, 0)

	for i := range 3 {
		require.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(i+1)))
	}

	recorder.finish(1, 41, nil)
	recorder.finish(0, 40, nil)
	recorder.finish(2, 0, kerr.NotLeaderForPartition)

	var got []Completion
	n := tr.Poll(time.Second, func(c *Completion) {
		got = append(got, *c)
	})
	require.Equal(t, 3, n)
	require.Len(t, got, 3)

	assert.Equal(t, Token(2), got[0].Token)
	assert.Equal(t, int64(41), got[0].Offset)
	assert.NoError(t, got[0].Err)

	assert.Equal(t, Token(1), got[1].Token)
	assert.Equal(t, int64(40), got[1].Offset)

	assert.Equal(t, Token(3), got[2].Token)
	assert.Equal(t, OffsetUnset, got[2].Offset)
	assert.ErrorIs(t, got[2].Err, ErrBroker)

	assert.Zero(t, tr.Outstanding())
}

func TestKafkaTransport_PollWaitsForCompletion(t *testing.T) {
	t.Parallel()
	tr, _, recorder, _ := newTestKafkaTransport(t, 0)
	require.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(1)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		recorder.finish(0, 5, nil)
	}()

	n := tr.Poll(5*time.Second, func(*Completion) {})
	assert.Equal(t, 1, n)
}

func TestKafkaTransport_PollTimeout(t *testing.T) {
	t.Parallel()
	tr, _, _, _ := newTestKafkaTransport(t, 0)

	start := time.Now()
	n := tr.Poll(20*time.Millisecond, func(*Completion) {
		t.Error("nothing to deliver")
	})
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.Zero(t, tr.Poll(0, func(*Completion) {}), "zero timeout does not wait")
}

func TestKafkaTransport_QueueFull(t *testing.T) {
	t.Parallel()
	tr, client, recorder, _ := newTestKafkaTransport(t, 2)

	require.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(1)))
	require.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(2)))

	err := tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(3))
	assert.ErrorIs(t, err, ErrQueueFull)
	client.AssertNumberOfCalls(t, "TryProduce", 2)
	assert.Equal(t, 2, tr.Outstanding())

	// Room frees up only once the completion has been polled.
	recorder.finish(0, 1, nil)
	assert.ErrorIs(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(4)), ErrQueueFull)

	tr.Poll(time.Second, func(*Completion) {})
	assert.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(5)))
}

func TestKafkaTransport_Close(t *testing.T) {
	t.Parallel()
	tr, client, recorder, errs := newTestKafkaTransport(t, 0)
	require.NoError(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(1)))

	tr.Close()
	tr.Close()
	client.AssertNumberOfCalls(t, "Close", 1)

	assert.ErrorIs(t, tr.Send(context.Background(), ToTopic("events"), &Message{}, Token(2)), ErrClosed)

	// Completions and hook errors after close are dropped.
	recorder.finish(0, 0, kgo.ErrClientClosed)
	(&connectHook{t: tr}).OnBrokerConnect(kgo.BrokerMetadata{Host: "h", Port: 1}, 0, nil, errors.New("refused"))

	assert.Zero(t, tr.Poll(10*time.Millisecond, func(*Completion) {
		t.Error("no delivery after close")
	}))
	assert.Empty(t, *errs)
}

func TestConnectHook(t *testing.T) {
	t.Parallel()
	tr, _, _, errs := newTestKafkaTransport(t, 0)
	hook := &connectHook{t: tr}

	hook.OnBrokerConnect(kgo.BrokerMetadata{Host: "kafka", Port: 9092}, time.Millisecond, nil, nil)
	assert.Empty(t, *errs, "successful connections are not reported")

	hook.OnBrokerConnect(kgo.BrokerMetadata{Host: "kafka", Port: 9092}, time.Millisecond, nil, errors.New("connection refused"))
	require.Len(t, *errs, 1)
	assert.Contains(t, (*errs)[0].Error(), "kafka:9092")
	assert.Contains(t, (*errs)[0].Error(), "connection refused")
}

func TestClassifyDeliveryError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "record timeout", err: kgo.ErrRecordTimeout, want: ErrTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "max buffered", err: kgo.ErrMaxBuffered, want: ErrBufferFull},
		{name: "client closed", err: kgo.ErrClientClosed, want: ErrClosed},
		{name: "retries", err: kgo.ErrRecordRetries, want: ErrBroker},
		{name: "broker error", err: kerr.NotLeaderForPartition, want: ErrBroker},
		{name: "message too large", err: kerr.MessageTooLarge, want: ErrBroker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyDeliveryError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "the original error is kept")
		})
	}

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, classifyDeliveryError(nil))
	})

	t.Run("unclassified", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		assert.Same(t, err, classifyDeliveryError(err))
	})
}

func TestTimestampTypeFromAttrs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TimestampCreateTime, timestampType(kgo.RecordAttrs{}))
}

func TestDestinationPartitioner(t *testing.T) {
	t.Parallel()
	tp := newDestinationPartitioner().ForTopic("events")

	explicit := &kgo.Record{Topic: "events", Partition: 3, Key: []byte("k")}
	assert.True(t, tp.RequiresConsistency(explicit))
	assert.Equal(t, 3, tp.Partition(explicit, 6))

	keyed := &kgo.Record{Topic: "events", Partition: PartitionAny, Key: []byte("device-1")}
	first := tp.Partition(keyed, 6)
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 6)
	assert.Equal(t, first, tp.Partition(keyed, 6), "keyed records are hashed consistently")

	nb, ok := tp.(kgo.TopicPartitionerOnNewBatch)
	require.True(t, ok)
	nb.OnNewBatch()
}
