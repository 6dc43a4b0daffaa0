// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	Celsius float64
}

func TestTypedProducer_ProduceFunc(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.autoComplete = succeed
	p := startProducer(t, ft, manualPoll)
	tp := NewTypedProducer[string, int64](p)

	var got *TypedDeliveryReport[string, int64]
	err := tp.ProduceFunc(ToTopic("counts"), &TypedMessage[string, int64]{
		Key:   "device-1",
		Value: 42,
	}, func(r *TypedDeliveryReport[string, int64]) { got = r })
	require.NoError(t, err)

	sent := ft.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("device-1"), sent[0].msg.Key)
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(sent[0].msg.Value))

	_, err = p.Poll(time.Second)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "device-1", got.Message.Key)
	assert.Equal(t, int64(42), got.Message.Value)
	assert.Equal(t, "counts", got.Topic)
	assert.Equal(t, int64(sent[0].token), got.Offset)
}

func TestTypedProducer_Produce(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.autoComplete = succeed
	p := startProducer(t, ft)
	tp := NewTypedProducer[Null, string](p)

	r, err := tp.Produce(context.Background(), TopicPartition{Topic: "logs", Partition: 3}, &TypedMessage[Null, string]{
		Value:   "hello",
		Headers: []Header{{Key: "h", Value: []byte("v")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Message.Value)
	assert.Equal(t, int32(3), r.Partition)
	assert.Nil(t, ft.sentMessages()[0].msg.Key)
	assert.Equal(t, []Header{{Key: "h", Value: []byte("v")}}, ft.sentMessages()[0].msg.Headers)
}

func TestTypedProducer_DeliveryFailure(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	p := startProducer(t, ft, manualPoll)
	tp := NewTypedProducer[string, string](p)

	f, err := tp.ProduceAsync(context.Background(), ToTopic("events"), &TypedMessage[string, string]{Key: "k", Value: "v"})
	require.NoError(t, err)

	ft.complete(Completion{Token: ft.lastToken(t), Topic: "events", Err: ErrBroker})
	_, err = p.Poll(time.Second)
	require.NoError(t, err)

	r, err := f.Wait(context.Background())
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrBroker)
	assert.Equal(t, "k", r.Message.Key, "the typed report carries the originals")
	assert.Equal(t, OffsetUnset, r.Offset)
}

func TestTypedProducer_FieldMask(t *testing.T) {
	t.Parallel()

	ft := newFakeTransport()
	ft.autoComplete = succeed
	p := startProducer(t, ft, manualPoll, withFields("value"))
	tp := NewTypedProducer[string, string](p)

	f, err := tp.ProduceAsync(context.Background(), ToTopic("events"), &TypedMessage[string, string]{Key: "k", Value: "v"})
	require.NoError(t, err)
	_, err = p.Poll(time.Second)
	require.NoError(t, err)

	r, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Message.Key)
	assert.Equal(t, "v", r.Message.Value)
}

func TestTypedProducer_SerializationErrors(t *testing.T) {
	t.Parallel()

	t.Run("no serializer", func(t *testing.T) {
		t.Parallel()

		ft := newFakeTransport()
		p := startProducer(t, ft, manualPoll)
		tp := NewTypedProducer[string, reading](p)

		err := tp.ProduceFunc(ToTopic("events"), &TypedMessage[string, reading]{Key: "k"}, nil)
		assert.ErrorIs(t, err, ErrNoSerializer)
		assert.Empty(t, ft.sentMessages())
	})

	t.Run("serializer failure", func(t *testing.T) {
		t.Parallel()

		ft := newFakeTransport()
		registry := NewSerializerRegistry()
		require.NoError(t, RegisterSerializer(registry, func(reading, SerializationContext) ([]byte, error) {
			return nil, errors.New("out of range")
		}))
		p := startProducer(t, ft, manualPoll, func(p *Producer) { p.Serializers = registry })
		tp := NewTypedProducer[string, reading](p)

		_, err := tp.ProduceAsync(context.Background(), ToTopic("events"), &TypedMessage[string, reading]{})
		assert.ErrorIs(t, err, ErrEncoding)
		assert.Contains(t, err.Error(), "out of range")
		assert.Empty(t, ft.sentMessages())
	})

	t.Run("registered after creation", func(t *testing.T) {
		t.Parallel()

		ft := newFakeTransport()
		p := startProducer(t, ft, manualPoll)
		tp := NewTypedProducer[string, reading](p)

		require.NoError(t, RegisterSerializer(p.Serializers, func(r reading, ctx SerializationContext) ([]byte, error) {
			assert.Equal(t, ComponentValue, ctx.Component)
			assert.Equal(t, "events", ctx.Topic)
			return binary.BigEndian.AppendUint64(nil, uint64(r.Celsius)), nil
		}))

		require.NoError(t, tp.ProduceFunc(ToTopic("events"), &TypedMessage[string, reading]{Value: reading{Celsius: 21}}, nil))
		require.Len(t, ft.sentMessages(), 1)
	})

	t.Run("nil message", func(t *testing.T) {
		t.Parallel()

		p := startProducer(t, newFakeTransport(), manualPoll)
		_, err := NewTypedProducer[string, string](p).Produce(context.Background(), ToTopic("events"), nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
