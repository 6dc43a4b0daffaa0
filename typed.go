// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"errors"
	"fmt"
)

// TypedMessage is a message whose key and value are serialized by the
// producer's SerializerRegistry.
type TypedMessage[K, V any] struct {
	Key       K
	Value     V
	Timestamp Timestamp
	Headers   []Header
}

// TypedDeliveryReport is the delivery report of a TypedMessage.  Key and
// value are the originals passed to the produce call, subject to the same
// field mask as DeliveryReport.
type TypedDeliveryReport[K, V any] struct {
	TopicPartition
	Offset  int64
	Err     error
	Message TypedMessage[K, V]
}

// TypedProducer produces typed messages through a Producer.  Any number of
// typed producers may share one Producer.
type TypedProducer[K, V any] struct {
	producer *Producer
}

// NewTypedProducer returns a typed view of p.  Serializers are looked up on
// every call, so they may be registered after the typed producer is created.
func NewTypedProducer[K, V any](p *Producer) *TypedProducer[K, V] {
	return &TypedProducer[K, V]{producer: p}
}

// ProduceFunc serializes msg and sends it, calling handler with its delivery
// report.  See Producer.ProduceFunc.
func (t *TypedProducer[K, V]) ProduceFunc(dest TopicPartition, msg *TypedMessage[K, V], handler func(*TypedDeliveryReport[K, V])) error {
	raw, err := t.encode(dest, msg)
	if err != nil {
		return err
	}

	if handler == nil {
		return t.producer.ProduceFunc(dest, raw, nil)
	}

	convert := t.converter(msg)
	return t.producer.ProduceFunc(dest, raw, func(r *DeliveryReport) {
		handler(convert(r))
	})
}

// ProduceAsync serializes msg and sends it, returning a future for its
// delivery report.  See Producer.ProduceAsync.
func (t *TypedProducer[K, V]) ProduceAsync(ctx context.Context, dest TopicPartition, msg *TypedMessage[K, V]) (*Future[*TypedDeliveryReport[K, V]], error) {
	raw, err := t.encode(dest, msg)
	if err != nil {
		return nil, err
	}
	return produceFuture(t.producer, ctx, dest, raw, t.converter(msg))
}

// Produce serializes msg, sends it and blocks until its delivery report
// arrives.  See Producer.Produce.
func (t *TypedProducer[K, V]) Produce(ctx context.Context, dest TopicPartition, msg *TypedMessage[K, V]) (*TypedDeliveryReport[K, V], error) {
	f, err := t.ProduceAsync(ctx, dest, msg)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

func (t *TypedProducer[K, V]) encode(dest TopicPartition, msg *TypedMessage[K, V]) (*Message, error) {
	if msg == nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("message is required"))
	}

	registry := t.producer.serializers()

	keySerializer, err := GetSerializer[K](registry)
	if err != nil {
		return nil, err
	}
	valueSerializer, err := GetSerializer[V](registry)
	if err != nil {
		return nil, err
	}

	sc := SerializationContext{
		Component: ComponentKey,
		Topic:     dest.Topic,
		Headers:   msg.Headers,
	}

	key, err := keySerializer(msg.Key, sc)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("serializing key for topic %s", dest.Topic), err)
	}

	sc.Component = ComponentValue
	value, err := valueSerializer(msg.Value, sc)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("serializing value for topic %s", dest.Topic), err)
	}

	return &Message{
		Key:       key,
		Value:     value,
		Timestamp: msg.Timestamp,
		Headers:   msg.Headers,
	}, nil
}

// converter returns a function that turns the raw report of msg into a typed
// report carrying the original key and value.
func (t *TypedProducer[K, V]) converter(msg *TypedMessage[K, V]) func(*DeliveryReport) *TypedDeliveryReport[K, V] {
	var key K
	var value V
	fields := t.producer.reportFields()
	if fields.key {
		key = msg.Key
	}
	if fields.value {
		value = msg.Value
	}

	return func(r *DeliveryReport) *TypedDeliveryReport[K, V] {
		return &TypedDeliveryReport[K, V]{
			TopicPartition: r.TopicPartition,
			Offset:         r.Offset,
			Err:            r.Err,
			Message: TypedMessage[K, V]{
				Key:       key,
				Value:     value,
				Timestamp: r.Message.Timestamp,
				Headers:   r.Message.Headers,
			},
		}
	}
}
