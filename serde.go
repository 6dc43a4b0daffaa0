// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/xmidt-org/wrp-go/v5"
)

// MessageComponent identifies which part of a message is being serialized.
type MessageComponent int

const (
	ComponentKey MessageComponent = iota
	ComponentValue
)

func (c MessageComponent) String() string {
	switch c {
	case ComponentKey:
		return "key"
	case ComponentValue:
		return "value"
	default:
		return "unknown"
	}
}

// SerializationContext is passed to serializers.
type SerializationContext struct {
	Component MessageComponent
	Topic     string
	Headers   []Header
}

// Serializer encodes a value of type T.
type Serializer[T any] func(data T, ctx SerializationContext) ([]byte, error)

// Null is the key or value type of messages that carry no key or value.  It
// always serializes to nil.
type Null struct{}

// SerializerRegistry looks up serializers by the type they encode.  It is safe
// for concurrent use, although registration is normally done before producing.
type SerializerRegistry struct {
	mu          sync.RWMutex
	serializers map[reflect.Type]any
}

// NewSerializerRegistry returns a registry holding the default serializers for
// Null, string, []byte, int32, int64, float32, float64 and *wrp.Message.
// Integers and floats are big-endian, *wrp.Message is msgpack encoded.
func NewSerializerRegistry() *SerializerRegistry {
	r := &SerializerRegistry{
		serializers: make(map[reflect.Type]any),
	}

	mustRegister[Null](r, func(Null, SerializationContext) ([]byte, error) {
		return nil, nil
	})
	mustRegister[string](r, func(s string, _ SerializationContext) ([]byte, error) {
		return []byte(s), nil
	})
	mustRegister[[]byte](r, func(b []byte, _ SerializationContext) ([]byte, error) {
		return b, nil
	})
	mustRegister[int32](r, func(v int32, _ SerializationContext) ([]byte, error) {
		return binary.BigEndian.AppendUint32(nil, uint32(v)), nil //nolint:gosec // two's complement is intended
	})
	mustRegister[int64](r, func(v int64, _ SerializationContext) ([]byte, error) {
		return binary.BigEndian.AppendUint64(nil, uint64(v)), nil //nolint:gosec // two's complement is intended
	})
	mustRegister[float32](r, func(v float32, _ SerializationContext) ([]byte, error) {
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(v)), nil
	})
	mustRegister[float64](r, func(v float64, _ SerializationContext) ([]byte, error) {
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(v)), nil
	})
	mustRegister[*wrp.Message](r, func(msg *wrp.Message, _ SerializationContext) ([]byte, error) {
		if msg == nil {
			return nil, nil
		}
		return msg.EncodeMsgpack(nil)
	})

	return r
}

func mustRegister[T any](r *SerializerRegistry, s Serializer[T]) {
	if err := RegisterSerializer(r, s); err != nil {
		panic(err)
	}
}

// RegisterSerializer sets the serializer used for values of type T, replacing
// any existing one.
func RegisterSerializer[T any](r *SerializerRegistry, s Serializer[T]) error {
	if s == nil {
		return errors.Join(ErrValidation,
			fmt.Errorf("serializer for type %s must not be nil", reflect.TypeFor[T]()))
	}

	r.mu.Lock()
	r.serializers[reflect.TypeFor[T]()] = s
	r.mu.Unlock()
	return nil
}

// UnregisterSerializer removes the serializer for type T.
func UnregisterSerializer[T any](r *SerializerRegistry) error {
	return r.Unregister(reflect.TypeFor[T]())
}

// Unregister removes the serializer registered for t.  Removing a type that
// has no serializer is an error.
func (r *SerializerRegistry) Unregister(t reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.serializers[t]; !ok {
		return fmt.Errorf("%w %s", ErrNoSerializer, t)
	}
	delete(r.serializers, t)
	return nil
}

// Has reports whether a serializer is registered for t.
func (r *SerializerRegistry) Has(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.serializers[t]
	return ok
}

// GetSerializer returns the serializer for type T or an error wrapping
// ErrNoSerializer.
func GetSerializer[T any](r *SerializerRegistry) (Serializer[T], error) {
	t := reflect.TypeFor[T]()

	r.mu.RLock()
	s, ok := r.serializers[t]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoSerializer, t)
	}
	return s.(Serializer[T]), nil //nolint:forcetypeassert // keyed by T
}
