// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"errors"
	"fmt"
	"strings"
)

// Acks specifies the broker acknowledgment requirements.
type Acks string

const (
	// AcksAll requires all ISR replicas to acknowledge (strongest durability).
	AcksAll Acks = "all"

	// AcksLeader requires only the leader replica to acknowledge.
	AcksLeader Acks = "leader"

	// AcksNone requires no acknowledgment.  Delivery reports then only carry
	// local errors and offsets are unknown.
	AcksNone Acks = "none"
)

// Compression specifies the batch compression algorithm.
type Compression string

const (
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionLz4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
	CompressionNone   Compression = "none"
)

// Names accepted by DeliveryReportFields.
const (
	FieldKey       = "key"
	FieldValue     = "value"
	FieldTimestamp = "timestamp"
	FieldHeaders   = "headers"

	fieldsAll  = "all"
	fieldsNone = "none"
)

var (
	acksNames        = enumNames(AcksAll, AcksLeader, AcksNone)
	compressionNames = enumNames(CompressionSnappy, CompressionGzip, CompressionLz4, CompressionZstd, CompressionNone)
	fieldNames       = enumNames(FieldKey, FieldValue, FieldTimestamp, FieldHeaders)
)

func enumNames[T ~string](list ...T) []string {
	names := make([]string, 0, len(list))
	for _, v := range list {
		names = append(names, string(v))
	}
	return names
}

// validateEnum accepts the empty string or one of names.
func validateEnum(kind, value string, names []string) error {
	if value == "" {
		return nil
	}

	for _, n := range names {
		if n == value {
			return nil
		}
	}

	list := "'" + strings.Join(names, "', '") + "'"
	return errors.Join(ErrValidation,
		fmt.Errorf("%s '%s' is invalid: must be %s or empty", kind, value, list))
}

// reportFields is the parsed delivery report field mask.
type reportFields struct {
	key       bool
	value     bool
	timestamp bool
	headers   bool
}

var allReportFields = reportFields{key: true, value: true, timestamp: true, headers: true}

// parseReportFields parses a field mask of "all", "none" or a comma separated
// combination of key, value, timestamp and headers.  The empty string means
// "all".
func parseReportFields(s string) (reportFields, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", fieldsAll:
		return allReportFields, nil
	case fieldsNone:
		return reportFields{}, nil
	}

	var rf reportFields
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case FieldKey:
			rf.key = true
		case FieldValue:
			rf.value = true
		case FieldTimestamp:
			rf.timestamp = true
		case FieldHeaders:
			rf.headers = true
		default:
			list := "'" + strings.Join(fieldNames, "', '") + "'"
			return reportFields{}, errors.Join(ErrValidation,
				fmt.Errorf("unexpected delivery report field name '%s': must be 'all', 'none' or a combination of %s",
					strings.TrimSpace(part), list))
		}
	}
	return rf, nil
}

func (rf reportFields) String() string {
	if rf == allReportFields {
		return fieldsAll
	}

	var parts []string
	if rf.key {
		parts = append(parts, FieldKey)
	}
	if rf.value {
		parts = append(parts, FieldValue)
	}
	if rf.timestamp {
		parts = append(parts, FieldTimestamp)
	}
	if rf.headers {
		parts = append(parts, FieldHeaders)
	}
	if len(parts) == 0 {
		return fieldsNone
	}
	return strings.Join(parts, ",")
}
