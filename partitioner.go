// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import "github.com/twmb/franz-go/pkg/kgo"

// destinationPartitioner honours an explicit partition on the record and
// falls back to another partitioner for records sent with PartitionAny.
type destinationPartitioner struct {
	fallback kgo.Partitioner
}

func newDestinationPartitioner() kgo.Partitioner {
	return &destinationPartitioner{fallback: kgo.StickyKeyPartitioner(nil)}
}

func (d *destinationPartitioner) ForTopic(topic string) kgo.TopicPartitioner {
	return &destinationTopicPartitioner{fallback: d.fallback.ForTopic(topic)}
}

type destinationTopicPartitioner struct {
	fallback kgo.TopicPartitioner
}

var _ kgo.TopicPartitionerOnNewBatch = (*destinationTopicPartitioner)(nil)

func (d *destinationTopicPartitioner) RequiresConsistency(r *kgo.Record) bool {
	return r.Partition != PartitionAny || d.fallback.RequiresConsistency(r)
}

func (d *destinationTopicPartitioner) Partition(r *kgo.Record, n int) int {
	if r.Partition != PartitionAny {
		return int(r.Partition)
	}
	return d.fallback.Partition(r, n)
}

func (d *destinationTopicPartitioner) OnNewBatch() {
	if nb, ok := d.fallback.(kgo.TopicPartitionerOnNewBatch); ok {
		nb.OnNewBatch()
	}
}
