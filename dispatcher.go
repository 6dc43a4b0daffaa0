// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"github.com/twmb/franz-go/pkg/kgo"
)

// dispatch routes one completion to the request that produced it.  It always
// runs while the poll slot is held, so dispatches never overlap.
func (p *Producer) dispatch(c *Completion) {
	if c.Token == 0 || p.closed.Load() {
		return
	}

	pr, ok := p.table.resolve(c.Token)
	if !ok {
		// Cancelled by the caller, or never registered.
		logAt(p.logger, kgo.LogLevelDebug, "dropping completion for unknown token",
			"token", uint64(c.Token), "topic", c.Topic, "partition", c.Partition)
		p.notifyDelivery(c, nil)
		return
	}
	pr.release()

	p.notifyDelivery(c, pr)

	if p.closed.Load() {
		// A listener closed the producer.
		if pr.abandon != nil {
			pr.abandon(ErrClosed)
		}
		return
	}

	report := p.buildReport(pr, c)
	p.invoke(pr, report)
}

// buildReport assembles the report from the cached request and the
// completion.  Fields excluded by the mask keep their zero values.
func (p *Producer) buildReport(pr *pending, c *Completion) *DeliveryReport {
	report := DeliveryReport{
		TopicPartition: TopicPartition{
			Topic:     pr.topic,
			Partition: c.Partition,
		},
		Offset: c.Offset,
		Err:    c.Err,
		Message: Message{
			Key:   pr.key,
			Value: pr.value,
		},
	}

	if c.Err != nil {
		report.Offset = OffsetUnset
	}

	if p.fields.timestamp {
		report.Message.Timestamp = Timestamp{Time: c.Timestamp, Type: c.TimestampType}
	}

	if p.fields.headers && len(c.Headers) > 0 {
		report.Message.Headers = append([]Header(nil), c.Headers...)
	}

	return &report
}

func (p *Producer) invoke(pr *pending, report *DeliveryReport) {
	p.guard(report.Topic, report.Partition, func() {
		pr.handler(report)
	})
}
