// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/xmidt-org/eventor"
)

// DefaultPollInterval bounds each wait of the background poll loop.
const DefaultPollInterval = 100 * time.Millisecond

// Producer sends messages to Kafka asynchronously and routes every delivery
// report back to the request that produced it.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
// Delivery handlers are never invoked concurrently with each other.
type Producer struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Brokers is the list of Kafka broker addresses.
	// Required unless Transport is set. Each address must be in "host:port" format.
	Brokers []string

	// SASL configures SASL authentication.
	// Optional. If nil, no authentication is used.
	SASL sasl.Mechanism

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// ClientID is sent to the brokers with every request.
	// Optional.
	ClientID string

	// MaxOutstanding bounds the number of accepted messages whose delivery
	// report has not been handed out yet.  A produce call beyond the bound
	// fails immediately with ErrQueueFull.
	// Zero or negative values disable this limit.
	MaxOutstanding int

	// MaxBufferedBytes sets the maximum bytes of records to buffer.
	// Zero or negative values disable this limit.
	MaxBufferedBytes int

	// RequestTimeout sets the maximum time to wait for broker responses.
	// Zero or negative values mean no timeout.
	RequestTimeout time.Duration

	// MessageTimeout bounds the time a record may take to be delivered,
	// including retries.  Expired records fail with ErrTimeout.
	// Zero or negative values mean no timeout.
	MessageTimeout time.Duration

	// CleanupTimeout sets the maximum time Stop waits for outstanding
	// messages when the caller's context has no deadline.
	// Zero or negative values mean no timeout.
	CleanupTimeout time.Duration

	// MaxRetries controls retry behavior on broker failures.
	// <=0: client default.
	// >0: Retry up to this many times.
	MaxRetries int

	// Linger sets the batching delay.
	// Zero or negative values disable lingering.
	Linger time.Duration

	// Acks controls broker acknowledgments.
	// Valid: "all", "leader", "none".  Default: "all".
	Acks Acks

	// CompressionCodec specifies the compression algorithm.
	// Valid: "snappy", "gzip", "lz4", "zstd", "none".  Default: "none".
	CompressionCodec Compression

	// AllowAutoTopicCreation enables automatic topic creation when producing to non-existent topics.
	// Default: false.
	AllowAutoTopicCreation bool

	// DisableDeliveryReports sends every message without correlation.  Futures
	// resolve as soon as the message is accepted, with Offset set to
	// OffsetUnset, and callbacks are never invoked.
	// Default: false (delivery reports enabled).
	DisableDeliveryReports bool

	// DeliveryReportFields selects the message fields copied into delivery
	// reports: "all", "none" or a comma separated combination of "key",
	// "value", "timestamp" and "headers".
	// Default: "all".
	DeliveryReportFields string

	// ManualPoll disables the background poll loop.  The application must call
	// Poll to receive delivery reports.
	// Default: false.
	ManualPoll bool

	// PollInterval bounds each wait of the background poll loop.
	// Default: DefaultPollInterval.
	PollInterval time.Duration

	// Serializers is the registry used by typed producers.
	// Optional. A registry with the default serializers is used when nil.
	Serializers *SerializerRegistry

	// Transport replaces the Kafka transport.
	// Optional. When set, the broker related fields are ignored.
	Transport Transport

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialDeliveryListeners, InitialFaultListeners and InitialErrorListeners
	// are registered when Start() is called.
	// Optional.
	InitialDeliveryListeners []func(*DeliveryEvent)
	InitialFaultListeners    []func(*FaultEvent)
	InitialErrorListeners    []func(error)

	// --- INTERNAL FIELDS (not for user configuration) ---

	// logger is the actively used logger instance (never nil after Start).
	logger kgo.Logger

	// clientFactory is a testing hook for the Kafka transport.
	clientFactory clientFactory

	// stateMu orders produce calls against Close.  Produce calls hold the
	// read lock from the state check until the transport accepted the send.
	stateMu sync.RWMutex
	state   atomic.Int32

	// closed is set once Close begins.  Completions and transport errors are
	// dropped from then on.
	closed atomic.Bool

	transport Transport
	table     *handleTable
	fields    reportFields

	// pollSem is a one slot semaphore held by whoever polls the transport.
	pollSem chan struct{}

	// poller is the id of the goroutine inside transport.Poll, or 0.  Every
	// listener and handler runs on that goroutine.
	poller      atomic.Uint64
	released    atomic.Bool
	releaseOnce sync.Once

	cancelPoll context.CancelFunc
	pollDone   chan struct{}

	serdeOnce sync.Once

	deliveryListeners eventor.Eventor[func(*DeliveryEvent)]
	faultListeners    eventor.Eventor[func(*FaultEvent)]
	errorListeners    eventor.Eventor[func(error)]

	registerInitialListenersOnce sync.Once
}

// Start validates the configuration, creates the transport and, unless
// ManualPoll is set, starts the background poll loop.
//
// Returns an error if:
//   - Configuration is invalid
//   - The Kafka client cannot be created
//   - Already started or closed
func (p *Producer) Start() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch p.State() {
	case StateIdle:
	case StateActive:
		return ErrAlreadyStarted
	default:
		return ErrClosed
	}

	if p.clientFactory == nil {
		p.clientFactory = defaultClientFactory
	}

	logger := p.Logger
	if logger == nil {
		logger = &nopLogger{}
	}
	p.logger = logger

	p.registerInitialListenersOnce.Do(func() {
		for _, listener := range p.InitialDeliveryListeners {
			p.deliveryListeners.Add(listener)
		}
		for _, listener := range p.InitialFaultListeners {
			p.faultListeners.Add(listener)
		}
		for _, listener := range p.InitialErrorListeners {
			p.errorListeners.Add(listener)
		}
	})

	if err := p.validate(); err != nil {
		return err
	}

	fields, err := parseReportFields(p.DeliveryReportFields)
	if err != nil {
		return err
	}
	p.fields = fields

	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}

	p.transport = p.Transport
	if p.transport == nil {
		t, err := newKafkaTransport(p.clientFactory, p.MaxOutstanding, p.reportError, p.toKgoOpts()...)
		if err != nil {
			return fmt.Errorf("failed to create Kafka client: %w", err)
		}
		p.transport = t
	}

	p.serializers()
	p.table = newHandleTable()
	p.pollSem = make(chan struct{}, 1)

	if !p.ManualPoll {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancelPoll = cancel
		p.pollDone = make(chan struct{})
		go p.pollLoop(ctx)
	}

	p.state.Store(int32(StateActive))
	p.logger.Log(kgo.LogLevelInfo, "Producer started successfully",
		"manual_poll", p.ManualPoll, "delivery_reports", !p.DisableDeliveryReports, "fields", p.fields.String())

	return nil
}

// State returns the lifecycle state of the producer.
func (p *Producer) State() State {
	return State(p.state.Load())
}

// Outstanding returns the number of accepted messages whose delivery report
// has not been handed out yet.  Zero before Start and after Close.
func (p *Producer) Outstanding() int {
	if p.State() != StateActive {
		return 0
	}
	return p.transport.Outstanding()
}

// ProduceFunc sends msg and calls handler with its delivery report from the
// polling goroutine.  A nil handler sends the message fire-and-forget.
//
// An error is returned only when the message was not accepted; in that case
// handler is never called.  handler is also never called when delivery
// reports are disabled or when the producer closes before the report arrives.
func (p *Producer) ProduceFunc(dest TopicPartition, msg *Message, handler func(*DeliveryReport)) error {
	var pr *pending
	if handler != nil {
		pr = &pending{handler: handler}
	}

	_, err := p.produce(context.Background(), dest, msg, pr)
	return err
}

// ProduceAsync sends msg and returns a future for its delivery report.
//
// Cancelling ctx before the report arrives fails the future with the context
// error.  The message itself is not retracted.  A failed delivery resolves
// the future with the report and a *DeliveryError.
func (p *Producer) ProduceAsync(ctx context.Context, dest TopicPartition, msg *Message) (*Future[*DeliveryReport], error) {
	return produceFuture(p, ctx, dest, msg, func(r *DeliveryReport) *DeliveryReport { return r })
}

// Produce sends msg and blocks until its delivery report arrives or ctx is
// done.  A failed delivery returns the report together with a *DeliveryError.
func (p *Producer) Produce(ctx context.Context, dest TopicPartition, msg *Message) (*DeliveryReport, error) {
	f, err := p.ProduceAsync(ctx, dest, msg)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// produceFuture is the future shaped produce path shared by the untyped and
// typed producers.  convert turns the report into the caller's result type.
func produceFuture[T any](p *Producer, ctx context.Context, dest TopicPartition, msg *Message, convert func(*DeliveryReport) T) (*Future[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := newFuture[T]()
	pr := &pending{
		handler: func(r *DeliveryReport) {
			f.resolve(convert(r), deliveryError(r))
		},
		abandon: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}

	token, err := p.produce(ctx, dest, msg, pr)
	if err != nil {
		return nil, err
	}

	if token == 0 {
		f.resolve(convert(&DeliveryReport{
			TopicPartition: dest,
			Offset:         OffsetUnset,
			Message:        *msg,
		}), nil)
	}
	return f, nil
}

func deliveryError(r *DeliveryReport) error {
	if r.Err == nil {
		return nil
	}
	return &DeliveryError{Report: r}
}

// produce is the single path every produce call takes.  It validates the
// request, registers pr (when reports are enabled) and hands the message to
// the transport.  The returned token is 0 when nothing was registered.
func (p *Producer) produce(ctx context.Context, dest TopicPartition, msg *Message, pr *pending) (Token, error) {
	if err := validateRequest(dest, msg); err != nil {
		return 0, err
	}

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	if err := stateError(p.State()); err != nil {
		return 0, err
	}

	var token Token
	if pr != nil && !p.DisableDeliveryReports {
		pr.topic = dest.Topic
		pr.sentAt = time.Now()
		if p.fields.key {
			pr.key = msg.Key
		}
		if p.fields.value {
			pr.value = msg.Value
		}

		token = p.table.register(pr)

		if pr.abandon != nil && ctx.Done() != nil {
			pr.stop = context.AfterFunc(ctx, func() {
				if p.table.cancel(token) {
					pr.abandon(ctx.Err())
				}
			})
		}
	}

	if err := p.transport.Send(ctx, dest, msg, token); err != nil {
		if token != 0 {
			p.table.cancel(token)
			pr.release()
		}
		return 0, err
	}

	return token, nil
}

func validateRequest(dest TopicPartition, msg *Message) error {
	if msg == nil {
		return errors.Join(ErrValidation, fmt.Errorf("message is required"))
	}
	if dest.Topic == "" {
		return errors.Join(ErrValidation, fmt.Errorf("topic is required"))
	}
	if dest.Partition < PartitionAny {
		return errors.Join(ErrValidation, fmt.Errorf("partition %d is invalid", dest.Partition))
	}
	return msg.Timestamp.validate()
}

// serializers returns the registry used by typed producers, creating the
// default one on first use.
func (p *Producer) serializers() *SerializerRegistry {
	p.serdeOnce.Do(func() {
		if p.Serializers == nil {
			p.Serializers = NewSerializerRegistry()
		}
	})
	return p.Serializers
}

// validate validates the Producer's configuration.
func (p *Producer) validate() error {
	if p.Transport == nil {
		if len(p.Brokers) == 0 {
			return errors.Join(ErrValidation, fmt.Errorf("brokers list is required"))
		}

		for i, broker := range p.Brokers {
			if broker == "" {
				return errors.Join(ErrValidation, fmt.Errorf("broker %d is empty", i))
			}
		}
	}

	if err := validateEnum("acks", string(p.Acks), acksNames); err != nil {
		return err
	}

	if err := validateEnum("compression codec", string(p.CompressionCodec), compressionNames); err != nil {
		return err
	}

	if p.PollInterval < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("poll interval %s is negative", p.PollInterval))
	}

	return nil
}

// toKgoOpts converts the Producer's configuration to franz-go client options.
func (p *Producer) toKgoOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(p.Brokers...),
	}

	if p.logger != nil {
		opts = append(opts, kgo.WithLogger(p.logger))
	}

	if p.ClientID != "" {
		opts = append(opts, kgo.ClientID(p.ClientID))
	}

	if p.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if p.SASL != nil {
		opts = append(opts, kgo.SASL(p.SASL))
	}

	if p.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(p.TLS))
	}

	// The local outstanding bound is enforced by the transport.  The client
	// buffer is sized to match so TryProduce does not fail first.
	if p.MaxOutstanding > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(p.MaxOutstanding))
	}

	if p.MaxBufferedBytes > 0 {
		opts = append(opts, kgo.MaxBufferedBytes(p.MaxBufferedBytes))
	}

	if p.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(p.RequestTimeout))
	}

	if p.MessageTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(p.MessageTimeout))
	}

	if p.MaxRetries > 0 {
		opts = append(opts, kgo.RequestRetries(p.MaxRetries))
	}

	if p.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(p.Linger))
	}

	// Idempotent writes require acks from all in-sync replicas.
	switch p.Acks {
	case AcksAll, "":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case AcksLeader:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	case AcksNone:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	}

	switch p.CompressionCodec {
	case CompressionSnappy:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case CompressionGzip:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case CompressionLz4:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case CompressionZstd:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	case CompressionNone, "":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.NoCompression()))
	}

	return opts
}

// reportFields returns the parsed delivery report field mask.
func (p *Producer) reportFields() reportFields {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.fields
}
