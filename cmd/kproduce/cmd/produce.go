// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xmidt-org/kproducer"
)

var (
	produceTopic     string
	producePartition int32
	produceKey       string
	produceValue     string
	produceCount     int
	produceFields    string
	produceManual    bool
	produceHeaders   []string
)

// errDeliveryFailed is returned when at least one message was not delivered.
var errDeliveryFailed = errors.New("one or more deliveries failed")

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Produce messages and print their delivery reports",
	Long: `Produce one or more messages to a topic and print one delivery report per
message.  The command exits non-zero if any delivery fails.

A "{n}" in --key or --value is replaced with the message number.

Examples:
  kproduce produce --topic events --value hello
  kproduce produce --topic events --key device-{n} --value '{"n":{n}}' --count 100
  kproduce produce --topic events --partition 2 --value hi --fields key,value
  kproduce produce --topic events --value hi --manual-poll`,
	Args: cobra.NoArgs,
	RunE: runProduce,
}

func init() {
	flags := produceCmd.Flags()
	flags.StringVarP(&produceTopic, "topic", "t", "", "Destination topic (required)")
	flags.Int32VarP(&producePartition, "partition", "p", kproducer.PartitionAny,
		"Destination partition (-1 lets the producer choose)")
	flags.StringVarP(&produceKey, "key", "k", "", "Message key")
	flags.StringVarP(&produceValue, "value", "v", "", "Message value")
	flags.IntVarP(&produceCount, "count", "n", 1, "Number of messages to produce")
	flags.StringVar(&produceFields, "fields", "all",
		"Delivery report fields: all, none or a combination of key,value,timestamp,headers")
	flags.BoolVar(&produceManual, "manual-poll", false, "Poll for delivery reports on the command goroutine")
	flags.StringArrayVarP(&produceHeaders, "header", "H", nil, "Header as key=value (repeatable)")

	_ = produceCmd.MarkFlagRequired("topic")
}

func runProduce(cmd *cobra.Command, _ []string) error {
	if produceCount < 1 {
		return fmt.Errorf("count must be at least 1, got %d", produceCount)
	}

	headers, err := parseHeaders(produceHeaders)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetDuration(keyTimeout))
	defer cancel()

	producer, err := newProducer()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := kproducer.NewMetrics(registry)
	if err := metrics.Register(); err != nil {
		return err
	}
	defer metrics.Attach(producer)()

	if err := producer.Start(); err != nil {
		return fmt.Errorf("starting producer: %w", err)
	}
	defer producer.Stop(context.Background())

	if addr := cfg.GetString(keyMetricsAddr); addr != "" {
		defer serveMetrics(addr, registry)()
	}

	dest := kproducer.TopicPartition{Topic: produceTopic, Partition: producePartition}
	messages := make([]*kproducer.Message, 0, produceCount)
	for i := range produceCount {
		messages = append(messages, &kproducer.Message{
			Key:     optionalBytes(expand(produceKey, i)),
			Value:   []byte(expand(produceValue, i)),
			Headers: headers,
		})
	}

	var reports []*kproducer.DeliveryReport
	if produceManual {
		reports, err = produceManually(ctx, producer, dest, messages)
	} else {
		reports, err = produceFutures(ctx, producer, dest, messages)
	}

	failed := printReports(cmd.OutOrStdout(), reports)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errDeliveryFailed, failed, len(messages))
	}
	return nil
}

func newProducer() (*kproducer.Producer, error) {
	kl, err := newKgoLogger(logger, cfg.GetString(keyLogLevel))
	if err != nil {
		return nil, err
	}

	return &kproducer.Producer{
		Brokers:                cfg.GetStringSlice(keyBrokers),
		ClientID:               cfg.GetString(keyClientID),
		Acks:                   kproducer.Acks(cfg.GetString(keyAcks)),
		CompressionCodec:       kproducer.Compression(cfg.GetString(keyCompression)),
		Linger:                 cfg.GetDuration(keyLinger),
		MessageTimeout:         cfg.GetDuration(keyMsgTimeout),
		MaxOutstanding:         cfg.GetInt(keyOutstanding),
		AllowAutoTopicCreation: cfg.GetBool(keyAutoCreate),
		CleanupTimeout:         5 * time.Second,
		DeliveryReportFields:   produceFields,
		ManualPoll:             produceManual,
		Logger:                 kl,
		InitialFaultListeners: []func(*kproducer.FaultEvent){
			func(e *kproducer.FaultEvent) {
				logger.Error("delivery handler panicked", zap.Error(e.Err))
			},
		},
		InitialErrorListeners: []func(error){
			func(err error) {
				logger.Warn("transport error", zap.Error(err))
			},
		},
	}, nil
}

// produceFutures sends every message and then waits for each future in turn.
func produceFutures(ctx context.Context, p *kproducer.Producer, dest kproducer.TopicPartition, messages []*kproducer.Message) ([]*kproducer.DeliveryReport, error) {
	futures := make([]*kproducer.Future[*kproducer.DeliveryReport], 0, len(messages))
	for _, msg := range messages {
		f, err := p.ProduceAsync(ctx, dest, msg)
		if err != nil {
			return nil, fmt.Errorf("producing message %d: %w", len(futures), err)
		}
		futures = append(futures, f)
	}

	reports := make([]*kproducer.DeliveryReport, 0, len(futures))
	for _, f := range futures {
		r, err := f.Wait(ctx)
		var de *kproducer.DeliveryError
		switch {
		case err == nil, errors.As(err, &de):
			reports = append(reports, r)
		default:
			return reports, err
		}
	}
	return reports, nil
}

// produceManually sends every message with a callback and polls until all
// reports arrived.
func produceManually(ctx context.Context, p *kproducer.Producer, dest kproducer.TopicPartition, messages []*kproducer.Message) ([]*kproducer.DeliveryReport, error) {
	reports := make([]*kproducer.DeliveryReport, 0, len(messages))
	collect := func(r *kproducer.DeliveryReport) {
		reports = append(reports, r)
	}

	for i, msg := range messages {
		for {
			err := p.ProduceFunc(dest, msg, collect)
			if err == nil {
				break
			}
			if !errors.Is(err, kproducer.ErrQueueFull) {
				return reports, fmt.Errorf("producing message %d: %w", i, err)
			}
			// Make room by handing out reports.
			if _, err := p.Poll(100 * time.Millisecond); err != nil {
				return reports, err
			}
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
		}
	}

	if remaining, err := p.Flush(ctx); err != nil {
		return reports, fmt.Errorf("%d messages unreported: %w", remaining, err)
	}
	return reports, nil
}

// printReports writes one line per report and returns the number of failures.
func printReports(w io.Writer, reports []*kproducer.DeliveryReport) int {
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\tFAILED\t%s\t%v\n", r.TopicPartition, r.ErrorType(), r.Err)
			continue
		}

		line := fmt.Sprintf("%s\toffset=%d", r.TopicPartition, r.Offset)
		if r.Offset == kproducer.OffsetUnset {
			line = fmt.Sprintf("%s\toffset=unknown", r.TopicPartition)
		}
		if r.Message.Key != nil {
			line += fmt.Sprintf("\tkey=%s", r.Message.Key)
		}
		if r.Message.Value != nil {
			line += fmt.Sprintf("\tvalue=%s", r.Message.Value)
		}
		if !r.Message.Timestamp.IsDefault() {
			line += "\ttimestamp=" + r.Message.Timestamp.Time.Format(time.RFC3339Nano)
		}
		fmt.Fprintln(w, line)
	}
	return failed
}

func parseHeaders(list []string) ([]kproducer.Header, error) {
	if len(list) == 0 {
		return nil, nil
	}

	headers := make([]kproducer.Header, 0, len(list))
	for _, h := range list {
		key, value, ok := strings.Cut(h, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("header %q must be key=value", h)
		}
		headers = append(headers, kproducer.Header{Key: key, Value: []byte(value)})
	}
	return headers, nil
}

func expand(s string, n int) string {
	return strings.ReplaceAll(s, "{n}", fmt.Sprint(n))
}

func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// serveMetrics exposes the registry on addr until the returned function is
// called.
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
