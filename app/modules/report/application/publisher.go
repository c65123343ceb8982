package reportservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
)

// Delivery outcomes reported to metrics.
const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

// Sink delivers one rendered message.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Metrics is the subset of the bot metrics the publisher needs.
type Metrics interface {
	RecordDelivery(ctx context.Context, outcome string)
}

// Publisher hands messages to a Sink in order. Failed messages are logged and
// dropped.
type Publisher struct {
	sink    Sink
	logger  *slog.Logger
	metrics Metrics
}

// NewPublisher creates a Publisher.
func NewPublisher(sink Sink, logger *slog.Logger, metrics Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sink: sink, logger: logger, metrics: metrics}
}

// Publish sends every message and returns how many were delivered. It stops
// early only when ctx is done.
func (p *Publisher) Publish(ctx context.Context, messages []string) int {
	delivered := 0
	for i, msg := range messages {
		if ctx.Err() != nil {
			p.logger.WarnContext(ctx, "Delivery cancelled",
				attr.Int("delivered", delivered),
				attr.Int("remaining", len(messages)-i),
			)
			return delivered
		}
		if err := p.sink.Send(ctx, msg); err != nil {
			p.logger.ErrorContext(ctx, "Failed to deliver report message",
				attr.Int("index", i),
				attr.Int("length", len(msg)),
				attr.Error(err),
			)
			p.record(ctx, DeliveryFailed)
			continue
		}
		delivered++
		p.record(ctx, DeliveryOK)
	}
	return delivered
}

func (p *Publisher) record(ctx context.Context, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordDelivery(ctx, outcome)
	}
}

// WriterSink prints messages instead of delivering them. Used by dry runs.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n-----\n", text)
	return err
}
