// Package events announces finished digest runs on the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
)

// RunCompletedTopic is the default topic for RunCompleted events.
const RunCompletedTopic = "digest.run.completed"

// RunCompleted summarizes one digest run.
type RunCompleted struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Members    int           `json:"members"`
	Active     int           `json:"active"`
	Degraded   []string      `json:"degraded,omitempty"`
	Messages   int           `json:"messages"`
	Delivered  int           `json:"delivered"`
	Leaders    []LeaderEntry `json:"leaders"`
}

// LeaderEntry is one podium position.
type LeaderEntry struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	RegNum   string `json:"reg_num"`
	Accepted int    `json:"accepted"`
}

// NewRunCompleted builds the event payload. Leaders holds at most the top
// three members with accepted problems.
func NewRunCompleted(run *activitydomain.Run, finishedAt time.Time, results []activitydomain.Result, messages, delivered int) RunCompleted {
	ev := RunCompleted{
		RunID:      run.ID.String(),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Members:    len(results),
		Messages:   messages,
		Delivered:  delivered,
		Leaders:    []LeaderEntry{},
	}
	for _, r := range results {
		if r.Accepted.Len() > 0 || r.Attempted.Len() > 0 || r.Submissions > 0 {
			ev.Active++
		}
		if r.Degraded {
			ev.Degraded = append(ev.Degraded, r.Name)
		}
		if r.Rank <= 3 && r.Accepted.Len() > 0 {
			ev.Leaders = append(ev.Leaders, LeaderEntry{
				Rank:     r.Rank,
				Name:     r.Name,
				RegNum:   r.RegNum,
				Accepted: r.Accepted.Len(),
			})
		}
	}
	return ev
}

// RunPublisher writes RunCompleted events to a watermill publisher.
type RunPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewRunPublisher creates a RunPublisher. An empty topic falls back to
// RunCompletedTopic.
func NewRunPublisher(publisher message.Publisher, topic string, logger *slog.Logger) *RunPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = RunCompletedTopic
	}
	return &RunPublisher{publisher: publisher, topic: topic, logger: logger}
}

// PublishRunCompleted marshals ev and publishes it.
func (p *RunPublisher) PublishRunCompleted(ctx context.Context, ev RunCompleted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("run_id", ev.RunID)
	msg.Metadata.Set("content_type", "application/json")
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish run event",
			attr.String("topic", p.topic),
			attr.String("run_id", ev.RunID),
			attr.Error(err),
		)
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	p.logger.InfoContext(ctx, "Run event published",
		attr.String("topic", p.topic),
		attr.String("message_id", msg.UUID),
	)
	return nil
}

// Close closes the underlying publisher.
func (p *RunPublisher) Close() error {
	return p.publisher.Close()
}

// NewNATSPublisher connects a core NATS publisher. JetStream is not used, so
// events are fire-and-forget for whoever is subscribed.
func NewNATSPublisher(cfg config.NATSConfig, logger *slog.Logger) (message.Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       cfg.URL,
			Marshaler: &nats.NATSMarshaler{},
			NatsOptions: []nc.Option{
				nc.Name("cp-digest-bot"),
				nc.RetryOnFailedConnect(true),
				nc.MaxReconnects(-1),
				nc.ReconnectWait(2 * time.Second),
			},
			JetStream: nats.JetStreamConfig{Disabled: true},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		logger.Error("Failed to create NATS publisher", attr.Error(err))
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	return publisher, nil
}
