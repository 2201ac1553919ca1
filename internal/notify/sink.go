// Package notify delivers finished leads to the people and systems that act on them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"leadchat/internal/domain"
	"leadchat/internal/metrics"
)

type Sink interface {
	Name() string
	Notify(ctx context.Context, n domain.LeadNotification) error
}

// Multi delivers to every sink concurrently. One failing sink does not stop
// the others; the returned error joins all failures.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Notify(ctx context.Context, n domain.LeadNotification) error {
	errs := make([]error, len(m.sinks))
	var g errgroup.Group
	for i, s := range m.sinks {
		i, s := i, s
		g.Go(func() error {
			if err := s.Notify(ctx, n); err != nil {
				metrics.NotifyFailures.WithLabelValues(s.Name()).Inc()
				m.logger.Warn("lead sink failed", "sink", s.Name(), "session_id", n.SessionID, "error", err)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// LogSink writes the lead to the log. It is the sink of last resort when
// neither mail nor MQTT is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Notify(_ context.Context, n domain.LeadNotification) error {
	s.logger.Info("lead captured",
		"session_id", n.SessionID,
		"theme", n.Theme,
		"name", n.Name,
		"email", n.Email,
		"phone", n.Phone,
		"need", n.Need,
		"reason", n.Reason,
	)
	return nil
}

type LeadPublisher interface {
	PublishLead(ctx context.Context, n domain.LeadNotification) error
}

type MQTTSink struct {
	publisher LeadPublisher
}

func NewMQTTSink(publisher LeadPublisher) *MQTTSink {
	return &MQTTSink{publisher: publisher}
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

func (s *MQTTSink) Notify(ctx context.Context, n domain.LeadNotification) error {
	return s.publisher.PublishLead(ctx, n)
}
