package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletscope/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing session events to NATS.
type Publisher interface {
	// PublishSessionEvent publishes a single event to JetStream.
	// The event is published to the subject "sessions.{kind}".
	PublishSessionEvent(ctx context.Context, event *SessionEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes session events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for session events.
	StreamName = "WALLET_SESSIONS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "sessions.*"

	// StreamRetention is how long messages are retained. Session events are
	// only interesting while a dashboard is watching.
	StreamRetention = 24 * time.Hour

	subjectPrefix = "sessions."
)

// connect dials NATS with unlimited reconnects and opens a JetStream context.
func connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, js, err := connect(natsURL, "walletscope-publisher")
	if err != nil {
		return nil, err
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet session snapshots and dashboard navigation signals",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishSessionEvent publishes a single session event.
func (p *JetStreamPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	subject := Subject(event.Kind)
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	p.logger.DebugContext(ctx, "published session event", "subject", subject)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
