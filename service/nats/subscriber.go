package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Source delivers session events until ctx is done.
type Source interface {
	Events(ctx context.Context) (<-chan *SessionEvent, error)
}

// Subscriber reads session events from JetStream through an ephemeral
// consumer per call.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming session events.
func NewSubscriber(natsURL, name string, logger *slog.Logger) (*Subscriber, error) {
	nc, js, err := connect(natsURL, name)
	if err != nil {
		return nil, err
	}
	logger.Info("NATS subscriber initialized", "nats_url", natsURL)
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Events creates an ephemeral consumer for new events on StreamSubjects and
// forwards them on the returned channel. The channel is closed once ctx is
// done or the consumer stops.
func (s *Subscriber) Events(ctx context.Context) (<-chan *SessionEvent, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: StreamSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *SessionEvent, 10)
	var mu sync.Mutex
	closed := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var event SessionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal session event",
				"subject", msg.Subject(),
				"error", err,
			)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- &event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

// Close closes the NATS connection.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
