// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/matchsync/internal/logging"
	"github.com/tomtom215/matchsync/internal/metrics"
)

// DefaultSubjectPrefix is the NATS subject root for match updates. A
// message for match M of kind K is published on <prefix>.M.K.
const DefaultSubjectPrefix = "matchsync.match"

// BridgeConfig configures the NATS bridge.
type BridgeConfig struct {
	URL           string
	SubjectPrefix string

	// NodeID identifies this relay. Generated when empty.
	NodeID string

	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration

	// Circuit breaker around remote publishes.
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32
}

// DefaultBridgeConfig returns defaults for a bridge connecting to url.
func DefaultBridgeConfig(url string) BridgeConfig {
	return BridgeConfig{
		URL:                     url,
		SubjectPrefix:           DefaultSubjectPrefix,
		MaxReconnects:           -1,
		ReconnectWait:           2 * time.Second,
		CloseTimeout:            5 * time.Second,
		BreakerMaxRequests:      1,
		BreakerInterval:         time.Minute,
		BreakerTimeout:          30 * time.Second,
		BreakerFailureThreshold: 5,
	}
}

// Bridge is a Publisher that delivers to the local hub and mirrors every
// message onto NATS. Its Serve loop feeds messages published by other
// relays into the local hub. Messages carry the publishing relay's node id
// so a relay never re-delivers its own updates.
type Bridge struct {
	local         Publisher
	nodeID        string
	subjectPrefix string

	publisher  message.Publisher
	subscriber message.Subscriber
	cb         *gobreaker.CircuitBreaker[interface{}]
	logger     watermill.LoggerAdapter

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

var _ Publisher = (*Bridge)(nil)

// NewBridge connects a publisher and a subscriber to NATS. Core NATS
// subjects are used; updates are live state and are not replayed.
func NewBridge(local Publisher, cfg BridgeConfig) (*Bridge, error) {
	if local == nil {
		local = Discard
	}
	if cfg.URL == "" {
		return nil, errors.New("fanout bridge: NATS URL is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}

	logger := logging.NewWatermillAdapter("fanout").With(watermill.LogFields{"node_id": cfg.NodeID})

	natsOpts := []natsgo.Option{
		natsgo.Name("matchsync-" + cfg.NodeID),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		CloseTimeout:     cfg.CloseTimeout,
		AckWaitTimeout:   cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Bridge{
		local:         local,
		nodeID:        cfg.NodeID,
		subjectPrefix: cfg.SubjectPrefix,
		publisher:     pub,
		subscriber:    sub,
		cb:            newBridgeBreaker(cfg),
		logger:        logger,
		ready:         make(chan struct{}),
	}, nil
}

func newBridgeBreaker(cfg BridgeConfig) *gobreaker.CircuitBreaker[interface{}] {
	const name = "nats-fanout"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] NATS fan-out state change")
		},
	})
}

// NodeID returns this relay's id.
func (b *Bridge) NodeID() string {
	return b.nodeID
}

// Ready is closed once the subscription to other relays is in place.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Subject returns the NATS subject for a message.
func (b *Bridge) Subject(msg Message) string {
	return b.subjectPrefix + "." + subjectToken(msg.MatchID) + "." + string(msg.Kind)
}

// subjectToken makes an id safe to use as a single NATS subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publish delivers msg locally, then mirrors it to NATS. A remote failure
// does not undo local delivery; both errors are returned joined.
func (b *Bridge) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Origin == "" {
		msg.Origin = b.nodeID
	}

	localErr := b.local.Publish(ctx, msg)

	data, err := Encode(msg)
	if err != nil {
		metrics.FanoutPublished.WithLabelValues(string(msg.Kind), "failure").Inc()
		return errors.Join(localErr, fmt.Errorf("encode fan-out message: %w", err))
	}

	wm := message.NewMessage(watermill.NewUUID(), data)
	wm.Metadata.Set("match_id", msg.MatchID)
	wm.Metadata.Set("origin", msg.Origin)

	subject := b.Subject(msg)
	_, err = b.cb.Execute(func() (interface{}, error) {
		return nil, b.publisher.Publish(subject, wm)
	})
	switch {
	case err == nil:
		metrics.FanoutPublished.WithLabelValues(string(msg.Kind), "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.FanoutPublished.WithLabelValues(string(msg.Kind), "rejected").Inc()
		err = fmt.Errorf("NATS fan-out unavailable: %w", err)
	default:
		metrics.FanoutPublished.WithLabelValues(string(msg.Kind), "failure").Inc()
		err = fmt.Errorf("publish to %s: %w", subject, err)
	}
	return errors.Join(localErr, err)
}

// Serve receives updates published by other relays and hands them to the
// local hub until ctx is canceled.
func (b *Bridge) Serve(ctx context.Context) error {
	topic := b.subjectPrefix + ".>"
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	logging.Info().Str("subject", topic).Str("node_id", b.nodeID).Msg("NATS fan-out bridge subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wm, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			b.handle(ctx, wm)
			wm.Ack()
		}
	}
}

func (b *Bridge) handle(ctx context.Context, wm *message.Message) {
	msg, err := Decode(wm.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", wm.UUID).Msg("Dropping malformed fan-out message")
		return
	}
	if msg.Origin == b.nodeID {
		return
	}
	metrics.FanoutReceived.WithLabelValues(string(msg.Kind)).Inc()
	if err := b.local.Publish(ctx, msg); err != nil {
		logging.Warn().Err(err).Str("match_id", msg.MatchID).Msg("Failed to deliver remote fan-out message")
	}
}

// String implements fmt.Stringer for the supervisor.
func (b *Bridge) String() string {
	return "nats-fanout"
}

// Close releases the NATS connections.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = errors.Join(b.publisher.Close(), b.subscriber.Close())
	})
	return err
}
