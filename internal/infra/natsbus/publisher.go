// Package natsbus mirrors push messages onto NATS subjects so other
// services can follow the player without holding a WebSocket.
package natsbus

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/infra/config"
)

// DefaultTypes are the message types mirrored when none are configured.
// Crossfade ticks are left out; they arrive every few milliseconds.
var DefaultTypes = []string{notification.TypeState, notification.TypeSettings, notification.TypeLibrary}

// Envelope is the wire format of a mirrored message.
type Envelope struct {
	EventType string               `json:"event_type"`
	Payload   notification.Message `json:"payload"`
	Timestamp time.Time            `json:"timestamp"`
	NodeID    string               `json:"node_id"`
	MessageID string               `json:"message_id"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Publisher implements notification.Publisher over a NATS connection.
// Subjects are <prefix>.<message type>.
type Publisher struct {
	nc     conn
	prefix string
	nodeID string
	types  []string
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTypes sets which message types are mirrored.
func WithTypes(types ...string) Option {
	return func(p *Publisher) { p.types = types }
}

// Connect dials NATS and returns a publisher. Reconnects are unlimited.
func Connect(cfg config.NATSConfig, opts ...Option) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("openfm"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zlog.Warn().Msgf("natsbus: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zlog.Info().Msgf("natsbus: reconnected: url=%s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to nats at %s", cfg.URL)
	}
	zlog.Info().Msgf("natsbus: connected: url=%s prefix=%s", nc.ConnectedUrl(), cfg.SubjectPrefix)
	return newPublisher(nc, cfg, opts...), nil
}

func newPublisher(nc conn, cfg config.NATSConfig, opts ...Option) *Publisher {
	p := &Publisher{
		nc:     nc,
		prefix: cfg.SubjectPrefix,
		nodeID: cfg.NodeID,
		types:  DefaultTypes,
		now:    time.Now,
	}
	if p.nodeID == "" {
		p.nodeID = generateNodeID()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject a message type is published on.
func (p *Publisher) Subject(msgType string) string {
	return p.prefix + "." + msgType
}

// Publish implements notification.Publisher.
func (p *Publisher) Publish(_ context.Context, msg notification.Message) error {
	if !slices.Contains(p.types, msg.Type) {
		return nil
	}

	data, err := json.Marshal(Envelope{
		EventType: msg.Type,
		Payload:   msg,
		Timestamp: p.now(),
		NodeID:    p.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode nats message")
	}
	if err := p.nc.Publish(p.Subject(msg.Type), data); err != nil {
		return errors.Wrapf(err, "failed to publish %s", msg.Type)
	}
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	p.nc.Close()
}

// Decode parses a mirrored message.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "failed to decode nats message")
	}
	return env, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "openfm"
	}
	return host + "-" + uuid.NewString()[:8]
}
