// Package bus publishes engine events on NATS so downstream consumers
// (indexers, notification services, dashboards) can follow vault and position
// activity without polling.
package bus

import (
	"encoding/json"
	"time"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"

	"github.com/helios-fi/margin/pkg/margin"
)

// Conn is the slice of nats.Conn the publisher needs. It exists so tests can
// capture published frames without a broker.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Options configures a Publisher.
type Options struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher forwards margin events to NATS subjects of the form
// "<prefix>.events.<type>". It implements margin.EventSink.
type Publisher struct {
	conn   Conn
	prefix string
	log    log.Logger
}

// Connect dials the broker and returns a publisher over the connection.
func Connect(opts Options, logger log.Logger) (*Publisher, error) {
	nc, err := nats.Connect(opts.URL,
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, err
	}
	return NewPublisher(nc, opts.SubjectPrefix, logger), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, logger log.Logger) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, log: logger}
}

// Publish implements margin.EventSink. Failures are logged, never propagated:
// the bus is an observer, it must not fail a settled transaction.
func (p *Publisher) Publish(ev margin.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("event marshal failed", "type", ev.Type, "err", err)
		return
	}
	subject := p.prefix + ".events." + ev.Type
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("event publish failed", "subject", subject, "err", err)
	}
}

// Close drains the connection, flushing pending frames.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
