// Package natsbridge forwards recording events to NATS subjects.
package natsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/events"
	"github.com/nats-io/nats.go"
)

const (
	HeaderSessionID = "Session-Id"
	HeaderSeq       = "Seq"
	// Only on data events with timing: RFC 3339 capture time and Go duration string.
	HeaderTimestamp = "Timestamp"
	HeaderDuration  = "Duration"

	defaultConnectTimeout = 2 * time.Second
	flushTimeout          = 5 * time.Second
)

// Client wraps a NATS connection with minimal helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect to the comma separated servers in url.
func Connect(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("no NATS servers configured")
	}

	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn, err := nats.Connect(url,
		nats.Name("liveaudio"),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// --------------------------------------------------------------------------------

// Anything events can be forwarded from, e.g. a *liveaudio.Session.
type EventSource interface {
	ID() string
	Subscribe(kind events.Kind, handler events.Handler) (func(), error)
}

// A Bridge publishes data events on <prefix>.data and error events on <prefix>.error.
// Every message carries the session id and the event sequence number as headers.
type Bridge struct {
	conn      *nats.Conn
	log       *slog.Logger
	sessionID string
	prefix    string

	unsubscribe []func()
	published   atomic.Uint64
	failed      atomic.Uint64
}

func Attach(source EventSource, conn *nats.Conn, prefix string, log *slog.Logger) (*Bridge, error) {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return nil, errors.New("empty subject prefix")
	}

	b := &Bridge{
		conn:      conn,
		log:       log.With("session", source.ID(), "prefix", prefix),
		sessionID: source.ID(),
		prefix:    prefix,
	}
	for _, kind := range []events.Kind{events.KindData, events.KindError} {
		unsubscribe, err := source.Subscribe(kind, b.forward)
		if err != nil {
			b.Detach()
			return nil, fmt.Errorf("subscribe to %s events: %w", kind, err)
		}
		b.unsubscribe = append(b.unsubscribe, unsubscribe)
	}
	b.log.Debug("bridge attached")
	return b, nil
}

// Subject events of kind are published on.
func (b *Bridge) Subject(kind events.Kind) string {
	return b.prefix + "." + string(kind)
}

func (b *Bridge) forward(e events.Event) {
	msg := nats.NewMsg(b.Subject(e.Kind))
	msg.Header.Set(HeaderSessionID, b.sessionID)
	msg.Header.Set(HeaderSeq, strconv.FormatUint(e.Seq, 10))
	if !e.Timestamp.IsZero() {
		msg.Header.Set(HeaderTimestamp, e.Timestamp.Format(time.RFC3339Nano))
	}
	if e.Duration > 0 {
		msg.Header.Set(HeaderDuration, e.Duration.String())
	}
	msg.Data = []byte(e.Data)

	if err := b.conn.PublishMsg(msg); err != nil {
		b.failed.Add(1)
		b.log.Warn("could not publish event", "subject", msg.Subject, "seq", e.Seq, "err", err)
		return
	}
	b.published.Add(1)
}

// Messages published, and messages that failed to publish.
func (b *Bridge) Stats() (published uint64, failed uint64) {
	return b.published.Load(), b.failed.Load()
}

// Stop forwarding and flush what was already published.
func (b *Bridge) Detach() error {
	for _, unsubscribe := range b.unsubscribe {
		unsubscribe()
	}
	b.unsubscribe = nil
	if err := b.conn.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	published, failed := b.Stats()
	b.log.Debug("bridge detached", "published", published, "failed", failed)
	return nil
}
