// Package bus pulls provenance notifications off NATS JetStream and feeds
// them, one at a time, to the router.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/ledger"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
	"github.com/yungbote/provenance-updater/internal/router"
)

// Processor runs one message to completion.
type Processor interface {
	Process(ctx context.Context, msg router.Message) error
}

// Settler is the settlement surface of a JetStream message.
type Settler interface {
	Ack(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
}

// routes is implemented by processors that can name the handler for a topic.
type routes interface {
	Route(topic string) (router.Handler, bool)
}

type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Outcome is how a delivery was settled.
type Outcome string

const (
	OutcomeAck  Outcome = "ack"
	OutcomeTerm Outcome = "term"
	OutcomeNak  Outcome = "nak"
)

type Consumer struct {
	cfg       config.NATSConfig
	processor Processor
	ledger    ledger.Ledger
	log       *logger.Logger

	nc  *nats.Conn
	sub fetcher
}

// New builds a consumer without connecting. Ledger may be nil.
func New(cfg config.NATSConfig, processor Processor, failures ledger.Ledger, log *logger.Logger) *Consumer {
	return &Consumer{
		cfg:       cfg,
		processor: processor,
		ledger:    failures,
		log:       log.With("component", "BusConsumer", "stream", cfg.Stream, "durable", cfg.Durable),
	}
}

// Connect dials NATS, makes sure the stream exists and binds the durable
// pull consumer.
func (c *Consumer) Connect(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("provenance-updater"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.log.Info("nats reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", c.cfg.URL, err)
	}
	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream: %w", err)
	}
	if _, err := js.StreamInfo(c.cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return fmt.Errorf("stream %s: %w", c.cfg.Stream, err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{Name: c.cfg.Stream, Subjects: c.cfg.Subjects}); err != nil {
			nc.Close()
			return fmt.Errorf("create stream %s: %w", c.cfg.Stream, err)
		}
		c.log.Info("stream created", "subjects", c.cfg.Subjects)
	}

	filter := ""
	if len(c.cfg.Subjects) == 1 {
		filter = c.cfg.Subjects[0]
	}
	opts := []nats.SubOpt{
		nats.BindStream(c.cfg.Stream),
		nats.ManualAck(),
		nats.AckExplicit(),
	}
	if c.cfg.AckWait > 0 {
		opts = append(opts, nats.AckWait(c.cfg.AckWait))
	}
	if c.cfg.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(c.cfg.MaxDeliver))
	}
	sub, err := js.PullSubscribe(filter, c.cfg.Durable, opts...)
	if err != nil {
		nc.Close()
		return fmt.Errorf("pull subscribe %s: %w", c.cfg.Durable, err)
	}
	c.nc, c.sub = nc, sub
	c.log.Info("bus consumer connected", "url", c.cfg.URL)
	return nil
}

// Run fetches and settles one message at a time until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.sub == nil {
		return fmt.Errorf("bus consumer is not connected")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchWait)
		msgs, err := c.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Warn("fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.Handle(ctx, m.Data, m.Subject, deliveryID(m), m)
		}
	}
}

// Handle processes one delivery and settles it. It never returns an error:
// the outcome is entirely expressed through the settlement.
func (c *Consumer) Handle(ctx context.Context, data []byte, subject, deliveryID string, s Settler) Outcome {
	msg, err := DecodeEnvelope(data, subject)
	if err != nil {
		err = domain.Malformed("bus.decode", "%v", err)
		msg = router.Message{Topic: subject}
	}
	if msg.ID == "" {
		msg.ID = deliveryID
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err == nil {
		err = c.processor.Process(ctx, msg)
	}

	switch {
	case err == nil:
		c.settle(msg, OutcomeAck, s.Ack())
		return OutcomeAck
	case domain.Terminal(err):
		c.record(ctx, msg, data, err)
		c.settle(msg, OutcomeTerm, s.Term())
		return OutcomeTerm
	default:
		c.settle(msg, OutcomeNak, s.NakWithDelay(c.cfg.NakDelay))
		return OutcomeNak
	}
}

func (c *Consumer) record(ctx context.Context, msg router.Message, data []byte, cause error) {
	if c.ledger == nil {
		return
	}
	entry := ledger.Entry{MessageID: msg.ID, Topic: msg.Topic, Err: cause, Payload: data}
	if r, ok := c.processor.(routes); ok {
		if h, found := r.Route(msg.Topic); found {
			entry.Handler = h.Name()
		}
	}
	if err := c.ledger.Record(ctx, nil, entry); err != nil {
		c.log.Error("ledger write failed", "message_id", msg.ID, "error", err)
	}
}

func (c *Consumer) settle(msg router.Message, outcome Outcome, err error) {
	if err != nil {
		c.log.Warn("settlement failed", "message_id", msg.ID, "outcome", outcome, "error", err)
		return
	}
	c.log.Debug("message settled", "message_id", msg.ID, "topic", msg.Topic, "outcome", outcome)
}

// Close drains the subscription and the connection.
func (c *Consumer) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// Ping reports whether the NATS connection is up.
func (c *Consumer) Ping() error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// deliveryID identifies a JetStream delivery by stream sequence, which is
// stable across redeliveries.
func deliveryID(m *nats.Msg) string {
	if id := m.Header.Get(nats.MsgIdHdr); id != "" {
		return id
	}
	meta, err := m.Metadata()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream)
}
