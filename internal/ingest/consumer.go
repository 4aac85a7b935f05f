// Package ingest consumes order events from a RabbitMQ queue and hands them
// to the event service, the same path the HTTP ingress uses. Deduplication
// is keyed on event_id (or the AMQP message id) in the shared ledger, so an
// at-least-once broker never notifies a user twice.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tbourn/storehub-realtime/internal/config"
	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/services"
)

// DefaultReconnectDelay is the pause between broker reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// Ingestor is the event service as seen by the consumer.
type Ingestor interface {
	Ingest(ctx context.Context, source, key string, evt domain.OrderEvent) (services.IngestResult, error)
}

var consumed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_amqp_messages_total",
		Help: "Order events consumed from AMQP by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(consumed)
}

// outcome is what handle did with one delivery.
type outcome string

const (
	outcomeAcked    outcome = "acked"
	outcomeReplayed outcome = "replayed"
	outcomeRejected outcome = "rejected"
	outcomeRequeued outcome = "requeued"
)

// Consumer reads one durable queue with manual acknowledgements.
type Consumer struct {
	cfg            config.AMQPConfig
	svc            Ingestor
	log            zerolog.Logger
	reconnectDelay time.Duration

	dial func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
}

// New builds a consumer; Run connects.
func New(cfg config.AMQPConfig, svc Ingestor, log zerolog.Logger) *Consumer {
	return &Consumer{
		cfg:            cfg,
		svc:            svc,
		log:            log.With().Str("component", "amqp").Str("queue", cfg.Queue).Logger(),
		reconnectDelay: DefaultReconnectDelay,
		dial:           amqp.Dial,
	}
}

// Run consumes until ctx is done, reconnecting after broker failures. It
// returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Dur("retry_in", c.reconnectDelay).Msg("amqp consumer stopped")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume runs a single connection lifetime.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.setConn(conn)
	defer c.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.log.Info().Int("prefetch", c.cfg.Prefetch).Msg("amqp consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle ingests one delivery and settles it. Payloads that can never
// succeed are rejected without requeue; a ledger outage requeues so the
// event is retried once storage recovers.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) outcome {
	var evt domain.OrderEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.log.Warn().Err(err).Str("message_id", d.MessageId).Msg("malformed order event")
		return c.settle(d, outcomeRejected)
	}

	key := evt.EventID
	if key == "" {
		key = d.MessageId
	}

	res, err := c.svc.Ingest(ctx, domain.SourceAMQP, key, evt)
	switch {
	case err == nil && res.Replayed:
		c.log.Debug().Str("key", key).Msg("order event replayed")
		return c.settle(d, outcomeReplayed)
	case err == nil:
		c.log.Debug().Str("key", key).Str("tenant_id", evt.TenantID).Int("targeted", res.Targeted).Msg("order event published")
		return c.settle(d, outcomeAcked)
	case errors.Is(err, realtime.ErrInvalidEvent):
		c.log.Warn().Err(err).Str("key", key).Msg("invalid order event")
		return c.settle(d, outcomeRejected)
	case errors.Is(err, services.ErrLedgerUnavailable):
		c.log.Error().Err(err).Str("key", key).Msg("ledger unavailable; requeueing")
		return c.settle(d, outcomeRequeued)
	case d.Redelivered:
		// Second failure of the same message: drop it instead of looping.
		c.log.Error().Err(err).Str("key", key).Msg("order event failed twice; dropping")
		return c.settle(d, outcomeRejected)
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("order event failed; requeueing")
		return c.settle(d, outcomeRequeued)
	}
}

func (c *Consumer) settle(d amqp.Delivery, o outcome) outcome {
	var err error
	switch o {
	case outcomeAcked, outcomeReplayed:
		err = d.Ack(false)
	case outcomeRejected:
		err = d.Reject(false)
	case outcomeRequeued:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.log.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Str("outcome", string(o)).Msg("settle failed")
	}
	consumed.WithLabelValues(string(o)).Inc()
	return o
}

func (c *Consumer) setConn(conn *amqp.Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Close closes the current broker connection, if any. Safe to call more
// than once.
func (c *Consumer) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
