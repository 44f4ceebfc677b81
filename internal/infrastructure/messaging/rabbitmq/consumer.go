package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/pkg/retry"
)

type Config struct {
	RabbitURL string
	Exchange  string
	Queue     string
	BindKeys  []string
	Prefetch  int
	Tag       string

	// DedupeTTL bounds how long a message_id is remembered.
	DedupeTTL time.Duration
	// JobTimeout bounds one trigger run.
	JobTimeout time.Duration
}

type Consumer struct {
	url      string
	exchange string
	queue    string
	bindKeys []string
	prefetch int
	tag      string

	lg  zerolog.Logger
	mux *Mux

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewConsumer(cfg Config, mux *Mux, lg zerolog.Logger) *Consumer {
	return &Consumer{
		url:      cfg.RabbitURL,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		bindKeys: cfg.BindKeys,
		prefetch: cfg.Prefetch,
		tag:      cfg.Tag,
		mux:      mux,
		lg:       lg.With().Str("component", "rabbitmq_consumer").Logger(),
	}
}

func (c *Consumer) dlxName() string { return c.queue + ".dlx" }
func (c *Consumer) dlqName() string { return c.queue + ".dlq" }

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.mux == nil {
		return fmt.Errorf("nil mux")
	}

	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	doneCh := c.doneCh
	c.running = false
	c.mu.Unlock()

	c.closeConn()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		doneCh := c.doneCh
		c.doneCh = nil
		c.running = false
		c.mu.Unlock()

		if doneCh != nil {
			close(doneCh)
		}
	}()

	backoff := retry.Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second}
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consumer supervisor exiting (ctx cancelled)")
			return
		default:
		}

		if !c.isRunning() {
			c.lg.Info().Msg("consumer supervisor exiting (stopped)")
			return
		}

		if err := c.connectAndDeclare(); err != nil {
			if isPreconditionFailed(err) {
				c.lg.Error().Err(err).Msg("topology precondition failed; delete and recreate the queues, then restart")
				return
			}

			wait := retry.CalculateDelay(attempt, backoff)
			c.lg.Error().Err(err).Dur("backoff", wait).Msg("connectAndDeclare failed; retrying")
			if !sleepOrDone(ctx, wait) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		c.consumeLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := retry.CalculateDelay(attempt, backoff)
		c.lg.Warn().Dur("backoff", wait).Msg("deliveries closed; reconnecting")
		c.closeConn()

		if !sleepOrDone(ctx, wait) {
			return
		}
		attempt++
	}
}

func (c *Consumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}

	fail := func(err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("exchange declare: %w", err))
	}
	if err := ch.ExchangeDeclare(c.dlxName(), "fanout", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("dlx declare: %w", err))
	}
	if _, err := ch.QueueDeclare(c.dlqName(), true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("dlq declare: %w", err))
	}
	if err := ch.QueueBind(c.dlqName(), "", c.dlxName(), false, nil); err != nil {
		return fail(fmt.Errorf("dlq bind: %w", err))
	}

	args := amqp.Table{"x-dead-letter-exchange": c.dlxName()}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, args); err != nil {
		return fail(fmt.Errorf("queue declare: %w", err))
	}
	for _, key := range c.bindKeys {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if err := ch.QueueBind(c.queue, k, c.exchange, false, nil); err != nil {
			return fail(fmt.Errorf("queue bind (%s): %w", k, err))
		}
	}

	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("qos: %w", err))
		}
	}

	dlv, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("consume: %w", err))
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.deliveries = dlv
	c.mu.Unlock()

	c.lg.Info().
		Str("exchange", c.exchange).
		Str("queue", c.queue).
		Strs("bind_keys", c.bindKeys).
		Int("prefetch", c.prefetch).
		Msg("rabbitmq consumer ready")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	c.mu.Lock()
	deliveries := c.deliveries
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consume loop context cancelled")
			return

		case d, ok := <-deliveries:
			if !ok {
				c.lg.Warn().Msg("deliveries channel closed")
				return
			}
			c.settle(d, c.mux.Handle(ctx, d.RoutingKey, d.Body))
		}
	}
}

// settle acks, requeues or dead-letters d according to err.
func (c *Consumer) settle(d amqp.Delivery, err error) {
	rk := d.RoutingKey
	switch {
	case err == nil:
		_ = d.Ack(false)
		metrics.RecordMessageConsumed(rk, "ack")
	case errors.Is(err, ErrRequeue):
		_ = d.Nack(false, true)
		metrics.RecordMessageConsumed(rk, "requeue")
		c.lg.Warn().Err(err).Str("routing_key", rk).Msg("handle failed; requeue=true")
	default:
		_ = d.Nack(false, false)
		metrics.RecordMessageConsumed(rk, "dead_letter")
		c.lg.Error().Err(err).Str("routing_key", rk).Msg("handle failed; nack requeue=false")
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.deliveries = nil
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "PRECONDITION_FAILED") || strings.Contains(msg, "INEQUIVALENT ARG")
}
