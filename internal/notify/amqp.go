package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/receipt"
)

const (
	OrdersExchange      = "orders_topic"
	ReceiptsExchange    = "receipts_fanout"
	KitchenQueue        = "kitchen_dine_in_queue"
	ReceiptsQueue       = "receipts_queue"
	SubmittedRoutingKey = "kitchen.dine_in.submitted"
)

const publishTimeout = 10 * time.Second

// AMQPPublisher sends kitchen tickets to a topic exchange and finished
// sales to a fanout exchange consumed by receipt printers.
//
// One publish at a time owns the connection. The slot is a buffered channel
// rather than a mutex so a caller stuck behind a reconnect gives up when its
// context ends.
type AMQPPublisher struct {
	slot         chan struct{}
	url          string
	dial         func(url string) (*amqp.Connection, error)
	conn         *amqp.Connection
	channel      *amqp.Channel
	logger       *zap.Logger
	businessName string
	loc          *time.Location
	maxRetries   int
	backoff      time.Duration
}

func NewAMQPPublisher(ctx context.Context, url string, businessName string, loc *time.Location, logger *zap.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, businessName, loc, logger)
	if err := p.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return p, nil
}

func newAMQPPublisher(url string, businessName string, loc *time.Location, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{
		slot: make(chan struct{}, 1),
		url:  url,
		dial: func(url string) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		},
		logger:       logger.Named("amqp"),
		businessName: businessName,
		loc:          loc,
		maxRetries:   5,
		backoff:      2 * time.Second,
	}
}

func (p *AMQPPublisher) OrderSubmitted(ctx context.Context, order domain.Order) error {
	return p.publish(ctx, OrdersExchange, SubmittedRoutingKey, NewOrderSubmittedMessage(order), true)
}

func (p *AMQPPublisher) SaleCompleted(ctx context.Context, sale domain.Sale) error {
	rendered := receipt.Render(sale, p.businessName, p.loc)
	msg := SaleCompletedMessage{Sale: sale, ReceiptText: rendered.PreviewText, EscposBase64: rendered.EscposBase64}
	return p.publish(ctx, ReceiptsExchange, "", msg, true)
}

func (p *AMQPPublisher) Close() error {
	p.slot <- struct{}{}
	defer func() { <-p.slot }()
	return p.close()
}

func (p *AMQPPublisher) acquire(ctx context.Context) error {
	select {
	case p.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) release() {
	<-p.slot
}

func (p *AMQPPublisher) publish(ctx context.Context, exchange string, routingKey string, message any, persistent bool) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: deliveryMode,
		Timestamp:    time.Now(),
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	if err := p.acquire(ctx); err != nil {
		return fmt.Errorf("waiting for rabbitmq connection: %w", err)
	}
	defer p.release()

	if err := p.ensureChannel(ctx); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	if err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, publishing); err != nil {
		p.logger.Error("message publish failed",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message published",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.Int("message_size", len(body)))
	return nil
}

// ensureChannel reuses a live connection when only the channel died and
// redials otherwise. Callers hold the slot.
func (p *AMQPPublisher) ensureChannel(ctx context.Context) error {
	if p.conn != nil && !p.conn.IsClosed() {
		if p.channel != nil && !p.channel.IsClosed() {
			return nil
		}
		ch, err := p.conn.Channel()
		if err == nil {
			p.channel = ch
			return nil
		}
		p.logger.Warn("rabbitmq channel reopen failed, redialing", zap.Error(err))
	}
	_ = p.close()
	return p.connect(ctx)
}

// connect dials with linear backoff and declares the topology. It stops
// early when ctx ends. Callers hold the slot or own p exclusively.
func (p *AMQPPublisher) connect(ctx context.Context) error {
	var err error
	for i := 0; i < p.maxRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.conn, err = p.dial(p.url)
		if err == nil {
			p.channel, err = p.conn.Channel()
			if err == nil {
				if err = declareTopology(p.channel); err == nil {
					return nil
				}
				p.logger.Error("rabbitmq topology setup failed", zap.Error(err))
			}
			_ = p.close()
		}

		if i < p.maxRetries-1 {
			wait := time.Duration(i+1) * p.backoff
			p.logger.Warn("rabbitmq connection failed, retrying", zap.Duration("wait", wait), zap.Error(err))
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w (last dial error: %v)", ctx.Err(), err)
			}
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", p.maxRetries, err)
}

func (p *AMQPPublisher) close() error {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(OrdersExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", OrdersExchange, err)
	}
	if err := ch.ExchangeDeclare(ReceiptsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", ReceiptsExchange, err)
	}

	if _, err := ch.QueueDeclare(KitchenQueue, true, false, false, false, amqp.Table{
		"x-message-ttl": int32(300000),
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", KitchenQueue, err)
	}
	if err := ch.QueueBind(KitchenQueue, "kitchen.dine_in.*", OrdersExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", KitchenQueue, err)
	}

	if _, err := ch.QueueDeclare(ReceiptsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ReceiptsQueue, err)
	}
	if err := ch.QueueBind(ReceiptsQueue, "", ReceiptsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", ReceiptsQueue, err)
	}
	return nil
}
