package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends borrow events to the durable borrow.events queue.  Each
// call dials the broker, so a broker that is down only affects the
// publishes made while it is down.
type Publisher struct {
	url    string
	queue  string
	logger *slog.Logger
}

// defaultDialTimeout matches the amqp client's own default.
const defaultDialTimeout = 30 * time.Second

// dialTimeout bounds the TCP dial by ctx's deadline.  amqp.Dial itself
// does not watch the context.
func dialTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return time.Millisecond
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, queue: BorrowQueueName, logger: logger}
}

// Publish delivers ev as a persistent JSON message.  Errors are logged and
// returned so the caller can decide to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev BorrowEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", "queue", p.queue, "error", err)
		return err
	}

	body, err := ev.Encode()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.logger.Warn("rabbitmq: publish failed", "type", ev.Type, "transaction_id", ev.TransactionID, "error", err)
		return err
	}
	return nil
}
