package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	queueName   = "auth.events"
	serviceName = "auth-service"
)

// Publisher delivers lifecycle events to RabbitMQ.  Delivery is strictly
// best-effort: every failure is logged and swallowed so a broker outage can
// never fail a login or refresh.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish sends one persistent JSON message to the auth.events queue.  The
// call is bounded by its own timeout independent of the request context so a
// slow broker cannot hold a handler open.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	if p.url == "" {
		p.log.Debug("event publisher disabled, dropping event", zap.String("event", eventType))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := p.send(ctx, eventType, payload); err != nil {
		p.log.Warn("event publish failed", zap.String("event", eventType), zap.Error(err))
	}
}

func (p *Publisher) send(ctx context.Context, eventType string, payload map[string]any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Data:      payload,
	})
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"event-type": eventType},
			Body:         body,
		})
}
