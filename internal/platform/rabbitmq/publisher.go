package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"sitebot/internal/retry"
)

// Publisher sends persistent JSON messages to one durable queue.
type Publisher struct {
	conn      *amqp.Connection
	queueName string
	retryCfg  *retry.Config
}

func NewPublisher(conn *amqp.Connection, queueName string) *Publisher {
	return &Publisher{
		conn:      conn,
		queueName: queueName,
		retryCfg:  retry.DefaultConfig(),
	}
}

func (p *Publisher) Queue() string {
	return p.queueName
}

// PublishJSON marshals v and publishes it, retrying transient broker errors.
func (p *Publisher) PublishJSON(ctx context.Context, messageID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message payload failed: %w", err)
	}
	return retry.Do(ctx, p.retryCfg, func() error {
		return p.publish(ctx, messageID, payload)
	})
}

func (p *Publisher) publish(ctx context.Context, messageID string, payload []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish message failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable queue shared by publishers and consumers.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
