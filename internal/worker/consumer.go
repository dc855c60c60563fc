package worker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"sitebot/internal/platform/rabbitmq"
)

type outcome int

const (
	outcomeAck outcome = iota
	// outcomeReject drops the message without requeue.
	outcomeReject
)

type handleFunc func(ctx context.Context, body []byte) outcome

// consumer runs `concurrency` goroutines over one queue with a matching
// prefetch, acking or rejecting each delivery by the handler's outcome.
type consumer struct {
	conn        *amqp.Connection
	queueName   string
	concurrency int
	onMessage   handleFunc
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *consumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	ch, err := c.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, c.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var loops sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		loops.Add(1)
		go func() {
			defer loops.Done()
			c.loop(workerCtx, deliveries)
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		loops.Wait()
		_ = ch.Close()
	}()

	c.logger.Info("worker started", zap.String("queue", c.queueName), zap.Int("concurrency", c.concurrency))
	return nil
}

func (c *consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			switch c.onMessage(ctx, d.Body) {
			case outcomeReject:
				_ = d.Nack(false, false)
			default:
				_ = d.Ack(false)
			}
		}
	}
}

func (c *consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
