package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MQConn shares one connection; publishing goes through a dedicated channel
// guarded by a mutex since amqp channels are not safe for concurrent publishes.
type MQConn struct {
	conn *amqp.Connection

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

func New(url string) (*MQConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	return &MQConn{
		conn:  conn,
		pubCh: pubCh,
	}, nil
}

func (c *MQConn) Close() error {
	return c.conn.Close()
}

func declareQueue(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(queue, true, false, false, false, nil)
}

// Consume returns deliveries that must be acked by the caller.
func (c *MQConn) Consume(queue string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := declareQueue(ch, queue); err != nil {
		return nil, fmt.Errorf("failed to declare queue(%s): %w", queue, err)
	}

	return ch.Consume(queue, "", false, false, false, false, nil)
}

// ConsumeExchange binds an exclusive server-named queue to a fanout exchange.
func (c *MQConn) ConsumeExchange(exchange string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange(%s): %w", exchange, err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}

	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue to exchange(%s): %w", exchange, err)
	}

	return ch.Consume(q.Name, "", false, true, false, false, nil)
}

func (c *MQConn) PublishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if _, err := declareQueue(c.pubCh, queue); err != nil {
		return fmt.Errorf("failed to declare queue(%s): %w", queue, err)
	}

	return c.pubCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
