package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

const DefaultRoutingKey = "inventory.low_stock"

// amqpPublisher is the part of *amqp.Channel the sink needs.
type amqpPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes alerts to a durable topic exchange.
type AMQPSink struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    amqpPublisher
	exchange   string
	routingKey string
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	sink := newAMQPSink(ch, exchange, routingKey)
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(ch amqpPublisher, exchange, routingKey string) *AMQPSink {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &AMQPSink{channel: ch, exchange: exchange, routingKey: routingKey}
}

func (s *AMQPSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := newMessage(subject, body, recipients)
	payload, err := msg.encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	// amqp.Channel is not safe for concurrent publishers.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.channel.Publish(s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.SentAt,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.exchange, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if c, ok := s.channel.(*amqp.Channel); ok {
		c.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
