package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher publishes JSON messages to one durable queue. A channel
// closed by the broker is reopened on the next publish.
type RabbitPublisher struct {
	conn  *amqp.Connection
	Queue string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	p := &RabbitPublisher{conn: conn, Queue: queue}
	if _, err := p.channel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// channel returns an open channel with the queue declared.
func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		return nil, errors.New("rabbitmq connection closed")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(
		p.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// PublishJSON publishes body to the queue through the default exchange.
func (p *RabbitPublisher) PublishJSON(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         b,
		},
	)
}
