package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultQueue is the durable queue carrying notifications.
const DefaultQueue = "portal.notifications"

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	Close() error
}

type dialer func(url string) (amqpConn, error)

type realConn struct{ *amqp.Connection }

func (c realConn) Channel() (amqpChannel, error) { return c.Connection.Channel() }

func dialAMQP(url string) (amqpConn, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return realConn{c}, nil
}

// Publisher sends messages to a RabbitMQ queue as persistent JSON.
// The connection is opened on first use and dropped after any failure,
// so the next call redials.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
	dial  dialer

	mu   sync.Mutex
	conn amqpConn
	ch   amqpChannel
}

// NewPublisher returns a publisher for queue (DefaultQueue when empty).
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, queue: queue, log: log, dial: dialAMQP}
}

func (p *Publisher) Notify(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Timestamp:    time.Now().UTC(),
		Type:         string(m.Kind),
		Body:         body,
	})
	if err != nil {
		p.log.Warn("notify: publish failed", zap.String("queue", p.queue), zap.Error(err))
		p.reset()
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing and declaring the queue if needed. Caller holds p.mu.
func (p *Publisher) channel() (amqpChannel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
