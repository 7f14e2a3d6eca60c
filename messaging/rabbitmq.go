package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName    = "govnav.notifications"
	QueueName       = "notification.emails"
	RoutingKeyEmail = "user.email"

	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
	dialAttempts   = 5
	dialDelay      = 2 * time.Second
)

// EmailMessage is the payload consumed by the mailer service.
type EmailMessage struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher pushes outbound emails onto a durable topic exchange. It
// satisfies the services.Notifier port.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	logger  *zap.Logger
	mu      sync.RWMutex
	done    chan struct{}
}

func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}

	err := retry.Do(
		p.connect,
		retry.Attempts(dialAttempts),
		retry.Delay(dialDelay),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, err
	}

	go p.handleReconnect()

	return p, nil
}

func (p *Publisher) connect() error {
	var err error

	p.conn, err = amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = p.channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := p.channel.QueueBind(QueueName, RoutingKeyEmail, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	p.logger.Info("RabbitMQ connected")
	return nil
}

func (p *Publisher) handleReconnect() {
	for {
		select {
		case <-p.done:
			return
		case err := <-p.conn.NotifyClose(make(chan *amqp.Error)):
			if err != nil {
				p.logger.Warn("RabbitMQ connection lost, reconnecting", zap.Error(err))
			}

			p.mu.Lock()
			for {
				if err := p.connect(); err != nil {
					p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", reconnectDelay))
					time.Sleep(reconnectDelay)
					continue
				}
				break
			}
			p.mu.Unlock()
		}
	}
}

// Send publishes an email message. Persistent delivery mode; the broker
// owns it from here.
func (p *Publisher) Send(email, subject, body string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return fmt.Errorf("channel not available")
	}

	payload, err := json.Marshal(EmailMessage{
		To:        email,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		ExchangeName,
		RoutingKeyEmail,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (p *Publisher) Close() {
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.logger.Info("RabbitMQ connection closed")
}

// LogNotifier is the fallback port used when no broker is configured.
// Messages are logged, not delivered.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Send(email, subject, body string) error {
	n.Logger.Info("outbound email (no broker configured)",
		zap.String("to", email),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
