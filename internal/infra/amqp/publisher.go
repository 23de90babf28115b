package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange = "quiz.events"
	// RoutingKeySubmitted is used for every successful submission.
	RoutingKeySubmitted = "attempt.submitted"
)

var _ app.EventPublisher = (*Publisher)(nil)

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher emits submission events to a durable topic exchange. A Publisher
// built without a broker URL is disabled and drops events.
type Publisher struct {
	conn     *amqp091.Connection
	mu       sync.Mutex
	channel  channel
	exchange string
	enabled  bool
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if url == "" {
		logger.Info("amqp url is empty, submission events are disabled")
		return &Publisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
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
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("event publisher initialized", zap.String("exchange", exchange))
	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		enabled:  true,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

func (p *Publisher) PublishSubmission(ctx context.Context, event domain.SubmissionEvent) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		pubCtx,
		p.exchange,          // exchange
		RoutingKeySubmitted, // routing key
		false,               // mandatory
		false,               // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.SubmittedAt,
			MessageId:    event.AttemptID,
			Body:         body,
			Headers: amqp091.Table{
				"user_id": event.UserID,
				"quiz_id": event.QuizID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeySubmitted, err)
	}
	p.logger.Debug("published event", zap.String("routingKey", RoutingKeySubmitted), zap.String("attemptId", event.AttemptID))
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("close rabbitmq channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
