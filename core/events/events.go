// Package events announces finished upload attempts to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"DropFM/logger"
	"DropFM/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier is told about every attempt that reaches a terminal state.
// Failures are logged by the implementation and never affect the attempt.
type Notifier interface {
	AttemptFinished(ctx context.Context, entry model.UploadLog)
}

// Nop drops events. Used when no broker is configured.
type Nop struct{}

func (Nop) AttemptFinished(context.Context, model.UploadLog) {}

// AttemptEvent is the JSON body published for a finished attempt.
type AttemptEvent struct {
	AttemptID    int64              `json:"attemptId"`
	UserID       int64              `json:"userId"`
	UploadType   model.SourceKind   `json:"uploadType"`
	Source       string             `json:"source"`
	Status       model.UploadStatus `json:"status"`
	FileCount    int                `json:"fileCount"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	CompletedAt  time.Time          `json:"completedAt"`
}

func NewAttemptEvent(entry model.UploadLog) AttemptEvent {
	ev := AttemptEvent{
		AttemptID:  entry.ID,
		UserID:     entry.UserID,
		UploadType: entry.SourceKind,
		Source:     entry.Source,
		Status:     entry.Status,
		FileCount:  entry.FileCount,
	}
	if entry.ErrorMessage != nil {
		ev.ErrorMessage = *entry.ErrorMessage
	}
	if entry.CompletedAt != nil {
		ev.CompletedAt = entry.CompletedAt.UTC()
	} else {
		ev.CompletedAt = time.Now().UTC()
	}
	return ev
}

// RoutingKey is upload.completed or upload.failed.
func RoutingKey(status model.UploadStatus) string {
	return "upload." + string(status)
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes to a durable topic exchange.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	timeout  time.Duration
}

// DialAMQP connects and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

func (n *AMQPNotifier) AttemptFinished(ctx context.Context, entry model.UploadLog) {
	if err := n.publish(ctx, entry); err != nil {
		logger.Warn("Failed to publish upload event",
			logger.AttemptID(entry.ID),
			logger.String("status", string(entry.Status)),
			logger.ErrorField(err))
	}
}

func (n *AMQPNotifier) publish(ctx context.Context, entry model.UploadLog) error {
	body, err := json.Marshal(NewAttemptEvent(entry))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishes
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channel.PublishWithContext(ctx,
		n.exchange,
		RoutingKey(entry.Status),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
