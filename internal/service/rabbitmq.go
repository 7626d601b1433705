package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/config"
	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// Message types carried in the AMQP Type property.
const (
	MessageTypeDispatch = "job.dispatch"
	MessageTypeCancel   = "job.cancel"
)

// DispatchMessage is the body published for a new job.
type DispatchMessage struct {
	JobID       string          `json:"jobId"`
	Kind        models.JobKind  `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// CancelMessage is the body published when cancellation is requested.
type CancelMessage struct {
	JobID       string    `json:"jobId"`
	DispatchRef string    `json:"dispatchRef,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// MessagePublisher dispatches jobs to the executor over RabbitMQ with
// publisher confirms. It implements Dispatcher.
type MessagePublisher struct {
	conn           *amqp.Connection
	channel        *amqp.Channel
	config         *config.RabbitMQConfig
	confirmTimeout time.Duration
	mu             sync.RWMutex
}

// NewMessagePublisher connects and declares the topology.
func NewMessagePublisher(cfg *config.RabbitMQConfig, confirmTimeout time.Duration) (*MessagePublisher, error) {
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}
	mp := &MessagePublisher{
		config:         cfg,
		confirmTimeout: confirmTimeout,
	}

	if err := mp.connect(); err != nil {
		return nil, err
	}

	return mp, nil
}

func (mp *MessagePublisher) connect() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		mp.config.User, mp.config.Password, mp.config.Host, mp.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	// Declare exchange
	if err := ch.ExchangeDeclare(
		mp.config.Exchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = ch.QueueDeclare(
		mp.config.Queue, // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		amqp.Table{
			"x-message-ttl": 86400000, // 24 hours
		},
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Dispatch and cancel messages share the executor queue
	for _, key := range []string{mp.config.RoutingKey, mp.config.CancelRoutingKey} {
		if key == "" {
			continue
		}
		if err := ch.QueueBind(mp.config.Queue, key, mp.config.Exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	mp.conn = conn
	mp.channel = ch

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", mp.config.Exchange),
		zap.String("queue", mp.config.Queue),
	)

	return nil
}

// Dispatch publishes the job and waits for the broker to confirm it.
func (mp *MessagePublisher) Dispatch(ctx context.Context, job *models.ProductionJob) (DispatchReceipt, error) {
	body, err := json.Marshal(DispatchMessage{
		JobID:       job.JobID,
		Kind:        job.Kind,
		Payload:     job.Payload,
		SubmittedAt: job.CreatedAt,
	})
	if err != nil {
		return DispatchReceipt{}, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	if err := mp.publish(ctx, mp.config.RoutingKey, MessageTypeDispatch, job.JobID, body); err != nil {
		return DispatchReceipt{}, err
	}
	return DispatchReceipt{Ref: job.JobID}, nil
}

// Cancel publishes a cancellation request for the job.
func (mp *MessagePublisher) Cancel(ctx context.Context, job *models.ProductionJob) error {
	msg := CancelMessage{JobID: job.JobID, RequestedAt: time.Now().UTC()}
	if job.DispatchRef != nil {
		msg.DispatchRef = *job.DispatchRef
	}
	if job.CancelRequestedAt != nil {
		msg.RequestedAt = *job.CancelRequestedAt
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal cancel message: %w", err)
	}

	return mp.publish(ctx, mp.config.CancelRoutingKey, MessageTypeCancel, job.JobID+":cancel", body)
}

func (mp *MessagePublisher) publish(ctx context.Context, routingKey, msgType, messageID string, body []byte) error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if mp.channel == nil || mp.channel.IsClosed() {
		return fmt.Errorf("channel is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, mp.confirmTimeout)
	defer cancel()

	confirm, err := mp.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		mp.config.Exchange, // exchange
		routingKey,         // routing key
		true,               // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         msgType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    messageID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message was not acknowledged by broker")
	}

	logger.Log.Debug("Published message to RabbitMQ",
		zap.String("messageId", messageID),
		zap.String("type", msgType),
		zap.String("routingKey", routingKey),
	)

	return nil
}

func (mp *MessagePublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var errs []error
	if mp.channel != nil {
		if err := mp.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if mp.conn != nil {
		if err := mp.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}

	logger.Log.Info("RabbitMQ publisher closed")
	return nil
}

func (mp *MessagePublisher) IsHealthy() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.conn != nil && !mp.conn.IsClosed() && mp.channel != nil && !mp.channel.IsClosed()
}
