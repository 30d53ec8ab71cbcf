package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/messaging"
)

// Handler processes one delivered job. A returned error abandons the job:
// the message is nacked with requeue and becomes visible again for another
// delivery attempt. This is the pipeline's sole retry mechanism.
type Handler func(ctx context.Context, job messaging.Job) error

// JobQueue is the durable work queue carrying prediction jobs between the
// front end and the detection worker, backed by RabbitMQ.
type JobQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *slog.Logger

	// publishMu serializes publishes so that the next confirmation read
	// from confirms always belongs to the publish that just went out.
	// NotifyPublish must be called exactly once per channel: amqp091-go
	// broadcasts every confirmation to every registered listener with a
	// blocking send, so a listener registered per publish and then
	// abandoned wedges the channel's dispatch goroutine for good.
	publishMu sync.Mutex
	confirms  <-chan amqp.Confirmation
}

// NewJobQueue connects to RabbitMQ, declares the durable job queue and
// enables publish confirmations.
func NewJobQueue(url, queueName string, logger *slog.Logger) (*JobQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publish confirmations: %w", err)
	}

	if _, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &JobQueue{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
		logger:    logger,
		confirms:  channel.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// PublishJob enqueues exactly one persistent message for the job and waits
// for the broker's confirmation. A failure here must surface to the caller:
// there is no local retry, the user resubmits instead.
func (q *JobQueue) PublishJob(ctx context.Context, job messaging.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid job: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	err = q.channel.PublishWithContext(
		pubCtx,
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.PredictionID, err)
	}

	if err := awaitConfirm(pubCtx, q.confirms); err != nil {
		return fmt.Errorf("publish of job %s was not confirmed: %w", job.PredictionID, err)
	}
	return nil
}

// awaitConfirm reads the broker's response to the single in-flight publish.
// The caller holds publishMu, so the first confirmation to arrive is the one
// for its publish.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation) error {
	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return fmt.Errorf("confirmation channel closed")
		}
		if !confirmed.Ack {
			return fmt.Errorf("broker rejected the message")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeJobs delivers jobs to the handler one at a time (prefetch 1,
// manual ack) until ctx is cancelled. The loop never stops on a single
// failed job:
//
//   - handler error        -> Nack with requeue, the job is redelivered
//   - malformed or invalid -> Reject without requeue, a poison message is
//     not worth looping on
//   - handler success      -> Ack, the job is gone for good
func (q *JobQueue) ConsumeJobs(ctx context.Context, handler Handler) error {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		q.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			q.handleDelivery(ctx, msg, handler)
		}
	}
}

func (q *JobQueue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job messaging.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.Error("discarding malformed job message", "error", err)
		if err := msg.Reject(false); err != nil {
			q.logger.Error("failed to reject message", "error", err)
		}
		return
	}

	if err := job.Validate(); err != nil {
		q.logger.Error("discarding invalid job message", "error", err)
		if err := msg.Reject(false); err != nil {
			q.logger.Error("failed to reject message", "error", err)
		}
		return
	}

	if err := handler(ctx, job); err != nil {
		q.logger.Error("job abandoned for redelivery", "prediction_id", job.PredictionID, "error", err)
		if err := msg.Nack(false, true); err != nil {
			q.logger.Error("failed to nack message", "prediction_id", job.PredictionID, "error", err)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		q.logger.Error("failed to ack message", "prediction_id", job.PredictionID, "error", err)
	}
}

// Close closes the channel and connection.
func (q *JobQueue) Close() {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
