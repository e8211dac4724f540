package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

// StartWorker consumes until ctx is cancelled. A job already running when
// ctx ends is finished and acknowledged; use Wait to block on that.
func (q *QueueService) StartWorker(ctx context.Context, workerID int) error {
	msgs, err := q.channel.Consume(
		q.queueName,                        // queue
		fmt.Sprintf("worker-%d", workerID), // consumer
		false,                              // auto-ack
		false,                              // exclusive
		false,                              // no-local
		false,                              // no-wait
		nil,                                // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("Worker started", zap.Int("worker_id", workerID))
	q.workers.Add(1)
	q.wg.Add(1)

	// Jobs outlive the consume loop so shutdown does not fail them.
	jobCtx := context.WithoutCancel(ctx)

	go func() {
		defer q.wg.Done()
		defer q.workers.Add(-1)
		for {
			select {
			case <-ctx.Done():
				q.logger.Info("Worker stopping", zap.Int("worker_id", workerID))
				return
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("Message channel closed", zap.Int("worker_id", workerID))
					return
				}

				if ctx.Err() != nil {
					// Received while stopping; hand it back to the broker.
					msg.Nack(false, true)
					return
				}

				q.processMessage(jobCtx, msg, workerID)
			}
		}
	}()

	return nil
}

func (q *QueueService) processMessage(ctx context.Context, msg amqp.Delivery, workerID int) {
	var job models.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.Error("Failed to unmarshal job",
			zap.Error(err),
			zap.Int("worker_id", workerID))
		msg.Nack(false, false) // Don't requeue malformed messages
		return
	}
	if job.ID == "" {
		job.ID = msg.MessageId
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	q.logger.Info("Processing job",
		zap.String("job_id", job.ID),
		zap.Int("worker_id", workerID))

	status := q.executor.Execute(ctx, job, msg.Timestamp)

	if msg.ReplyTo != "" {
		if err := q.reply(msg, status); err != nil {
			q.logger.Error("Failed to reply",
				zap.String("job_id", job.ID),
				zap.String("reply_to", msg.ReplyTo),
				zap.Error(err))
		}
	}

	// Acknowledge the message
	if err := msg.Ack(false); err != nil {
		q.logger.Error("Failed to ack message",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	q.logger.Info("Job finished",
		zap.String("job_id", job.ID),
		zap.String("status", status.Status))
}

// Wait blocks until every worker has returned, or ctx ends first.
func (q *QueueService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue workers still running: %w", ctx.Err())
	}
}
