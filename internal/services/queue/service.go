package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

// JobExecutor runs a job to a terminal status; see jobs.Runner.
type JobExecutor interface {
	Execute(ctx context.Context, job models.Job, createdAt time.Time) *models.JobStatus
}

// channel is the subset of *amqp.Channel the service uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	QueueInspect(name string) (amqp.Queue, error)
	Close() error
}

type QueueService struct {
	conn      *amqp.Connection
	channel   channel
	logger    *zap.Logger
	queueName string
	executor  JobExecutor
	fatal     chan error
	workers   atomic.Int32
	wg        sync.WaitGroup
}

func NewQueueService(
	rabbitmqURL string,
	queueName string,
	prefetch int,
	executor JobExecutor,
	logger *zap.Logger,
) (*QueueService, error) {
	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare queue
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Limit unacked deliveries per consumer.
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	q := newQueueService(ch, queueName, executor, logger)
	q.conn = conn
	go q.watchConnection(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return q, nil
}

func newQueueService(ch channel, queueName string, executor JobExecutor, logger *zap.Logger) *QueueService {
	return &QueueService{
		channel:   ch,
		logger:    logger,
		queueName: queueName,
		executor:  executor,
		fatal:     make(chan error, 1),
	}
}

// Fatal reports an unexpected loss of the broker connection.
func (q *QueueService) Fatal() <-chan error {
	return q.fatal
}

func (q *QueueService) watchConnection(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || amqpErr == nil {
		// Graceful Close.
		return
	}
	q.logger.Error("RabbitMQ connection lost", zap.String("reason", amqpErr.Reason), zap.Int("code", amqpErr.Code))
	select {
	case q.fatal <- fmt.Errorf("rabbitmq connection lost: %w", amqpErr):
	default:
	}
}

// Close closes the queue connection
func (q *QueueService) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	return nil
}
