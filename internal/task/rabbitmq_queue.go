package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/pkg/logger"
)

// DefaultRabbitMQQueue 是操作任务默认使用的 RabbitMQ 队列名称。
const DefaultRabbitMQQueue = "ledgeragent.operations"

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
	// DeadLetterExchange 非空时，重投后仍然失败的消息转入该交换机而不是再次入队。
	DeadLetterExchange string
}

// RabbitMQQueue 使用手动确认的 RabbitMQ 队列承载操作任务 ID。
type RabbitMQQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deadLetter bool
	closed     chan *amqp.Error
}

// NewRabbitMQQueue 连接 RabbitMQ 并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultRabbitMQQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	fail := func(err error, msg string) (*RabbitMQQueue, error) {
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, msg)
	}
	ch, err := conn.Channel()
	if err != nil {
		return fail(err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fail(err, "设置 RabbitMQ QOS 失败")
		}
	}
	var args amqp.Table
	if cfg.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, args); err != nil {
		return fail(err, "声明 RabbitMQ 队列失败")
	}
	return &RabbitMQQueue{
		conn:       conn,
		ch:         ch,
		queue:      queue,
		deadLetter: cfg.DeadLetterExchange != "",
		closed:     conn.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// Publish 以持久化消息投递任务 ID。
func (q *RabbitMQQueue) Publish(ctx context.Context, taskID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    taskID,
		Timestamp:    time.Now().UTC(),
		AppId:        "ledgeragentd",
		Body:         []byte(taskID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布任务失败")
	}
	return nil
}

// Consume 消费队列直到 ctx 取消。handler 失败的消息重新入队一次；
// 配置了死信交换机时，重投后仍失败的消息进入死信。连接断开时返回错误。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 队列未初始化")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	var wg sync.WaitGroup
	for i := 0; i < max(workerCount, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.deliver(ctx, msg, handler)
				}
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case amqpErr, ok := <-q.closed:
		if ok && amqpErr != nil {
			result = xerrors.Wrap(xerrors.CodeQueueFailure, amqpErr, "RabbitMQ 连接已断开")
		}
	}
	wg.Wait()
	return result
}

func (q *RabbitMQQueue) deliver(ctx context.Context, msg amqp.Delivery, handler Handler) {
	taskID := string(msg.Body)
	if err := handler(ctx, taskID); err != nil {
		requeue := ctx.Err() == nil && !(q.deadLetter && msg.Redelivered)
		if !requeue {
			logger.L().Warn("RabbitMQ 消息不再重投",
				slog.String("task_id", taskID),
				slog.Bool("redelivered", msg.Redelivered),
				slog.Any("error", err),
			)
		}
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)
