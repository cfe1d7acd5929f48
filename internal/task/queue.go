package task

import "context"

// Handler 处理一个出队的操作任务 ID。返回错误时，队列实现按各自策略重投。
type Handler func(ctx context.Context, taskID string) error

// Producer 投递待执行的操作任务。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以 workerCount 个并发 worker 消费任务，阻塞到 ctx 取消或底层连接失效。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 是 memory、redis、rabbitmq 三种驱动的共同接口。
type Queue interface {
	Producer
	Consumer
}
