package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dispatcher 把通知写入 MQ，由 notify-worker 异步送达。
// 通知不在主链路上，入队失败由调用方记录后吞掉。
type Dispatcher struct {
	mqConn *amqp.Connection
	queue  string
}

// NewDispatcher 创建通知派发器
func NewDispatcher(mqConn *amqp.Connection, queue string) *Dispatcher {
	if queue == "" {
		queue = "notify_queue"
	}
	return &Dispatcher{mqConn: mqConn, queue: queue}
}

// Dispatch 声明队列并投递一条通知消息
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	ch, err := d.mqConn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(d.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	body, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",
		d.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
