package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/order"
	"github.com/example/paygate/internal/infra/mq"
	"github.com/example/paygate/internal/infra/redis"
	"github.com/example/paygate/internal/notify"
	"github.com/example/paygate/internal/repository/mysql"
)

// 去重标记保留 24 小时
const successMarkExpireSeconds = 86400

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	mqConn := mq.Init(&cfg.RabbitMQ)
	redisClient := redis.Init(&cfg.Redis)

	orderRepo := mysql.NewOrderRepository(db)
	notifier := notify.NewTwilioNotifier(&cfg.Twilio)
	mark := notify.NewSuccessMark(redisClient, successMarkExpireSeconds)

	ch, err := mqConn.Channel()
	if err != nil {
		log.Fatalf("failed to open channel: %v", err)
	}
	defer ch.Close()

	queue := cfg.Notify.Queue
	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Fatalf("failed to declare queue: %v", err)
	}

	// 手动确认模式（auto-ack=false），发送失败的消息重新入队
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	log.Println("notify worker started, waiting for messages...")

	for d := range msgs {
		var m notify.Message
		if err := json.Unmarshal(d.Body, &m); err != nil {
			log.Printf("invalid message: %v", err)
			// 消息格式错误，拒绝并丢弃
			_ = d.Nack(false, false)
			continue
		}
		handleMessage(context.Background(), orderRepo, notifier, mark, &m, d)
	}
}

func handleMessage(ctx context.Context, orderRepo order.Repository, notifier notify.Notifier, mark *notify.SuccessMark, m *notify.Message, d amqp.Delivery) {
	// 支付成功通知按 external_id 去重：MQ 重投或回调竞争都只发一条
	claimed := false
	if m.Kind == notify.KindPaymentSuccess && m.ExternalID != "" {
		ok, err := mark.Claim(m.ExternalID)
		if err != nil {
			log.Printf("dedup check failed: %v", err)
			_ = d.Nack(false, true)
			return
		}
		if !ok {
			log.Printf("payment-success notification for %s already sent, skipping", m.ExternalID)
			_ = d.Ack(false)
			return
		}
		claimed = true
	}

	if err := notifier.Send(ctx, *m); err != nil {
		log.Printf("send %s to +%s failed: %v", m.Kind, m.To, err)
		// 发送失败回滚去重标记，重新入队等待下一次投递
		if claimed {
			mark.Release(m.ExternalID)
		}
		_ = d.Nack(false, true)
		return
	}

	// 支付成功通知送达后在订单上补记标记
	if m.Kind == notify.KindPaymentSuccess && m.ExternalID != "" {
		if err := orderRepo.MarkNotified(ctx, m.ExternalID, time.Now()); err != nil {
			log.Printf("failed to mark order %s notified: %v", m.ExternalID, err)
		}
	}

	log.Printf("notification %s delivered to +%s", m.Kind, m.To)
	if err := d.Ack(false); err != nil {
		log.Printf("failed to ack message: %v", err)
	}
}
