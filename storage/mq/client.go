package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gbalchidi/family-emotions-app/config"
)

const (
	// DispatchExchange 调度消息统一走这个 direct exchange
	DispatchExchange = "dispatch.direct"

	// 队列与路由键，worker 按队列消费
	CheckinDispatchQueue = "dispatch.checkin"
	ReportReadyQueue     = "dispatch.report"

	CheckinDispatchRoutingKey = "dispatch.checkin"
	ReportReadyRoutingKey     = "dispatch.report"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()

		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			return
		}

		ch, err := conn.Channel()
		if err != nil {
			connErr = err
			return
		}
		defer ch.Close()

		connErr = declareTopology(ch)
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

// declareTopology 声明 exchange 和队列，幂等
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		DispatchExchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	bindings := map[string]string{
		CheckinDispatchQueue: CheckinDispatchRoutingKey,
		ReportReadyQueue:     ReportReadyRoutingKey,
	}

	for queue, routingKey := range bindings {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, routingKey, DispatchExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}
	}

	return nil
}

func Close(ctx context.Context) error {
	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
