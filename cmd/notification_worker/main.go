package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/config"
	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
)

// Consumes the queue fed by the sync agent's notification relay and logs
// every relayed notification.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-notification-worker", cfg.Env, cfg.LogLevel)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQNotificationQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("amqp channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(16, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}
	if _, err := ch.QueueDeclare(cfg.RabbitMQNotificationQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("queue declare: %v", err)
	}
	msgs, err := ch.Consume(cfg.RabbitMQNotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range msgs {
			if handle(logger, msg.Body) {
				_ = msg.Ack(false)
			} else {
				_ = msg.Nack(false, false)
			}
		}
	}()

	logger.Infof("notification worker listening on queue=%s", cfg.RabbitMQNotificationQueue)
	select {
	case <-stop:
	case <-done:
		logger.Warn("delivery channel closed by broker")
	}
	logger.Info("shutting down...")
	_ = ch.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// handle logs one relayed notification and reports whether it was usable.
func handle(logger *logrus.Logger, body []byte) bool {
	var m application.RelayMessage
	if err := json.Unmarshal(body, &m); err != nil {
		logger.WithError(err).Warn("bad relay message, dropping")
		return false
	}
	if m.Notification.ID == 0 {
		logger.WithField("reason", "missing notification id").Warn("bad relay message, dropping")
		return false
	}
	logger.WithFields(logrus.Fields{
		"type":            m.Type,
		"notification_id": m.Notification.ID,
		"user_id":         m.Notification.UserID,
		"relayed_at":      m.RelayedAt,
		"lag":             time.Since(m.RelayedAt).Round(time.Millisecond).String(),
	}).Info(m.Notification.Message)
	return true
}
