package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// kafkaRuntime — producer, publisher'ы outbox и consumer пересланных callback'ов.
type kafkaRuntime struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	consumer  *kafka.Consumer
}

// initKafka подключается к брокерам. Без брокеров события outbox
// только пишутся в лог.
func initKafka(cfg Config, processor kafka.CallbackProcessor, logger *log.Entry) (*kafkaRuntime, error) {
	if !cfg.KafkaEnabled() {
		logger.Info("kafka is not configured, outbox events are logged only")
		return &kafkaRuntime{publisher: logPublisher{logger: logger.WithField("component", "outbox-log")}}, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		return nil, err
	}
	rt := &kafkaRuntime{
		producer:  producer,
		publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic),
		dlq:       kafka.NewDLQPublisher(producer),
	}

	if cfg.KafkaCallbackTopic != "" {
		consumer, err := kafka.NewConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaGroupID,
			[]string{cfg.KafkaCallbackTopic},
			kafka.NewCallbackHandler(processor, logger.WithField("component", "callback-consumer")),
			kafka.WithDLQ(producer, kafka.TopicDeadLetterQueue),
			kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
		)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		rt.consumer = consumer
	}

	logger.WithFields(log.Fields{
		"brokers":        cfg.KafkaBrokers,
		"order_topic":    cfg.KafkaOrderTopic,
		"callback_topic": cfg.KafkaCallbackTopic,
	}).Info("kafka initialized")
	return rt, nil
}

// runConsumer держит consumer до отмены ctx.
func (k *kafkaRuntime) runConsumer(ctx context.Context) error {
	if k.consumer == nil {
		return nil
	}
	if err := k.consumer.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return k.consumer.Stop()
}

func (k *kafkaRuntime) close(logger *log.Entry) {
	if k.producer == nil {
		return
	}
	if err := k.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// logPublisher заменяет брокер при локальном запуске.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(event domain.OutboxMessage) error {
	if event.ID == "" {
		return fmt.Errorf("outbox event without id: %w", domain.ErrOutboxPublish)
	}
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("outbox event")
	return nil
}
