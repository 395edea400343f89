package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/messaging/kafka"
)

const kafkaClientID = "qrpro-order-service"

// initKafkaDLQ поднимает producer для DLQ уведомлений, если заданы brokers.
// Ошибка подключения не останавливает сервис: письма, исчерпавшие попытки, останутся в outbox со статусом failed.
func initKafkaDLQ(cfg Config, logger *log.Entry) (*kafka.Producer, *kafka.DLQPublisher) {
	brokers := cfg.brokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without notification dlq")
		return nil, nil
	}

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   cfg.KafkaDLQTopic,
	}).Info("kafka dlq producer initialized")
	return producer, kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
