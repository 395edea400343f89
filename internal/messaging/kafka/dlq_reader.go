package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// DLQReader читает топик DLQ через consumer group.
// Без commit смещения не фиксируются: повторный запуск увидит те же сообщения.
type DLQReader struct {
	group   sarama.ConsumerGroup
	topic   string
	handler MessageHandler
	commit  bool
	logger  *log.Entry
	wg      sync.WaitGroup
}

// NewDLQReader подключается к брокерам.
func NewDLQReader(brokers []string, groupID, topic string, commit bool, handler MessageHandler) (*DLQReader, error) {
	if handler == nil {
		return nil, errors.New("dlq handler is required")
	}
	if topic == "" {
		topic = TopicNotificationDLQ
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = commit
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return &DLQReader{
		group:   group,
		topic:   topic,
		handler: handler,
		commit:  commit,
		logger:  log.WithField("component", "kafka-dlq-reader"),
	}, nil
}

// Run читает сообщения до отмены ctx.
func (r *DLQReader) Run(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range r.group.Errors() {
			r.logger.WithError(err).Error("consumer group error")
		}
	}()

	r.logger.WithFields(log.Fields{"topic": r.topic, "commit": r.commit}).Info("dlq reader started")
	for {
		// Consume возвращается при каждом rebalance.
		if err := r.group.Consume(ctx, []string{r.topic}, r); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			r.logger.WithError(err).Error("error from consumer")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close закрывает consumer group и ждёт фоновые горутины.
func (r *DLQReader) Close() error {
	if err := r.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", err)
	}
	r.wg.Wait()
	return nil
}

func (r *DLQReader) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (r *DLQReader) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim передаёт сообщения обработчику. Сообщение с ошибкой не отмечается.
func (r *DLQReader) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			logger := r.logger.WithFields(log.Fields{
				"partition": message.Partition,
				"offset":    message.Offset,
				"outbox_id": Header(message, HeaderOutboxID),
			})
			if err := r.handler(session.Context(), message); err != nil {
				logger.WithError(err).Warn("dlq message not processed")
				continue
			}
			if r.commit {
				session.MarkMessage(message, "")
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*DLQReader)(nil)
