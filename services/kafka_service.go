package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"practicehub/config"
)

// KafkaService Kafka producer and consumer group used for auto-sync requests
type KafkaService struct {
	producer     sarama.SyncProducer
	consumer     sarama.ConsumerGroup
	topics       map[string]bool
	topicsMutex  sync.RWMutex
	handlers     map[string]MessageHandler
	handlerMutex sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	metrics      *KafkaMetrics
	log          *zap.Logger
	wg           sync.WaitGroup
}

// KafkaMetrics counters exposed by the monitor endpoint
type KafkaMetrics struct {
	messagesSent     int64
	messagesReceived int64
	errors           int64
	mu               sync.RWMutex
}

func (m *KafkaMetrics) add(sent, received, errs int64) {
	m.mu.Lock()
	m.messagesSent += sent
	m.messagesReceived += received
	m.errors += errs
	m.mu.Unlock()
}

// MessageHandler processes one consumed message. A returned error is counted
// and logged; the message is still marked.
type MessageHandler func(ctx context.Context, key, value []byte) error

func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	return cfg
}

// NewKafkaService connects the producer and the consumer group
func NewKafkaService(log *zap.Logger) (*KafkaService, error) {
	producerConfig := newSaramaConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner // same activity, same partition

	producer, err := sarama.NewSyncProducer(config.AppConfig.KafkaBootstrapServers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	consumerConfig := newSaramaConfig()
	consumerConfig.Consumer.Return.Errors = true
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	consumerConfig.Consumer.Offsets.AutoCommit.Enable = true
	consumerConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second
	consumerConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}

	consumer, err := sarama.NewConsumerGroup(config.AppConfig.KafkaBootstrapServers, config.AppConfig.KafkaConsumerGroup, consumerConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	service := &KafkaService{
		producer: producer,
		consumer: consumer,
		topics:   make(map[string]bool),
		handlers: make(map[string]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
		metrics:  &KafkaMetrics{},
		log:      log,
	}

	service.wg.Add(1)
	go service.handleConsumerErrors()

	return service, nil
}

func (s *KafkaService) handleConsumerErrors() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case err, ok := <-s.consumer.Errors():
			if !ok {
				return
			}
			s.metrics.add(0, 0, 1)
			s.log.Warn("kafka consumer error", zap.Error(err))
		}
	}
}

// Close stops consuming and closes the clients
func (s *KafkaService) Close() error {
	s.cancel()

	var errs []error
	if err := s.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka consumer group: %w", err))
	}
	if err := s.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

// GetMetrics returns the producer/consumer counters
func (s *KafkaService) GetMetrics() map[string]int64 {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return map[string]int64{
		"messages_sent":     s.metrics.messagesSent,
		"messages_received": s.metrics.messagesReceived,
		"errors":            s.metrics.errors,
	}
}

// EnsureTopicExists creates the topic on first use
func (s *KafkaService) EnsureTopicExists(topic string) error {
	s.topicsMutex.RLock()
	exists := s.topics[topic]
	s.topicsMutex.RUnlock()
	if exists {
		return nil
	}

	admin, err := sarama.NewClusterAdmin(config.AppConfig.KafkaBootstrapServers, newSaramaConfig())
	if err != nil {
		return fmt.Errorf("create kafka admin: %w", err)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	if _, exists := topics[topic]; !exists {
		detail := &sarama.TopicDetail{
			NumPartitions:     int32(config.AppConfig.KafkaPartitions),
			ReplicationFactor: int16(config.AppConfig.KafkaReplicationFactor),
			ConfigEntries: map[string]*string{
				"retention.ms":   strPtr("86400000"), // one day
				"cleanup.policy": strPtr("delete"),
			},
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		s.log.Info("created kafka topic", zap.String("topic", topic))
	}

	s.topicsMutex.Lock()
	s.topics[topic] = true
	s.topicsMutex.Unlock()
	return nil
}

// PublishMessage sends one message and waits for the broker's ack.
func (s *KafkaService) PublishMessage(ctx context.Context, topic, key string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.EnsureTopicExists(topic); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(message),
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		s.metrics.add(0, 0, 1)
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	s.metrics.add(1, 0, 0)

	s.log.Debug("kafka message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// SubscribeTopic consumes topic in the background, passing each message to handler.
func (s *KafkaService) SubscribeTopic(topic string, handler MessageHandler) error {
	if err := s.EnsureTopicExists(topic); err != nil {
		return err
	}

	s.handlerMutex.Lock()
	s.handlers[topic] = handler
	s.handlerMutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		h := &kafkaConsumerHandler{service: s, topic: topic}
		for {
			if err := s.consumer.Consume(s.ctx, []string{topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				s.log.Warn("consume topic", zap.String("topic", topic), zap.Error(err))
				select {
				case <-s.ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
		}
	}()

	s.log.Info("subscribed to kafka topic", zap.String("topic", topic))
	return nil
}

// kafkaConsumerHandler implements sarama.ConsumerGroupHandler
type kafkaConsumerHandler struct {
	service *KafkaService
	topic   string
}

func (h *kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim handles messages in partition order.
func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *kafkaConsumerHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	s := h.service
	defer func() {
		if r := recover(); r != nil {
			s.metrics.add(0, 0, 1)
			s.log.Error("kafka handler panicked", zap.String("topic", msg.Topic), zap.Any("panic", r))
		}
	}()

	s.handlerMutex.RLock()
	handler := s.handlers[h.topic]
	s.handlerMutex.RUnlock()
	if handler == nil {
		return
	}

	if err := handler(ctx, msg.Key, msg.Value); err != nil {
		s.metrics.add(0, 1, 1)
		s.log.Warn("kafka handler failed",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}
	s.metrics.add(0, 1, 0)
}

func strPtr(s string) *string {
	return &s
}
