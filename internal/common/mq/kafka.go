package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// KafkaConfig defines configuration for the Kafka implementation.
type KafkaConfig struct {
	Brokers  []string
	ClientID string

	RequiredAcks kafka.RequiredAcks
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafka.Compression

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaQueue implements MessageQueue using Kafka.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer

	mu     sync.Mutex
	closed bool
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: cfg.RequiredAcks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  cfg.Compression,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &KafkaQueue{config: cfg, writer: writer}, nil
}

func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	return k.PublishBatch(ctx, topic, []*Message{message})
}

func (k *KafkaQueue) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if len(messages) == 0 {
		return nil
	}
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return errors.New("queue is closed")
	}
	k.mu.Unlock()

	kmsgs := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		headers := []kafka.Header{
			{Key: headerID, Value: []byte(m.ID)},
			{Key: headerTimestamp, Value: []byte(strconv.FormatInt(m.Timestamp.UnixMilli(), 10))},
		}
		for hk, hv := range m.Headers {
			headers = append(headers, kafka.Header{Key: hk, Value: []byte(hv)})
		}
		kmsgs = append(kmsgs, kafka.Message{
			Topic:   topic,
			Key:     []byte(m.Key),
			Value:   m.Body,
			Time:    m.Timestamp,
			Headers: headers,
		})
	}
	return k.writer.WriteMessages(ctx, kmsgs...)
}

// Ping dials the first broker to verify connectivity.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	dialer := &kafka.Dialer{
		ClientID:  k.config.ClientID,
		Timeout:   k.config.DialTimeout,
		DualStack: true,
	}
	conn, err := dialer.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.writer.Close()
}
