package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

var _ InboundEmailStore = (*KafkaInboundEmailStore)(nil)

const (
	headerSNSMessageID  = "sns-message-id"
	headerTopicARN      = "topic-arn"
	headerMailMessageID = "mail-message-id"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaInboundEmailStore hands each message to a topic keyed by checksum, so
// redeliveries land on the same partition and compacted topics keep one copy.
// The returned id is the checksum.
type KafkaInboundEmailStore struct {
	writer messageWriter
}

func NewKafkaInboundEmailStore(cfg KafkaConfig) (*KafkaInboundEmailStore, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &KafkaInboundEmailStore{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchBytes:   64 << 20,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
		},
	}, nil
}

func (s *KafkaInboundEmailStore) CreateInboundEmail(ctx context.Context, e InboundEmail) (string, error) {
	if e.Checksum == "" {
		e.Checksum = Checksum(e.Raw)
	}

	headers := []kafka.Header{
		{Key: headerSNSMessageID, Value: []byte(e.SNSMessageID)},
		{Key: headerTopicARN, Value: []byte(e.TopicARN)},
	}
	if e.MailMessageID != "" {
		headers = append(headers, kafka.Header{Key: headerMailMessageID, Value: []byte(e.MailMessageID)})
	}

	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(e.Checksum),
		Value:   e.Raw,
		Headers: headers,
		Time:    e.ReceivedAt,
	})
	if err != nil {
		return "", fmt.Errorf("write inbound email: %w", err)
	}
	return e.Checksum, nil
}

func (s *KafkaInboundEmailStore) Close() error {
	return s.writer.Close()
}
