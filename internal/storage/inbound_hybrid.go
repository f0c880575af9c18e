package storage

import (
	"context"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/garrettladley/sesgate/internal/xslog"
)

const InboundEmailsLiveChannel = "inbound_emails:live"

var _ InboundEmailStore = (*HybridInboundEmailStore)(nil)

// InboundEmailEvent announces a newly stored message to live subscribers.
type InboundEmailEvent struct {
	ID            string    `json:"id"`
	Checksum      string    `json:"checksum"`
	SNSMessageID  string    `json:"sns_message_id"`
	TopicARN      string    `json:"topic_arn"`
	MailMessageID string    `json:"mail_message_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// HybridInboundEmailStore persists to Postgres and publishes each new row on
// Redis. Duplicates are not republished, and a failed publish does not fail
// the write.
type HybridInboundEmailStore struct {
	postgres *PostgresInboundEmailStore
	redis    *redis.Client
}

func NewHybridInboundEmailStore(pool *pgxpool.Pool, redis *redis.Client) *HybridInboundEmailStore {
	return &HybridInboundEmailStore{
		postgres: NewPostgresInboundEmailStore(pool),
		redis:    redis,
	}
}

func (s *HybridInboundEmailStore) CreateInboundEmail(ctx context.Context, e InboundEmail) (string, error) {
	id, created, err := s.postgres.insert(ctx, e)
	if err != nil {
		return "", err
	}

	// created is false when ON CONFLICT DO NOTHING triggers; that row was already published
	if !created {
		return id, nil
	}

	s.publish(ctx, InboundEmailEvent{
		ID:            id,
		Checksum:      e.Checksum,
		SNSMessageID:  e.SNSMessageID,
		TopicARN:      e.TopicARN,
		MailMessageID: e.MailMessageID,
		ReceivedAt:    e.ReceivedAt,
	})
	return id, nil
}

// publish is best-effort. Failures are logged and never fail the write.
func (s *HybridInboundEmailStore) publish(ctx context.Context, ev InboundEmailEvent) {
	logger := xslog.FromContext(ctx)

	data, err := go_json.Marshal(ev)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal inbound email event", xslog.InboundEmailID(ev.ID), xslog.Error(err))
		return
	}
	if err := s.redis.Publish(ctx, InboundEmailsLiveChannel, string(data)).Err(); err != nil {
		logger.ErrorContext(ctx, "failed to publish inbound email event", xslog.InboundEmailID(ev.ID), xslog.Error(err))
	}
}

func (s *HybridInboundEmailStore) Get(ctx context.Context, id string) (InboundEmail, error) {
	return s.postgres.Get(ctx, id)
}

// Subscribe returns a channel of events for rows created after the call.
// The returned function unsubscribes.
func Subscribe(ctx context.Context, client *redis.Client) (<-chan InboundEmailEvent, func(), error) {
	pubsub := client.Subscribe(ctx, InboundEmailsLiveChannel)

	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	events := make(chan InboundEmailEvent)

	go func() {
		defer close(events)
		ch := pubsub.Channel()

		for msg := range ch {
			var ev InboundEmailEvent
			if err := go_json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = pubsub.Close()
	}

	return events, unsubscribe, nil
}
