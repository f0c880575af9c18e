package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// CertificateCache holds signing certificate PEM bytes keyed by certificate URL.
type CertificateCache interface {
	// Get returns ErrNotFound if the URL is not cached or has expired.
	Get(ctx context.Context, certURL string) ([]byte, error)

	Set(ctx context.Context, certURL string, pem []byte, ttl time.Duration) error
}

type Backend interface {
	RateLimiter
	CertificateCache

	Close() error

	Ping(ctx context.Context) error
}

// InboundEmail is one raw RFC 822 message handed to a sink. Checksum is the
// sha256 of Raw and is the deduplication key for redelivered notifications.
type InboundEmail struct {
	Raw           []byte    `json:"-"`
	Checksum      string    `json:"checksum"`
	SNSMessageID  string    `json:"sns_message_id"`
	TopicARN      string    `json:"topic_arn"`
	MailMessageID string    `json:"mail_message_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

func NewInboundEmail(raw []byte, snsMessageID, topicARN, mailMessageID string, receivedAt time.Time) InboundEmail {
	return InboundEmail{
		Raw:           raw,
		Checksum:      Checksum(raw),
		SNSMessageID:  snsMessageID,
		TopicARN:      topicARN,
		MailMessageID: mailMessageID,
		ReceivedAt:    receivedAt.UTC(),
	}
}

func Checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type InboundEmailStore interface {
	// CreateInboundEmail stores e and returns its id. Storing a message whose
	// checksum is already present returns the existing id without error.
	CreateInboundEmail(ctx context.Context, e InboundEmail) (string, error)
}
