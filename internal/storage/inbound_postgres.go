package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ InboundEmailStore = (*PostgresInboundEmailStore)(nil)

const (
	insertInboundEmailSQL = `
		INSERT INTO inbound_emails (id, checksum, raw, sns_message_id, topic_arn, mail_message_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (checksum) DO NOTHING
		RETURNING id`

	selectInboundEmailIDSQL = `SELECT id FROM inbound_emails WHERE checksum = $1`

	selectInboundEmailSQL = `
		SELECT raw, checksum, sns_message_id, topic_arn, mail_message_id, received_at
		FROM inbound_emails WHERE id = $1`
)

type PostgresInboundEmailStore struct {
	pool *pgxpool.Pool
}

func NewPostgresInboundEmailStore(pool *pgxpool.Pool) *PostgresInboundEmailStore {
	return &PostgresInboundEmailStore{pool: pool}
}

func (s *PostgresInboundEmailStore) CreateInboundEmail(ctx context.Context, e InboundEmail) (string, error) {
	id, _, err := s.insert(ctx, e)
	return id, err
}

// insert reports whether a new row was written. A checksum conflict resolves to
// the id of the existing row.
func (s *PostgresInboundEmailStore) insert(ctx context.Context, e InboundEmail) (string, bool, error) {
	if e.Checksum == "" {
		e.Checksum = Checksum(e.Raw)
	}

	var id string
	err := s.pool.QueryRow(ctx, insertInboundEmailSQL,
		uuid.NewString(),
		e.Checksum,
		e.Raw,
		e.SNSMessageID,
		e.TopicARN,
		e.MailMessageID,
		e.ReceivedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return "", false, fmt.Errorf("insert inbound email: %w", err)
	}

	if err := s.pool.QueryRow(ctx, selectInboundEmailIDSQL, e.Checksum).Scan(&id); err != nil {
		return "", false, fmt.Errorf("select existing inbound email: %w", err)
	}
	return id, false, nil
}

func (s *PostgresInboundEmailStore) Get(ctx context.Context, id string) (InboundEmail, error) {
	var e InboundEmail
	err := s.pool.QueryRow(ctx, selectInboundEmailSQL, id).Scan(
		&e.Raw,
		&e.Checksum,
		&e.SNSMessageID,
		&e.TopicARN,
		&e.MailMessageID,
		&e.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return InboundEmail{}, ErrNotFound
	}
	if err != nil {
		return InboundEmail{}, fmt.Errorf("get inbound email: %w", err)
	}
	return e, nil
}
