package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var _ InboundEmailStore = (*SQLiteInboundEmailStore)(nil)

type SQLiteInboundEmailStore struct {
	db *sql.DB
}

// OpenSQLite opens path with foreign keys and WAL enabled. The caller owns the
// returned handle.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteInboundEmailStore(db *sql.DB) *SQLiteInboundEmailStore {
	return &SQLiteInboundEmailStore{db: db}
}

func (s *SQLiteInboundEmailStore) CreateInboundEmail(ctx context.Context, e InboundEmail) (string, error) {
	if e.Checksum == "" {
		e.Checksum = Checksum(e.Raw)
	}

	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inbound_emails (id, checksum, raw, sns_message_id, topic_arn, mail_message_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checksum) DO NOTHING`,
		id, e.Checksum, e.Raw, e.SNSMessageID, e.TopicARN, e.MailMessageID, e.ReceivedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert inbound email: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert inbound email: %w", err)
	}
	if n == 1 {
		return id, nil
	}

	if err := s.db.QueryRowContext(ctx, `SELECT id FROM inbound_emails WHERE checksum = ?`, e.Checksum).Scan(&id); err != nil {
		return "", fmt.Errorf("select existing inbound email: %w", err)
	}
	return id, nil
}

func (s *SQLiteInboundEmailStore) Get(ctx context.Context, id string) (InboundEmail, error) {
	var e InboundEmail
	err := s.db.QueryRowContext(ctx, `
		SELECT raw, checksum, sns_message_id, topic_arn, mail_message_id, received_at
		FROM inbound_emails WHERE id = ?`, id).Scan(
		&e.Raw,
		&e.Checksum,
		&e.SNSMessageID,
		&e.TopicARN,
		&e.MailMessageID,
		&e.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return InboundEmail{}, ErrNotFound
	}
	if err != nil {
		return InboundEmail{}, fmt.Errorf("get inbound email: %w", err)
	}
	return e, nil
}
