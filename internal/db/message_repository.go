package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/dmail/internal/dmail"
)

// Message repository errors.
var (
	ErrEmptyMessage   = errors.New("message needs text or an image")
	ErrUnknownPeer    = errors.New("sender or receiver does not exist")
	ErrMissingParties = errors.New("message needs a sender and a receiver")
)

// MessageRepository handles message persistence.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores msg, assigning its ID and CreatedAt.
func (r *MessageRepository) Create(ctx context.Context, msg *dmail.Message) error {
	if strings.TrimSpace(msg.SenderID) == "" || strings.TrimSpace(msg.ReceiverID) == "" {
		return ErrMissingParties
	}
	if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.Image) == "" {
		return ErrEmptyMessage
	}

	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()

	err := r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, sender_id, receiver_id, text, image, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.SenderID,
			msg.ReceiverID,
			msg.Text,
			msg.Image,
			msg.CreatedAt.Format(timeFormat),
		)
		return err
	})
	if err != nil {
		if isForeignKeyError(err) {
			return ErrUnknownPeer
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Conversation returns every message exchanged between a and b, oldest first.
func (r *MessageRepository) Conversation(ctx context.Context, a, b string) ([]dmail.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, image, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at, rowid
	`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []dmail.Message{}
	for rows.Next() {
		var (
			msg       dmail.Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Image, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			msg.CreatedAt = t
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
