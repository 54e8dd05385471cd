package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"directchat/internal/db"
)

const selectMessage = `
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at, s.username, r.username
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		JOIN users r ON r.id = m.receiver_id
	`

type Repository struct {
	db *db.Database

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database, now: time.Now}
}

// stamp returns the creation time for the next message. It never goes backwards within
// the process, so created_at order matches append order.
func (r *Repository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now().UTC().Truncate(time.Microsecond)
	if t.Before(r.last) {
		t = r.last
	}
	r.last = t
	return t
}

// Append persists a message. Both users must exist; the caller checks that.
// Content is stored as raw bytes so any string, NUL included, comes back unchanged.
func (r *Repository) Append(ctx context.Context, senderID, receiverID int64, content string) (*Message, error) {
	var id int64
	query := r.db.Rebind("INSERT INTO messages (sender_id, receiver_id, content, created_at) VALUES (?, ?, ?, ?) RETURNING id")
	err := r.db.Conn.QueryRowContext(ctx, query, senderID, receiverID, append([]byte{}, content...), r.stamp()).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	msg := &Message{}
	row := r.db.Conn.QueryRowContext(ctx, r.db.Rebind(selectMessage+"WHERE m.id = ?"), id)
	if err := scanMessage(row.Scan, msg); err != nil {
		return nil, fmt.Errorf("select message %d: %w", id, err)
	}
	return msg, nil
}

// Conversation returns every message between a and b in either direction, oldest first.
// It returns an empty slice, not nil, when the pair never talked.
func (r *Repository) Conversation(ctx context.Context, a, b int64) ([]Message, error) {
	query := r.db.Rebind(selectMessage + `
		WHERE (m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)
		ORDER BY m.created_at ASC, m.id ASC
	`)
	rows, err := r.db.Conn.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows.Scan, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanMessage(scan func(dest ...interface{}) error, msg *Message) error {
	var content []byte
	if err := scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &content, &msg.CreatedAt, &msg.SenderUsername, &msg.ReceiverUsername); err != nil {
		return err
	}
	msg.Content = string(content)
	return nil
}
