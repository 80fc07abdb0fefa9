package chat

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository is the Postgres MessageStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AppendGroupMessage(ctx context.Context, sender, room, body string) (*GroupMessage, error) {
	msg := &GroupMessage{FromUser: sender, Room: room, Message: body}
	query := `
		INSERT INTO group_messages (from_user, room, message)
		VALUES ($1, $2, $3)
		RETURNING id, date_sent
	`
	if err := r.db.QueryRowContext(ctx, query, sender, room, body).Scan(&msg.ID, &msg.DateSent); err != nil {
		return nil, fmt.Errorf("insert group message: %w", err)
	}
	return msg, nil
}

func (r *Repository) AppendPrivateMessage(ctx context.Context, sender, recipient, body string) (*PrivateMessage, error) {
	msg := &PrivateMessage{FromUser: sender, ToUser: recipient, Message: body}
	query := `
		INSERT INTO private_messages (from_user, to_user, message)
		VALUES ($1, $2, $3)
		RETURNING id, date_sent
	`
	if err := r.db.QueryRowContext(ctx, query, sender, recipient, body).Scan(&msg.ID, &msg.DateSent); err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}
	return msg, nil
}

func (r *Repository) ListGroupMessages(ctx context.Context, room string, limit int) ([]*GroupMessage, error) {
	query := `
		SELECT id, from_user, room, message, date_sent
		FROM group_messages
		WHERE room = $1
		ORDER BY date_sent ASC, id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query group messages: %w", err)
	}
	defer rows.Close()

	var messages []*GroupMessage
	for rows.Next() {
		msg := &GroupMessage{}
		if err := rows.Scan(&msg.ID, &msg.FromUser, &msg.Room, &msg.Message, &msg.DateSent); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
