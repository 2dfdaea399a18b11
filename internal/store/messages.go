package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dispense/internal/ir"
)

// AppendMessage records a message published to topic.
func (s *Store) AppendMessage(ctx context.Context, topic, payload string, at time.Time) (ir.Message, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (topic, payload, published_at) VALUES (?, ?, ?)
	`, topic, payload, formatTime(at))
	if err != nil {
		return ir.Message{}, fmt.Errorf("append message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ir.Message{}, fmt.Errorf("append message: %w", err)
	}
	return ir.Message{Seq: seq, Topic: topic, Payload: payload, PublishedAt: at.UTC()}, nil
}

// ListMessages returns the messages published to topic in publish order.
func (s *Store) ListMessages(ctx context.Context, topic string) ([]ir.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, topic, payload, published_at
		FROM messages
		WHERE topic = ?
		ORDER BY seq ASC
	`, topic)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []ir.Message
	for rows.Next() {
		var (
			m  ir.Message
			at string
		)
		if err := rows.Scan(&m.Seq, &m.Topic, &m.Payload, &at); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		if m.PublishedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}
