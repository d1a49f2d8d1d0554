package store

import "context"

// Message is one stored conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Store) AddMessage(ctx context.Context, chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, chatID, role, content)
	return err
}

// GetHistory returns the last limit messages of a chat in chronological order.
func (s *Store) GetHistory(ctx context.Context, chatID string, limit int) ([]Message, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

func (s *Store) ClearHistory(ctx context.Context, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}
