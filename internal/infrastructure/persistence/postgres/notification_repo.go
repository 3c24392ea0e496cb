package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alem-hub/progress-engine/internal/domain/notification"
)

// NotificationRepository implements notification.Repository for PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

// Write stores a notification. A repeated ID is ignored.
func (r *NotificationRepository) Write(ctx context.Context, n *notification.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal notification metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, metadata, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.conn.Pool().Exec(ctx, query,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, metadata, n.CreatedAt, n.ReadAt,
	)
	return wrapErr("notification", "Write", err)
}

// ListByUser returns the latest notifications of a user.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, type, title, message, metadata, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrapErr("notification", "ListByUser", err)
	}
	defer rows.Close()

	var result []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		var typ string
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &metadata, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, wrapErr("notification", "ListByUser", err)
		}
		n.Type = notification.NotificationType(typ)
		n.Metadata = map[string]interface{}{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification metadata: %w", err)
			}
		}
		result = append(result, &n)
	}
	return result, wrapErr("notification", "ListByUser", rows.Err())
}

var _ notification.Repository = (*NotificationRepository)(nil)
