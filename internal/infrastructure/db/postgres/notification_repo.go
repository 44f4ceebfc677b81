package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/baechuer/newsroom/internal/domain"
)

// NotificationRepo is the durable notification record used by the delivery
// registry and the notifications API.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Save upserts by id. Content columns are immutable; only status and the
// sent/read timestamps move forward.
func (r *NotificationRepo) Save(ctx context.Context, n domain.SmartNotification) error {
	meta, err := marshalMeta(n.Metadata)
	if err != nil {
		return err
	}
	channels := make([]string, 0, len(n.DeliveryChannels))
	for _, c := range n.DeliveryChannels {
		channels = append(channels, string(c))
	}

	_, err = r.db.ExecContext(ctx, upsertNotificationSQL,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(n.Priority), nullIfEmpty(n.Category),
		nullIfEmpty(n.ArticleID), nullIfEmpty(n.AuthorID), nullIfEmpty(n.CommentID), string(n.Status), n.PersonalizationScore,
		pq.Array(channels), meta, n.CreatedAt, n.SentAt, n.ReadAt,
	)
	return err
}

func (r *NotificationRepo) ListUnread(ctx context.Context, userID string, limit int) ([]domain.SmartNotification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.query(ctx, listUnreadNotificationsSQL, userID, limit)
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.SmartNotification, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(ctx, listNotificationsByUserSQL, userID, limit, offset)
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUnreadSQL, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, markNotificationsSentSQL, pq.Array(ids), at)
	return err
}

// MarkRead reports false when the notification does not exist, belongs to
// someone else or is already read.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, markNotificationReadSQL, id, userID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, markAllNotificationsReadSQL, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) query(ctx context.Context, q string, args ...any) ([]domain.SmartNotification, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SmartNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(s rowScanner) (domain.SmartNotification, error) {
	var (
		n                                        domain.SmartNotification
		typ, prio, status                        string
		category, articleID, authorID, commentID sql.NullString
		channels                                 []string
		meta                                     []byte
		sentAt, readAt                           sql.NullTime
	)
	if err := s.Scan(
		&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &prio, &category,
		&articleID, &authorID, &commentID, &status, &n.PersonalizationScore,
		pq.Array(&channels), &meta, &n.CreatedAt, &sentAt, &readAt,
	); err != nil {
		return n, err
	}

	n.Type = domain.NotificationType(typ)
	n.Priority = domain.Priority(prio)
	n.Status = domain.NotificationStatus(status)
	if !n.Type.Valid() || !n.Priority.Valid() || !n.Status.Valid() {
		return n, fmt.Errorf("notification %s: invalid enum in db (%s/%s/%s)", n.ID, typ, prio, status)
	}
	n.Category = category.String
	n.ArticleID = articleID.String
	n.AuthorID = authorID.String
	n.CommentID = commentID.String
	for _, c := range channels {
		n.DeliveryChannels = append(n.DeliveryChannels, domain.DeliveryChannel(c))
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return n, fmt.Errorf("notification %s metadata: %w", n.ID, err)
		}
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return n, nil
}

func marshalMeta(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
