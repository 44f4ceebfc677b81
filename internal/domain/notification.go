package domain

import "time"

type NotificationType string

const (
	NotificationNewArticle     NotificationType = "new_article"
	NotificationNewComment     NotificationType = "new_comment"
	NotificationRecommendation NotificationType = "recommendation"
	NotificationDailyDigest    NotificationType = "daily_digest"
	NotificationAuthorFollow   NotificationType = "author_follow"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewArticle, NotificationNewComment, NotificationRecommendation,
		NotificationDailyDigest, NotificationAuthorFollow:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh || p == PriorityUrgent
}

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusRead    NotificationStatus = "read"
)

func (s NotificationStatus) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusRead
}

type DeliveryChannel string

const (
	ChannelInApp DeliveryChannel = "in_app"
	ChannelPush  DeliveryChannel = "push"
)

// SmartNotification belongs to exactly one recipient. Fan-out creates one
// record per user.
type SmartNotification struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	Type                 NotificationType   `json:"type"`
	Title                string             `json:"title"`
	Message              string             `json:"message"`
	Priority             Priority           `json:"priority"`
	Category             string             `json:"category,omitempty"`
	ArticleID            string             `json:"article_id,omitempty"`
	AuthorID             string             `json:"author_id,omitempty"`
	CommentID            string             `json:"comment_id,omitempty"`
	Status               NotificationStatus `json:"status"`
	PersonalizationScore float64            `json:"personalization_score"`
	DeliveryChannels     []DeliveryChannel  `json:"delivery_channels"`
	Metadata             map[string]string  `json:"metadata,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	SentAt               *time.Time         `json:"sent_at,omitempty"`
	ReadAt               *time.Time         `json:"read_at,omitempty"`
}

// BroadcastMessage is pushed to every connected subscriber and never stored.
type BroadcastMessage struct {
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Priority  Priority          `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
