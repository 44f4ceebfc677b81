package notify

import (
	"context"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// InterestGraph holds the three independent "interested in category" sources.
// The engine unions them; each can be tested or retired on its own.
type InterestGraph interface {
	SavedInterestUsers(ctx context.Context, categoryID string) ([]string, error)
	RecentPositiveInteractionUsers(ctx context.Context, categoryID string, since time.Time) ([]string, error)
	PreferenceDocumentUsers(ctx context.Context, categoryID string) ([]string, error)
}

type Audience interface {
	FollowersOf(ctx context.Context, authorID string) ([]string, error)
	// ArticleEngagedUsers are users who liked, saved or commented on the article.
	ArticleEngagedUsers(ctx context.Context, articleID string) ([]string, error)
}

type History interface {
	UserCategoryCounts(ctx context.Context, userID string, since time.Time, limit int) ([]domain.CategoryCount, error)
	UserInteractedArticleIDs(ctx context.Context, userID string) ([]string, error)
	UserTopCategoryNames(ctx context.Context, userID string, limit int) ([]string, error)
}

type Content interface {
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	GetComment(ctx context.Context, id string) (domain.Comment, error)
	GetAuthor(ctx context.Context, id string) (domain.Author, error)
	CountPublishedSince(ctx context.Context, since time.Time) (int, error)
	RecentArticlesInCategories(ctx context.Context, categoryIDs []string, since time.Time, limit int) ([]domain.Article, error)
}

// Dispatcher persists and delivers one notification. delivery.Registry
// satisfies it.
type Dispatcher interface {
	SendToUser(ctx context.Context, userID string, n domain.SmartNotification) (bool, error)
}

type IdempotencyStore interface {
	// Seen returns true if key already marked as sent.
	Seen(ctx context.Context, key string) (bool, error)

	// MarkSent marks key as sent with TTL (idempotent).
	MarkSent(ctx context.Context, key string, ttl time.Duration) error
}
