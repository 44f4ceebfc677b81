package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// InterestRepo answers the engine's "who cares" questions. Each method is a
// single query so the sources stay independent.
type InterestRepo struct {
	db *sql.DB
}

func NewInterestRepo(db *sql.DB) *InterestRepo { return &InterestRepo{db: db} }

func (r *InterestRepo) SavedInterestUsers(ctx context.Context, categoryID string) ([]string, error) {
	return r.ids(ctx, savedInterestUsersSQL, categoryID)
}

func (r *InterestRepo) RecentPositiveInteractionUsers(ctx context.Context, categoryID string, since time.Time) ([]string, error) {
	return r.ids(ctx, recentPositiveInteractionUsersSQL, categoryID, since)
}

func (r *InterestRepo) PreferenceDocumentUsers(ctx context.Context, categoryID string) ([]string, error) {
	return r.ids(ctx, preferenceDocumentUsersSQL, categoryID)
}

func (r *InterestRepo) FollowersOf(ctx context.Context, authorID string) ([]string, error) {
	return r.ids(ctx, followersOfSQL, authorID)
}

func (r *InterestRepo) ArticleEngagedUsers(ctx context.Context, articleID string) ([]string, error) {
	return r.ids(ctx, articleEngagedUsersSQL, articleID)
}

func (r *InterestRepo) UserInteractedArticleIDs(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, userInteractedArticleIDsSQL, userID)
}

func (r *InterestRepo) UserTopCategoryNames(ctx context.Context, userID string, limit int) ([]string, error) {
	return r.ids(ctx, userTopCategoryNamesSQL, userID, limit)
}

func (r *InterestRepo) UserCategoryCounts(ctx context.Context, userID string, since time.Time, limit int) ([]domain.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, userCategoryCountsSQL, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ids runs a single-column query.
func (r *InterestRepo) ids(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id.Valid && id.String != "" {
			out = append(out, id.String)
		}
	}
	return out, rows.Err()
}
