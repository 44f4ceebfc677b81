package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/baechuer/newsroom/internal/domain"
)

// ContentRepo reads the CMS tables. It never writes.
type ContentRepo struct {
	db *sql.DB
}

func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{db: db} }

func (r *ContentRepo) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var a domain.Article
	var authorID sql.NullString
	var publishedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, getArticleSQL, id).
		Scan(&a.ID, &a.Title, &a.CategoryID, &authorID, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrNotFound("article not found")
	}
	if err != nil {
		return a, err
	}
	a.AuthorID = authorID.String
	a.PublishedAt = publishedAt.Time
	return a, nil
}

func (r *ContentRepo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx, getCategorySQL, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrNotFound("category not found")
	}
	return c, err
}

func (r *ContentRepo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	var c domain.Comment
	err := r.db.QueryRowContext(ctx, getCommentSQL, id).Scan(&c.ID, &c.ArticleID, &c.AuthorID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrNotFound("comment not found")
	}
	return c, err
}

func (r *ContentRepo) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	var a domain.Author
	err := r.db.QueryRowContext(ctx, getAuthorSQL, id).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrNotFound("author not found")
	}
	return a, err
}

func (r *ContentRepo) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countPublishedSinceSQL, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// RecentArticlesInCategories returns newest first.
func (r *ContentRepo) RecentArticlesInCategories(ctx context.Context, categoryIDs []string, since time.Time, limit int) ([]domain.Article, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, recentArticlesInCategoriesSQL, pq.Array(categoryIDs), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		var a domain.Article
		var authorID sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Title, &a.CategoryID, &authorID, &publishedAt); err != nil {
			return nil, err
		}
		a.AuthorID = authorID.String
		a.PublishedAt = publishedAt.Time
		out = append(out, a)
	}
	return out, rows.Err()
}
