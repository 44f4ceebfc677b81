package domain

import "time"

// Read model of the CMS. The notification engine never writes these.

type Category struct {
	ID   string
	Name string
}

type Author struct {
	ID   string
	Name string
}

type Article struct {
	ID          string
	Title       string
	CategoryID  string
	AuthorID    string
	PublishedAt time.Time
}

type Comment struct {
	ID        string
	ArticleID string
	AuthorID  string
	CreatedAt time.Time
}

// CategoryCount is one row of a user's category affinity ranking.
type CategoryCount struct {
	CategoryID string
	Name       string
	Count      int
}
