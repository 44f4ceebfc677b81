package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

var errNotFound = errors.New("not found")

// ---- Fake data: one struct serves every read port ----

type fakeData struct {
	articles   map[string]domain.Article
	categories map[string]domain.Category
	comments   map[string]domain.Comment
	authors    map[string]domain.Author

	saved     map[string][]string // category -> users
	recent    map[string][]string
	prefs     map[string][]string
	followers map[string][]string // author -> users
	engaged   map[string][]string // article -> users

	counts     map[string][]domain.CategoryCount
	interacted map[string][]string
	topNames   map[string][]string
	published  int
	recentArts []domain.Article

	failSource map[string]error // by method name
	lastSince  time.Time
}

func newFakeData() *fakeData {
	return &fakeData{
		articles:   map[string]domain.Article{},
		categories: map[string]domain.Category{},
		comments:   map[string]domain.Comment{},
		authors:    map[string]domain.Author{},
		saved:      map[string][]string{},
		recent:     map[string][]string{},
		prefs:      map[string][]string{},
		followers:  map[string][]string{},
		engaged:    map[string][]string{},
		counts:     map[string][]domain.CategoryCount{},
		interacted: map[string][]string{},
		topNames:   map[string][]string{},
		failSource: map[string]error{},
	}
}

func (f *fakeData) SavedInterestUsers(ctx context.Context, categoryID string) ([]string, error) {
	if err := f.failSource["saved"]; err != nil {
		return nil, err
	}
	return f.saved[categoryID], nil
}

func (f *fakeData) RecentPositiveInteractionUsers(ctx context.Context, categoryID string, since time.Time) ([]string, error) {
	if err := f.failSource["recent"]; err != nil {
		return nil, err
	}
	f.lastSince = since
	return f.recent[categoryID], nil
}

func (f *fakeData) PreferenceDocumentUsers(ctx context.Context, categoryID string) ([]string, error) {
	if err := f.failSource["prefs"]; err != nil {
		return nil, err
	}
	return f.prefs[categoryID], nil
}

func (f *fakeData) FollowersOf(ctx context.Context, authorID string) ([]string, error) {
	if err := f.failSource["followers"]; err != nil {
		return nil, err
	}
	return f.followers[authorID], nil
}

func (f *fakeData) ArticleEngagedUsers(ctx context.Context, articleID string) ([]string, error) {
	return f.engaged[articleID], nil
}

func (f *fakeData) UserCategoryCounts(ctx context.Context, userID string, since time.Time, limit int) ([]domain.CategoryCount, error) {
	f.lastSince = since
	return f.counts[userID], nil
}

func (f *fakeData) UserInteractedArticleIDs(ctx context.Context, userID string) ([]string, error) {
	return f.interacted[userID], nil
}

func (f *fakeData) UserTopCategoryNames(ctx context.Context, userID string, limit int) ([]string, error) {
	if err := f.failSource["top"]; err != nil {
		return nil, err
	}
	return f.topNames[userID], nil
}

func (f *fakeData) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return domain.Article{}, errNotFound
	}
	return a, nil
}

func (f *fakeData) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return domain.Category{}, errNotFound
	}
	return c, nil
}

func (f *fakeData) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return domain.Comment{}, errNotFound
	}
	return c, nil
}

func (f *fakeData) GetAuthor(ctx context.Context, id string) (domain.Author, error) {
	a, ok := f.authors[id]
	if !ok {
		return domain.Author{}, errNotFound
	}
	return a, nil
}

func (f *fakeData) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	f.lastSince = since
	return f.published, nil
}

func (f *fakeData) RecentArticlesInCategories(ctx context.Context, categoryIDs []string, since time.Time, limit int) ([]domain.Article, error) {
	want := map[string]bool{}
	for _, id := range categoryIDs {
		want[id] = true
	}
	var out []domain.Article
	for _, a := range f.recentArts {
		if want[a.CategoryID] && !a.PublishedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ---- Fake dispatcher ----

type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []domain.SmartNotification
	online  map[string]bool
	failFor map[string]bool
}

func (d *fakeDispatcher) SendToUser(ctx context.Context, userID string, n domain.SmartNotification) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor[userID] {
		return false, domain.ErrPersistence("save notification", errors.New("db down"))
	}
	d.sent = append(d.sent, n)
	return d.online[userID], nil
}

func (d *fakeDispatcher) Sent() []domain.SmartNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.SmartNotification(nil), d.sent...)
}

// ---- Fake idempotency store ----

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]time.Duration
}

func (s *fakeIdem) Seen(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *fakeIdem) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]time.Duration{}
	}
	s.keys[key] = ttl
	return nil
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("n-%d", n)
	}
}
