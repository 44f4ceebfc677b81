package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/newsroom/internal/domain"
)

func TestInterestRepo_Sources(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewInterestRepo(db)
	ctx := context.Background()
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM user_interests").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow(nil).AddRow("u2"))
	saved, err := repo.SavedInterestUsers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, saved)

	mock.ExpectQuery("interaction_type IN \\('like', 'save'\\)").WithArgs("c1", since).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u3"))
	recent, err := repo.RecentPositiveInteractionUsers(ctx, "c1", since)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, recent)

	mock.ExpectQuery("FROM user_preferences").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	prefs, err := repo.PreferenceDocumentUsers(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, prefs)

	mock.ExpectQuery("FROM author_follows").WithArgs("w1").
		WillReturnError(sql.ErrConnDone)
	_, err = repo.FollowersOf(ctx, "w1")
	assert.ErrorIs(t, err, sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterestRepo_UserCategoryCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Now().UTC()
	mock.ExpectQuery("GROUP BY c.id, c.name").WithArgs("u1", since, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "n"}).
			AddRow("c1", "رياضة", 9).
			AddRow("c2", "تقنية", 4))

	got, err := NewInterestRepo(db).UserCategoryCounts(context.Background(), "u1", since, 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryCount{
		{CategoryID: "c1", Name: "رياضة", Count: 9},
		{CategoryID: "c2", Name: "تقنية", Count: 4},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_GetArticle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepo(db)
	pub := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	t.Run("success_mapping", func(t *testing.T) {
		mock.ExpectQuery("FROM articles WHERE id =").WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "category_id", "author_id", "published_at"}).
				AddRow("a1", "عنوان", "c1", nil, pub))

		a, err := repo.GetArticle(context.Background(), "a1")
		require.NoError(t, err)
		assert.Equal(t, domain.Article{ID: "a1", Title: "عنوان", CategoryID: "c1", PublishedAt: pub}, a)
	})

	t.Run("not_found_mapping", func(t *testing.T) {
		mock.ExpectQuery("FROM articles WHERE id =").WithArgs("none").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetArticle(context.Background(), "none")
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domain.CodeNotFound, appErr.Code)
	})
}

func TestContentRepo_LookupsAndCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContentRepo(db)
	ctx := context.Background()
	since := time.Now().UTC()

	mock.ExpectQuery("FROM categories WHERE id").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("c1", "تقنية"))
	c, err := repo.GetCategory(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "تقنية", c.Name)

	mock.ExpectQuery("FROM comments WHERE id").WithArgs("cm1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "article_id", "author_id", "created_at"}).AddRow("cm1", "a1", "u2", since))
	cm, err := repo.GetComment(ctx, "cm1")
	require.NoError(t, err)
	assert.Equal(t, "u2", cm.AuthorID)

	mock.ExpectQuery("FROM users WHERE id").WithArgs("x").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetAuthor(ctx, "x")
	assert.ErrorContains(t, err, "author not found")

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM articles").WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	n, err := repo.CountPublishedSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	mock.ExpectQuery("category_id = ANY").WithArgs("{\"c1\",\"c2\"}", since, 6).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "category_id", "author_id", "published_at"}).
			AddRow("a9", "t", "c2", "w1", since))
	arts, err := repo.RecentArticlesInCategories(ctx, []string{"c1", "c2"}, since, 6)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "w1", arts[0].AuthorID)

	arts, err = repo.RecentArticlesInCategories(ctx, nil, since, 6)
	require.NoError(t, err)
	assert.Nil(t, arts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepo_InsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTrackingRepo(db)
	received := time.Now().UTC()
	batch := domain.TrackingBatch{
		SessionID: "s1",
		BatchID:   "b1",
		Events: []domain.TrackingEvent{
			{ID: "e1", Type: domain.EventClick, Timestamp: 1_700_000_000_000, Payload: map[string]any{"x": 1}},
			{ID: "e2", Type: domain.EventScroll, Timestamp: 1_700_000_000_500, SessionID: "s-own", UserID: "u7"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tracking_events").
		WithArgs("e1", "interactions", "click", "s1", "u1", "b1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), time.UnixMilli(1_700_000_000_000).UTC(), received).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tracking_events").
		WithArgs("e2", "interactions", "scroll", "s-own", "u7", "b1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), received).
		WillReturnResult(sqlmock.NewResult(0, 0)) // duplicate id
	mock.ExpectCommit()

	n, err := repo.InsertBatch(context.Background(), "interactions", batch, "u1", received)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingRepo_InsertBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	batch := domain.TrackingBatch{SessionID: "s1", BatchID: "b1", Events: []domain.TrackingEvent{
		{ID: "e1", Type: domain.EventPageView, Timestamp: 1},
	}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tracking_events").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err = NewTrackingRepo(db).InsertBatch(context.Background(), "page-views", batch, "", time.Now())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
