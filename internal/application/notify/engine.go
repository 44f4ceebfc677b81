package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/metrics"
)

type Config struct {
	InteractionWindow   time.Duration // history considered for interest and affinity
	RecentArticleWindow time.Duration // how new a recommended article must be
	DigestWindow        time.Duration
	TopCategories       int
	MaxRecommendations  int
	DigestCategories    int
	DigestTTL           time.Duration // idempotency key lifetime
}

func DefaultConfig() Config {
	return Config{
		InteractionWindow:   30 * 24 * time.Hour,
		RecentArticleWindow: 7 * 24 * time.Hour,
		DigestWindow:        24 * time.Hour,
		TopCategories:       5,
		MaxRecommendations:  3,
		DigestCategories:    2,
		DigestTTL:           24 * time.Hour,
	}
}

type Deps struct {
	Interests  InterestGraph
	Audience   Audience
	History    History
	Content    Content
	Dispatcher Dispatcher
	Idem       IdempotencyStore // nil => digest idempotency disabled
}

// Engine decides who hears about a business event and what the notification
// says. Delivery and persistence belong to the Dispatcher.
type Engine struct {
	cfg   Config
	deps  Deps
	lg    zerolog.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

func NewEngine(cfg Config, deps Deps, lg zerolog.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.InteractionWindow <= 0 {
		cfg.InteractionWindow = def.InteractionWindow
	}
	if cfg.RecentArticleWindow <= 0 {
		cfg.RecentArticleWindow = def.RecentArticleWindow
	}
	if cfg.DigestWindow <= 0 {
		cfg.DigestWindow = def.DigestWindow
	}
	if cfg.TopCategories <= 0 {
		cfg.TopCategories = def.TopCategories
	}
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = def.MaxRecommendations
	}
	if cfg.DigestCategories <= 0 {
		cfg.DigestCategories = def.DigestCategories
	}
	if cfg.DigestTTL <= 0 {
		cfg.DigestTTL = def.DigestTTL
	}

	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		lg:    lg.With().Str("component", "notify_engine").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NotificationInput is the data CreateNotification turns into a record.
type NotificationInput struct {
	UserID    string
	Type      domain.NotificationType
	Title     string
	Message   string
	Priority  domain.Priority
	Category  string
	ArticleID string
	AuthorID  string
	CommentID string
	Metadata  map[string]string
}

// CreateNotification scores, persists and delivers one notification. Errors
// are logged here; callers must not retry.
func (e *Engine) CreateNotification(ctx context.Context, in NotificationInput) CreateResult {
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if strings.TrimSpace(in.UserID) == "" || !in.Type.Valid() || !in.Priority.Valid() {
		err := domain.ErrValidationMeta("invalid notification", map[string]string{
			"user_id":  in.UserID,
			"type":     string(in.Type),
			"priority": string(in.Priority),
		})
		e.lg.Warn().Err(err).Msg("create notification rejected")
		return CreateResult{Err: err}
	}

	n := domain.SmartNotification{
		ID:                   e.newID(),
		UserID:               in.UserID,
		Type:                 in.Type,
		Title:                in.Title,
		Message:              in.Message,
		Priority:             in.Priority,
		Category:             in.Category,
		ArticleID:            in.ArticleID,
		AuthorID:             in.AuthorID,
		CommentID:            in.CommentID,
		Status:               domain.StatusPending,
		PersonalizationScore: PersonalizationScore(in.Type, in.Priority),
		DeliveryChannels:     channelsFor(in.Priority),
		Metadata:             in.Metadata,
		CreatedAt:            e.now().UTC(),
	}

	delivered, err := e.deps.Dispatcher.SendToUser(ctx, n.UserID, n)
	if err != nil {
		e.lg.Error().Err(err).
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("create notification failed")
		return CreateResult{Notification: n, Delivered: delivered, Err: err}
	}

	metrics.RecordNotificationCreated(string(n.Type))
	return CreateResult{Notification: n, Delivered: delivered}
}

func (e *Engine) fanOut(ctx context.Context, users []string, build func(userID string) NotificationInput) Outcome {
	out := Outcome{Recipients: len(users)}
	for _, u := range users {
		if ctx.Err() != nil {
			out.Failed += out.Recipients - out.Created - out.Failed
			if out.Err == nil {
				out.Err = ctx.Err()
			}
			break
		}
		out.add(e.CreateNotification(ctx, build(u)))
	}
	out.settle()
	return out
}

func (e *Engine) finish(trigger string, out Outcome, ev *zerolog.Event) Outcome {
	metrics.RecordTriggerOutcome(trigger, string(out.Kind))
	ev.Str("trigger", trigger).
		Str("outcome", string(out.Kind)).
		Int("recipients", out.Recipients).
		Int("created", out.Created).
		Int("delivered", out.Delivered).
		Int("failed", out.Failed).
		Msg("trigger finished")
	return out
}

func (e *Engine) lookupFailed(trigger string, err error, what string) Outcome {
	e.lg.Error().Err(err).Str("trigger", trigger).Str("lookup", what).Msg("lookup failed")
	out := Outcome{Kind: OutcomeLookupFailed, Err: err}
	metrics.RecordTriggerOutcome(trigger, string(out.Kind))
	return out
}

func (e *Engine) skip(trigger string, kind OutcomeKind, ev *zerolog.Event) Outcome {
	metrics.RecordTriggerOutcome(trigger, string(kind))
	ev.Str("trigger", trigger).Str("outcome", string(kind)).Msg("nothing to notify")
	return Outcome{Kind: kind}
}

// NotifyNewArticleInCategory notifies everyone interested in the article's
// category.
func (e *Engine) NotifyNewArticleInCategory(ctx context.Context, articleID, categoryID string) Outcome {
	const trigger = "new_article"

	article, err := e.deps.Content.GetArticle(ctx, articleID)
	if err != nil {
		return e.lookupFailed(trigger, err, "article")
	}
	category, err := e.deps.Content.GetCategory(ctx, categoryID)
	if err != nil {
		return e.lookupFailed(trigger, err, "category")
	}

	users, err := e.usersInterestedInCategory(ctx, categoryID)
	if err != nil {
		return e.lookupFailed(trigger, err, "interests")
	}
	if len(users) == 0 {
		return e.skip(trigger, OutcomeNoRecipients, e.lg.Debug().Str("category_id", categoryID))
	}

	emoji := CategoryEmoji(category.Name, article.ID)
	title := truncateTitle(article.Title)
	out := e.fanOut(ctx, users, func(u string) NotificationInput {
		return NotificationInput{
			UserID:    u,
			Type:      domain.NotificationNewArticle,
			Title:     fmt.Sprintf("%s مقال جديد في %s", emoji, category.Name),
			Message:   fmt.Sprintf("نُشر مقال جديد في قسم %s: %s", category.Name, title),
			Priority:  domain.PriorityMedium,
			Category:  category.Name,
			ArticleID: article.ID,
			AuthorID:  article.AuthorID,
			Metadata:  map[string]string{"category_id": category.ID},
		}
	})
	return e.finish(trigger, out, e.lg.Info().Str("article_id", articleID).Str("category_id", categoryID))
}

// usersInterestedInCategory unions the three interest sources. A failing
// source is logged and skipped; only all three failing is an error.
func (e *Engine) usersInterestedInCategory(ctx context.Context, categoryID string) ([]string, error) {
	since := e.now().Add(-e.cfg.InteractionWindow)
	sources := []struct {
		name string
		load func() ([]string, error)
	}{
		{"saved_interests", func() ([]string, error) { return e.deps.Interests.SavedInterestUsers(ctx, categoryID) }},
		{"recent_interactions", func() ([]string, error) {
			return e.deps.Interests.RecentPositiveInteractionUsers(ctx, categoryID, since)
		}},
		{"preference_documents", func() ([]string, error) { return e.deps.Interests.PreferenceDocumentUsers(ctx, categoryID) }},
	}

	var lists [][]string
	var lastErr error
	for _, s := range sources {
		users, err := s.load()
		if err != nil {
			lastErr = err
			e.lg.Warn().Err(err).Str("source", s.name).Str("category_id", categoryID).Msg("interest source failed; skipping")
			continue
		}
		lists = append(lists, users)
	}
	if len(lists) == 0 {
		return nil, lastErr
	}
	return union(nil, lists...), nil
}

// NotifyNewCommentOnUserInteraction notifies users who engaged with the
// article, except the comment's author.
func (e *Engine) NotifyNewCommentOnUserInteraction(ctx context.Context, commentID, articleID string) Outcome {
	const trigger = "new_comment"

	comment, err := e.deps.Content.GetComment(ctx, commentID)
	if err != nil {
		return e.lookupFailed(trigger, err, "comment")
	}
	article, err := e.deps.Content.GetArticle(ctx, articleID)
	if err != nil {
		return e.lookupFailed(trigger, err, "article")
	}
	engaged, err := e.deps.Audience.ArticleEngagedUsers(ctx, articleID)
	if err != nil {
		return e.lookupFailed(trigger, err, "engaged_users")
	}

	users := union(map[string]struct{}{comment.AuthorID: {}}, engaged)
	if len(users) == 0 {
		return e.skip(trigger, OutcomeNoRecipients, e.lg.Debug().Str("article_id", articleID))
	}

	commenter := "أحد القراء"
	if a, err := e.deps.Content.GetAuthor(ctx, comment.AuthorID); err == nil && a.Name != "" {
		commenter = a.Name
	}
	title := truncateTitle(article.Title)
	out := e.fanOut(ctx, users, func(u string) NotificationInput {
		return NotificationInput{
			UserID:    u,
			Type:      domain.NotificationNewComment,
			Title:     "💬 تعليق جديد على مقال تفاعلت معه",
			Message:   fmt.Sprintf("علّق %s على: %s", commenter, title),
			Priority:  domain.PriorityLow,
			ArticleID: article.ID,
			AuthorID:  comment.AuthorID,
			CommentID: comment.ID,
		}
	})
	return e.finish(trigger, out, e.lg.Info().Str("comment_id", commentID).Str("article_id", articleID))
}

// NotifyNewArticleFromFollowedAuthor notifies the author's followers.
func (e *Engine) NotifyNewArticleFromFollowedAuthor(ctx context.Context, articleID, authorID string) Outcome {
	const trigger = "author_follow"

	article, err := e.deps.Content.GetArticle(ctx, articleID)
	if err != nil {
		return e.lookupFailed(trigger, err, "article")
	}
	author, err := e.deps.Content.GetAuthor(ctx, authorID)
	if err != nil {
		return e.lookupFailed(trigger, err, "author")
	}
	followers, err := e.deps.Audience.FollowersOf(ctx, authorID)
	if err != nil {
		return e.lookupFailed(trigger, err, "followers")
	}

	users := union(map[string]struct{}{authorID: {}}, followers)
	if len(users) == 0 {
		return e.skip(trigger, OutcomeNoRecipients, e.lg.Debug().Str("author_id", authorID))
	}

	title := truncateTitle(article.Title)
	out := e.fanOut(ctx, users, func(u string) NotificationInput {
		return NotificationInput{
			UserID:    u,
			Type:      domain.NotificationAuthorFollow,
			Title:     fmt.Sprintf("✍️ مقال جديد من %s", author.Name),
			Message:   fmt.Sprintf("نشر %s مقالاً جديداً: %s", author.Name, title),
			Priority:  domain.PriorityHigh,
			ArticleID: article.ID,
			AuthorID:  author.ID,
		}
	})
	return e.finish(trigger, out, e.lg.Info().Str("article_id", articleID).Str("author_id", authorID))
}

// GenerateSmartRecommendationNotifications recommends recent, unread articles
// from the user's most frequent categories.
func (e *Engine) GenerateSmartRecommendationNotifications(ctx context.Context, userID string) Outcome {
	const trigger = "recommendation"
	now := e.now()

	counts, err := e.deps.History.UserCategoryCounts(ctx, userID, now.Add(-e.cfg.InteractionWindow), e.cfg.TopCategories)
	if err != nil {
		return e.lookupFailed(trigger, err, "category_counts")
	}
	if len(counts) == 0 {
		return e.skip(trigger, OutcomeNothingNew, e.lg.Debug().Str("user_id", userID))
	}
	if len(counts) > e.cfg.TopCategories {
		counts = counts[:e.cfg.TopCategories]
	}

	seen, err := e.deps.History.UserInteractedArticleIDs(ctx, userID)
	if err != nil {
		return e.lookupFailed(trigger, err, "interacted_articles")
	}
	skip := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		skip[id] = struct{}{}
	}

	ids := make([]string, 0, len(counts))
	names := make(map[string]string, len(counts))
	for _, c := range counts {
		ids = append(ids, c.CategoryID)
		names[c.CategoryID] = c.Name
	}

	candidates, err := e.deps.Content.RecentArticlesInCategories(ctx, ids, now.Add(-e.cfg.RecentArticleWindow), e.cfg.MaxRecommendations+len(skip))
	if err != nil {
		return e.lookupFailed(trigger, err, "recent_articles")
	}

	var picks []domain.Article
	for _, a := range candidates {
		if _, done := skip[a.ID]; done {
			continue
		}
		picks = append(picks, a)
		if len(picks) == e.cfg.MaxRecommendations {
			break
		}
	}
	if len(picks) == 0 {
		return e.skip(trigger, OutcomeNothingNew, e.lg.Debug().Str("user_id", userID))
	}

	out := Outcome{Recipients: 1}
	for _, a := range picks {
		name := names[a.CategoryID]
		out.add(e.CreateNotification(ctx, NotificationInput{
			UserID:    userID,
			Type:      domain.NotificationRecommendation,
			Title:     fmt.Sprintf("%s قد يعجبك هذا المقال", CategoryEmoji(name, a.ID)),
			Message:   truncateTitle(a.Title),
			Priority:  domain.PriorityLow,
			Category:  name,
			ArticleID: a.ID,
			AuthorID:  a.AuthorID,
			Metadata: map[string]string{
				"reason":      "category_affinity",
				"rationale":   fmt.Sprintf("لأنك تقرأ كثيراً في قسم %s", name),
				"category_id": a.CategoryID,
			},
		}))
	}
	out.settle()
	return e.finish(trigger, out, e.lg.Info().Str("user_id", userID))
}

// GenerateDailyDigestNotification sends at most one digest per user per day,
// and none when nothing was published.
func (e *Engine) GenerateDailyDigestNotification(ctx context.Context, userID string) Outcome {
	const trigger = "daily_digest"
	now := e.now()
	key := fmt.Sprintf("notify:digest:%s:%s", userID, now.UTC().Format("2006-01-02"))

	if e.deps.Idem != nil {
		seen, err := e.deps.Idem.Seen(ctx, key)
		if err != nil {
			e.lg.Warn().Err(err).Str("key", key).Msg("idempotency check failed; continuing")
		} else if seen {
			return e.skip(trigger, OutcomeNothingNew, e.lg.Info().Str("user_id", userID).Bool("idempotent_skip", true))
		}
	}

	count, err := e.deps.Content.CountPublishedSince(ctx, now.Add(-e.cfg.DigestWindow))
	if err != nil {
		return e.lookupFailed(trigger, err, "published_count")
	}
	if count == 0 {
		return e.skip(trigger, OutcomeNothingNew, e.lg.Debug().Str("user_id", userID))
	}

	cats, err := e.deps.History.UserTopCategoryNames(ctx, userID, e.cfg.DigestCategories)
	if err != nil {
		e.lg.Warn().Err(err).Str("user_id", userID).Msg("top categories unavailable; digest without them")
		cats = nil
	}
	if len(cats) > e.cfg.DigestCategories {
		cats = cats[:e.cfg.DigestCategories]
	}

	greeting := "مساء الخير"
	if now.Hour() < 12 {
		greeting = "صباح الخير"
	}
	msg := fmt.Sprintf("%s! نُشر %d مقالاً جديداً منذ الأمس", greeting, count)
	category := ""
	if len(cats) > 0 {
		msg += "، أبرزها في " + strings.Join(cats, " و")
		category = cats[0]
	}

	out := Outcome{Recipients: 1}
	out.add(e.CreateNotification(ctx, NotificationInput{
		UserID:   userID,
		Type:     domain.NotificationDailyDigest,
		Title:    "📰 ملخصك اليومي",
		Message:  msg,
		Priority: domain.PriorityMedium,
		Category: category,
		Metadata: map[string]string{"article_count": strconv.Itoa(count)},
	}))
	out.settle()

	if out.OK() && e.deps.Idem != nil {
		if err := e.deps.Idem.MarkSent(ctx, key, e.cfg.DigestTTL); err != nil {
			e.lg.Warn().Err(err).Str("key", key).Msg("idempotency mark failed (digest already sent)")
		}
	}
	return e.finish(trigger, out, e.lg.Info().Str("user_id", userID))
}

// union merges lists in first-seen order, dropping blanks and excluded ids.
func union(exclude map[string]struct{}, lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, id := range l {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := exclude[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
