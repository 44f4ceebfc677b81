package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/notify"
)

const (
	RKArticlePublished         = "article.published"
	RKCommentCreated           = "comment.created"
	RKDigestRequested          = "user.digest.requested"
	RKRecommendationsRequested = "user.recommendations.requested"
)

var (
	// ErrRequeue asks the consumer to put the message back on the queue.
	ErrRequeue = errors.New("requeue")

	// ErrBadMessage marks a message that will never decode; it is dead-lettered.
	ErrBadMessage = errors.New("bad message")
)

// Triggers is the slice of notify.Engine the consumer drives.
type Triggers interface {
	NotifyNewArticleInCategory(ctx context.Context, articleID, categoryID string) notify.Outcome
	NotifyNewArticleFromFollowedAuthor(ctx context.Context, articleID, authorID string) notify.Outcome
	NotifyNewCommentOnUserInteraction(ctx context.Context, commentID, articleID string) notify.Outcome
	GenerateDailyDigestNotification(ctx context.Context, userID string) notify.Outcome
	GenerateSmartRecommendationNotifications(ctx context.Context, userID string) notify.Outcome
}

// Deduper remembers message ids. MarkSentNX reports true for the first caller.
type Deduper interface {
	MarkSentNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Submitter runs jobs asynchronously; false means the job was not accepted.
type Submitter interface {
	Submit(job func()) bool
}

// Envelope wraps every business event on the exchange.
type Envelope struct {
	MessageID  string          `json:"message_id" validate:"required,max=128"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

type ArticlePublished struct {
	ArticleID  string `json:"article_id" validate:"required"`
	CategoryID string `json:"category_id"`
	AuthorID   string `json:"author_id"`
}

type CommentCreated struct {
	CommentID string `json:"comment_id" validate:"required"`
	ArticleID string `json:"article_id" validate:"required"`
}

type UserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// Mux decodes envelopes and hands the matching trigger to the worker pool.
// Trigger outcomes are logged only; they never affect the ack.
type Mux struct {
	triggers   Triggers
	dedupe     Deduper
	pool       Submitter
	dedupeTTL  time.Duration
	jobTimeout time.Duration
	validate   *validator.Validate
	lg         zerolog.Logger
}

func NewMux(t Triggers, dedupe Deduper, pool Submitter, cfg Config, lg zerolog.Logger) *Mux {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Mux{
		triggers:   t,
		dedupe:     dedupe,
		pool:       pool,
		dedupeTTL:  cfg.DedupeTTL,
		jobTimeout: cfg.JobTimeout,
		validate:   validator.New(),
		lg:         lg.With().Str("component", "rabbitmq_mux").Logger(),
	}
}

// Handle returns nil (ack), an error wrapping ErrRequeue, or any other error
// (dead-letter).
func (m *Mux) Handle(ctx context.Context, routingKey string, body []byte) error {
	rk := strings.TrimSpace(routingKey)

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrBadMessage, err)
	}
	if err := m.validate.Struct(env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrBadMessage, err)
	}

	var job func(ctx context.Context)
	switch rk {
	case RKArticlePublished:
		var p ArticlePublished
		if err := m.decode(env.Payload, &p); err != nil {
			return err
		}
		job = func(ctx context.Context) {
			if p.CategoryID != "" {
				m.report(rk, "category", m.triggers.NotifyNewArticleInCategory(ctx, p.ArticleID, p.CategoryID))
			}
			if p.AuthorID != "" {
				m.report(rk, "author", m.triggers.NotifyNewArticleFromFollowedAuthor(ctx, p.ArticleID, p.AuthorID))
			}
		}

	case RKCommentCreated:
		var p CommentCreated
		if err := m.decode(env.Payload, &p); err != nil {
			return err
		}
		job = func(ctx context.Context) {
			m.report(rk, "comment", m.triggers.NotifyNewCommentOnUserInteraction(ctx, p.CommentID, p.ArticleID))
		}

	case RKDigestRequested:
		var p UserRequest
		if err := m.decode(env.Payload, &p); err != nil {
			return err
		}
		job = func(ctx context.Context) {
			m.report(rk, "digest", m.triggers.GenerateDailyDigestNotification(ctx, p.UserID))
		}

	case RKRecommendationsRequested:
		var p UserRequest
		if err := m.decode(env.Payload, &p); err != nil {
			return err
		}
		job = func(ctx context.Context) {
			m.report(rk, "recommendations", m.triggers.GenerateSmartRecommendationNotifications(ctx, p.UserID))
		}

	default:
		// unknown keys are acked so they cannot block the queue
		m.lg.Warn().Str("routing_key", truncateString(rk, 100)).Str("decision", "drop_ack").Msg("unknown routing key")
		return nil
	}

	accepted := m.pool.Submit(func() {
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.jobTimeout)
		defer cancel()

		if m.dedupe != nil {
			first, err := m.dedupe.MarkSentNX(jobCtx, "newsroom:msg:"+env.MessageID, m.dedupeTTL)
			if err != nil {
				m.lg.Warn().Err(err).Str("message_id", env.MessageID).Msg("dedupe check failed; processing anyway")
			} else if !first {
				m.lg.Info().Str("message_id", env.MessageID).Str("routing_key", rk).Msg("duplicate message skipped")
				return
			}
		}
		job(jobCtx)
	})
	if !accepted {
		return fmt.Errorf("%w: worker pool stopped", ErrRequeue)
	}
	return nil
}

func (m *Mux) decode(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrBadMessage, err)
	}
	if err := m.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrBadMessage, err)
	}
	return nil
}

func (m *Mux) report(rk, trigger string, out notify.Outcome) {
	ev := m.lg.Info()
	if out.Err != nil {
		ev = m.lg.Warn().Err(out.Err)
	}
	ev.Str("routing_key", rk).
		Str("trigger", trigger).
		Str("outcome", string(out.Kind)).
		Int("recipients", out.Recipients).
		Int("created", out.Created).
		Int("delivered", out.Delivered).
		Msg("trigger finished")
}

func truncateString(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
