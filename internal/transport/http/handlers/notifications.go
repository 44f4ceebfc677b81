package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/delivery"
	"github.com/baechuer/newsroom/internal/application/notify"
	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/transport/http/middleware"
	"github.com/baechuer/newsroom/internal/transport/http/response"
	"github.com/baechuer/newsroom/internal/transport/http/validate"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	roleAdmin = "admin"
)

type NotificationReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.SmartNotification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type NotificationRegistry interface {
	MarkNotificationAsRead(ctx context.Context, notificationID, userID string) bool
	MarkAllNotificationsAsRead(ctx context.Context, userID string) bool
	GetStats() delivery.Stats
	BroadcastToAll(ctx context.Context, msg domain.BroadcastMessage) int
}

// Generator runs the per-user triggers on demand.
type Generator interface {
	GenerateDailyDigestNotification(ctx context.Context, userID string) notify.Outcome
	GenerateSmartRecommendationNotifications(ctx context.Context, userID string) notify.Outcome
}

type NotificationHandler struct {
	reader NotificationReader
	reg    NotificationRegistry
	gen    Generator
	lg     zerolog.Logger
}

func NewNotificationHandler(reader NotificationReader, reg NotificationRegistry, gen Generator, lg zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		reader: reader,
		reg:    reg,
		gen:    gen,
		lg:     lg.With().Str("component", "notifications_api").Logger(),
	}
}

type listResponse struct {
	Items  []domain.SmartNotification `json:"items"`
	Unread int                        `json:"unread"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

type broadcastRequest struct {
	Title    string            `json:"title" validate:"required,max=200"`
	Message  string            `json:"message" validate:"required,max=2000"`
	Priority domain.Priority   `json:"priority"`
	Metadata map[string]string `json:"metadata"`
}

type outcomeResponse struct {
	Outcome    notify.OutcomeKind `json:"outcome"`
	Recipients int                `json:"recipients"`
	Created    int                `json:"created"`
	Delivered  int                `json:"delivered"`
	Failed     int                `json:"failed"`
}

// List returns the caller's history, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	limit, offset, err := parsePage(r)
	if err != nil {
		response.Err(w, r, err)
		return
	}

	items, err := h.reader.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	unread, err := h.reader.CountUnread(r.Context(), userID)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	if items == nil {
		items = []domain.SmartNotification{}
	}

	response.Data(w, http.StatusOK, listResponse{Items: items, Unread: unread, Limit: limit, Offset: offset})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Err(w, r, domain.ErrValidation("notification id is required"))
		return
	}
	if !h.reg.MarkNotificationAsRead(r.Context(), id, middleware.UserID(r)) {
		response.Err(w, r, domain.ErrNotFound("notification not found"))
		return
	}
	response.Data(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if !h.reg.MarkAllNotificationsAsRead(r.Context(), middleware.UserID(r)) {
		response.Err(w, r, domain.ErrUnavailable("could not mark notifications as read"))
		return
	}
	response.Data(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *NotificationHandler) Digest(w http.ResponseWriter, r *http.Request) {
	h.writeOutcome(w, r, h.gen.GenerateDailyDigestNotification(r.Context(), middleware.UserID(r)))
}

func (h *NotificationHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	h.writeOutcome(w, r, h.gen.GenerateSmartRecommendationNotifications(r.Context(), middleware.UserID(r)))
}

// Stats exposes registry counters. The connected user list is admin only.
func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st := h.reg.GetStats()
	if c, ok := middleware.ClaimsFromContext(r.Context()); !ok || c.Role != roleAdmin {
		st.Users = nil
	}
	response.Data(w, http.StatusOK, st)
}

// Broadcast pushes a message to every connected user. Nothing is stored, so
// offline users never see it.
func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if c, ok := middleware.ClaimsFromContext(r.Context()); !ok || c.Role != roleAdmin {
		response.Err(w, r, domain.ErrForbidden("admin only"))
		return
	}

	var req broadcastRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		response.Err(w, r, err)
		return
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !req.Priority.Valid() {
		response.Err(w, r, domain.ErrValidationMeta("invalid priority", map[string]string{"priority": string(req.Priority)}))
		return
	}

	n := h.reg.BroadcastToAll(r.Context(), domain.BroadcastMessage{
		Title:    req.Title,
		Message:  req.Message,
		Priority: req.Priority,
		Metadata: req.Metadata,
	})
	h.lg.Info().Str("user_id", middleware.UserID(r)).Int("delivered", n).Msg("broadcast sent")
	response.Data(w, http.StatusOK, map[string]int{"delivered": n})
}

func (h *NotificationHandler) writeOutcome(w http.ResponseWriter, r *http.Request, out notify.Outcome) {
	switch out.Kind {
	case notify.OutcomeLookupFailed:
		h.lg.Warn().Err(out.Err).Msg("on-demand trigger lookup failed")
		response.Err(w, r, domain.ErrUnavailable("notification sources unavailable"))
		return
	case notify.OutcomePersistFailed:
		h.lg.Error().Err(out.Err).Msg("on-demand trigger persist failed")
		response.Err(w, r, domain.ErrPersistence("could not store notifications", out.Err))
		return
	}
	response.Data(w, http.StatusOK, outcomeResponse{
		Outcome:    out.Kind,
		Recipients: out.Recipients,
		Created:    out.Created,
		Delivered:  out.Delivered,
		Failed:     out.Failed,
	})
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 1 || n > maxPageSize {
			return 0, 0, domain.ErrValidationMeta("invalid limit", map[string]string{"limit": "must be 1-" + strconv.Itoa(maxPageSize)})
		}
		limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 0 {
			return 0, 0, domain.ErrValidationMeta("invalid offset", map[string]string{"offset": "must be >= 0"})
		}
		offset = n
	}
	return limit, offset, nil
}
