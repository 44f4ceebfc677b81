package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/domain"
	"github.com/baechuer/newsroom/internal/metrics"
	"github.com/baechuer/newsroom/internal/transport/http/middleware"
	"github.com/baechuer/newsroom/internal/transport/http/response"
	"github.com/baechuer/newsroom/internal/transport/http/validate"
)

const (
	KindInteractions   = "interactions"
	KindReadingSession = "reading-session"
	KindPageViews      = "page-views"
)

// TrackingSink stores one validated batch and returns the number of new rows.
type TrackingSink interface {
	InsertBatch(ctx context.Context, kind string, b domain.TrackingBatch, fallbackUserID string, receivedAt time.Time) (int, error)
}

// TrackingHandler accepts batches from the client transport. Storage is best
// effort: a valid batch is always acknowledged with 202.
type TrackingHandler struct {
	sink TrackingSink
	now  func() time.Time
	lg   zerolog.Logger
}

func NewTrackingHandler(sink TrackingSink, lg zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{
		sink: sink,
		now:  time.Now,
		lg:   lg.With().Str("component", "tracking_ingest").Logger(),
	}
}

type ingestResponse struct {
	Accepted int    `json:"accepted"`
	Stored   int    `json:"stored"`
	BatchID  string `json:"batch_id"`
}

func (h *TrackingHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, KindInteractions)
}

func (h *TrackingHandler) ReadingSession(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, KindReadingSession)
}

func (h *TrackingHandler) PageViews(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, KindPageViews)
}

func (h *TrackingHandler) ingest(w http.ResponseWriter, r *http.Request, kind string) {
	var batch domain.TrackingBatch
	if err := response.DecodeJSON(r, &batch); err != nil {
		response.Err(w, r, err)
		return
	}
	if err := validate.Struct(batch); err != nil {
		response.Err(w, r, err)
		return
	}
	for i, ev := range batch.Events {
		if !ev.Type.Valid() {
			response.Err(w, r, domain.ErrValidationMeta("unknown event type",
				map[string]string{"index": strconv.Itoa(i), "type": string(ev.Type)}))
			return
		}
	}

	metrics.RecordEventsIngested(kind, len(batch.Events))

	stored := 0
	if h.sink != nil {
		n, err := h.sink.InsertBatch(r.Context(), kind, batch, middleware.UserID(r), h.now().UTC())
		if err != nil {
			metrics.RecordIngestFailed(kind)
			h.lg.Error().Err(err).
				Str("kind", kind).
				Str("batch_id", batch.BatchID).
				Int("events", len(batch.Events)).
				Msg("store tracking batch failed")
		}
		stored = n
	}

	response.Data(w, http.StatusAccepted, ingestResponse{
		Accepted: len(batch.Events),
		Stored:   stored,
		BatchID:  batch.BatchID,
	})
}
