package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandler_ExposesRecordedSeries(t *testing.T) {
	RecordNotificationCreated("new_article")
	RecordDelivery(true)
	RecordDelivery(false)
	RecordEventsIngested("interactions", 3)
	RecordFlush("page_view", "persisted", 2)
	SetConnectedUsers(7)
	ObserveWorkerPool(2, 5)

	out := scrape(t)
	assert.Contains(t, out, `newsroom_notifications_created_total{type="new_article"}`)
	assert.Contains(t, out, `newsroom_notifications_delivered_total{path="live"}`)
	assert.Contains(t, out, `newsroom_notifications_delivered_total{path="queued"}`)
	assert.Contains(t, out, `newsroom_tracking_events_ingested_total{kind="interactions"}`)
	assert.Contains(t, out, `newsroom_transport_flush_total{event_type="page_view",result="persisted"} 2`)
	assert.Contains(t, out, "newsroom_connected_users 7")
	assert.Contains(t, out, "newsroom_worker_pool_jobs_queued 5")
}
