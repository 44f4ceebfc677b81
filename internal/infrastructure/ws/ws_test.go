package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/newsroom/internal/application/delivery"
	"github.com/baechuer/newsroom/internal/domain"
)

type fakeRegistry struct {
	mu        sync.Mutex
	deliverer delivery.Deliverer
	detached  []string
	readIDs   []string
	allRead   []string
}

func (f *fakeRegistry) AuthenticateUser(_ context.Context, token string, d delivery.Deliverer) delivery.AuthResult {
	if !strings.HasPrefix(token, "tok-") {
		return delivery.AuthResult{Error: "token invalid"}
	}
	f.mu.Lock()
	f.deliverer = d
	f.mu.Unlock()
	return delivery.AuthResult{Success: true, UserID: strings.TrimPrefix(token, "tok-")}
}

func (f *fakeRegistry) Detach(userID string, d delivery.Deliverer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d == f.deliverer {
		f.detached = append(f.detached, userID)
	}
}

func (f *fakeRegistry) MarkNotificationAsRead(_ context.Context, id, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readIDs = append(f.readIDs, userID+"/"+id)
	return id != "missing"
}

func (f *fakeRegistry) MarkAllNotificationsAsRead(_ context.Context, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allRead = append(f.allRead, userID)
	return true
}

func (f *fakeRegistry) Deliverer() delivery.Deliverer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deliverer
}

func (f *fakeRegistry) Detached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detached...)
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func newServer(t *testing.T) (*httptest.Server, *fakeRegistry) {
	t.Helper()
	reg := &fakeRegistry{}
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(reg, nil, zerolog.Nop()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func TestHandler_RejectsBadToken(t *testing.T) {
	srv, reg := newServer(t)
	conn := dial(t, srv, "bogus")

	f := readFrame(t, conn)
	assert.Equal(t, OpAuthFailed, f["op"])
	assert.Equal(t, "token invalid", f["d"].(map[string]any)["error"])

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Nil(t, reg.Deliverer())
}

func TestHandler_PushesNotifications(t *testing.T) {
	srv, reg := newServer(t)
	conn := dial(t, srv, "tok-u1")

	require.Eventually(t, func() bool { return reg.Deliverer() != nil }, time.Second, 5*time.Millisecond)

	n := domain.SmartNotification{ID: "n1", UserID: "u1", Title: "t", Message: "m"}
	res, err := reg.Deliverer().Send(context.Background(), "u1", delivery.Envelope{
		Op: delivery.OpNotification, UserID: "u1", Notification: &n,
	})
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	f := readFrame(t, conn)
	assert.Equal(t, "notification", f["op"])
	assert.Equal(t, "n1", f["notification"].(map[string]any)["id"])
}

func TestHandler_HeartbeatAndMarkRead(t *testing.T) {
	srv, reg := newServer(t)
	conn := dial(t, srv, "tok-u1")

	require.NoError(t, conn.WriteJSON(Frame{Op: OpHeartbeat}))
	assert.Equal(t, OpHeartbeatAck, readFrame(t, conn)["op"])

	require.NoError(t, conn.WriteJSON(mustFrame(OpMarkRead, MarkReadData{NotificationID: "n9"})))
	f := readFrame(t, conn)
	assert.Equal(t, OpMarkReadAck, f["op"])
	d := f["d"].(map[string]any)
	assert.Equal(t, "n9", d["notification_id"])
	assert.Equal(t, true, d["ok"])

	require.NoError(t, conn.WriteJSON(mustFrame(OpMarkRead, MarkReadData{})))
	assert.Equal(t, OpError, readFrame(t, conn)["op"])

	require.NoError(t, conn.WriteJSON(Frame{Op: OpMarkAllRead}))
	assert.Equal(t, OpMarkAllReadAck, readFrame(t, conn)["op"])

	reg.mu.Lock()
	assert.Equal(t, []string{"u1/n9"}, reg.readIDs)
	assert.Equal(t, []string{"u1"}, reg.allRead)
	reg.mu.Unlock()
}

func TestHandler_DetachesOnClose(t *testing.T) {
	srv, reg := newServer(t)
	conn := dial(t, srv, "tok-u2")

	require.Eventually(t, func() bool { return reg.Deliverer() != nil }, time.Second, 5*time.Millisecond)
	d := reg.Deliverer()

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	require.Eventually(t, func() bool { return len(reg.Detached()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"u2"}, reg.Detached())

	_, err := d.Send(context.Background(), "u2", delivery.Envelope{Op: delivery.OpBroadcast})
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_SendFailsWhenBufferFull(t *testing.T) {
	c := newClient(&fakeRegistry{}, nil, zerolog.Nop())
	env := delivery.Envelope{Op: delivery.OpBroadcast, Broadcast: &domain.BroadcastMessage{Title: "x"}}

	for i := 0; i < sendBufferSize; i++ {
		_, err := c.Send(context.Background(), "u1", env)
		require.NoError(t, err)
	}
	res, err := c.Send(context.Background(), "u1", env)
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.False(t, res.Delivered)

	c.close()
	c.close()
	_, err = c.Send(context.Background(), "u1", env)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestTokenFromAndOrigins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, "", tokenFrom(r))

	check := originChecker([]string{"https://news.example/"})
	r.Header.Set("Origin", "https://news.example")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))
	assert.True(t, originChecker(nil)(r))
}
