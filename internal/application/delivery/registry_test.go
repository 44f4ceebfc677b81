package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/newsroom/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(store Store) *Registry {
	return NewRegistry(Config{}, fakeVerifier{}, store, zerolog.Nop()).
		WithClock(func() time.Time { return t0 })
}

func TestAuthenticateUser_Failures(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"missing", "  ", "token missing"},
		{"invalid", "garbage", "token invalid"},
		{"expired", "expired", "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.AuthenticateUser(ctx, tt.token, &fakeDeliverer{})
			assert.False(t, res.Success)
			assert.Empty(t, res.UserID)
			assert.Equal(t, tt.want, res.Error)
		})
	}
	assert.Zero(t, r.GetConnectedUsersCount())
}

func TestAuthenticateUser_Registers(t *testing.T) {
	r := newTestRegistry(newFakeStore())

	res := r.AuthenticateUser(context.Background(), "tok-u1", &fakeDeliverer{})

	assert.Equal(t, AuthResult{Success: true, UserID: "u1"}, res)
	assert.True(t, r.IsUserConnected("u1"))
	assert.False(t, r.IsUserConnected("u2"))
	assert.Equal(t, 1, r.GetConnectedUsersCount())
}

func TestSendToUser_Connected(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	d := &fakeDeliverer{}
	r.AuthenticateUser(context.Background(), "tok-u1", d)

	live, err := r.SendToUser(context.Background(), "u1", note("n1", t0))

	require.NoError(t, err)
	assert.True(t, live)
	require.Len(t, store.Saves(), 1)
	assert.Equal(t, domain.StatusSent, store.Saves()[0].Status)
	assert.Equal(t, &t0, store.Saves()[0].SentAt)
	require.Len(t, d.Received(), 1)
	assert.Equal(t, OpNotification, d.Received()[0].Op)
	assert.Equal(t, "n1", d.Received()[0].Notification.ID)
	assert.Empty(t, r.PendingFor("u1"))
}

func TestSendToUser_Disconnected(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)

	live, err := r.SendToUser(context.Background(), "u1", note("n1", t0))

	require.NoError(t, err)
	assert.False(t, live)
	require.Len(t, store.Saves(), 1)
	assert.Equal(t, domain.StatusPending, store.Saves()[0].Status)
	assert.Equal(t, "u1", store.Saves()[0].UserID)
	require.Len(t, r.PendingFor("u1"), 1)
}

func TestSendToUser_PendingCapEvictsOldest(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	for i := 0; i < 51; i++ {
		_, err := r.SendToUser(ctx, "u1", note(fmt.Sprintf("n%d", i), t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	q := r.PendingFor("u1")
	require.Len(t, q, 50)
	assert.Equal(t, "n1", q[0].ID)
	assert.Equal(t, "n50", q[49].ID)
	assert.Len(t, store.Saves(), 51)
	assert.Equal(t, int64(1), r.GetStats().Evicted)
}

func TestSendToUser_DeliveryFailureFallsBackToQueue(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	r.AuthenticateUser(context.Background(), "tok-u1", &fakeDeliverer{fail: true})

	live, err := r.SendToUser(context.Background(), "u1", note("n1", t0))

	require.NoError(t, err)
	assert.False(t, live)
	assert.Len(t, store.Saves(), 1)
	assert.Equal(t, domain.StatusPending, store.Saves()[0].Status)
	assert.Len(t, r.PendingFor("u1"), 1)
	assert.Equal(t, int64(1), r.GetStats().DeliveryFailures)
}

func TestSendToUser_PersistFailureReported(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("db down")
	r := newTestRegistry(store)
	r.AuthenticateUser(context.Background(), "tok-u1", &fakeDeliverer{})

	live, err := r.SendToUser(context.Background(), "u1", note("n1", t0))

	assert.True(t, live)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.CodePersistence, appErr.Code)
}

func TestAuthenticateUser_DrainsQueueAndUnread(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	_, _ = r.SendToUser(ctx, "u1", note("q1", t0.Add(2*time.Second)))
	_, _ = r.SendToUser(ctx, "u1", note("q2", t0.Add(3*time.Second)))

	old := note("s1", t0)
	old.Status = domain.StatusSent
	store.unread["u1"] = []domain.SmartNotification{old, note("q1", t0.Add(2*time.Second))}

	d := &fakeDeliverer{}
	res := r.AuthenticateUser(ctx, "tok-u1", d)
	require.True(t, res.Success)

	got := d.Received()
	require.Len(t, got, 3)
	assert.Equal(t, "s1", got[0].Notification.ID)
	assert.Equal(t, "q1", got[1].Notification.ID)
	assert.Equal(t, "q2", got[2].Notification.ID)
	assert.Equal(t, domain.StatusSent, got[1].Notification.Status)

	assert.ElementsMatch(t, []string{"q1", "q2"}, store.sent)
	assert.Empty(t, r.PendingFor("u1"))
}

func TestAuthenticateUser_DrainSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	_, _ = r.SendToUser(ctx, "u1", note("q1", t0))
	store.listErr = errors.New("timeout")

	d := &fakeDeliverer{}
	require.True(t, r.AuthenticateUser(ctx, "tok-u1", d).Success)
	require.Len(t, d.Received(), 1)
	assert.Equal(t, "q1", d.Received()[0].Notification.ID)
}

func TestAuthenticateUser_FailedDrainRequeues(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	ctx := context.Background()
	_, _ = r.SendToUser(ctx, "u1", note("q1", t0))

	require.True(t, r.AuthenticateUser(ctx, "tok-u1", &fakeDeliverer{fail: true}).Success)
	assert.Len(t, r.PendingFor("u1"), 1)
}

func TestReauthenticate_ReplacesSubscriber(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	ctx := context.Background()
	first, second := &fakeDeliverer{}, &fakeDeliverer{}

	r.AuthenticateUser(ctx, "tok-u1", first)
	r.AuthenticateUser(ctx, "tok-u1", second)
	_, _ = r.SendToUser(ctx, "u1", note("n1", t0))

	assert.Empty(t, first.Received())
	assert.Len(t, second.Received(), 1)

	// stale connection closing must not drop the new one
	r.Detach("u1", first)
	assert.True(t, r.IsUserConnected("u1"))

	r.Detach("u1", second)
	assert.False(t, r.IsUserConnected("u1"))
}

func TestDisconnectUser(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	ctx := context.Background()
	r.AuthenticateUser(ctx, "tok-u1", &fakeDeliverer{})

	r.DisconnectUser("u1")
	r.DisconnectUser("u1")

	assert.False(t, r.IsUserConnected("u1"))
	live, _ := r.SendToUser(ctx, "u1", note("n1", t0))
	assert.False(t, live)
}

func TestBroadcastToAll(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	ctx := context.Background()
	d1, d2, d3 := &fakeDeliverer{}, &fakeDeliverer{}, &fakeDeliverer{fail: true}
	r.AuthenticateUser(ctx, "tok-u1", d1)
	r.AuthenticateUser(ctx, "tok-u2", d2)
	r.AuthenticateUser(ctx, "tok-u3", d3)

	n := r.BroadcastToAll(ctx, domain.BroadcastMessage{Title: "عاجل", Message: "m", Priority: domain.PriorityUrgent})

	assert.Equal(t, 2, n)
	assert.Empty(t, store.Saves())
	require.Len(t, d1.Received(), 1)
	assert.Equal(t, OpBroadcast, d1.Received()[0].Op)
	assert.Equal(t, "u1", d1.Received()[0].UserID)
	assert.Equal(t, "u2", d2.Received()[0].UserID)
	assert.Equal(t, t0, d2.Received()[0].Broadcast.CreatedAt)
}

func TestMarkNotificationAsRead_ScopedToOwner(t *testing.T) {
	store := newFakeStore()
	store.read["n1"] = "u1"
	r := newTestRegistry(store)
	ctx := context.Background()

	assert.False(t, r.MarkNotificationAsRead(ctx, "n1", "u2"))
	assert.True(t, r.MarkNotificationAsRead(ctx, "n1", "u1"))
	assert.False(t, r.MarkNotificationAsRead(ctx, "", "u1"))
}

func TestMarkRead_DropsFromPendingQueue(t *testing.T) {
	store := newFakeStore()
	store.read["n1"] = "u1"
	r := newTestRegistry(store)
	ctx := context.Background()
	_, _ = r.SendToUser(ctx, "u1", note("n1", t0))
	_, _ = r.SendToUser(ctx, "u1", note("n2", t0))

	require.True(t, r.MarkNotificationAsRead(ctx, "n1", "u1"))
	q := r.PendingFor("u1")
	require.Len(t, q, 1)
	assert.Equal(t, "n2", q[0].ID)

	require.True(t, r.MarkAllNotificationsAsRead(ctx, "u1"))
	assert.Empty(t, r.PendingFor("u1"))
	assert.False(t, r.MarkAllNotificationsAsRead(ctx, ""))
}

func TestGetStats(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	ctx := context.Background()
	r.AuthenticateUser(ctx, "tok-b", &fakeDeliverer{})
	r.AuthenticateUser(ctx, "tok-a", &fakeDeliverer{})
	_, _ = r.SendToUser(ctx, "a", note("n1", t0))
	_, _ = r.SendToUser(ctx, "z", note("n2", t0))
	_, _ = r.SendToUser(ctx, "z", note("n3", t0))

	st := r.GetStats()
	assert.Equal(t, 2, st.ConnectedUsers)
	assert.Equal(t, 1, st.PendingUsers)
	assert.Equal(t, 2, st.PendingNotifications)
	assert.Equal(t, int64(1), st.DeliveredLive)
	assert.Equal(t, int64(2), st.Queued)
	require.Len(t, st.Users, 2)
	assert.Equal(t, "a", st.Users[0].UserID)
	assert.Equal(t, "name-a", st.Users[0].DisplayName)
	assert.Equal(t, t0, st.Users[0].ConnectedAt)
}
