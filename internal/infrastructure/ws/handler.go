package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/delivery"
)

// Registry is the part of delivery.Registry a connection needs.
type Registry interface {
	AuthenticateUser(ctx context.Context, token string, d delivery.Deliverer) delivery.AuthResult
	Detach(userID string, d delivery.Deliverer)
	MarkNotificationAsRead(ctx context.Context, notificationID, userID string) bool
	MarkAllNotificationsAsRead(ctx context.Context, userID string) bool
}

// Handler upgrades GET /ws?token=... and registers the connection with the
// registry. Browsers cannot set headers on websocket requests, so the token
// travels in the query; an Authorization header is accepted too.
type Handler struct {
	reg      Registry
	upgrader websocket.Upgrader
	lg       zerolog.Logger
}

func NewHandler(reg Registry, allowedOrigins []string, lg zerolog.Logger) *Handler {
	return &Handler{
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		lg: lg.With().Str("component", "ws").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.lg.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(h.reg, conn, h.lg)
	res := h.reg.AuthenticateUser(r.Context(), tokenFrom(r), c)
	if !res.Success {
		h.lg.Info().Str("reason", res.Error).Msg("websocket auth failed")
		c.rejectAndClose(res.Error)
		return
	}
	c.userID = res.UserID

	go c.WritePump()
	c.ReadPump()
}

// rejectAndClose is used before the pumps start, so it writes directly.
func (c *Client) rejectAndClose(reason string) {
	c.close()
	if b, err := json.Marshal(mustFrame(OpAuthFailed, ErrorData{Error: reason})); err == nil {
		_ = c.write(websocket.TextMessage, b)
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func tokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
