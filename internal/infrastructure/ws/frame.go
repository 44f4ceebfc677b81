package ws

import "encoding/json"

// Client to server ops.
const (
	OpHeartbeat   = "heartbeat"
	OpMarkRead    = "mark_read"
	OpMarkAllRead = "mark_all_read"
)

// Server to client ops. Notifications and broadcasts use delivery.Envelope.
const (
	OpHeartbeatAck   = "heartbeat_ack"
	OpMarkReadAck    = "mark_read_ack"
	OpMarkAllReadAck = "mark_all_read_ack"
	OpAuthFailed     = "auth_failed"
	OpError          = "error"
)

type Frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

type MarkReadData struct {
	NotificationID string `json:"notification_id"`
}

type MarkReadAckData struct {
	NotificationID string `json:"notification_id,omitempty"`
	OK             bool   `json:"ok"`
}

type ErrorData struct {
	Error string `json:"error"`
}

func mustFrame(op string, v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		return Frame{Op: op}
	}
	return Frame{Op: op, Data: b}
}

func errorFrame(msg string) Frame { return mustFrame(OpError, ErrorData{Error: msg}) }
