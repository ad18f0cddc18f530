package realtime

import "encoding/json"

// Frame type discriminators shared by both directions of the live transport.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNotification          = "notification"
	TypeUnreadCount           = "unread_count"
	TypePong                  = "pong"
	TypeError                 = "error"

	TypePing           = "ping"
	TypeMarkRead       = "mark_read"
	TypeGetUnreadCount = "get_unread_count"
)

// Message is the JSON envelope pushed to clients. Only the fields relevant
// to the frame type are populated; the rest are omitted on the wire.
type Message struct {
	Type             string          `json:"type"`
	NotificationType string          `json:"notification_type,omitempty"`
	Title            string          `json:"title,omitempty"`
	Message          string          `json:"message,omitempty"`
	Data             map[string]any  `json:"data,omitempty"`
	NotificationID   string          `json:"notification_id,omitempty"`
	Count            *int64          `json:"count,omitempty"`
	Timestamp        json.RawMessage `json:"timestamp,omitempty"`
}

// controlFrame is the inbound client message shape.
type controlFrame struct {
	Type           string          `json:"type"`
	NotificationID string          `json:"notification_id"`
	Timestamp      json.RawMessage `json:"timestamp"`
}

// ConnectionEstablishedMessage is sent once immediately after a successful handshake.
func ConnectionEstablishedMessage() Message {
	return Message{Type: TypeConnectionEstablished}
}

// NotificationMessage wraps a persisted notification for live delivery.
func NotificationMessage(notificationType, title, body string, data map[string]any, notificationID string) Message {
	return Message{
		Type:             TypeNotification,
		NotificationType: notificationType,
		Title:            title,
		Message:          body,
		Data:             data,
		NotificationID:   notificationID,
	}
}

// UnreadCountMessage carries the authoritative unread count; clients treat
// the latest received value as current.
func UnreadCountMessage(count int64) Message {
	return Message{Type: TypeUnreadCount, Count: &count}
}

// PongMessage echoes the timestamp supplied by the client's ping.
func PongMessage(timestamp json.RawMessage) Message {
	return Message{Type: TypePong, Timestamp: timestamp}
}

// ErrorMessage reports a per-frame failure back to one connection.
func ErrorMessage(text string) Message {
	return Message{Type: TypeError, Message: text}
}
