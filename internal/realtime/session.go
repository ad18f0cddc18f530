package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultSendBuffer = 64
)

// ControlBackend executes the durable-state operations reachable from a
// session's inbound control frames.
type ControlBackend interface {
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// Session owns one live connection for its whole lifetime. It is bound to a
// single user at handshake and deregisters itself exactly once on any close
// path.
type Session struct {
	registry *Registry
	backend  ControlBackend
	socket   *websocket.Conn
	userID   string
	send     chan Message
	done     chan struct{}
	once     sync.Once
	log      *zap.Logger
}

func newSession(registry *Registry, backend ControlBackend, socket *websocket.Conn, userID string, buffer int, log *zap.Logger) *Session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		registry: registry,
		backend:  backend,
		socket:   socket,
		userID:   userID,
		send:     make(chan Message, buffer),
		done:     make(chan struct{}),
		log:      log,
	}
}

// UserID returns the identity bound to this session.
func (s *Session) UserID() string {
	return s.userID
}

// Send queues a message without blocking. A saturated buffer marks the
// session dead and closes it; the siblings of the user keep receiving.
func (s *Session) Send(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	default:
		s.log.Warn("send buffer full, closing slow session", zap.String("user_id", s.userID))
		s.Close()
		return false
	}
}

// Close deregisters the session and tears down the transport. Idempotent and
// safe to invoke concurrently from the read loop, the write loop, and
// external forced-disconnect paths.
func (s *Session) Close() {
	s.once.Do(func() {
		s.registry.Deregister(s)
		close(s.done)
		if s.socket != nil {
			_ = s.socket.Close()
		}
	})
}

func (s *Session) readLoop() {
	defer s.Close()

	s.socket.SetReadLimit(maxMessageSize)
	_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
	s.socket.SetPongHandler(func(string) error {
		_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("unexpected close", zap.String("user_id", s.userID), zap.Error(err))
			}
			return
		}

		if len(payload) == 0 {
			continue
		}
		s.handleControl(payload)
	}
}

// handleControl dispatches one inbound frame. Responses for a single session
// are produced in request order because this runs on the lone read loop.
func (s *Session) handleControl(payload []byte) {
	var frame controlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.Send(ErrorMessage("invalid message format"))
		return
	}

	ctx := context.Background()

	switch strings.ToLower(strings.TrimSpace(frame.Type)) {
	case TypePing:
		s.Send(PongMessage(frame.Timestamp))

	case TypeMarkRead:
		if strings.TrimSpace(frame.NotificationID) == "" {
			s.Send(ErrorMessage("notification_id is required"))
			return
		}
		if err := s.backend.MarkNotificationRead(ctx, s.userID, frame.NotificationID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.Send(ErrorMessage("notification not found"))
			} else {
				s.log.Warn("mark read failed", zap.String("user_id", s.userID), zap.Error(err))
				s.Send(ErrorMessage("unable to mark notification read"))
			}
			return
		}
		s.pushUnreadCount(ctx)

	case TypeGetUnreadCount:
		s.pushUnreadCount(ctx)

	default:
		s.Send(ErrorMessage("unsupported message type"))
	}
}

func (s *Session) pushUnreadCount(ctx context.Context) {
	count, err := s.backend.UnreadCount(ctx, s.userID)
	if err != nil {
		s.log.Warn("unread count lookup failed", zap.String("user_id", s.userID), zap.Error(err))
		s.Send(ErrorMessage("unable to load unread count"))
		return
	}
	s.Send(UnreadCountMessage(count))
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.socket.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
