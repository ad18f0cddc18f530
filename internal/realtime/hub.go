package realtime

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
)

// Hub upgrades incoming HTTP requests into live notification sessions and
// binds them to the shared Registry. One hub exists per process; it is
// constructed at start-up and injected wherever connections are accepted.
type Hub struct {
	registry   *Registry
	backend    ControlBackend
	upgrader   websocket.Upgrader
	log        *zap.Logger
	sendBuffer int
}

// HubOption customises hub behaviour.
type HubOption func(*Hub)

// WithSendBuffer overrides the per-session outbound buffer size.
func WithSendBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// NewHub constructs a Hub bound to the supplied registry and control backend.
func NewHub(registry *Registry, backend ControlBackend, opts ...HubOption) *Hub {
	h := &Hub{
		registry:   registry,
		backend:    backend,
		log:        logger.WithModule("realtime"),
		sendBuffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the connection registry backing this hub.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Serve upgrades the connection, registers the session for userID, pushes the
// handshake frames, and blocks on the session's read loop until it closes.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	s := newSession(h.registry, h.backend, conn, userID, h.sendBuffer, h.log)
	h.registry.Register(userID, s)

	s.Send(ConnectionEstablishedMessage())
	if count, err := h.backend.UnreadCount(context.Background(), userID); err == nil {
		s.Send(UnreadCountMessage(count))
	} else {
		h.log.Warn("initial unread count failed", zap.String("user_id", userID), zap.Error(err))
	}

	go s.writeLoop()
	s.readLoop()
}

// Reject upgrades the connection only to close it with a policy-violation
// code. Used when the identity token is missing or invalid at connect time.
func (h *Hub) Reject(w http.ResponseWriter, r *http.Request, reason string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	_ = conn.Close()
}

// Shutdown closes every live session, typically during graceful exit.
func (h *Hub) Shutdown() {
	h.registry.Shutdown()
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
