package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	maxStreamReadSize = 512
)

// StreamConfig tunes the session stream keepalive.
type StreamConfig struct {
	WriteWait time.Duration
	PongWait  time.Duration
	// AllowedOrigins lists extra Origin hosts accepted for upgrades; same-host is always allowed.
	AllowedOrigins []string
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	return c
}

// StreamHandler pushes a session snapshot over a websocket on every state change.
type StreamHandler struct {
	Svc    SessionService
	Config StreamConfig
	Logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewStreamHandler builds a StreamHandler with an origin check derived from cfg.
func NewStreamHandler(svc SessionService, cfg StreamConfig, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &StreamHandler{Svc: svc, Config: cfg, Logger: logger.With("component", "session_stream")}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || slices.Contains(h.Config.AllowedOrigins, u.Host)
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.Logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	closed := make(chan struct{})
	go h.readPump(conn, closed)

	states := h.Svc.Watch(ctx)
	pingPeriod := h.Config.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case st, ok := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(h.Config.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(newSessionView(st)); err != nil {
				h.Logger.DebugContext(ctx, "websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.Config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames so pongs extend the deadline; it closes done when the peer leaves.
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxStreamReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.Config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.Config.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Debug("websocket closed unexpectedly", "error", err)
			}
			return
		}
	}
}
