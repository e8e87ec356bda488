package session

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler accepts Twilio Media Stream websocket connections and runs
// the staged call session over each one.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to a registry.
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Twilio's media stream client sends no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler for the /ws media stream endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	h.logger.Info("media stream connected", slog.String("remote", r.RemoteAddr))

	pc := h.registry.claim()
	if pc == nil {
		h.logger.Error("media stream connected with no call staged")
		return
	}

	sess, err := New(pc.params)
	if err != nil {
		h.logger.Error("creating session failed", slog.String("error", err.Error()))
		return
	}
	pc.deliver(sess)

	transport := NewWSTransport(conn, sess.cfg.ReadTimeout)
	if err := sess.Run(r.Context(), transport); err != nil {
		h.logger.Error("session ended with error", slog.String("error", err.Error()))
	}
}
