// Package ws is the WebSocket connection layer: it upgrades client
// connections, registers them with the session registry and dispatches the
// client command protocol.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/azazel75/clapshot/internal/app"
	"github.com/azazel75/clapshot/internal/domain"
	"github.com/azazel75/clapshot/internal/metrics"
	"github.com/azazel75/clapshot/internal/sessions"
)

// Handler upgrades and serves client WebSocket connections.
type Handler struct {
	registry *sessions.Registry
	svc      *app.Service
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

func NewHandler(registry *sessions.Registry, svc *app.Service, clock clockwork.Clock) *Handler {
	return &Handler{
		registry: registry,
		svc:      svc,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Authentication and origin policy belong to the reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle is the echo route handler for GET /api/ws.
func (h *Handler) Handle(c echo.Context) error {
	userID, username := userFromHeaders(c.Request().Header)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	metrics.WebSocketActiveConnections.Inc()
	defer metrics.WebSocketActiveConnections.Dec()

	h.serveConn(conn, userID, username)
	return nil
}

// serveConn owns one connection from registration to teardown. Every guard
// is released through defers, so deregistration happens exactly once on
// every exit path, panics included.
func (h *Handler) serveConn(conn *websocket.Conn, userID, username string) {
	log := slog.Default().With("user_id", userID, "remote", conn.RemoteAddr().String())
	log.Info("Client connected", "username", username)

	sender, recv := sessions.NewSender()
	defer sender.Close()

	writer := newConnWriter(conn, recv, h.clock)
	defer writer.stop()

	userGuard := h.registry.RegisterUserSession(userID, sender)
	defer userGuard.Release()

	sess := &connSession{
		h:        h,
		sender:   sender,
		userID:   userID,
		username: username,
		log:      log,
	}
	defer sess.releaseAll()

	sess.emit("welcome", map[string]string{"user_id": userID, "username": username})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Info("Client disconnected", "error", err)
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			sess.pushError("Malformed request.", err.Error(), "")
			continue
		}
		if env.Type == "logout" {
			log.Info("Client logout")
			writer.stopGraceful("logout")
			return
		}
		sess.dispatch(env)
	}
}

func userFromHeaders(h http.Header) (userID, username string) {
	// Trust the reverse proxy on user identity, like the upload endpoint.
	userID = h.Get("X-Remote-User-Id")
	username = h.Get("X-Remote-User-Name")
	if userID == "" {
		slog.Warn("No user id in X-Remote-User-Id header, using 'anonymous'")
		userID = "anonymous"
	}
	if username == "" {
		username = "Anonymous"
	}
	return userID, username
}
