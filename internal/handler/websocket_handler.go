package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"teamchat/internal/domain"
	"teamchat/internal/middleware"
	"teamchat/internal/observability"
	ws "teamchat/internal/websocket"
)

// WebSocketHandler upgrades authenticated requests to live connections
type WebSocketHandler struct {
	hub        *ws.Hub
	dispatcher ws.Dispatcher
	upgrader   websocket.Upgrader
	opts       ws.ClientOptions
}

// NewWebSocketHandler creates a new WebSocket handler. Handshakes are accepted
// from the same origins CORS allows, plus requests with no Origin header.
func NewWebSocketHandler(hub *ws.Hub, dispatcher ws.Dispatcher, allowedOrigins []string, opts ws.ClientOptions) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The connection outlives the request, so keep its values but not its cancellation.
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, userID, h.dispatcher, h.opts)
	connID := h.hub.Register(client)

	// Queued before the pumps start so it is always the first frame.
	_ = h.hub.SendTo(connID, domain.Event{
		Type: domain.EventConnected,
		Data: map[string]string{"connection_id": connID, "user_id": userID},
	})

	go client.WritePump()
	go client.ReadPump()
}
