package handler

import (
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/middleware"
	"device-hub-server/internal/websocket"
	"device-hub-server/pkg/response"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	auth     middleware.Authenticator
	log      logrus.FieldLogger
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, auth middleware.Authenticator, readBuffer, writeBuffer int, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		auth:    auth,
		log:     log,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades an authenticated request and streams the
// caller's device status changes. Browsers cannot set headers on the
// handshake, so the token may also come from the query string.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.TokenFromRequest(r)
	}
	if token == "" {
		response.Unauthorized(w, "No authentication token")
		return
	}

	userID, err := h.auth.Authenticate(token)
	if err != nil {
		response.Unauthorized(w, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(uuid.New().String(), userID, conn, h.manager)
	if !h.manager.Add(client) {
		h.log.WithField("user_id", userID).Debug("websocket hub stopped, dropping connection")
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
