package handlers

import (
	"log"
	"net/http"

	"learnloop/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *services.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from allowedOrigin only. An empty origin
// allows any.
func NewWSHandler(hub *services.Hub, allowedOrigin string) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Connect upgrades an authenticated request and registers it for live events.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}

	h.hub.RegisterClient(conn, userID)
}
