package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleProgress returns the current state of one run.
func HandleProgress(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		state, ok := deps.Registry.Get(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// HandleProgressWS streams run state over a WebSocket.
//
// The current state is pushed immediately, then every change until the
// run reaches a terminal state (complete or errored), after which the
// socket closes. A slow client only ever misses intermediate snapshots.
func HandleProgressWS(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		updates, stop, ok := deps.Registry.Subscribe(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		defer stop()

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("progress websocket connected", "session_id", sessionID)

		for state := range updates {
			if err := ws.WriteJSON(state); err != nil {
				slog.Info("progress websocket client disconnected",
					"session_id", sessionID, "error", err)
				return
			}
			if state.Complete || state.Error != "" {
				break
			}
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
		_ = ws.WriteMessage(websocket.CloseMessage, closeMsg)
	}
}
