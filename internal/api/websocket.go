// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the editor UI is served from arbitrary local origins
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// RunProgressWS streams progress updates of one run over a websocket until
// the run finishes or the client goes away.
func (h *Handler) RunProgressWS(c *gin.Context) {
	tracker, ok := h.Progress.GetTracker(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such run"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	// drain client messages so close frames are processed
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case update, open := <-updates:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			if update.Status != "running" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, update.Status))
				return
			}

		case <-tracker.Done:
			return

		case <-clientGone:
			return

		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
