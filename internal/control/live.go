package control

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DefaultLiveInterval is the push period of GET /ws/stats
const DefaultLiveInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveStats upgrades the request and pushes a stats snapshot every interval
// until the client goes away.
func liveStats(ctrl Controller, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("control: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		// Reader goroutine: only needed to notice the close frame
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		slog.Debug("control: live stats client connected", "remote", c.Request.RemoteAddr)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		send := func() bool {
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteJSON(ctrl.Stats()); err != nil {
				slog.Debug("control: live stats write failed", "error", err)
				return false
			}
			return true
		}

		if !send() {
			return
		}
		for {
			select {
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				if !send() {
					return
				}
			}
		}
	}
}
