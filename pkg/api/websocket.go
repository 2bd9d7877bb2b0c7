package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sonet/timeline/pkg/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The viewer is identified by header, not origin; cross-origin
	// subscriptions are fine for an internal service.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSubscribe upgrades the connection and streams the viewer's
// timeline change events until either side closes.
func (s *Server) handleSubscribe(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer id required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("viewer_id", viewer).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.broker.Subscribe(viewer)
	defer s.broker.Unsubscribe(sub)

	log.Debug().Str("viewer_id", viewer).Msg("live subscription opened")

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("viewer_id", viewer).Msg("live subscription write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
