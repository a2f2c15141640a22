package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is what viewers send over the socket to manage their
// subscription. An empty or missing id list means "everything".
type clientMessage struct {
	Type string `json:"type"`
	Data struct {
		SessionIDs []string `json:"session_ids"`
		ProjectIDs []string `json:"project_ids"`
	} `json:"data"`
}

// handleWebSocket upgrades to WebSocket and streams hub events to the
// client. The connection starts subscribed to everything; subscribe
// messages replace the filter sets, unsubscribe messages remove the named
// ids from them.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	events := s.hub.Subscribe(id, nil, nil)
	defer s.hub.Unsubscribe(id)

	// Read pump: subscription updates and disconnect detection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "subscribe":
				s.hub.Subscribe(id, msg.Data.SessionIDs, msg.Data.ProjectIDs)
			case "unsubscribe":
				s.hub.Unwatch(id, msg.Data.SessionIDs, msg.Data.ProjectIDs)
			}
		}
	}()

	// Write pump. A closed events channel means the hub dropped this
	// viewer for falling behind; the last event it saw was a resync.
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("websocket write failed: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
