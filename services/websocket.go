package services

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types exchanged with browsers
const (
	FrameActivityChange = "activity_change" // server -> client, content: models.ChangeEvent
	FrameActivities     = "activities"      // server -> client, content: []models.GroupActivity
	FrameToast          = "toast"           // server -> client, content: Toast
	FrameError          = "error"           // server -> client, content: {"error": "..."}
	FrameRefresh        = "refresh"         // client -> server, no content
)

// WebSocketMessage one websocket frame
type WebSocketMessage struct {
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EncodeFrame wraps content in a frame of the given type.
func EncodeFrame(typ string, content interface{}) ([]byte, error) {
	var raw json.RawMessage
	if content != nil {
		b, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(WebSocketMessage{Type: typ, Content: raw, Timestamp: time.Now()})
}

// Upgrader websocket upgrader; origins are checked by the CORS layer
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
