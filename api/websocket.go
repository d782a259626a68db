package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"practicehub/config"
	"practicehub/middleware"
	"practicehub/services"
)

// WebSocketController realtime connections of browsers
type WebSocketController struct {
	WSManager *services.WebSocketManager
	Boards    *services.BoardManager
	Log       *zap.Logger
}

// NewWebSocketController creates the websocket controller
func NewWebSocketController(wsManager *services.WebSocketManager, boards *services.BoardManager, log *zap.Logger) *WebSocketController {
	return &WebSocketController{
		WSManager: wsManager,
		Boards:    boards,
		Log:       log,
	}
}

// HandleWebSocket upgrades the connection, sends the current activity list
// and then streams change events and toasts
func (c *WebSocketController) HandleWebSocket(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	// open the board first so its subscriptions exist before events are expected
	board, err := c.Boards.Get(ctx.Request.Context(), actor.OrganizationID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	conn, err := services.Upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.Log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := services.NewClient(
		actor.UserID,
		ctx.GetString(middleware.ContextUsername),
		actor.OrganizationID,
		conn,
		config.AppConfig.ChannelBuffSize,
		float64(config.AppConfig.WSMessagesPerSecond),
		config.AppConfig.WSMessageBurst,
	)
	if !c.WSManager.RegisterClient(client) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","content":{"error":"connection limit reached"}}`))
		conn.Close()
		return
	}

	if frame, err := services.EncodeFrame(services.FrameActivities, board.Snapshot()); err == nil {
		c.WSManager.SendToUser(client.ID, frame)
	}

	go client.WritePump()
	go client.ReadPump(c.WSManager, c.Boards.HandleInbound)
}
