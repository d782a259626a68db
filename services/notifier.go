package services

import "go.uber.org/zap"

// NotificationLevel severity of a user notification
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
)

// Notifier fire-and-forget user notifications (toasts)
type Notifier interface {
	Notify(userID string, level NotificationLevel, message string)
}

// Toast payload of a toast frame
type Toast struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
}

// WebSocketNotifier delivers toasts to the user's websocket connection
type WebSocketNotifier struct {
	manager *WebSocketManager
	log     *zap.Logger
}

// NewWebSocketNotifier creates a websocket notifier
func NewWebSocketNotifier(manager *WebSocketManager, log *zap.Logger) *WebSocketNotifier {
	return &WebSocketNotifier{manager: manager, log: log}
}

// Notify sends a toast frame; users without a connection are skipped.
func (n *WebSocketNotifier) Notify(userID string, level NotificationLevel, message string) {
	frame, err := EncodeFrame(FrameToast, Toast{Level: level, Message: message})
	if err != nil {
		n.log.Warn("encode toast frame", zap.Error(err))
		return
	}
	if !n.manager.SendToUser(userID, frame) {
		n.log.Debug("toast not delivered", zap.String("user_id", userID), zap.String("message", message))
	}
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	Log *zap.Logger
}

// Notify logs the notification.
func (n LogNotifier) Notify(userID string, level NotificationLevel, message string) {
	n.Log.Info("notification",
		zap.String("user_id", userID),
		zap.String("level", string(level)),
		zap.String("message", message))
}
