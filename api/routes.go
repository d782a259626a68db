package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"practicehub/services"
)

// Services collaborators the controllers are built from
type Services struct {
	Users      *services.UserService
	References *services.ReferenceService
	Boards     *services.BoardManager
	WSManager  *services.WebSocketManager
	Kafka      *services.KafkaService // optional
	Log        *zap.Logger
}

// RegisterRoutes registers the API routes
func RegisterRoutes(r *gin.Engine, s Services) {
	authController := NewAuthController(s.Users, s.Boards)
	userController := NewUserController(s.Users)
	activityController := NewActivityController(s.Boards)
	referenceController := NewReferenceController(s.References, s.Boards)
	wsController := NewWebSocketController(s.WSManager, s.Boards, s.Log)
	monitorController := NewMonitorController(s.WSManager, s.Kafka, s.Boards)

	// public
	public := r.Group("/api")
	{
		public.POST("/register", authController.Register)
		public.POST("/login", authController.Login)
	}

	// authenticated
	api := r.Group("/api")
	{
		api.GET("/profile", authController.GetProfile)
		api.PUT("/profile/password", authController.ChangePassword)
		api.GET("/users", userController.ListUsers)
		api.GET("/professionals", userController.ListProfessionals)

		// group activities
		api.GET("/activities", activityController.ListActivities)
		api.POST("/activities", activityController.CreateActivity)
		api.POST("/activities/refresh", activityController.RefreshActivities)
		api.PUT("/activities/:id", activityController.UpdateActivity)
		api.DELETE("/activities/:id", activityController.DeleteActivity)
		api.POST("/activities/:id/participants", activityController.AddParticipant)
		api.DELETE("/activities/:id/participants/:participantId", activityController.RemoveParticipant)
		api.PUT("/activities/:id/participants/:participantId/status", activityController.SetParticipantStatus)

		// reference data
		api.GET("/consultations", referenceController.ListConsultations)
		api.POST("/consultations", referenceController.CreateConsultation)
		api.GET("/clients", referenceController.ListClients)
		api.POST("/clients", referenceController.CreateClient)
		api.GET("/clients/:id", referenceController.GetClient)

		// WebSocket
		api.GET("/ws", wsController.HandleWebSocket)

		// monitoring
		api.GET("/monitor/system", monitorController.GetSystemStatus)
		api.GET("/monitor/connections", monitorController.GetConnectionStats)
	}
}
