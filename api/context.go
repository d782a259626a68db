package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"practicehub/middleware"
	"practicehub/models"
	"practicehub/services"
)

// currentActor reads the authenticated user set by the JWT middleware
func currentActor(ctx *gin.Context) (models.Actor, bool) {
	userID := ctx.GetString(middleware.ContextUserID)
	orgID := ctx.GetString(middleware.ContextOrganizationID)
	if userID == "" || orgID == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return models.Actor{}, false
	}
	return models.Actor{UserID: userID, OrganizationID: orgID}, true
}

// statusFor maps service errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidActivity),
		errors.Is(err, services.ErrInvalidRecurrence),
		errors.Is(err, services.ErrInvalidReference),
		errors.Is(err, services.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrActivityNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrClientNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrActivityFull),
		errors.Is(err, services.ErrParticipantExists),
		errors.Is(err, services.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrBoardsClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(ctx *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		ctx.Error(err)
	}
	ctx.JSON(status, gin.H{"error": msg})
}
