package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"practicehub/services"
)

// UserController staff listing
type UserController struct {
	UserService *services.UserService
}

// NewUserController creates the user controller
func NewUserController(userService *services.UserService) *UserController {
	return &UserController{UserService: userService}
}

// ListUsers staff of the caller's organization
func (c *UserController) ListUsers(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	users, err := c.UserService.ListUsers(ctx.Request.Context(), actor.OrganizationID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

// ListProfessionals the roster activities can be assigned to
func (c *UserController) ListProfessionals(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	professionals, err := c.UserService.ListProfessionals(ctx.Request.Context(), actor.OrganizationID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"professionals": professionals})
}
