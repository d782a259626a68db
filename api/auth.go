package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"practicehub/middleware"
	"practicehub/models"
	"practicehub/services"
)

// AuthController registration, login and the caller's profile
type AuthController struct {
	UserService *services.UserService
	Boards      *services.BoardManager
}

// NewAuthController creates the auth controller
func NewAuthController(userService *services.UserService, boards *services.BoardManager) *AuthController {
	return &AuthController{
		UserService: userService,
		Boards:      boards,
	}
}

// Register creates a staff account and returns a token
func (c *AuthController) Register(ctx *gin.Context) {
	var req models.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, err := c.UserService.Register(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	// a new professional must be resolvable on an already open board
	if b, ok := c.Boards.Lookup(user.OrganizationID); ok {
		if err := b.ReloadReferences(ctx.Request.Context()); err != nil {
			ctx.Error(err)
		}
	}

	token, err := middleware.GenerateToken(user)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "registered",
		"user":    user.Response(true),
		"token":   token,
	})
}

// Login checks credentials and returns a token
func (c *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, err := c.UserService.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}

	token, err := middleware.GenerateToken(user)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "logged in",
		"user":    user.Response(true),
		"token":   token,
	})
}

// GetProfile returns the authenticated user
func (c *AuthController) GetProfile(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	user, err := c.UserService.GetUserByID(ctx.Request.Context(), actor.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user.Response(c.UserService.IsUserOnline(ctx.Request.Context(), user.ID))})
}

// ChangePassword replaces the caller's password
func (c *AuthController) ChangePassword(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := c.UserService.ChangePassword(ctx.Request.Context(), actor.UserID, req.OldPassword, req.NewPassword); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
