package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"practicehub/models"
	"practicehub/services"
)

// ReferenceController consultation rooms and clients
type ReferenceController struct {
	References *services.ReferenceService
	Boards     *services.BoardManager
}

// NewReferenceController creates the reference controller
func NewReferenceController(refs *services.ReferenceService, boards *services.BoardManager) *ReferenceController {
	return &ReferenceController{References: refs, Boards: boards}
}

// ListConsultations consultation rooms of the organization
func (c *ReferenceController) ListConsultations(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	rooms, err := c.References.ListConsultations(ctx.Request.Context(), actor.OrganizationID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"consultations": rooms})
}

// CreateConsultation adds a consultation room
func (c *ReferenceController) CreateConsultation(ctx *gin.Context) {
	var req models.ConsultationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	room, err := c.References.CreateConsultation(ctx.Request.Context(), actor.OrganizationID, req.Name)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if b, open := c.Boards.Lookup(actor.OrganizationID); open {
		if err := b.ReloadReferences(ctx.Request.Context()); err != nil {
			ctx.Error(err)
		}
	}
	ctx.JSON(http.StatusCreated, gin.H{"consultation": room})
}

// ListClients clients of the organization, optionally filtered by ?q=
func (c *ReferenceController) ListClients(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	clients, err := c.References.ListClients(ctx.Request.Context(), actor.OrganizationID, ctx.Query("q"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"clients": clients})
}

// CreateClient adds a client
func (c *ReferenceController) CreateClient(ctx *gin.Context) {
	var req models.ClientRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	client, err := c.References.CreateClient(ctx.Request.Context(), actor.OrganizationID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"client": client})
}

// GetClient one client
func (c *ReferenceController) GetClient(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	client, err := c.References.GetClient(ctx.Request.Context(), actor.OrganizationID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"client": client})
}
