package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"practicehub/models"
	"practicehub/services"
)

// ActivityController group activities and their participants
type ActivityController struct {
	Boards *services.BoardManager
}

// NewActivityController creates the activity controller
func NewActivityController(boards *services.BoardManager) *ActivityController {
	return &ActivityController{Boards: boards}
}

func (c *ActivityController) board(ctx *gin.Context) (*services.ActivityBoard, models.Actor, bool) {
	actor, ok := currentActor(ctx)
	if !ok {
		return nil, actor, false
	}
	b, err := c.Boards.Get(ctx.Request.Context(), actor.OrganizationID)
	if err != nil {
		respondError(ctx, err)
		return nil, actor, false
	}
	return b, actor, true
}

// ListActivities returns the organization's activities. Optional from/to
// query parameters (YYYY-MM-DD, inclusive) narrow the date range.
func (c *ActivityController) ListActivities(ctx *gin.Context) {
	b, _, ok := c.board(ctx)
	if !ok {
		return
	}
	from, to := ctx.Query("from"), ctx.Query("to")

	activities := b.Snapshot()
	if from != "" || to != "" {
		filtered := activities[:0]
		for _, a := range activities {
			if (from == "" || a.Date >= from) && (to == "" || a.Date <= to) {
				filtered = append(filtered, a)
			}
		}
		activities = filtered
	}

	ctx.JSON(http.StatusOK, gin.H{"activities": activities})
}

// CreateActivity creates one activity, or a series when recurrence is set
func (c *ActivityController) CreateActivity(ctx *gin.Context) {
	var req models.ActivityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}

	if req.Recurrence != nil {
		created, err := b.Mutator().CreateRecurringActivities(ctx.Request.Context(), actor, req)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, gin.H{"activities": created})
		return
	}

	created, err := b.Mutator().CreateActivity(ctx.Request.Context(), actor, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"activity": created})
}

// RefreshActivities reloads the board from the database
func (c *ActivityController) RefreshActivities(ctx *gin.Context) {
	b, _, ok := c.board(ctx)
	if !ok {
		return
	}
	if err := b.Refetch(ctx.Request.Context()); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"activities": b.Snapshot()})
}

// UpdateActivity applies a partial update
func (c *ActivityController) UpdateActivity(ctx *gin.Context) {
	var patch models.ActivityPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if patch.IsEmpty() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")
	if err := b.Mutator().UpdateActivity(ctx.Request.Context(), actor, id, patch); err != nil {
		respondError(ctx, err)
		return
	}
	activity, _ := b.Get(id)
	ctx.JSON(http.StatusOK, gin.H{"activity": activity})
}

// DeleteActivity deletes an activity and its participants
func (c *ActivityController) DeleteActivity(ctx *gin.Context) {
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}
	if err := b.Mutator().DeleteActivity(ctx.Request.Context(), actor, ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "activity deleted"})
}

// AddParticipant enrolls a client
func (c *ActivityController) AddParticipant(ctx *gin.Context) {
	var req models.ParticipantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}

	participant, err := b.Mutator().AddParticipant(ctx.Request.Context(), actor, ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"participant": participant})
}

// RemoveParticipant withdraws a participant
func (c *ActivityController) RemoveParticipant(ctx *gin.Context) {
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}
	err := b.Mutator().RemoveParticipant(ctx.Request.Context(), actor, ctx.Param("id"), ctx.Param("participantId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "participant removed"})
}

// SetParticipantStatus changes a participant's enrollment status
func (c *ActivityController) SetParticipantStatus(ctx *gin.Context) {
	var req models.ParticipantStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	b, actor, ok := c.board(ctx)
	if !ok {
		return
	}

	err := b.Mutator().SetParticipantStatus(ctx.Request.Context(), actor, ctx.Param("id"), ctx.Param("participantId"), req.Status)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "participant status updated"})
}
