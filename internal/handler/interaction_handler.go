package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edupilot/edupilot-api/internal/dto"
	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/internal/service"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
	"github.com/edupilot/edupilot-api/pkg/response"
)

type interactionService interface {
	Ask(ctx context.Context, ownerID string, req service.AskRequest) (*models.Interaction, error)
	Approve(ctx context.Context, ownerID, id string) (*models.Interaction, error)
	Get(ctx context.Context, ownerID, id string) (*models.Interaction, error)
	List(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error)
}

// InteractionHandler manages Q&A HTTP endpoints.
type InteractionHandler struct {
	service interactionService
}

// NewInteractionHandler constructs the handler.
func NewInteractionHandler(service interactionService) *InteractionHandler {
	return &InteractionHandler{service: service}
}

// Ask records a question and returns the generated answer.
func (h *InteractionHandler) Ask(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "question is required"))
		return
	}

	interaction, err := h.service.Ask(c.Request.Context(), claims.UserID, service.AskRequest{
		Question:  req.Question,
		Context:   req.Context,
		SubjectID: req.SubjectID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, interaction)
}

// List returns the owner's interactions.
func (h *InteractionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.InteractionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid listing query"))
		return
	}

	items, err := h.service.List(c.Request.Context(), claims.UserID, query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// Get returns one interaction.
func (h *InteractionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	interaction, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interaction)
}

// Approve finalizes an answered interaction for sharing.
func (h *InteractionHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	interaction, err := h.service.Approve(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interaction)
}
