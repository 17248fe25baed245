package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/edupilot/edupilot-api/internal/dto"
	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/internal/service"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
)

type interactionServiceMock struct {
	askResp     *models.Interaction
	askErr      error
	approveResp *models.Interaction
	approveErr  error
	getResp     *models.Interaction
	getErr      error
	listResp    []models.Interaction
	listErr     error
}

func (m *interactionServiceMock) Ask(ctx context.Context, ownerID string, req service.AskRequest) (*models.Interaction, error) {
	return m.askResp, m.askErr
}

func (m *interactionServiceMock) Approve(ctx context.Context, ownerID, id string) (*models.Interaction, error) {
	return m.approveResp, m.approveErr
}

func (m *interactionServiceMock) Get(ctx context.Context, ownerID, id string) (*models.Interaction, error) {
	return m.getResp, m.getErr
}

func (m *interactionServiceMock) List(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error) {
	return m.listResp, m.listErr
}

func TestInteractionHandlerAsk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &interactionServiceMock{
		askResp: &models.Interaction{ID: "int-1", Status: models.InteractionStatusAnswered},
	}
	handler := NewInteractionHandler(mockSvc)

	payload, _ := json.Marshal(dto.AskRequest{Question: "What is osmosis?"})
	c, w := newGinContext(http.MethodPost, "/teacher/interactions", payload, "application/json")
	authedContext(c)

	handler.Ask(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestInteractionHandlerAskRejectsEmptyQuestion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewInteractionHandler(&interactionServiceMock{})

	payload, _ := json.Marshal(map[string]string{"context": "chapter 4"})
	c, w := newGinContext(http.MethodPost, "/teacher/interactions", payload, "application/json")
	authedContext(c)

	handler.Ask(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInteractionHandlerApproveConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &interactionServiceMock{approveErr: appErrors.ErrInvalidState}
	handler := NewInteractionHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/teacher/interactions/int-1/approve", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "int-1"}}
	authedContext(c)

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestInteractionHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &interactionServiceMock{
		listResp: []models.Interaction{{ID: "int-1", Status: models.InteractionStatusApproved}},
	}
	handler := NewInteractionHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/teacher/interactions?status=approved", nil, "")
	authedContext(c)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "int-1")
}

func TestInteractionHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewInteractionHandler(&interactionServiceMock{})

	c, w := newGinContext(http.MethodGet, "/teacher/interactions", nil, "")
	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
