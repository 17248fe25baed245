package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupilot/edupilot-api/internal/models"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
)

type interactionRepository interface {
	Create(ctx context.Context, interaction *models.Interaction) error
	GetByID(ctx context.Context, id string) (*models.Interaction, error)
	ListByOwner(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error)
	SetAnswered(ctx context.Context, id string, response models.InteractionResponse) error
	Approve(ctx context.Context, id string, response models.InteractionResponse) error
}

// InteractionService handles student questions, AI answer generation, and the
// teacher approval workflow.
type InteractionService struct {
	repo      interactionRepository
	engine    analysisEngine
	events    eventPublisher
	metrics   pipelineMetrics
	validator *validator.Validate
	timeout   time.Duration
	logger    *zap.Logger
}

// NewInteractionService constructs the service.
func NewInteractionService(
	repo interactionRepository,
	engine analysisEngine,
	events eventPublisher,
	metrics pipelineMetrics,
	validate *validator.Validate,
	answerTimeout time.Duration,
	logger *zap.Logger,
) *InteractionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if answerTimeout <= 0 {
		answerTimeout = 45 * time.Second
	}
	return &InteractionService{
		repo:      repo,
		engine:    engine,
		events:    events,
		metrics:   metrics,
		validator: validate,
		timeout:   answerTimeout,
		logger:    logger,
	}
}

// AskRequest describes an incoming question.
type AskRequest struct {
	Question  string `json:"question" validate:"required,min=3,max=2000"`
	Context   string `json:"context" validate:"max=8000"`
	SubjectID string `json:"subjectId"`
}

// Ask records the question, generates an answer, and notifies the owner. The
// interaction is persisted in pending before generation starts, so a model
// outage never loses the question.
func (s *InteractionService) Ask(ctx context.Context, ownerID string, req AskRequest) (*models.Interaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	interaction := &models.Interaction{
		OwnerID:  ownerID,
		Question: req.Question,
		Status:   models.InteractionStatusPending,
	}
	if req.Context != "" {
		contextCopy := req.Context
		interaction.Context = &contextCopy
	}
	if req.SubjectID != "" {
		subjectCopy := req.SubjectID
		interaction.SubjectID = &subjectCopy
	}
	if err := s.repo.Create(ctx, interaction); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record question")
	}

	answerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.engine.AnswerQuestion(answerCtx, req.Question, req.Context)
	if err != nil {
		s.logger.Error("answer generation failed", zap.String("interaction_id", interaction.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "answer generation failed")
	}

	response := models.InteractionResponse{
		Content:    answer.Content,
		Source:     models.ResponseSourceGenerated,
		Confidence: answer.Confidence,
	}
	if err := s.repo.SetAnswered(ctx, interaction.ID, response); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "question is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record answer")
	}

	interaction.Response = response
	interaction.Status = models.InteractionStatusAnswered

	s.publish(ownerID, models.EventNewInteraction, map[string]interface{}{
		"interactionId": interaction.ID,
		"interaction":   interaction,
	})
	return interaction, nil
}

// Approve finalizes an answered interaction. Approving twice, or approving a
// question still pending, reports the state conflict without changing data.
func (s *InteractionService) Approve(ctx context.Context, ownerID, id string) (*models.Interaction, error) {
	interaction, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !interaction.Status.CanTransition(models.InteractionStatusApproved) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only answered questions can be approved")
	}

	now := time.Now().UTC()
	response := interaction.Response
	response.Approved = true
	response.ApprovedAt = &now

	if err := s.repo.Approve(ctx, id, response); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lost the race to a concurrent approval
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only answered questions can be approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve response")
	}

	interaction.Response = response
	interaction.Status = models.InteractionStatusApproved

	s.publish(ownerID, models.EventResponseApproved, map[string]interface{}{
		"interactionId": interaction.ID,
		"interaction":   interaction,
	})
	return interaction, nil
}

// Get returns one interaction. Another owner's interaction reads as not found.
func (s *InteractionService) Get(ctx context.Context, ownerID, id string) (*models.Interaction, error) {
	interaction, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load interaction")
	}
	if interaction.OwnerID != ownerID {
		return nil, appErrors.ErrNotFound
	}
	return interaction, nil
}

// List returns the owner's interactions.
func (s *InteractionService) List(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error) {
	items, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list interactions")
	}
	return items, nil
}

func (s *InteractionService) publish(ownerID string, eventType models.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ownerID, eventType, payload)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(string(eventType))
	}
}
