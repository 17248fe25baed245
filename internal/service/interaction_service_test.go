package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/pkg/ai"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
)

type interactionRepoStub struct {
	mu    sync.Mutex
	items map[string]*models.Interaction
	seq   int
}

func newInteractionRepoStub() *interactionRepoStub {
	return &interactionRepoStub{items: make(map[string]*models.Interaction)}
}

func (r *interactionRepoStub) Create(ctx context.Context, interaction *models.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if interaction.ID == "" {
		r.seq++
		interaction.ID = fmt.Sprintf("int-%d", r.seq)
	}
	if interaction.Status == "" {
		interaction.Status = models.InteractionStatusPending
	}
	copy := *interaction
	r.items[interaction.ID] = &copy
	return nil
}

func (r *interactionRepoStub) GetByID(ctx context.Context, id string) (*models.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (r *interactionRepoStub) ListByOwner(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Interaction{}
	for _, item := range r.items {
		if item.OwnerID != ownerID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		result = append(result, *item)
	}
	return result, nil
}

func (r *interactionRepoStub) SetAnswered(ctx context.Context, id string, response models.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.InteractionStatusPending {
		return sql.ErrNoRows
	}
	item.Response = response
	item.Status = models.InteractionStatusAnswered
	return nil
}

func (r *interactionRepoStub) Approve(ctx context.Context, id string, response models.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.InteractionStatusAnswered {
		return sql.ErrNoRows
	}
	item.Response = response
	item.Status = models.InteractionStatusApproved
	return nil
}

func newTestInteractionService(repo *interactionRepoStub, engine *engineStub, events *eventsStub) *InteractionService {
	return NewInteractionService(repo, engine, events, nil, nil, time.Second, nil)
}

func TestInteractionServiceAskGeneratesAnswer(t *testing.T) {
	repo := newInteractionRepoStub()
	events := &eventsStub{}
	engine := &engineStub{answer: &ai.Answer{Content: "Water moves across a membrane.", Confidence: 0.85}}
	svc := newTestInteractionService(repo, engine, events)

	interaction, err := svc.Ask(context.Background(), "teacher-1", AskRequest{
		Question: "What is osmosis?",
		Context:  "Chapter 4, cell transport.",
	})
	require.NoError(t, err)
	require.Equal(t, models.InteractionStatusAnswered, interaction.Status)
	require.Equal(t, models.ResponseSourceGenerated, interaction.Response.Source)
	require.Equal(t, 0.85, interaction.Response.Confidence)
	require.False(t, interaction.Response.Approved)

	owned := events.forOwner("teacher-1")
	require.Len(t, owned, 1)
	require.Equal(t, models.EventNewInteraction, owned[0].Type)
}

func TestInteractionServiceAskValidation(t *testing.T) {
	svc := newTestInteractionService(newInteractionRepoStub(), &engineStub{}, &eventsStub{})

	_, err := svc.Ask(context.Background(), "teacher-1", AskRequest{Question: ""})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestInteractionServiceAskEngineFailureLeavesPending(t *testing.T) {
	repo := newInteractionRepoStub()
	events := &eventsStub{}
	engine := &engineStub{answerErr: errors.New("model offline")}
	svc := newTestInteractionService(repo, engine, events)

	_, err := svc.Ask(context.Background(), "teacher-1", AskRequest{Question: "What is osmosis?"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrExternalService.Code, appErrors.FromError(err).Code)

	// question survives the outage in pending
	pending, listErr := repo.ListByOwner(context.Background(), "teacher-1", models.InteractionFilter{Status: models.InteractionStatusPending})
	require.NoError(t, listErr)
	require.Len(t, pending, 1)
	require.Empty(t, events.forOwner("teacher-1"))
}

func TestInteractionServiceApproveLifecycle(t *testing.T) {
	repo := newInteractionRepoStub()
	events := &eventsStub{}
	engine := &engineStub{answer: &ai.Answer{Content: "Answer.", Confidence: 0.7}}
	svc := newTestInteractionService(repo, engine, events)

	interaction, err := svc.Ask(context.Background(), "teacher-1", AskRequest{Question: "What is osmosis?"})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), "teacher-1", interaction.ID)
	require.NoError(t, err)
	require.Equal(t, models.InteractionStatusApproved, approved.Status)
	require.True(t, approved.Response.Approved)
	require.NotNil(t, approved.Response.ApprovedAt)

	// second approval reports the conflict and changes nothing
	_, err = svc.Approve(context.Background(), "teacher-1", interaction.ID)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	stored, err := repo.GetByID(context.Background(), interaction.ID)
	require.NoError(t, err)
	require.Equal(t, models.InteractionStatusApproved, stored.Status)

	owned := events.forOwner("teacher-1")
	require.Len(t, owned, 2)
	require.Equal(t, models.EventResponseApproved, owned[1].Type)
}

func TestInteractionServiceApprovePendingRejected(t *testing.T) {
	repo := newInteractionRepoStub()
	svc := newTestInteractionService(repo, &engineStub{}, &eventsStub{})

	pending := &models.Interaction{OwnerID: "teacher-1", Question: "Q?"}
	require.NoError(t, repo.Create(context.Background(), pending))

	_, err := svc.Approve(context.Background(), "teacher-1", pending.ID)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestInteractionServiceOwnershipScoping(t *testing.T) {
	repo := newInteractionRepoStub()
	svc := newTestInteractionService(repo, &engineStub{}, &eventsStub{})

	interaction := &models.Interaction{OwnerID: "teacher-1", Question: "Q?", Status: models.InteractionStatusAnswered}
	require.NoError(t, repo.Create(context.Background(), interaction))

	_, err := svc.Get(context.Background(), "teacher-2", interaction.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Approve(context.Background(), "teacher-2", interaction.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
