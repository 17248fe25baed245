package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupilot/edupilot-api/internal/models"
)

// InteractionRepository handles question/answer exchange persistence.
type InteractionRepository struct {
	db *sqlx.DB
}

// NewInteractionRepository constructs the repository.
func NewInteractionRepository(db *sqlx.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Create stores a new interaction.
func (r *InteractionRepository) Create(ctx context.Context, interaction *models.Interaction) error {
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = now
	}
	interaction.UpdatedAt = now
	if interaction.Status == "" {
		interaction.Status = models.InteractionStatusPending
	}
	const query = `INSERT INTO interactions
	(id, owner_id, subject_id, question, context, response, status, created_at, updated_at)
	VALUES (:id, :owner_id, :subject_id, :question, :context, :response, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, interaction); err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// GetByID retrieves one interaction row.
func (r *InteractionRepository) GetByID(ctx context.Context, id string) (*models.Interaction, error) {
	const query = `SELECT id, owner_id, subject_id, question, context, response, status, created_at, updated_at
	FROM interactions WHERE id = $1`
	var interaction models.Interaction
	if err := r.db.GetContext(ctx, &interaction, query, id); err != nil {
		return nil, err
	}
	return &interaction, nil
}

// ListByOwner returns the owner's interactions applying optional filters.
func (r *InteractionRepository) ListByOwner(ctx context.Context, ownerID string, filter models.InteractionFilter) ([]models.Interaction, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, owner_id, subject_id, question, context, response, status, created_at, updated_at FROM interactions`)
	args := []interface{}{ownerID}
	conditions := []string{"owner_id = $1"}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.Interaction
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return records, nil
}

// SetAnswered attaches a response to a pending interaction. The status guard
// keeps a duplicate generation from overwriting an existing answer.
func (r *InteractionRepository) SetAnswered(ctx context.Context, id string, response models.InteractionResponse) error {
	const query = `UPDATE interactions SET response = $2, status = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, response, models.InteractionStatusAnswered, time.Now().UTC(), models.InteractionStatusPending)
	if err != nil {
		return fmt.Errorf("mark interaction answered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check interaction answered rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Approve finalizes an answered interaction. The status guard rejects
// double-approval races: zero rows means the state moved underneath us.
func (r *InteractionRepository) Approve(ctx context.Context, id string, response models.InteractionResponse) error {
	const query = `UPDATE interactions SET response = $2, status = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, response, models.InteractionStatusApproved, time.Now().UTC(), models.InteractionStatusAnswered)
	if err != nil {
		return fmt.Errorf("approve interaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check interaction approve rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
