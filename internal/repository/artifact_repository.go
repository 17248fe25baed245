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

// ArtifactRepository handles uploaded-content persistence.
type ArtifactRepository struct {
	db *sqlx.DB
}

// NewArtifactRepository constructs the repository.
func NewArtifactRepository(db *sqlx.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create stores a new artifact in status uploaded.
func (r *ArtifactRepository) Create(ctx context.Context, artifact *models.Artifact) error {
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now
	if artifact.Status == "" {
		artifact.Status = models.ArtifactStatusUploaded
	}
	if artifact.Section == "" {
		artifact.Section = models.SectionLectures
	}
	const query = `INSERT INTO artifacts
	(id, owner_id, original_name, stored_name, mime_type, size_bytes, section, status, title, analysis, failure_reason, created_at, updated_at)
	VALUES (:id, :owner_id, :original_name, :stored_name, :mime_type, :size_bytes, :section, :status, :title, :analysis, :failure_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, artifact); err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

// GetByID retrieves one artifact row.
func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	const query = `SELECT id, owner_id, original_name, stored_name, mime_type, size_bytes, section, status,
       title, analysis, failure_reason, created_at, updated_at
	FROM artifacts WHERE id = $1`
	var artifact models.Artifact
	if err := r.db.GetContext(ctx, &artifact, query, id); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListByOwner returns the owner's artifacts applying optional filters.
func (r *ArtifactRepository) ListByOwner(ctx context.Context, ownerID string, filter models.ArtifactFilter) ([]models.Artifact, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, owner_id, original_name, stored_name, mime_type, size_bytes, section, status,
       title, analysis, failure_reason, created_at, updated_at FROM artifacts`)
	args := []interface{}{ownerID}
	conditions := []string{"owner_id = $1"}

	if filter.Section != "" {
		args = append(args, filter.Section)
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.Artifact
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return records, nil
}

// ClaimProcessing atomically moves an uploaded artifact into processing.
// The status guard in the WHERE clause serializes concurrent workers:
// exactly one caller observes claimed=true for a given artifact.
func (r *ArtifactRepository) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE artifacts SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.ArtifactStatusProcessing, time.Now().UTC(), models.ArtifactStatusUploaded)
	if err != nil {
		return false, fmt.Errorf("claim artifact processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check artifact claim rows: %w", err)
	}
	return affected > 0, nil
}

// SetProcessed persists the analysis and finishes the artifact. Only a
// processing artifact may complete; anything else means a pipeline bug.
func (r *ArtifactRepository) SetProcessed(ctx context.Context, id string, title string, section models.ArtifactSection, analysis models.ArtifactAnalysis) error {
	const query = `UPDATE artifacts
	SET status = $2, title = $3, section = $4, analysis = $5, failure_reason = NULL, updated_at = $6
	WHERE id = $1 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, id, models.ArtifactStatusProcessed, title, section, analysis, time.Now().UTC(), models.ArtifactStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark artifact processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check artifact processed rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetFailed terminates a processing artifact with a user-safe reason.
func (r *ArtifactRepository) SetFailed(ctx context.Context, id string, reason string) error {
	const query = `UPDATE artifacts SET status = $2, failure_reason = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.ArtifactStatusFailed, reason, time.Now().UTC(), models.ArtifactStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark artifact failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check artifact failed rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateSection reclassifies an artifact; only the owner's rows match.
func (r *ArtifactRepository) UpdateSection(ctx context.Context, id, ownerID string, section models.ArtifactSection) error {
	const query = `UPDATE artifacts SET section = $3, updated_at = $4 WHERE id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, section, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update artifact section: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check artifact section rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
