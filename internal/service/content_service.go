package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupilot/edupilot-api/internal/dto"
	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/pkg/ai"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
	"github.com/edupilot/edupilot-api/pkg/export"
	"github.com/edupilot/edupilot-api/pkg/jobs"
)

type artifactRepository interface {
	Create(ctx context.Context, artifact *models.Artifact) error
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
	ListByOwner(ctx context.Context, ownerID string, filter models.ArtifactFilter) ([]models.Artifact, error)
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	SetProcessed(ctx context.Context, id string, title string, section models.ArtifactSection, analysis models.ArtifactAnalysis) error
	SetFailed(ctx context.Context, id string, reason string) error
	UpdateSection(ctx context.Context, id, ownerID string, section models.ArtifactSection) error
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type analysisEngine interface {
	AnalyzeContent(ctx context.Context, content, fileName, mimeType string) (*ai.FileAnalysis, error)
	AnswerQuestion(ctx context.Context, question, questionContext string) (*ai.Answer, error)
}

type eventPublisher interface {
	Publish(ownerID string, eventType models.EventType, payload interface{})
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	ReadAll(filename string) ([]byte, error)
	Delete(filename string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type quizRenderer interface {
	Render(doc export.QuizDocument) ([]byte, error)
}

type pipelineMetrics interface {
	RecordCacheLookup(hit bool)
	RecordArtifactOutcome(succeeded bool, analysisTime time.Duration)
	RecordEventPublished(eventType string)
}

// JobTypeAnalyzeArtifact names the queued analysis task.
const JobTypeAnalyzeArtifact = "analyze-artifact"

// ContentUploadLimits mirrors ingestion validation settings.
type ContentUploadLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	MaxFilesPerBatch int
}

// UploadItem is one incoming file in a submission batch.
type UploadItem struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Reader       io.Reader
}

// ContentListing groups an owner's artifacts by section for the dashboard.
type ContentListing struct {
	Sections map[models.ArtifactSection][]dto.ArtifactView `json:"sections"`
	Total    int                                           `json:"total"`
}

// ContentService owns upload intake, listing, reclassification, and exports.
type ContentService struct {
	repo     artifactRepository
	cache    cacheStore
	store    fileStore
	queue    jobEnqueuer
	events   eventPublisher
	exporter quizRenderer
	metrics  pipelineMetrics
	limits   ContentUploadLimits
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewContentService constructs the service.
func NewContentService(
	repo artifactRepository,
	cache cacheStore,
	store fileStore,
	queue jobEnqueuer,
	events eventPublisher,
	exporter quizRenderer,
	metrics pipelineMetrics,
	limits ContentUploadLimits,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxFilesPerBatch <= 0 {
		limits.MaxFilesPerBatch = 10
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ContentService{
		repo:     repo,
		cache:    cache,
		store:    store,
		queue:    queue,
		events:   events,
		exporter: exporter,
		metrics:  metrics,
		limits:   limits,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Submit ingests a batch of uploads. Every file is persisted and recorded in
// status uploaded before any analysis starts, so the caller gets an immediate
// acknowledgement while workers catch up asynchronously. A saturated queue
// aborts the batch: files already accepted stay uploaded and are still valid.
func (s *ContentService) Submit(ctx context.Context, ownerID string, items []UploadItem) ([]models.Artifact, error) {
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files provided")
	}
	if len(items) > s.limits.MaxFilesPerBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files per upload", s.limits.MaxFilesPerBatch))
	}
	for _, item := range items {
		if err := s.validateUpload(item); err != nil {
			return nil, err
		}
	}

	created := make([]models.Artifact, 0, len(items))
	for _, item := range items {
		storedName := uuid.NewString() + filepath.Ext(item.OriginalName)
		if _, err := s.store.SaveStream(storedName, item.Reader); err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
		}

		artifact := &models.Artifact{
			OwnerID:      ownerID,
			OriginalName: item.OriginalName,
			StoredName:   storedName,
			MimeType:     item.MimeType,
			SizeBytes:    item.SizeBytes,
			Status:       models.ArtifactStatusUploaded,
		}
		if err := s.repo.Create(ctx, artifact); err != nil {
			if delErr := s.store.Delete(storedName); delErr != nil {
				s.logger.Warn("orphaned upload file", zap.String("stored_name", storedName), zap.Error(delErr))
			}
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record upload")
		}

		if err := s.queue.Enqueue(jobs.Job{
			ID:      artifact.ID,
			Type:    JobTypeAnalyzeArtifact,
			Payload: artifact.ID,
		}); err != nil {
			// the artifact stays uploaded; the caller can resubmit once
			// the queue drains
			s.logger.Warn("analysis enqueue rejected", zap.String("artifact_id", artifact.ID), zap.Error(err))
			created = append(created, *artifact)
			s.invalidateListing(ctx, ownerID)
			return created, err
		}
		created = append(created, *artifact)
	}

	s.invalidateListing(ctx, ownerID)
	s.publish(ownerID, models.EventFilesUploaded, map[string]interface{}{
		"count": len(created),
		"files": dto.NewArtifactViews(created),
	})
	return created, nil
}

// List returns the owner's artifacts grouped by section, served from cache
// when a fresh listing exists.
func (s *ContentService) List(ctx context.Context, ownerID string, filter models.ArtifactFilter) (*ContentListing, error) {
	key := listingCacheKey(ownerID, filter)
	if s.cache != nil {
		var cached ContentListing
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("listing cache read failed", zap.String("key", key), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	artifacts, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list content")
	}

	listing := &ContentListing{Sections: make(map[models.ArtifactSection][]dto.ArtifactView), Total: len(artifacts)}
	for _, section := range models.Sections() {
		listing.Sections[section] = []dto.ArtifactView{}
	}
	for _, artifact := range artifacts {
		listing.Sections[artifact.Section] = append(listing.Sections[artifact.Section], dto.NewArtifactView(artifact))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, listing, s.cacheTTL); err != nil {
			s.logger.Warn("listing cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return listing, nil
}

// Get returns one artifact. Another owner's artifact reads as not found.
func (s *ContentService) Get(ctx context.Context, ownerID, id string) (*models.Artifact, error) {
	artifact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if artifact.OwnerID != ownerID {
		return nil, appErrors.ErrNotFound
	}
	return artifact, nil
}

// UpdateSection manually reclassifies an artifact.
func (s *ContentService) UpdateSection(ctx context.Context, ownerID, id string, section models.ArtifactSection) (*models.Artifact, error) {
	if !models.IsValidSection(section) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown section %q", section))
	}
	if err := s.repo.UpdateSection(ctx, id, ownerID, section); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	s.invalidateListing(ctx, ownerID)
	return s.Get(ctx, ownerID, id)
}

// QuizPDF renders the artifact's suggested quiz as a printable document.
// Only processed artifacts with quiz candidates can export.
func (s *ContentService) QuizPDF(ctx context.Context, ownerID, id string) ([]byte, string, error) {
	artifact, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, "", err
	}
	if artifact.Status != models.ArtifactStatusProcessed {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, "content has not finished processing")
	}
	if len(artifact.Analysis.QuizCandidates) == 0 {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "no quiz questions available for this content")
	}

	doc := export.QuizDocument{
		Title:   artifact.Title,
		Subject: artifact.Analysis.Subject,
	}
	if doc.Title == "" {
		doc.Title = artifact.OriginalName
	}
	for _, q := range artifact.Analysis.QuizCandidates {
		doc.Questions = append(doc.Questions, export.QuizQuestion{
			Question:    q.Question,
			Options:     q.Options,
			Answer:      q.Answer,
			Explanation: q.Explanation,
		})
	}

	payload, err := s.exporter.Render(doc)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render quiz")
	}
	filename := fmt.Sprintf("quiz-%s.pdf", artifact.ID)
	return payload, filename, nil
}

func (s *ContentService) validateUpload(item UploadItem) error {
	if item.OriginalName == "" {
		return appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if item.SizeBytes <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q is empty", item.OriginalName))
	}
	if s.limits.MaxFileSizeBytes > 0 && item.SizeBytes > s.limits.MaxFileSizeBytes {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q exceeds the %d byte limit", item.OriginalName, s.limits.MaxFileSizeBytes))
	}
	if len(s.limits.AllowedMIMEs) > 0 {
		allowed := false
		for _, mime := range s.limits.AllowedMIMEs {
			if mime == item.MimeType {
				allowed = true
				break
			}
		}
		if !allowed {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not supported", item.MimeType))
		}
	}
	return nil
}

func (s *ContentService) invalidateListing(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("content:list:%s:*", ownerID)); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

func (s *ContentService) publish(ownerID string, eventType models.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ownerID, eventType, payload)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(string(eventType))
	}
}

func listingCacheKey(ownerID string, filter models.ArtifactFilter) string {
	return fmt.Sprintf("content:list:%s:%s:%s:%d:%d", ownerID, filter.Section, filter.Status, filter.Limit, filter.Offset)
}
