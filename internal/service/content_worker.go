package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edupilot/edupilot-api/internal/dto"
	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/pkg/jobs"
)

// ContentWorker drains the analysis queue. It is the only writer of the
// processing, processed, and failed statuses.
type ContentWorker struct {
	repo            artifactRepository
	store           fileStore
	engine          analysisEngine
	events          eventPublisher
	cache           cacheStore
	metrics         pipelineMetrics
	analysisTimeout time.Duration
	logger          *zap.Logger
}

// NewContentWorker constructs the worker.
func NewContentWorker(
	repo artifactRepository,
	store fileStore,
	engine analysisEngine,
	events eventPublisher,
	cache cacheStore,
	metrics pipelineMetrics,
	analysisTimeout time.Duration,
	logger *zap.Logger,
) *ContentWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if analysisTimeout <= 0 {
		analysisTimeout = 45 * time.Second
	}
	return &ContentWorker{
		repo:            repo,
		store:           store,
		engine:          engine,
		events:          events,
		cache:           cache,
		metrics:         metrics,
		analysisTimeout: analysisTimeout,
		logger:          logger,
	}
}

// Handle is the queue entrypoint. Failures that end in a terminal artifact
// state return nil so the queue never re-runs a settled job.
func (w *ContentWorker) Handle(ctx context.Context, job jobs.Job) error {
	artifactID, ok := job.Payload.(string)
	if !ok || artifactID == "" {
		w.logger.Error("malformed analysis job", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return w.ProcessOne(ctx, artifactID)
}

// ProcessOne runs the full pipeline for a single artifact. The operation is
// idempotent: re-delivery of an already-claimed or settled artifact is a
// no-op, and the uploaded->processing claim guarantees at most one analysis
// run per artifact.
func (w *ContentWorker) ProcessOne(ctx context.Context, artifactID string) error {
	artifact, err := w.repo.GetByID(ctx, artifactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("analysis job for unknown artifact", zap.String("artifact_id", artifactID))
			return nil
		}
		return fmt.Errorf("load artifact %s: %w", artifactID, err)
	}
	if artifact.Status != models.ArtifactStatusUploaded {
		w.logger.Debug("skipping artifact not awaiting analysis",
			zap.String("artifact_id", artifactID),
			zap.String("status", string(artifact.Status)))
		return nil
	}

	claimed, err := w.repo.ClaimProcessing(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("claim artifact %s: %w", artifactID, err)
	}
	if !claimed {
		// another worker won the race
		return nil
	}

	started := time.Now()
	analysis, failReason := w.analyze(ctx, artifact)
	elapsed := time.Since(started)

	if failReason != "" {
		if err := w.repo.SetFailed(ctx, artifactID, failReason); err != nil {
			return fmt.Errorf("record artifact failure %s: %w", artifactID, err)
		}
		w.metricsOutcome(false, elapsed)
		w.invalidateListing(ctx, artifact.OwnerID)
		w.publish(artifact.OwnerID, models.EventFileFailed, map[string]interface{}{
			"fileId": artifactID,
			"name":   artifact.OriginalName,
			"reason": failReason,
		})
		return nil
	}

	section := determineSection(artifact.OriginalName, analysis.Tags)
	title := generateTitle(analysis.Summary, artifact.OriginalName)

	if err := w.repo.SetProcessed(ctx, artifactID, title, section, *analysis); err != nil {
		return fmt.Errorf("record artifact analysis %s: %w", artifactID, err)
	}
	w.metricsOutcome(true, elapsed)
	w.invalidateListing(ctx, artifact.OwnerID)

	updated, err := w.repo.GetByID(ctx, artifactID)
	if err != nil {
		updated = artifact
	}
	w.publish(artifact.OwnerID, models.EventFileProcessed, map[string]interface{}{
		"fileId": artifactID,
		"file":   dto.NewArtifactView(*updated),
	})
	w.logger.Info("artifact processed",
		zap.String("artifact_id", artifactID),
		zap.String("section", string(section)),
		zap.Duration("analysis_time", elapsed))
	return nil
}

// analyze runs the external model against the stored content and returns
// either a complete analysis or a user-safe failure reason.
func (w *ContentWorker) analyze(ctx context.Context, artifact *models.Artifact) (*models.ArtifactAnalysis, string) {
	data, err := w.store.ReadAll(artifact.StoredName)
	if err != nil {
		w.logger.Error("stored upload unreadable", zap.String("artifact_id", artifact.ID), zap.Error(err))
		return nil, "uploaded file could not be read"
	}

	analysisCtx, cancel := context.WithTimeout(ctx, w.analysisTimeout)
	defer cancel()

	result, err := w.engine.AnalyzeContent(analysisCtx, string(data), artifact.OriginalName, artifact.MimeType)
	if err != nil {
		w.logger.Error("content analysis failed", zap.String("artifact_id", artifact.ID), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "analysis timed out"
		}
		return nil, "analysis service unavailable"
	}

	analysis := &models.ArtifactAnalysis{
		Summary:    result.Summary,
		Tags:       result.Tags,
		Difficulty: result.Difficulty,
		Subject:    result.Subject,
		AnalyzedAt: time.Now().UTC(),
	}
	for _, q := range result.QuizCandidates {
		analysis.QuizCandidates = append(analysis.QuizCandidates, models.QuizCandidate{
			Question:    q.Question,
			Options:     q.Options,
			Answer:      q.Answer,
			Explanation: q.Explanation,
		})
	}
	return analysis, ""
}

func (w *ContentWorker) metricsOutcome(succeeded bool, elapsed time.Duration) {
	if w.metrics != nil {
		w.metrics.RecordArtifactOutcome(succeeded, elapsed)
	}
}

func (w *ContentWorker) invalidateListing(ctx context.Context, ownerID string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.DeleteByPattern(ctx, fmt.Sprintf("content:list:%s:*", ownerID)); err != nil {
		w.logger.Warn("listing cache invalidation failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

func (w *ContentWorker) publish(ownerID string, eventType models.EventType, payload interface{}) {
	if w.events == nil {
		return
	}
	w.events.Publish(ownerID, eventType, payload)
	if w.metrics != nil {
		w.metrics.RecordEventPublished(string(eventType))
	}
}

var sectionKeywords = []struct {
	section models.ArtifactSection
	words   []string
}{
	{models.SectionQuizzes, []string{"quiz", "exam", "test"}},
	{models.SectionAssignments, []string{"assignment", "homework", "exercise", "worksheet"}},
	{models.SectionNotes, []string{"note", "summary"}},
	{models.SectionResources, []string{"resource", "reference", "guide"}},
}

// determineSection classifies content by filename keywords first, then by
// analysis tags. Lectures is the default bucket.
func determineSection(fileName string, tags []string) models.ArtifactSection {
	name := strings.ToLower(fileName)
	for _, entry := range sectionKeywords {
		for _, word := range entry.words {
			if strings.Contains(name, word) {
				return entry.section
			}
		}
	}
	for _, tag := range tags {
		lowered := strings.ToLower(tag)
		for _, entry := range sectionKeywords {
			for _, word := range entry.words {
				if strings.Contains(lowered, word) {
					return entry.section
				}
			}
		}
	}
	return models.SectionLectures
}

// generateTitle derives a display title from the analysis summary, trimming
// at a word boundary. Falls back to the upload's base name.
func generateTitle(summary, fileName string) string {
	const maxLen = 50

	title := strings.TrimSpace(summary)
	if title == "" {
		base := filepath.Base(fileName)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	if idx := strings.IndexAny(title, ".!?\n"); idx > 0 {
		title = title[:idx]
	}
	if runes := []rune(title); len(runes) > maxLen {
		cut := string(runes[:maxLen])
		if idx := strings.LastIndex(cut, " "); idx > len(cut)/2 {
			cut = cut[:idx]
		}
		title = cut + "..."
	}
	return title
}
