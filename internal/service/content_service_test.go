package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/pkg/ai"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
	"github.com/edupilot/edupilot-api/pkg/export"
	"github.com/edupilot/edupilot-api/pkg/jobs"
)

type artifactRepoStub struct {
	mu    sync.Mutex
	items map[string]*models.Artifact
	seq   int
}

func newArtifactRepoStub() *artifactRepoStub {
	return &artifactRepoStub{items: make(map[string]*models.Artifact)}
}

func (r *artifactRepoStub) Create(ctx context.Context, artifact *models.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if artifact.ID == "" {
		r.seq++
		artifact.ID = fmt.Sprintf("art-%d", r.seq)
	}
	if artifact.Status == "" {
		artifact.Status = models.ArtifactStatusUploaded
	}
	if artifact.Section == "" {
		artifact.Section = models.SectionLectures
	}
	copy := *artifact
	r.items[artifact.ID] = &copy
	return nil
}

func (r *artifactRepoStub) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (r *artifactRepoStub) ListByOwner(ctx context.Context, ownerID string, filter models.ArtifactFilter) ([]models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Artifact{}
	for _, item := range r.items {
		if item.OwnerID != ownerID {
			continue
		}
		if filter.Section != "" && item.Section != filter.Section {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		result = append(result, *item)
	}
	return result, nil
}

func (r *artifactRepoStub) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.ArtifactStatusUploaded {
		return false, nil
	}
	item.Status = models.ArtifactStatusProcessing
	return true, nil
}

func (r *artifactRepoStub) SetProcessed(ctx context.Context, id string, title string, section models.ArtifactSection, analysis models.ArtifactAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.ArtifactStatusProcessing {
		return sql.ErrNoRows
	}
	item.Status = models.ArtifactStatusProcessed
	item.Title = title
	item.Section = section
	item.Analysis = analysis
	item.FailureReason = nil
	return nil
}

func (r *artifactRepoStub) SetFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != models.ArtifactStatusProcessing {
		return sql.ErrNoRows
	}
	item.Status = models.ArtifactStatusFailed
	item.FailureReason = &reason
	return nil
}

func (r *artifactRepoStub) UpdateSection(ctx context.Context, id, ownerID string, section models.ArtifactSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	item.Section = section
	return nil
}

type cacheStub struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

type storeStub struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newStoreStub() *storeStub {
	return &storeStub{files: make(map[string][]byte)}
}

func (s *storeStub) SaveStream(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[filename] = data
	return filename, nil
}

func (s *storeStub) ReadAll(filename string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[filename]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return data, nil
}

func (s *storeStub) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, filename)
	return nil
}

type queueStub struct {
	mu      sync.Mutex
	jobs    []jobs.Job
	failErr error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failErr != nil {
		return q.failErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type publishedEvent struct {
	OwnerID string
	Type    models.EventType
	Payload interface{}
}

type eventsStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *eventsStub) Publish(ownerID string, eventType models.EventType, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{OwnerID: ownerID, Type: eventType, Payload: payload})
}

func (e *eventsStub) forOwner(ownerID string) []publishedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := []publishedEvent{}
	for _, ev := range e.events {
		if ev.OwnerID == ownerID {
			result = append(result, ev)
		}
	}
	return result
}

type engineStub struct {
	analysis    *ai.FileAnalysis
	analysisErr error
	answer      *ai.Answer
	answerErr   error
	calls       int
}

func (e *engineStub) AnalyzeContent(ctx context.Context, content, fileName, mimeType string) (*ai.FileAnalysis, error) {
	e.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.analysisErr != nil {
		return nil, e.analysisErr
	}
	return e.analysis, nil
}

func (e *engineStub) AnswerQuestion(ctx context.Context, question, questionContext string) (*ai.Answer, error) {
	if e.answerErr != nil {
		return nil, e.answerErr
	}
	return e.answer, nil
}

func newTestContentService(repo *artifactRepoStub, cache *cacheStub, store *storeStub, queue *queueStub, events *eventsStub) *ContentService {
	return NewContentService(repo, cache, store, queue, events, export.NewPDFExporter(), nil, ContentUploadLimits{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"text/plain", "application/pdf"},
		MaxFilesPerBatch: 3,
	}, time.Minute, nil)
}

func TestContentServiceSubmitReturnsUploadedImmediately(t *testing.T) {
	repo := newArtifactRepoStub()
	queue := &queueStub{}
	events := &eventsStub{}
	svc := newTestContentService(repo, newCacheStub(), newStoreStub(), queue, events)

	created, err := svc.Submit(context.Background(), "teacher-1", []UploadItem{
		{OriginalName: "lecture.txt", MimeType: "text/plain", SizeBytes: 10, Reader: strings.NewReader("photosynth")},
		{OriginalName: "quiz-1.txt", MimeType: "text/plain", SizeBytes: 4, Reader: strings.NewReader("quiz")},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, artifact := range created {
		require.Equal(t, models.ArtifactStatusUploaded, artifact.Status)
		require.False(t, artifact.Analysis.Present())
	}
	require.Len(t, queue.jobs, 2)
	require.Equal(t, JobTypeAnalyzeArtifact, queue.jobs[0].Type)

	owned := events.forOwner("teacher-1")
	require.Len(t, owned, 1)
	require.Equal(t, models.EventFilesUploaded, owned[0].Type)
}

func TestContentServiceSubmitValidation(t *testing.T) {
	svc := newTestContentService(newArtifactRepoStub(), newCacheStub(), newStoreStub(), &queueStub{}, &eventsStub{})

	_, err := svc.Submit(context.Background(), "teacher-1", nil)
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), "teacher-1", []UploadItem{
		{OriginalName: "big.txt", MimeType: "text/plain", SizeBytes: 4096, Reader: strings.NewReader("x")},
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), "teacher-1", []UploadItem{
		{OriginalName: "clip.mp4", MimeType: "video/mp4", SizeBytes: 10, Reader: strings.NewReader("x")},
	})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), "teacher-1", []UploadItem{
		{OriginalName: "a.txt", MimeType: "text/plain", SizeBytes: 1, Reader: strings.NewReader("a")},
		{OriginalName: "b.txt", MimeType: "text/plain", SizeBytes: 1, Reader: strings.NewReader("b")},
		{OriginalName: "c.txt", MimeType: "text/plain", SizeBytes: 1, Reader: strings.NewReader("c")},
		{OriginalName: "d.txt", MimeType: "text/plain", SizeBytes: 1, Reader: strings.NewReader("d")},
	})
	require.Error(t, err)
}

func TestContentServiceSubmitQueueSaturationKeepsUpload(t *testing.T) {
	repo := newArtifactRepoStub()
	queue := &queueStub{failErr: appErrors.ErrQueueFull}
	svc := newTestContentService(repo, newCacheStub(), newStoreStub(), queue, &eventsStub{})

	created, err := svc.Submit(context.Background(), "teacher-1", []UploadItem{
		{OriginalName: "lecture.txt", MimeType: "text/plain", SizeBytes: 10, Reader: strings.NewReader("photosynth")},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrQueueFull) || appErrors.FromError(err).Code == appErrors.ErrQueueFull.Code)
	require.Len(t, created, 1)

	stored, getErr := repo.GetByID(context.Background(), created[0].ID)
	require.NoError(t, getErr)
	require.Equal(t, models.ArtifactStatusUploaded, stored.Status)
}

func TestContentServiceListGroupsBySectionAndCaches(t *testing.T) {
	repo := newArtifactRepoStub()
	cache := newCacheStub()
	svc := newTestContentService(repo, cache, newStoreStub(), &queueStub{}, &eventsStub{})

	require.NoError(t, repo.Create(context.Background(), &models.Artifact{OwnerID: "teacher-1", OriginalName: "a.txt", Section: models.SectionNotes}))
	require.NoError(t, repo.Create(context.Background(), &models.Artifact{OwnerID: "teacher-1", OriginalName: "b.txt", Section: models.SectionQuizzes}))
	require.NoError(t, repo.Create(context.Background(), &models.Artifact{OwnerID: "teacher-2", OriginalName: "other.txt"}))

	listing, err := svc.List(context.Background(), "teacher-1", models.ArtifactFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, listing.Total)
	require.Len(t, listing.Sections[models.SectionNotes], 1)
	require.Len(t, listing.Sections[models.SectionQuizzes], 1)
	require.Empty(t, listing.Sections[models.SectionLectures])
	require.Len(t, cache.entries, 1)

	// second read is served from cache even after the repo changes
	require.NoError(t, repo.Create(context.Background(), &models.Artifact{OwnerID: "teacher-1", OriginalName: "c.txt"}))
	cached, err := svc.List(context.Background(), "teacher-1", models.ArtifactFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, cached.Total)
}

func TestContentServiceGetHidesForeignArtifacts(t *testing.T) {
	repo := newArtifactRepoStub()
	svc := newTestContentService(repo, newCacheStub(), newStoreStub(), &queueStub{}, &eventsStub{})

	artifact := &models.Artifact{OwnerID: "teacher-1", OriginalName: "a.txt"}
	require.NoError(t, repo.Create(context.Background(), artifact))

	_, err := svc.Get(context.Background(), "teacher-2", artifact.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	found, err := svc.Get(context.Background(), "teacher-1", artifact.ID)
	require.NoError(t, err)
	require.Equal(t, artifact.ID, found.ID)
}

func TestContentServiceUpdateSection(t *testing.T) {
	repo := newArtifactRepoStub()
	cache := newCacheStub()
	svc := newTestContentService(repo, cache, newStoreStub(), &queueStub{}, &eventsStub{})

	artifact := &models.Artifact{OwnerID: "teacher-1", OriginalName: "a.txt"}
	require.NoError(t, repo.Create(context.Background(), artifact))

	_, err := svc.UpdateSection(context.Background(), "teacher-1", artifact.ID, "archive")
	require.Error(t, err)

	_, err = svc.UpdateSection(context.Background(), "teacher-2", artifact.ID, models.SectionNotes)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	updated, err := svc.UpdateSection(context.Background(), "teacher-1", artifact.ID, models.SectionNotes)
	require.NoError(t, err)
	require.Equal(t, models.SectionNotes, updated.Section)
	require.NotEmpty(t, cache.deletes)
}

func TestContentServiceQuizPDFRequiresProcessedWithCandidates(t *testing.T) {
	repo := newArtifactRepoStub()
	svc := newTestContentService(repo, newCacheStub(), newStoreStub(), &queueStub{}, &eventsStub{})

	pending := &models.Artifact{OwnerID: "teacher-1", OriginalName: "a.txt"}
	require.NoError(t, repo.Create(context.Background(), pending))
	_, _, err := svc.QuizPDF(context.Background(), "teacher-1", pending.ID)
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	ready := &models.Artifact{
		OwnerID:      "teacher-1",
		OriginalName: "bio.txt",
		Status:       models.ArtifactStatusProcessed,
		Title:        "Cell Biology",
		Analysis: models.ArtifactAnalysis{
			Summary: "Cells.",
			Subject: "Science",
			QuizCandidates: []models.QuizCandidate{
				{Question: "Smallest unit of life?", Options: []string{"Cell", "Atom", "Organ", "Tissue"}, Answer: 0},
			},
			AnalyzedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, repo.Create(context.Background(), ready))

	payload, filename, err := svc.QuizPDF(context.Background(), "teacher-1", ready.ID)
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.Contains(t, filename, ready.ID)
}
