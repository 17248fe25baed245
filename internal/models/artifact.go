package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactSection classifies uploaded material for the teacher dashboard.
type ArtifactSection string

const (
	SectionLectures    ArtifactSection = "lectures"
	SectionAssignments ArtifactSection = "assignments"
	SectionNotes       ArtifactSection = "notes"
	SectionResources   ArtifactSection = "resources"
	SectionQuizzes     ArtifactSection = "quizzes"
)

// Sections lists every valid section in display order.
func Sections() []ArtifactSection {
	return []ArtifactSection{SectionLectures, SectionAssignments, SectionNotes, SectionResources, SectionQuizzes}
}

// IsValidSection reports whether the value names a known section.
func IsValidSection(s ArtifactSection) bool {
	switch s {
	case SectionLectures, SectionAssignments, SectionNotes, SectionResources, SectionQuizzes:
		return true
	default:
		return false
	}
}

// ArtifactStatus captures the content pipeline lifecycle states.
type ArtifactStatus string

const (
	ArtifactStatusUploaded   ArtifactStatus = "uploaded"
	ArtifactStatusProcessing ArtifactStatus = "processing"
	ArtifactStatusProcessed  ArtifactStatus = "processed"
	ArtifactStatusFailed     ArtifactStatus = "failed"
)

// CanTransition is the single source of truth for legal status moves.
// uploaded -> processing -> {processed, failed}; terminal states never move.
func (s ArtifactStatus) CanTransition(to ArtifactStatus) bool {
	switch s {
	case ArtifactStatusUploaded:
		return to == ArtifactStatusProcessing
	case ArtifactStatusProcessing:
		return to == ArtifactStatusProcessed || to == ArtifactStatusFailed
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s ArtifactStatus) Terminal() bool {
	return s == ArtifactStatusProcessed || s == ArtifactStatusFailed
}

// QuizCandidate is one AI-suggested quiz question attached to an analysis.
type QuizCandidate struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"correctAnswer"`
	Explanation string   `json:"explanation,omitempty"`
}

// ArtifactAnalysis is the derived AI analysis persisted as JSONB.
// It is written exactly once, when processing succeeds.
type ArtifactAnalysis struct {
	Summary        string          `json:"summary"`
	Tags           []string        `json:"tags"`
	Difficulty     string          `json:"difficulty,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	QuizCandidates []QuizCandidate `json:"quizCandidates,omitempty"`
	RawContentRef  string          `json:"rawContentRef,omitempty"`
	AnalyzedAt     time.Time       `json:"analyzedAt"`
}

// Present reports whether an analysis has been recorded.
func (a ArtifactAnalysis) Present() bool {
	return !a.AnalyzedAt.IsZero()
}

// Value marshals the analysis to JSON for persistence.
func (a ArtifactAnalysis) Value() (driver.Value, error) {
	if !a.Present() {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact analysis: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the analysis struct.
func (a *ArtifactAnalysis) Scan(value interface{}) error {
	if value == nil {
		*a = ArtifactAnalysis{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ArtifactAnalysis", value)
	}
	if len(data) == 0 {
		*a = ArtifactAnalysis{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal artifact analysis: %w", err)
	}
	return nil
}

// Artifact represents one uploaded file plus its derived analysis.
type Artifact struct {
	ID            string           `db:"id" json:"id"`
	OwnerID       string           `db:"owner_id" json:"ownerId"`
	OriginalName  string           `db:"original_name" json:"originalName"`
	StoredName    string           `db:"stored_name" json:"-"`
	MimeType      string           `db:"mime_type" json:"mimeType"`
	SizeBytes     int64            `db:"size_bytes" json:"sizeBytes"`
	Section       ArtifactSection  `db:"section" json:"section"`
	Status        ArtifactStatus   `db:"status" json:"status"`
	Title         string           `db:"title" json:"title,omitempty"`
	Analysis      ArtifactAnalysis `db:"analysis" json:"-"`
	FailureReason *string          `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updatedAt"`
}

// ArtifactFilter narrows listing queries.
type ArtifactFilter struct {
	Section ArtifactSection
	Status  ArtifactStatus
	Limit   int
	Offset  int
}
