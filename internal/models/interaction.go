package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// InteractionStatus tracks the approval lifecycle of an AI answer.
type InteractionStatus string

const (
	InteractionStatusPending  InteractionStatus = "pending"
	InteractionStatusAnswered InteractionStatus = "answered"
	InteractionStatusApproved InteractionStatus = "approved"
)

// CanTransition is the single source of truth for legal status moves.
// pending -> answered -> approved.
func (s InteractionStatus) CanTransition(to InteractionStatus) bool {
	switch s {
	case InteractionStatusPending:
		return to == InteractionStatusAnswered
	case InteractionStatusAnswered:
		return to == InteractionStatusApproved
	default:
		return false
	}
}

// ResponseSource identifies where an answer came from.
type ResponseSource string

const (
	ResponseSourceGenerated ResponseSource = "generated"
	ResponseSourceManual    ResponseSource = "manual"
)

// InteractionResponse is the AI (or manually supplied) answer, stored as JSONB.
type InteractionResponse struct {
	Content    string         `json:"content"`
	Source     ResponseSource `json:"source"`
	Confidence float64        `json:"confidence"`
	Approved   bool           `json:"approved"`
	ApprovedAt *time.Time     `json:"approvedAt,omitempty"`
}

// Present reports whether a response has been recorded.
func (r InteractionResponse) Present() bool {
	return r.Content != ""
}

// Value marshals the response to JSON for persistence.
func (r InteractionResponse) Value() (driver.Value, error) {
	if !r.Present() {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal interaction response: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the response struct.
func (r *InteractionResponse) Scan(value interface{}) error {
	if value == nil {
		*r = InteractionResponse{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for InteractionResponse", value)
	}
	if len(data) == 0 {
		*r = InteractionResponse{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal interaction response: %w", err)
	}
	return nil
}

// Interaction records one question/answer exchange with its approval state.
// SubjectID is the asking student; nil means the teacher authored it.
type Interaction struct {
	ID        string              `db:"id" json:"id"`
	OwnerID   string              `db:"owner_id" json:"ownerId"`
	SubjectID *string             `db:"subject_id" json:"subjectId,omitempty"`
	Question  string              `db:"question" json:"question"`
	Context   *string             `db:"context" json:"context,omitempty"`
	Response  InteractionResponse `db:"response" json:"response"`
	Status    InteractionStatus   `db:"status" json:"status"`
	CreatedAt time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time           `db:"updated_at" json:"updatedAt"`
}

// InteractionFilter narrows listing queries.
type InteractionFilter struct {
	Status    InteractionStatus
	SubjectID string
	Limit     int
	Offset    int
}
