package dto

import "github.com/edupilot/edupilot-api/internal/models"

// AskRequest carries an incoming question.
type AskRequest struct {
	Question  string `json:"question" binding:"required"`
	Context   string `json:"context"`
	SubjectID string `json:"subjectId"`
}

// InteractionListQuery carries listing filters from the query string.
type InteractionListQuery struct {
	Status    string `form:"status"`
	SubjectID string `form:"subjectId"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// Filter converts the query into a repository filter.
func (q InteractionListQuery) Filter() models.InteractionFilter {
	return models.InteractionFilter{
		Status:    models.InteractionStatus(q.Status),
		SubjectID: q.SubjectID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}
