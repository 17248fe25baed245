package dto

import "github.com/edupilot/edupilot-api/internal/models"

// ContentListQuery carries listing filters from the query string.
type ContentListQuery struct {
	Section string `form:"section"`
	Status  string `form:"status"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// Filter converts the query into a repository filter.
func (q ContentListQuery) Filter() models.ArtifactFilter {
	return models.ArtifactFilter{
		Section: models.ArtifactSection(q.Section),
		Status:  models.ArtifactStatus(q.Status),
		Limit:   q.Limit,
		Offset:  q.Offset,
	}
}

// UpdateSectionRequest reclassifies an artifact.
type UpdateSectionRequest struct {
	Section string `json:"section" binding:"required"`
}

// ArtifactView is the API shape of an artifact, with the analysis inlined.
type ArtifactView struct {
	models.Artifact
	Analysis *models.ArtifactAnalysis `json:"analysis,omitempty"`
}

// NewArtifactView hides the absent analysis instead of rendering zero values.
func NewArtifactView(artifact models.Artifact) ArtifactView {
	view := ArtifactView{Artifact: artifact}
	if artifact.Analysis.Present() {
		analysis := artifact.Analysis
		view.Analysis = &analysis
	}
	return view
}

// NewArtifactViews maps a slice of artifacts.
func NewArtifactViews(artifacts []models.Artifact) []ArtifactView {
	views := make([]ArtifactView, 0, len(artifacts))
	for _, artifact := range artifacts {
		views = append(views, NewArtifactView(artifact))
	}
	return views
}
