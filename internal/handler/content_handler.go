package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edupilot/edupilot-api/internal/dto"
	"github.com/edupilot/edupilot-api/internal/models"
	"github.com/edupilot/edupilot-api/internal/service"
	appErrors "github.com/edupilot/edupilot-api/pkg/errors"
	"github.com/edupilot/edupilot-api/pkg/response"
)

type contentService interface {
	Submit(ctx context.Context, ownerID string, items []service.UploadItem) ([]models.Artifact, error)
	List(ctx context.Context, ownerID string, filter models.ArtifactFilter) (*service.ContentListing, error)
	Get(ctx context.Context, ownerID, id string) (*models.Artifact, error)
	UpdateSection(ctx context.Context, ownerID, id string, section models.ArtifactSection) (*models.Artifact, error)
	QuizPDF(ctx context.Context, ownerID, id string) ([]byte, string, error)
}

// ContentHandler manages upload and content HTTP endpoints.
type ContentHandler struct {
	service contentService
}

// NewContentHandler constructs the handler.
func NewContentHandler(service contentService) *ContentHandler {
	return &ContentHandler{service: service}
}

// Upload accepts a multipart batch under the "files" field, records each file,
// and acknowledges before analysis runs.
func (h *ContentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files provided"))
		return
	}

	items := make([]service.UploadItem, 0, len(headers))
	closers := make([]func() error, 0, len(headers))
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()
	for _, header := range headers {
		src, openErr := header.Open()
		if openErr != nil {
			response.Error(c, appErrors.Wrap(openErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
			return
		}
		closers = append(closers, src.Close)
		items = append(items, service.UploadItem{
			OriginalName: header.Filename,
			MimeType:     header.Header.Get("Content-Type"),
			SizeBytes:    header.Size,
			Reader:       src,
		})
	}

	created, err := h.service.Submit(c.Request.Context(), claims.UserID, items)
	if err != nil {
		// a mid-batch failure still accepted the earlier files; report them
		// so the client knows not to resubmit those
		if len(created) > 0 {
			response.ErrorWithData(c, err, gin.H{
				"files": dto.NewArtifactViews(created),
				"count": len(created),
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"files": dto.NewArtifactViews(created),
		"count": len(created),
	})
}

// List returns the owner's content grouped by section.
func (h *ContentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.ContentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid listing query"))
		return
	}

	listing, err := h.service.List(c.Request.Context(), claims.UserID, query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, listing)
}

// Get returns one artifact with its analysis when available.
func (h *ContentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	artifact, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewArtifactView(*artifact))
}

// UpdateSection manually reclassifies an artifact.
func (h *ContentHandler) UpdateSection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "section is required"))
		return
	}

	artifact, err := h.service.UpdateSection(c.Request.Context(), claims.UserID, c.Param("id"), models.ArtifactSection(req.Section))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewArtifactView(*artifact))
}

// QuizPDF streams the generated quiz document.
func (h *ContentHandler) QuizPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payload, filename, err := h.service.QuizPDF(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}
