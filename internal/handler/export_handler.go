package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/service"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
	"github.com/campuslib/catalog-api/pkg/response"
)

// ExportHandler exposes the asynchronous catalog export endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

type createExportPayload struct {
	ResourceType string `json:"resource_type" binding:"required"`
	Format       string `json:"format" binding:"required"`
	Year         string `json:"year"`
	Course       string `json:"course"`
	Semester     string `json:"semester"`
	Subject      string `json:"subject"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Status       string `json:"status"`
}

// Create godoc
// @Summary Queue a catalog export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body createExportPayload true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var payload createExportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), service.CreateExportRequest{
		ResourceType: models.ResourceType(payload.ResourceType),
		Format:       models.ExportFormat(payload.Format),
		Filter: models.ResourceFilter{
			Year:     payload.Year,
			Course:   payload.Course,
			Semester: payload.Semester,
			Subject:  payload.Subject,
			Title:    payload.Title,
			Author:   payload.Author,
			Status:   payload.Status,
		},
	}, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Get godoc
// @Summary Get export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/exports/{id} [get]
func (h *ExportHandler) Get(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download an exported file
// @Description Streams the rendered export referenced by a signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	download, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}
