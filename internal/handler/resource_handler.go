package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/service"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
	"github.com/campuslib/catalog-api/pkg/response"
)

// ResourceHandler handles catalog record endpoints.
type ResourceHandler struct {
	service *service.ResourceService
}

// NewResourceHandler constructs a resource handler.
func NewResourceHandler(svc *service.ResourceService) *ResourceHandler {
	return &ResourceHandler{service: svc}
}

// List godoc
// @Summary List catalog records
// @Tags Resources
// @Produce json
// @Param type path string true "Resource type" Enums(question-papers, research-papers)
// @Param year query string false "Publication year"
// @Param course query string false "Course code, 'All' disables"
// @Param semester query string false "Semester, 'All' disables"
// @Param subject query string false "Subject substring"
// @Param title query string false "Title substring"
// @Param author query string false "Author substring"
// @Param link query string false "Link substring"
// @Param status query string false "Status, 'All' disables"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /resources/{type} [get]
func (h *ResourceHandler) List(c *gin.Context) {
	var filter models.ResourceFilter
	filter.Year = c.Query("year")
	filter.Course = c.Query("course")
	filter.Semester = c.Query("semester")
	filter.Subject = strings.TrimSpace(c.Query("subject"))
	filter.Title = strings.TrimSpace(c.Query("title"))
	filter.Author = strings.TrimSpace(c.Query("author"))
	filter.Link = strings.TrimSpace(c.Query("link"))
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.PageSize = limit
	}

	items, pagination, err := h.service.List(c.Request.Context(), models.ResourceType(c.Param("type")), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a catalog record by id
// @Tags Resources
// @Produce json
// @Param type path string true "Resource type" Enums(question-papers, research-papers)
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{type}/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), models.ResourceType(c.Param("type")), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create a catalog record
// @Tags Resources
// @Accept json
// @Produce json
// @Param type path string true "Resource type" Enums(question-papers, research-papers)
// @Param payload body service.CreateResourceRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/resources/{type} [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	var req service.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.Create(c.Request.Context(), models.ResourceType(c.Param("type")), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Update a catalog record by id
// @Description Locates the record by id across collections and applies a partial patch
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateResourceRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	var req service.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a catalog record by id
// @Description Locates the record by id across collections and removes it
// @Tags Resources
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	deleted, err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deleted, nil, map[string]interface{}{"message": "resource deleted"})
}
