package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/service"
	"github.com/campuslib/catalog-api/pkg/response"
)

// AccessionHandler exposes the accession number allocator.
type AccessionHandler struct {
	service *service.AccessionService
}

// NewAccessionHandler constructs an accession handler.
func NewAccessionHandler(svc *service.AccessionService) *AccessionHandler {
	return &AccessionHandler{service: svc}
}

// PeekNext godoc
// @Summary Preview the next accession number
// @Description Derives the next accession number for a resource type without reserving it
// @Tags Accessions
// @Produce json
// @Param type path string true "Resource type" Enums(question-papers, research-papers)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /resources/{type}/next-accession [get]
func (h *AccessionHandler) PeekNext(c *gin.Context) {
	accession, err := h.service.PeekNext(c.Request.Context(), models.ResourceType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"accession_number": accession}, nil)
}

// Reserve godoc
// @Summary Reserve an accession number
// @Description Atomically consumes the next accession number for a resource type
// @Tags Accessions
// @Produce json
// @Param type path string true "Resource type" Enums(question-papers, research-papers)
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/resources/{type}/accessions [post]
func (h *AccessionHandler) Reserve(c *gin.Context) {
	accession, err := h.service.Reserve(c.Request.Context(), models.ResourceType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"accession_number": accession})
}
