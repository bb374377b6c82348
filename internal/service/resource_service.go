package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/repository"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
)

type questionPaperRepository interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.QuestionPaper, int, error)
	FindByID(ctx context.Context, id string) (*models.QuestionPaper, error)
	Create(ctx context.Context, paper *models.QuestionPaper) error
	Update(ctx context.Context, paper *models.QuestionPaper) error
	Delete(ctx context.Context, id string) (bool, error)
}

type researchPaperRepository interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.ResearchPaper, int, error)
	FindByID(ctx context.Context, id string) (*models.ResearchPaper, error)
	Create(ctx context.Context, paper *models.ResearchPaper) error
	Update(ctx context.Context, paper *models.ResearchPaper) error
	Delete(ctx context.Context, id string) (bool, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateResourceRequest carries the upload payload for either record
// kind; fields that do not apply to the targeted type are ignored. The
// accession number is supplied by the client, pre-fetched from the
// allocator.
type CreateResourceRequest struct {
	AccessionNumber string `json:"accession_number" validate:"required"`
	Year            string `json:"year"`
	Course          string `json:"course"`
	Semester        string `json:"semester"`
	Subject         string `json:"subject"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Abstract        string `json:"abstract"`
	Link            string `json:"link"`
	Status          string `json:"status"`
}

// UpdateResourceRequest is a partial patch; nil fields are untouched.
// System-managed fields (id, timestamps) are not representable here and
// therefore can never be overwritten by callers.
type UpdateResourceRequest struct {
	AccessionNumber *string `json:"accession_number"`
	Year            *string `json:"year"`
	Course          *string `json:"course"`
	Semester        *string `json:"semester"`
	Subject         *string `json:"subject"`
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	Abstract        *string `json:"abstract"`
	Link            *string `json:"link"`
	Status          *string `json:"status"`
}

// DeletedResource confirms which record a delete removed.
type DeletedResource struct {
	ID   string              `json:"id"`
	Type models.ResourceType `json:"type"`
}

// ResourceService owns the catalog store workflows.
type ResourceService struct {
	questionPapers questionPaperRepository
	researchPapers researchPaperRepository
	audit          auditLogger
	cache          *CacheService
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewResourceService constructs a resource service.
func NewResourceService(qp questionPaperRepository, rp researchPaperRepository, audit auditLogger, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{
		questionPapers: qp,
		researchPapers: rp,
		audit:          audit,
		cache:          cache,
		validator:      validate,
		logger:         logger,
	}
}

func validStatus(raw string) bool {
	switch models.ResourceStatus(raw) {
	case models.StatusAvailable, models.StatusInShelf, models.StatusDemolished:
		return true
	}
	return false
}

func invalidTypeError(resourceType models.ResourceType) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidResourceType, fmt.Sprintf("invalid resource type: %q", resourceType))
}

func storeError(err error, message string) *appErrors.Error {
	if repository.IsUnavailable(err) {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

type questionPaperPage struct {
	Items []models.QuestionPaper `json:"items"`
	Total int                    `json:"total"`
}

type researchPaperPage struct {
	Items []models.ResearchPaper `json:"items"`
	Total int                    `json:"total"`
}

func listCacheKey(resourceType models.ResourceType, filter models.ResourceFilter) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%d|%d",
		filter.Year, filter.Course, filter.Semester, filter.Subject,
		filter.Title, filter.Author, filter.Link, filter.Status,
		filter.Page, filter.PageSize)
	return fmt.Sprintf("catalog:%s:list:%x", resourceType, h.Sum64())
}

func cachePattern(resourceType models.ResourceType) string {
	return fmt.Sprintf("catalog:%s:*", resourceType)
}

// List returns one page of records ordered by updated_at descending.
func (s *ResourceService) List(ctx context.Context, resourceType models.ResourceType, filter models.ResourceFilter) (interface{}, *models.Pagination, error) {
	if !resourceType.Valid() {
		return nil, nil, invalidTypeError(resourceType)
	}
	filter.Normalize()
	key := listCacheKey(resourceType, filter)

	switch resourceType {
	case models.ResourceTypeQuestionPapers:
		var cached questionPaperPage
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Items, models.NewPagination(filter.Page, filter.PageSize, cached.Total), nil
		}
		items, total, err := s.questionPapers.List(ctx, filter)
		if err != nil {
			return nil, nil, storeError(err, "failed to list question papers")
		}
		if err := s.cache.Set(ctx, key, questionPaperPage{Items: items, Total: total}, 0); err != nil {
			s.logger.Warn("cache list result failed", zap.Error(err))
		}
		return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
	default:
		var cached researchPaperPage
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Items, models.NewPagination(filter.Page, filter.PageSize, cached.Total), nil
		}
		items, total, err := s.researchPapers.List(ctx, filter)
		if err != nil {
			return nil, nil, storeError(err, "failed to list research papers")
		}
		if err := s.cache.Set(ctx, key, researchPaperPage{Items: items, Total: total}, 0); err != nil {
			s.logger.Warn("cache list result failed", zap.Error(err))
		}
		return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
	}
}

// Get returns a single record of the stated type.
func (s *ResourceService) Get(ctx context.Context, resourceType models.ResourceType, id string) (interface{}, error) {
	if !resourceType.Valid() {
		return nil, invalidTypeError(resourceType)
	}

	switch resourceType {
	case models.ResourceTypeQuestionPapers:
		paper, err := s.questionPapers.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
			}
			return nil, storeError(err, "failed to load question paper")
		}
		return paper, nil
	default:
		paper, err := s.researchPapers.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
			}
			return nil, storeError(err, "failed to load research paper")
		}
		return paper, nil
	}
}

// Create inserts a new record carrying a pre-fetched accession number.
// The per-type unique index is the arbiter: when two clients race with
// the same peeked number, the second insert fails with
// DUPLICATE_ACCESSION_NUMBER and nothing is stored for it.
func (s *ResourceService) Create(ctx context.Context, resourceType models.ResourceType, req CreateResourceRequest, actor *models.JWTClaims) (interface{}, error) {
	if !resourceType.Valid() {
		return nil, invalidTypeError(resourceType)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "accession number is required")
	}
	if req.Status != "" && !validStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status: %q", req.Status))
	}

	switch resourceType {
	case models.ResourceTypeQuestionPapers:
		paper := &models.QuestionPaper{
			AccessionNumber: req.AccessionNumber,
			Year:            req.Year,
			Course:          req.Course,
			Semester:        req.Semester,
			Subject:         req.Subject,
			Link:            req.Link,
			Status:          models.ResourceStatus(req.Status),
		}
		if err := s.questionPapers.Create(ctx, paper); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrDuplicateAccession, fmt.Sprintf("accession number %s already exists", req.AccessionNumber))
			}
			return nil, storeError(err, "failed to create question paper")
		}
		s.recordAudit(ctx, actor, models.AuditActionCreate, resourceType, paper.ID, paper)
		s.invalidate(ctx, resourceType)
		return paper, nil
	default:
		paper := &models.ResearchPaper{
			AccessionNumber: req.AccessionNumber,
			Title:           req.Title,
			Author:          req.Author,
			Abstract:        req.Abstract,
			Link:            req.Link,
			Status:          models.ResourceStatus(req.Status),
		}
		if err := s.researchPapers.Create(ctx, paper); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrDuplicateAccession, fmt.Sprintf("accession number %s already exists", req.AccessionNumber))
			}
			return nil, storeError(err, "failed to create research paper")
		}
		s.recordAudit(ctx, actor, models.AuditActionCreate, resourceType, paper.ID, paper)
		s.invalidate(ctx, resourceType)
		return paper, nil
	}
}

// Update patches a record located by id alone. Collections are probed
// in the fixed store order and the first match wins; ids are UUIDs, so
// a cross-type collision cannot occur in practice.
func (s *ResourceService) Update(ctx context.Context, id string, req UpdateResourceRequest, actor *models.JWTClaims) (interface{}, error) {
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status: %q", *req.Status))
	}
	if req.AccessionNumber != nil && *req.AccessionNumber == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "accession number cannot be empty")
	}

	paper, err := s.questionPapers.FindByID(ctx, id)
	if err == nil {
		applyQuestionPaperPatch(paper, req)
		if err := s.questionPapers.Update(ctx, paper); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrDuplicateAccession, fmt.Sprintf("accession number %s already exists", paper.AccessionNumber))
			}
			return nil, storeError(err, "failed to update question paper")
		}
		s.recordAudit(ctx, actor, models.AuditActionUpdate, models.ResourceTypeQuestionPapers, paper.ID, req)
		s.invalidate(ctx, models.ResourceTypeQuestionPapers)
		return paper, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "failed to load question paper")
	}

	research, err := s.researchPapers.FindByID(ctx, id)
	if err == nil {
		applyResearchPaperPatch(research, req)
		if err := s.researchPapers.Update(ctx, research); err != nil {
			if repository.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrDuplicateAccession, fmt.Sprintf("accession number %s already exists", research.AccessionNumber))
			}
			return nil, storeError(err, "failed to update research paper")
		}
		s.recordAudit(ctx, actor, models.AuditActionUpdate, models.ResourceTypeResearchPapers, research.ID, req)
		s.invalidate(ctx, models.ResourceTypeResearchPapers)
		return research, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "failed to load research paper")
	}

	return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
}

// Delete removes a record located by id alone, probing collections in
// the fixed store order.
func (s *ResourceService) Delete(ctx context.Context, id string, actor *models.JWTClaims) (*DeletedResource, error) {
	deleted, err := s.questionPapers.Delete(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to delete question paper")
	}
	if deleted {
		s.recordAudit(ctx, actor, models.AuditActionDelete, models.ResourceTypeQuestionPapers, id, nil)
		s.invalidate(ctx, models.ResourceTypeQuestionPapers)
		return &DeletedResource{ID: id, Type: models.ResourceTypeQuestionPapers}, nil
	}

	deleted, err = s.researchPapers.Delete(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to delete research paper")
	}
	if deleted {
		s.recordAudit(ctx, actor, models.AuditActionDelete, models.ResourceTypeResearchPapers, id, nil)
		s.invalidate(ctx, models.ResourceTypeResearchPapers)
		return &DeletedResource{ID: id, Type: models.ResourceTypeResearchPapers}, nil
	}

	return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
}

func applyQuestionPaperPatch(paper *models.QuestionPaper, req UpdateResourceRequest) {
	if req.AccessionNumber != nil {
		paper.AccessionNumber = *req.AccessionNumber
	}
	if req.Year != nil {
		paper.Year = *req.Year
	}
	if req.Course != nil {
		paper.Course = *req.Course
	}
	if req.Semester != nil {
		paper.Semester = *req.Semester
	}
	if req.Subject != nil {
		paper.Subject = *req.Subject
	}
	if req.Link != nil {
		paper.Link = *req.Link
	}
	if req.Status != nil {
		paper.Status = models.ResourceStatus(*req.Status)
	}
}

func applyResearchPaperPatch(paper *models.ResearchPaper, req UpdateResourceRequest) {
	if req.AccessionNumber != nil {
		paper.AccessionNumber = *req.AccessionNumber
	}
	if req.Title != nil {
		paper.Title = *req.Title
	}
	if req.Author != nil {
		paper.Author = *req.Author
	}
	if req.Abstract != nil {
		paper.Abstract = *req.Abstract
	}
	if req.Link != nil {
		paper.Link = *req.Link
	}
	if req.Status != nil {
		paper.Status = models.ResourceStatus(*req.Status)
	}
}

func (s *ResourceService) recordAudit(ctx context.Context, actor *models.JWTClaims, action models.AuditAction, resourceType models.ResourceType, recordID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   string(resourceType),
		ResourceID: &recordID,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			log.NewValues = raw
		}
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}

func (s *ResourceService) invalidate(ctx context.Context, resourceType models.ResourceType) {
	if err := s.cache.Invalidate(ctx, cachePattern(resourceType)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("resource_type", string(resourceType)), zap.Error(err))
	}
}
