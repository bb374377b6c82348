package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/catalog-api/internal/models"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
)

type questionPaperRepoStub struct {
	items     map[string]models.QuestionPaper
	listTotal int
	createErr error
	updateErr error
}

func (s *questionPaperRepoStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.QuestionPaper, int, error) {
	result := []models.QuestionPaper{}
	for _, item := range s.items {
		result = append(result, item)
	}
	total := s.listTotal
	if total == 0 {
		total = len(result)
	}
	return result, total, nil
}

func (s *questionPaperRepoStub) FindByID(ctx context.Context, id string) (*models.QuestionPaper, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *questionPaperRepoStub) Create(ctx context.Context, paper *models.QuestionPaper) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.items == nil {
		s.items = make(map[string]models.QuestionPaper)
	}
	if paper.ID == "" {
		paper.ID = "qp-" + paper.AccessionNumber
	}
	s.items[paper.ID] = *paper
	return nil
}

func (s *questionPaperRepoStub) Update(ctx context.Context, paper *models.QuestionPaper) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.items[paper.ID] = *paper
	return nil
}

func (s *questionPaperRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

type researchPaperRepoStub struct {
	items     map[string]models.ResearchPaper
	createErr error
}

func (s *researchPaperRepoStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.ResearchPaper, int, error) {
	result := []models.ResearchPaper{}
	for _, item := range s.items {
		result = append(result, item)
	}
	return result, len(result), nil
}

func (s *researchPaperRepoStub) FindByID(ctx context.Context, id string) (*models.ResearchPaper, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *researchPaperRepoStub) Create(ctx context.Context, paper *models.ResearchPaper) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.items == nil {
		s.items = make(map[string]models.ResearchPaper)
	}
	if paper.ID == "" {
		paper.ID = "rp-" + paper.AccessionNumber
	}
	s.items[paper.ID] = *paper
	return nil
}

func (s *researchPaperRepoStub) Update(ctx context.Context, paper *models.ResearchPaper) error {
	s.items[paper.ID] = *paper
	return nil
}

func (s *researchPaperRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

type auditLoggerStub struct {
	logs []models.AuditLog
}

func (s *auditLoggerStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newResourceService(qp *questionPaperRepoStub, rp *researchPaperRepoStub, audit *auditLoggerStub) *ResourceService {
	var auditRepo auditLogger
	if audit != nil {
		auditRepo = audit
	}
	return NewResourceService(qp, rp, auditRepo, nil, nil, nil)
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	return appErr.Code
}

func TestResourceServiceListInvalidType(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	_, _, err := svc.List(context.Background(), models.ResourceType("books"), models.ResourceFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidResourceType.Code, appErrCode(t, err))
}

func TestResourceServiceListPagination(t *testing.T) {
	qp := &questionPaperRepoStub{
		items:     map[string]models.QuestionPaper{"qp-1": {ID: "qp-1", AccessionNumber: "QP001"}},
		listTotal: 25,
	}
	svc := newResourceService(qp, &researchPaperRepoStub{}, nil)

	_, pagination, err := svc.List(context.Background(), models.ResourceTypeQuestionPapers, models.ResourceFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.NotNil(t, pagination)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 25, pagination.TotalCount)
	assert.Equal(t, 3, pagination.TotalPages)
}

func TestResourceServiceCreateRequiresAccession(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	_, err := svc.Create(context.Background(), models.ResourceTypeQuestionPapers, CreateResourceRequest{}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrCode(t, err))
}

func TestResourceServiceCreateRejectsUnknownStatus(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	req := CreateResourceRequest{AccessionNumber: "QP001", Status: "lost"}
	_, err := svc.Create(context.Background(), models.ResourceTypeQuestionPapers, req, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrCode(t, err))
}

func TestResourceServiceCreateAcceptsInShelfStatus(t *testing.T) {
	qp := &questionPaperRepoStub{}
	svc := newResourceService(qp, &researchPaperRepoStub{}, nil)

	req := CreateResourceRequest{AccessionNumber: "QP001", Status: "in shelf"}
	created, err := svc.Create(context.Background(), models.ResourceTypeQuestionPapers, req, nil)
	require.NoError(t, err)
	paper := created.(*models.QuestionPaper)
	assert.Equal(t, models.StatusInShelf, paper.Status)
}

func TestResourceServiceCreateDuplicateAccession(t *testing.T) {
	qp := &questionPaperRepoStub{createErr: &pq.Error{Code: "23505"}}
	svc := newResourceService(qp, &researchPaperRepoStub{}, nil)

	req := CreateResourceRequest{AccessionNumber: "QP001"}
	_, err := svc.Create(context.Background(), models.ResourceTypeQuestionPapers, req, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateAccession.Code, appErrCode(t, err))
}

func TestResourceServiceCreateRecordsAudit(t *testing.T) {
	audit := &auditLoggerStub{}
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, audit)

	actor := &models.JWTClaims{UserID: "user-1", Role: models.RoleClerk}
	_, err := svc.Create(context.Background(), models.ResourceTypeQuestionPapers, CreateResourceRequest{AccessionNumber: "QP001"}, actor)
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionCreate, audit.logs[0].Action)
	require.NotNil(t, audit.logs[0].UserID)
	assert.Equal(t, "user-1", *audit.logs[0].UserID)
}

func TestResourceServiceUpdatePatchesOnlyProvidedFields(t *testing.T) {
	qp := &questionPaperRepoStub{items: map[string]models.QuestionPaper{
		"qp-1": {ID: "qp-1", AccessionNumber: "QP001", Year: "2023", Course: "BSc", Subject: "Algebra"},
	}}
	svc := newResourceService(qp, &researchPaperRepoStub{}, nil)

	year := "2024"
	updated, err := svc.Update(context.Background(), "qp-1", UpdateResourceRequest{Year: &year}, nil)
	require.NoError(t, err)

	paper := updated.(*models.QuestionPaper)
	assert.Equal(t, "2024", paper.Year)
	assert.Equal(t, "QP001", paper.AccessionNumber)
	assert.Equal(t, "Algebra", paper.Subject)
	assert.Equal(t, "qp-1", paper.ID)
}

func TestResourceServiceUpdateProbesResearchPapers(t *testing.T) {
	rp := &researchPaperRepoStub{items: map[string]models.ResearchPaper{
		"rp-1": {ID: "rp-1", AccessionNumber: "RP001", Title: "Graph Mining"},
	}}
	svc := newResourceService(&questionPaperRepoStub{}, rp, nil)

	title := "Graph Mining II"
	updated, err := svc.Update(context.Background(), "rp-1", UpdateResourceRequest{Title: &title}, nil)
	require.NoError(t, err)

	paper := updated.(*models.ResearchPaper)
	assert.Equal(t, "Graph Mining II", paper.Title)
}

func TestResourceServiceUpdateNotFound(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	_, err := svc.Update(context.Background(), "missing", UpdateResourceRequest{}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrCode(t, err))
}

func TestResourceServiceUpdateRejectsEmptyAccession(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	empty := ""
	_, err := svc.Update(context.Background(), "qp-1", UpdateResourceRequest{AccessionNumber: &empty}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrCode(t, err))
}

func TestResourceServiceDeleteProbeOrder(t *testing.T) {
	qp := &questionPaperRepoStub{items: map[string]models.QuestionPaper{"shared": {ID: "shared"}}}
	rp := &researchPaperRepoStub{items: map[string]models.ResearchPaper{"shared": {ID: "shared"}}}
	svc := newResourceService(qp, rp, nil)

	deleted, err := svc.Delete(context.Background(), "shared", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceTypeQuestionPapers, deleted.Type)
	assert.Empty(t, qp.items)
	assert.Len(t, rp.items, 1)
}

func TestResourceServiceDeleteNotFound(t *testing.T) {
	qp := &questionPaperRepoStub{items: map[string]models.QuestionPaper{"qp-1": {ID: "qp-1"}}}
	rp := &researchPaperRepoStub{}
	svc := newResourceService(qp, rp, nil)

	_, err := svc.Delete(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrCode(t, err))
	assert.Len(t, qp.items, 1)
}

func TestResourceServiceGetNotFound(t *testing.T) {
	svc := newResourceService(&questionPaperRepoStub{}, &researchPaperRepoStub{}, nil)

	_, err := svc.Get(context.Background(), models.ResourceTypeResearchPapers, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrCode(t, err))
}
