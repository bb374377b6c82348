package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/catalog-api/internal/middleware"
	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/service"
)

type qpRepoStub struct {
	items map[string]models.QuestionPaper
}

func (s *qpRepoStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.QuestionPaper, int, error) {
	result := []models.QuestionPaper{}
	for _, item := range s.items {
		result = append(result, item)
	}
	return result, len(result), nil
}

func (s *qpRepoStub) FindByID(ctx context.Context, id string) (*models.QuestionPaper, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *qpRepoStub) Create(ctx context.Context, paper *models.QuestionPaper) error {
	if s.items == nil {
		s.items = make(map[string]models.QuestionPaper)
	}
	if paper.ID == "" {
		paper.ID = "qp-" + paper.AccessionNumber
	}
	s.items[paper.ID] = *paper
	return nil
}

func (s *qpRepoStub) Update(ctx context.Context, paper *models.QuestionPaper) error {
	s.items[paper.ID] = *paper
	return nil
}

func (s *qpRepoStub) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

type rpRepoStub struct {
	items map[string]models.ResearchPaper
}

func (s *rpRepoStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.ResearchPaper, int, error) {
	return nil, 0, nil
}

func (s *rpRepoStub) FindByID(ctx context.Context, id string) (*models.ResearchPaper, error) {
	if item, ok := s.items[id]; ok {
		return &item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *rpRepoStub) Create(ctx context.Context, paper *models.ResearchPaper) error { return nil }
func (s *rpRepoStub) Update(ctx context.Context, paper *models.ResearchPaper) error { return nil }
func (s *rpRepoStub) Delete(ctx context.Context, id string) (bool, error)           { return false, nil }

func newResourceHandlerForTest(qp *qpRepoStub) *ResourceHandler {
	svc := service.NewResourceService(qp, &rpRepoStub{}, nil, nil, nil, nil)
	return NewResourceHandler(svc)
}

func TestResourceHandlerListInvalidType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResourceHandlerForTest(&qpRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/resources/books", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "type", Value: "books"}}

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_RESOURCE_TYPE", body.Error.Code)
}

func TestResourceHandlerListReturnsPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResourceHandlerForTest(&qpRepoStub{items: map[string]models.QuestionPaper{
		"qp-1": {ID: "qp-1", AccessionNumber: "QP001"},
	}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/resources/question-papers?page=1&limit=10", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "type", Value: "question-papers"}}

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data       []models.QuestionPaper `json:"data"`
		Pagination *models.Pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 1, body.Pagination.Page)
	assert.Equal(t, 10, body.Pagination.PageSize)
	assert.Equal(t, 1, body.Pagination.TotalCount)
}

func TestResourceHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResourceHandlerForTest(&qpRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/admin/resources/question-papers", bytes.NewReader([]byte(`not-json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "type", Value: "question-papers"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResourceHandlerCreateAndDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	qp := &qpRepoStub{}
	handler := newResourceHandlerForTest(qp)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.CreateResourceRequest{AccessionNumber: "QP001", Year: "2024"})
	req, _ := http.NewRequest(http.MethodPost, "/admin/resources/question-papers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "type", Value: "question-papers"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, qp.items, 1)

	var created string
	for id := range qp.items {
		created = id
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	req, _ = http.NewRequest(http.MethodDelete, "/resources/"+created, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: created}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, qp.items)

	var deleteBody struct {
		Data struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deleteBody))
	assert.Equal(t, created, deleteBody.Data.ID)
	assert.Equal(t, "question-papers", deleteBody.Data.Type)
	assert.Equal(t, "resource deleted", deleteBody.Meta["message"])
}

func TestResourceHandlerUpdateNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResourceHandlerForTest(&qpRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(map[string]string{"year": "2025"})
	req, _ := http.NewRequest(http.MethodPut, "/resources/missing", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Update(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
