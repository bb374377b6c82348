package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/repository"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
	"github.com/campuslib/catalog-api/pkg/jobs"
	"github.com/campuslib/catalog-api/pkg/storage"
)

type exportJobStoreStub struct {
	jobs map[string]models.ExportJob
}

func newExportJobStoreStub() *exportJobStoreStub {
	return &exportJobStoreStub{jobs: make(map[string]models.ExportJob)}
}

func (s *exportJobStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	s.jobs[job.ID] = *job
	return nil
}

func (s *exportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	if job, ok := s.jobs[id]; ok {
		j := job
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (s *exportJobStoreStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job := s.jobs[id]
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	s.jobs[id] = job
	return nil
}

func (s *exportJobStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var result []models.ExportJob
	for _, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			result = append(result, job)
		}
	}
	return result, nil
}

func newExportServiceForTest(t *testing.T, store *exportJobStoreStub, qp *questionPaperRepoStub) *ExportService {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(store, qp, &researchPaperRepoStub{}, local, signer, ExportQueueConfig{Workers: 1}, nil)
}

func TestExportServiceCreateJobInvalidType(t *testing.T) {
	svc := newExportServiceForTest(t, newExportJobStoreStub(), &questionPaperRepoStub{})

	_, err := svc.CreateJob(context.Background(), CreateExportRequest{
		ResourceType: models.ResourceType("books"),
		Format:       models.ExportFormatCSV,
	}, nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidResourceType.Code, appErr.Code)
}

func TestExportServiceCreateJobInvalidFormat(t *testing.T) {
	svc := newExportServiceForTest(t, newExportJobStoreStub(), &questionPaperRepoStub{})

	_, err := svc.CreateJob(context.Background(), CreateExportRequest{
		ResourceType: models.ResourceTypeQuestionPapers,
		Format:       models.ExportFormat("xlsx"),
	}, nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportServiceProcessRendersCSV(t *testing.T) {
	store := newExportJobStoreStub()
	qp := &questionPaperRepoStub{items: map[string]models.QuestionPaper{
		"qp-1": {ID: "qp-1", AccessionNumber: "QP001", Year: "2024", Subject: "Databases", Status: models.StatusAvailable},
	}}
	svc := newExportServiceForTest(t, store, qp)

	job := models.ExportJob{
		ID:           "job-1",
		ResourceType: models.ResourceTypeQuestionPapers,
		Format:       models.ExportFormatCSV,
		Status:       models.ExportStatusQueued,
	}
	store.jobs[job.ID] = job

	require.NoError(t, svc.process(context.Background(), jobs.Task{ID: job.ID, Kind: exportJobType}))

	processed := store.jobs[job.ID]
	assert.Equal(t, models.ExportStatusDone, processed.Status)
	require.NotNil(t, processed.FilePath)
	require.NotNil(t, processed.ResultURL)
	assert.Contains(t, *processed.ResultURL, "token=")
	require.NotNil(t, processed.FinishedAt)
}

func TestExportServiceDownloadRoundTrip(t *testing.T) {
	store := newExportJobStoreStub()
	qp := &questionPaperRepoStub{items: map[string]models.QuestionPaper{
		"qp-1": {ID: "qp-1", AccessionNumber: "QP001", Year: "2024"},
	}}
	svc := newExportServiceForTest(t, store, qp)

	job := models.ExportJob{
		ID:           "job-1",
		ResourceType: models.ResourceTypeQuestionPapers,
		Format:       models.ExportFormatCSV,
		Status:       models.ExportStatusQueued,
	}
	store.jobs[job.ID] = job
	require.NoError(t, svc.process(context.Background(), jobs.Task{ID: job.ID, Kind: exportJobType}))

	resultURL := *store.jobs[job.ID].ResultURL
	token := resultURL[strings.Index(resultURL, "token=")+len("token="):]

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Contains(t, download.Filename, "question-papers")
}

func TestExportServiceDownloadRejectsBadToken(t *testing.T) {
	svc := newExportServiceForTest(t, newExportJobStoreStub(), &questionPaperRepoStub{})

	_, err := svc.ResolveDownload(context.Background(), "tampered.token.value.sig")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestExportServiceGetJobOwnership(t *testing.T) {
	store := newExportJobStoreStub()
	store.jobs["job-1"] = models.ExportJob{ID: "job-1", CreatedBy: "user-1"}
	svc := newExportServiceForTest(t, store, &questionPaperRepoStub{})

	_, err := svc.GetJob(context.Background(), "job-1", &models.JWTClaims{UserID: "user-2", Role: models.RoleClerk})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	job, err := svc.GetJob(context.Background(), "job-1", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}

func TestExportServiceCleanupSweepsOrphanedFiles(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(newExportJobStoreStub(), &questionPaperRepoStub{}, &researchPaperRepoStub{}, local, signer, ExportQueueConfig{Workers: 1}, nil)

	// A file with no surviving job row still gets removed once it
	// outlives the retention window.
	rel, err := local.Save("question-papers/orphan.csv", []byte("Accession Number\nQP001\n"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, rel), past, past))

	svc.Cleanup(context.Background(), time.Hour)

	_, err = local.Open(rel)
	assert.Error(t, err)
}
