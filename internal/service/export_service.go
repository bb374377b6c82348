package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/repository"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
	"github.com/campuslib/catalog-api/pkg/export"
	"github.com/campuslib/catalog-api/pkg/jobs"
	"github.com/campuslib/catalog-api/pkg/storage"
)

const exportJobType = "catalog-export"

// exportPageSize bounds how many rows each store round-trip fetches
// while draining a collection for export.
const exportPageSize = 500

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

// CreateExportRequest describes a requested catalog export.
type CreateExportRequest struct {
	ResourceType models.ResourceType
	Format       models.ExportFormat
	Filter       models.ResourceFilter
}

// ExportDownload wraps an open file handle for a validated download.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService runs catalog exports asynchronously through a worker
// queue, storing rendered files on disk behind signed download tokens.
type ExportService struct {
	jobsRepo       exportJobStore
	questionPapers questionPaperRepository
	researchPapers researchPaperRepository
	store          *storage.LocalStorage
	signer         *storage.SignedURLSigner
	csv            *export.CSVExporter
	pdf            *export.PDFExporter
	queue          *jobs.Queue
	logger         *zap.Logger
}

// ExportQueueConfig sizes the export worker pool.
type ExportQueueConfig struct {
	Workers    int
	MaxRetries int
}

// NewExportService wires the export pipeline.
func NewExportService(jobsRepo exportJobStore, qp questionPaperRepository, rp researchPaperRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg ExportQueueConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		jobsRepo:       jobsRepo,
		questionPapers: qp,
		researchPapers: rp,
		store:          store,
		signer:         signer,
		csv:            export.NewCSVExporter(),
		pdf:            export.NewPDFExporter(),
		logger:         logger,
	}
	s.queue = jobs.New(exportJobType, s.process, jobs.Config{
		Workers:     cfg.Workers,
		MaxAttempts: cfg.MaxRetries,
	}, logger)
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains and stops the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// CreateJob validates and persists an export request, then enqueues it.
func (s *ExportService) CreateJob(ctx context.Context, req CreateExportRequest, actor *models.JWTClaims) (*models.ExportJob, error) {
	if !req.ResourceType.Valid() {
		return nil, invalidTypeError(req.ResourceType)
	}
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %q", req.Format))
	}

	req.Filter.Normalize()
	filters, err := json.Marshal(req.Filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode export filters")
	}

	job := &models.ExportJob{
		ID:           uuid.NewString(),
		ResourceType: req.ResourceType,
		Format:       req.Format,
		Filters:      filters,
		Status:       models.ExportStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if actor != nil {
		job.CreatedBy = actor.UserID
	}

	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, storeError(err, "failed to persist export job")
	}

	if err := s.queue.Enqueue(jobs.Task{ID: job.ID, Kind: exportJobType}); err != nil {
		s.markFailed(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	return job, nil
}

// GetJob returns an export job, restricted to its creator or admins.
func (s *ExportService) GetJob(ctx context.Context, id string, actor *models.JWTClaims) (*models.ExportJob, error) {
	job, err := s.jobsRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, storeError(err, "failed to load export job")
	}
	if actor != nil && actor.Role != models.RoleAdmin && job.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}
	return job, nil
}

// ResolveDownload validates a signed token and opens the exported file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, storeError(err, "failed to load export job")
	}
	if job.Status != models.ExportStatusDone || job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not available")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file not available")
	}

	contentType := "text/csv"
	if job.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	return &ExportDownload{
		File:        file,
		Filename:    fmt.Sprintf("%s-%s.%s", job.ResourceType, job.CreatedAt.Format("20060102"), job.Format),
		ContentType: contentType,
	}, nil
}

// Cleanup removes export files for jobs finished before the retention
// cutoff. Job rows stay for history; only the files go.
func (s *ExportService) Cleanup(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().UTC().Add(-retention)
	finished, err := s.jobsRepo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("failed to list expired export jobs", zap.Error(err))
		return
	}
	for _, job := range finished {
		if job.FilePath == nil || *job.FilePath == "" {
			continue
		}
		if err := s.store.Delete(*job.FilePath); err != nil {
			s.logger.Warn("failed to delete export file", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		empty := ""
		if err := s.jobsRepo.Update(ctx, job.ID, repository.UpdateExportJobParams{FilePath: &empty, ResultURL: &empty}); err != nil {
			s.logger.Warn("failed to clear export file reference", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	// Catch files whose job rows are gone or were never finalized.
	removed, err := s.store.CleanupOlderThan(retention)
	if err != nil {
		s.logger.Warn("failed to sweep export directory", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("swept orphaned export files", zap.Int("removed", len(removed)))
	}
}

func (s *ExportService) process(ctx context.Context, task jobs.Task) error {
	record, err := s.jobsRepo.GetByID(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", task.ID, err)
	}

	processing := models.ExportStatusProcessing
	if err := s.jobsRepo.Update(ctx, record.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		s.logger.Warn("failed to mark export processing", zap.String("job_id", record.ID), zap.Error(err))
	}

	dataset, err := s.collect(ctx, record)
	if err != nil {
		s.markFailed(ctx, record.ID, err)
		return err
	}

	var payload []byte
	switch record.Format {
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.markFailed(ctx, record.ID, err)
		return err
	}

	filename := fmt.Sprintf("%s/%s.%s", record.ResourceType, record.ID, record.Format)
	relPath, err := s.store.Save(filename, payload)
	if err != nil {
		s.markFailed(ctx, record.ID, err)
		return err
	}

	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		s.markFailed(ctx, record.ID, err)
		return err
	}

	done := models.ExportStatusDone
	resultURL := fmt.Sprintf("/exports/download?token=%s", token)
	finishedAt := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:     &done,
		FilePath:   &relPath,
		ResultURL:  &resultURL,
		FinishedAt: &finishedAt,
	}); err != nil {
		return fmt.Errorf("finalize export job %s: %w", record.ID, err)
	}

	s.logger.Info("export job finished",
		zap.String("job_id", record.ID),
		zap.String("resource_type", string(record.ResourceType)),
		zap.String("format", string(record.Format)),
		zap.Int("rows", len(dataset.Rows)))
	return nil
}

func (s *ExportService) collect(ctx context.Context, record *models.ExportJob) (export.Dataset, error) {
	var filter models.ResourceFilter
	if len(record.Filters) > 0 {
		if err := json.Unmarshal(record.Filters, &filter); err != nil {
			return export.Dataset{}, fmt.Errorf("decode export filters: %w", err)
		}
	}
	filter.Page = 1
	filter.PageSize = exportPageSize

	title := fmt.Sprintf("%s catalog", record.ResourceType)

	switch record.ResourceType {
	case models.ResourceTypeQuestionPapers:
		dataset := export.Dataset{
			Title:   title,
			Columns: []string{"Accession Number", "Year", "Course", "Semester", "Subject", "Link", "Status"},
		}
		for {
			items, total, err := s.questionPapers.List(ctx, filter)
			if err != nil {
				return export.Dataset{}, fmt.Errorf("list question papers: %w", err)
			}
			for _, item := range items {
				dataset.Rows = append(dataset.Rows, []string{
					item.AccessionNumber,
					item.Year,
					item.Course,
					item.Semester,
					item.Subject,
					item.Link,
					string(item.Status),
				})
			}
			if len(dataset.Rows) >= total || len(items) == 0 {
				return dataset, nil
			}
			filter.Page++
		}
	default:
		dataset := export.Dataset{
			Title:   title,
			Columns: []string{"Accession Number", "Title", "Author", "Link", "Status"},
		}
		for {
			items, total, err := s.researchPapers.List(ctx, filter)
			if err != nil {
				return export.Dataset{}, fmt.Errorf("list research papers: %w", err)
			}
			for _, item := range items {
				dataset.Rows = append(dataset.Rows, []string{
					item.AccessionNumber,
					item.Title,
					item.Author,
					item.Link,
					string(item.Status),
				})
			}
			if len(dataset.Rows) >= total || len(items) == 0 {
				return dataset, nil
			}
			filter.Page++
		}
	}
}

func (s *ExportService) markFailed(ctx context.Context, jobID string, cause error) {
	failed := models.ExportStatusFailed
	message := cause.Error()
	finishedAt := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &finishedAt,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
