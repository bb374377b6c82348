package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuslib/catalog-api/internal/models"
)

const questionPaperColumns = "id, accession_number, year, course, semester, subject, link, status, created_at, updated_at"

// QuestionPaperRepository handles persistence for question paper records.
type QuestionPaperRepository struct {
	db *sqlx.DB
}

// NewQuestionPaperRepository creates a new repository instance.
func NewQuestionPaperRepository(db *sqlx.DB) *QuestionPaperRepository {
	return &QuestionPaperRepository{db: db}
}

// List returns question papers matching filters with the total count.
func (r *QuestionPaperRepository) List(ctx context.Context, filter models.ResourceFilter) ([]models.QuestionPaper, int, error) {
	base := "FROM question_papers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Year != "" {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("subject ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Subject+"%")
	}
	if filter.Link != "" {
		conditions = append(conditions, fmt.Sprintf("link ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Link+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", questionPaperColumns, base, size, offset)
	var papers []models.QuestionPaper
	if err := r.db.SelectContext(ctx, &papers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list question papers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count question papers: %w", err)
	}

	return papers, total, nil
}

// FindByID returns a question paper by id.
func (r *QuestionPaperRepository) FindByID(ctx context.Context, id string) (*models.QuestionPaper, error) {
	query := fmt.Sprintf("SELECT %s FROM question_papers WHERE id = $1", questionPaperColumns)
	var paper models.QuestionPaper
	if err := r.db.GetContext(ctx, &paper, query, id); err != nil {
		return nil, err
	}
	return &paper, nil
}

// LatestAccession returns the accession number of the most recently
// created record, or sql.ErrNoRows when the collection is empty.
func (r *QuestionPaperRepository) LatestAccession(ctx context.Context) (string, error) {
	const query = `SELECT accession_number FROM question_papers ORDER BY created_at DESC LIMIT 1`
	var accession string
	if err := r.db.GetContext(ctx, &accession, query); err != nil {
		return "", err
	}
	return accession, nil
}

// Create persists a new question paper.
func (r *QuestionPaperRepository) Create(ctx context.Context, paper *models.QuestionPaper) error {
	if paper.ID == "" {
		paper.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if paper.CreatedAt.IsZero() {
		paper.CreatedAt = now
	}
	paper.UpdatedAt = now
	if paper.Status == "" {
		paper.Status = models.StatusAvailable
	}

	const query = `INSERT INTO question_papers (id, accession_number, year, course, semester, subject, link, status, created_at, updated_at)
		VALUES (:id, :accession_number, :year, :course, :semester, :subject, :link, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("create question paper: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a question paper.
func (r *QuestionPaperRepository) Update(ctx context.Context, paper *models.QuestionPaper) error {
	paper.UpdatedAt = time.Now().UTC()
	const query = `UPDATE question_papers SET accession_number = :accession_number, year = :year, course = :course,
		semester = :semester, subject = :subject, link = :link, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("update question paper: %w", err)
	}
	return nil
}

// Delete removes a question paper and reports whether a row was removed.
func (r *QuestionPaperRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM question_papers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete question paper: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete question paper: %w", err)
	}
	return affected > 0, nil
}
