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

const researchPaperColumns = "id, accession_number, title, author, abstract, link, status, created_at, updated_at"

// ResearchPaperRepository handles persistence for research paper records.
type ResearchPaperRepository struct {
	db *sqlx.DB
}

// NewResearchPaperRepository creates a new repository instance.
func NewResearchPaperRepository(db *sqlx.DB) *ResearchPaperRepository {
	return &ResearchPaperRepository{db: db}
}

// List returns research papers matching filters with the total count.
func (r *ResearchPaperRepository) List(ctx context.Context, filter models.ResourceFilter) ([]models.ResearchPaper, int, error) {
	base := "FROM research_papers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Title != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Title+"%")
	}
	if filter.Author != "" {
		conditions = append(conditions, fmt.Sprintf("author ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Author+"%")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", researchPaperColumns, base, size, offset)
	var papers []models.ResearchPaper
	if err := r.db.SelectContext(ctx, &papers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list research papers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count research papers: %w", err)
	}

	return papers, total, nil
}

// FindByID returns a research paper by id.
func (r *ResearchPaperRepository) FindByID(ctx context.Context, id string) (*models.ResearchPaper, error) {
	query := fmt.Sprintf("SELECT %s FROM research_papers WHERE id = $1", researchPaperColumns)
	var paper models.ResearchPaper
	if err := r.db.GetContext(ctx, &paper, query, id); err != nil {
		return nil, err
	}
	return &paper, nil
}

// LatestAccession returns the accession number of the most recently
// created record, or sql.ErrNoRows when the collection is empty.
func (r *ResearchPaperRepository) LatestAccession(ctx context.Context) (string, error) {
	const query = `SELECT accession_number FROM research_papers ORDER BY created_at DESC LIMIT 1`
	var accession string
	if err := r.db.GetContext(ctx, &accession, query); err != nil {
		return "", err
	}
	return accession, nil
}

// Create persists a new research paper.
func (r *ResearchPaperRepository) Create(ctx context.Context, paper *models.ResearchPaper) error {
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

	const query = `INSERT INTO research_papers (id, accession_number, title, author, abstract, link, status, created_at, updated_at)
		VALUES (:id, :accession_number, :title, :author, :abstract, :link, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("create research paper: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of a research paper.
func (r *ResearchPaperRepository) Update(ctx context.Context, paper *models.ResearchPaper) error {
	paper.UpdatedAt = time.Now().UTC()
	const query = `UPDATE research_papers SET accession_number = :accession_number, title = :title, author = :author,
		abstract = :abstract, link = :link, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, paper); err != nil {
		return fmt.Errorf("update research paper: %w", err)
	}
	return nil
}

// Delete removes a research paper and reports whether a row was removed.
func (r *ResearchPaperRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM research_papers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete research paper: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete research paper: %w", err)
	}
	return affected > 0, nil
}
