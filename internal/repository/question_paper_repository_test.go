package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/catalog-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func questionPaperRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "accession_number", "year", "course", "semester", "subject", "link", "status", "created_at", "updated_at"})
}

func TestQuestionPaperRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	rows := questionPaperRows().
		AddRow("qp-1", "QP001", "2024", "BSc", "IV", "Databases", "https://files/qp1.pdf", "available", time.Now(), time.Now())

	mock.ExpectQuery("SELECT id, accession_number").
		WithArgs("2024", "BSc", "%data%").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2024", "BSc", "%data%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	filter := models.ResourceFilter{Year: "2024", Course: "BSc", Subject: "data", Page: 1, PageSize: 10}
	papers, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "QP001", papers[0].AccessionNumber)
	assert.Equal(t, 1, total)
}

func TestQuestionPaperRepositoryListNoFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	mock.ExpectQuery("SELECT id, accession_number").WillReturnRows(questionPaperRows())
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	papers, total, err := repo.List(context.Background(), models.ResourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.Equal(t, 0, total)
}

func TestQuestionPaperRepositoryLatestAccession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	mock.ExpectQuery("SELECT accession_number FROM question_papers ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows([]string{"accession_number"}).AddRow("QP042"))

	accession, err := repo.LatestAccession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "QP042", accession)
}

func TestQuestionPaperRepositoryLatestAccessionEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	mock.ExpectQuery("SELECT accession_number FROM question_papers").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LatestAccession(context.Background())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestQuestionPaperRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	mock.ExpectExec("INSERT INTO question_papers").
		WillReturnResult(sqlmock.NewResult(1, 1))

	paper := &models.QuestionPaper{AccessionNumber: "QP001", Year: "2024"}
	require.NoError(t, repo.Create(context.Background(), paper))
	assert.NotEmpty(t, paper.ID)
	assert.Equal(t, models.StatusAvailable, paper.Status)
	assert.False(t, paper.CreatedAt.IsZero())
}

func TestQuestionPaperRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQuestionPaperRepository(db)
	mock.ExpectExec("DELETE FROM question_papers").
		WithArgs("qp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM question_papers").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "qp-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}
