package models

import "time"

// ResourceType discriminates which catalog collection a request targets.
type ResourceType string

const (
	ResourceTypeQuestionPapers ResourceType = "question-papers"
	ResourceTypeResearchPapers ResourceType = "research-papers"
	// ResourceTypeSyllabus is reserved: it has an accession prefix but no
	// collection yet, so store operations reject it.
	ResourceTypeSyllabus ResourceType = "syllabus"
)

var accessionPrefixes = map[ResourceType]string{
	ResourceTypeQuestionPapers: "QP",
	ResourceTypeResearchPapers: "RP",
	ResourceTypeSyllabus:       "SY",
}

// AccessionPrefix returns the two-letter accession code for the type.
func (t ResourceType) AccessionPrefix() string {
	return accessionPrefixes[t]
}

// Valid reports whether the type has a backing collection.
func (t ResourceType) Valid() bool {
	return t == ResourceTypeQuestionPapers || t == ResourceTypeResearchPapers
}

// StoreOrder is the fixed probe order for id-only lookups.
func StoreOrder() []ResourceType {
	return []ResourceType{ResourceTypeQuestionPapers, ResourceTypeResearchPapers}
}

// ResourceStatus is the closed lifecycle label for a catalog record.
type ResourceStatus string

const (
	StatusAvailable  ResourceStatus = "available"
	StatusInShelf    ResourceStatus = "in shelf"
	StatusDemolished ResourceStatus = "demolished"
)

// FilterAll is the sentinel clients send to disable a dropdown filter.
const FilterAll = "All"

// QuestionPaper is a question paper catalog record.
type QuestionPaper struct {
	ID              string         `db:"id" json:"id"`
	AccessionNumber string         `db:"accession_number" json:"accession_number"`
	Year            string         `db:"year" json:"year"`
	Course          string         `db:"course" json:"course"`
	Semester        string         `db:"semester" json:"semester"`
	Subject         string         `db:"subject" json:"subject"`
	Link            string         `db:"link" json:"link"`
	Status          ResourceStatus `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ResearchPaper is a research paper catalog record.
type ResearchPaper struct {
	ID              string         `db:"id" json:"id"`
	AccessionNumber string         `db:"accession_number" json:"accession_number"`
	Title           string         `db:"title" json:"title"`
	Author          string         `db:"author" json:"author"`
	Abstract        string         `db:"abstract" json:"abstract"`
	Link            string         `db:"link" json:"link"`
	Status          ResourceStatus `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ResourceFilter captures the supported listing filters. Year, course,
// semester, and status match exactly; subject, title, author, and link
// match as case-insensitive substrings. The "All" sentinel disables the
// course, semester, and status filters.
type ResourceFilter struct {
	Year     string
	Course   string
	Semester string
	Subject  string
	Title    string
	Author   string
	Link     string
	Status   string
	Page     int
	PageSize int
}

// Pagination bounds for list queries. Oversized page sizes clamp to
// the cap instead of resetting, so a caller asking for "everything"
// still gets the biggest page allowed.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize folds sentinel values and clamps pagination bounds.
func (f *ResourceFilter) Normalize() {
	if f.Course == FilterAll {
		f.Course = ""
	}
	if f.Semester == FilterAll {
		f.Semester = ""
	}
	if f.Status == FilterAll {
		f.Status = ""
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	} else if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}
