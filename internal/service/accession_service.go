package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/repository"
	appErrors "github.com/campuslib/catalog-api/pkg/errors"
)

// AccessionReader reads the newest stored accession number of one
// resource type.
type AccessionReader interface {
	LatestAccession(ctx context.Context) (string, error)
}

type accessionCounter interface {
	Reserve(ctx context.Context, prefix string) (int, error)
}

// trailingDigits captures the maximal run of decimal digits at the end
// of an accession number, e.g. "QP042" -> "042".
var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// FormatAccession renders a sequence number with the type prefix,
// left-padded to three digits. Larger numbers are never truncated.
func FormatAccession(prefix string, number int) string {
	return fmt.Sprintf("%s%03d", prefix, number)
}

// AccessionService issues accession numbers per resource type.
type AccessionService struct {
	readers map[models.ResourceType]AccessionReader
	counter accessionCounter
	logger  *zap.Logger
}

// NewAccessionService constructs the allocator over per-type readers
// and the shared counter table.
func NewAccessionService(readers map[models.ResourceType]AccessionReader, counter accessionCounter, logger *zap.Logger) *AccessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessionService{readers: readers, counter: counter, logger: logger}
}

// PeekNext derives the next accession number from the most recently
// created record of the type. It is a pure read: calling it twice with
// no intervening create returns the same value, and nothing is
// reserved. Two concurrent callers can therefore observe the same
// number; the store's uniqueness constraint decides the loser.
func (s *AccessionService) PeekNext(ctx context.Context, resourceType models.ResourceType) (string, error) {
	reader, ok := s.readers[resourceType]
	if !ok || !resourceType.Valid() {
		return "", appErrors.Clone(appErrors.ErrInvalidResourceType, fmt.Sprintf("invalid resource type: %q", resourceType))
	}

	next := 1
	latest, err := reader.LatestAccession(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// empty collection, sequence starts at 1
	case err != nil:
		if repository.IsUnavailable(err) {
			return "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read latest accession")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read latest accession")
	default:
		if match := trailingDigits.FindString(latest); match != "" {
			if n, convErr := strconv.Atoi(match); convErr == nil {
				next = n + 1
			}
		}
	}

	return FormatAccession(resourceType.AccessionPrefix(), next), nil
}

// Reserve atomically increments the per-type counter and returns the
// issued number. Unlike PeekNext the number is consumed: concurrent
// callers always receive distinct values.
func (s *AccessionService) Reserve(ctx context.Context, resourceType models.ResourceType) (string, error) {
	if !resourceType.Valid() {
		return "", appErrors.Clone(appErrors.ErrInvalidResourceType, fmt.Sprintf("invalid resource type: %q", resourceType))
	}

	number, err := s.counter.Reserve(ctx, resourceType.AccessionPrefix())
	if err != nil {
		if repository.IsUnavailable(err) {
			return "", appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to reserve accession number")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve accession number")
	}

	return FormatAccession(resourceType.AccessionPrefix(), number), nil
}
