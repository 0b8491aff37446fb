package service

import (
	"context"

	"github.com/noah-isme/campus-course-api/internal/campus"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type courseIDReader interface {
	MaxCourseID(ctx context.Context, floor, ceiling int64) (*int64, error)
	CourseIDs(ctx context.Context, floor, ceiling int64) ([]int64, error)
}

// CourseIDAllocator picks the id of a new course inside the local campus band.
// It takes no lock: concurrent creators may pick the same id and the loser's
// insert fails with ID_CONFLICT.
type CourseIDAllocator struct {
	store courseIDReader
}

// NewCourseIDAllocator constructs CourseIDAllocator.
func NewCourseIDAllocator(store courseIDReader) *CourseIDAllocator {
	return &CourseIDAllocator{store: store}
}

// Next returns a free course id for c.
func (a *CourseIDAllocator) Next(ctx context.Context, c campus.Campus) (int64, error) {
	floor, ceiling := campus.Floor(c), campus.Ceiling(c)
	max, err := a.store.MaxCourseID(ctx, floor, ceiling)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate course id")
	}
	id, err := nextCourseID(floor, ceiling, max, func() ([]int64, error) {
		return a.store.CourseIDs(ctx, floor, ceiling)
	})
	return id, domainError(err, "failed to allocate course id")
}

// nextCourseID appends after the highest id while the band has room, and
// otherwise reuses the lowest gap. ids is only consulted when the band top
// is taken and must yield ascending ids.
func nextCourseID(floor, ceiling int64, max *int64, ids func() ([]int64, error)) (int64, error) {
	if max == nil {
		return floor, nil
	}
	if *max < ceiling {
		return *max + 1, nil
	}
	taken, err := ids()
	if err != nil {
		return 0, err
	}
	expected := floor
	for _, id := range taken {
		if id != expected {
			return expected, nil
		}
		expected++
	}
	return 0, appErrors.ErrIDSpaceExhausted
}
