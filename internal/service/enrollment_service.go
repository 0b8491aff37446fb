package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/pkg/database"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type enrollmentStore interface {
	LockCourse(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseLock, error)
	EnrollmentExists(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) (bool, error)
	AddEnrollment(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) error
	RemoveEnrollment(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) (bool, error)
	CascadeStudentPass(ctx context.Context, tx *sqlx.Tx, studentID int64) (int, error)
	DeleteTeachingByTeacher(ctx context.Context, teacherID int64) (int64, error)
}

type studentDirectory interface {
	StudentExists(ctx context.Context, id int64) (bool, error)
}

type selectionWindowChecker interface {
	IsOpen(ctx context.Context, now time.Time) (bool, error)
}

// EnrollmentServiceConfig wires EnrollmentService.
type EnrollmentServiceConfig struct {
	Local     campus.Campus
	ShardDB   database.TxBeginner
	Store     enrollmentStore
	Students  studentDirectory
	Window    selectionWindowChecker
	Remote    delegateCaller
	Metrics   *MetricsService
	MaxPasses int
	Logger    *zap.Logger
}

// EnrollmentService coordinates selecting and deselecting courses across
// campuses, and the enrollment cleanup when a user is deleted.
type EnrollmentService struct {
	local     campus.Campus
	shardDB   database.TxBeginner
	store     enrollmentStore
	students  studentDirectory
	window    selectionWindowChecker
	remote    delegateCaller
	metrics   *MetricsService
	maxPasses int
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(cfg EnrollmentServiceConfig) *EnrollmentService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 16
	}
	return &EnrollmentService{
		local:     cfg.Local,
		shardDB:   cfg.ShardDB,
		store:     cfg.Store,
		students:  cfg.Students,
		window:    cfg.Window,
		remote:    cfg.Remote,
		metrics:   cfg.Metrics,
		maxPasses: cfg.MaxPasses,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Select enrolls a student in a course on whichever campus owns it.
// Students act on themselves; admins name the student.
func (s *EnrollmentService) Select(ctx context.Context, actor *models.CurrentUser, courseID int64, studentID *int64) (*dto.EnrollmentResponse, error) {
	return s.change(ctx, actor, courseID, studentID, "select", s.SelectLocal)
}

// Deselect withdraws a student from a course on whichever campus owns it.
func (s *EnrollmentService) Deselect(ctx context.Context, actor *models.CurrentUser, courseID int64, studentID *int64) (*dto.EnrollmentResponse, error) {
	return s.change(ctx, actor, courseID, studentID, "deselect", s.DeselectLocal)
}

func (s *EnrollmentService) change(ctx context.Context, actor *models.CurrentUser, courseID int64, studentID *int64, action string, local func(context.Context, int64, int64) error) (*dto.EnrollmentResponse, error) {
	sid, err := s.resolveStudent(actor, studentID)
	if err != nil {
		return nil, err
	}
	if !campus.ValidCourseID(courseID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidID, "invalid course id")
	}
	if actor.Role == models.RoleStudent {
		if err := s.ensureWindowOpen(ctx); err != nil {
			return nil, err
		}
	}

	owner := campus.CampusOf(courseID)
	if owner == s.local {
		err = local(ctx, courseID, sid)
	} else {
		err = s.delegate(ctx, owner, action, courseID, sid)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("enrollment changed",
		zap.String("action", action),
		zap.Int64("course_id", courseID),
		zap.Int64("student_id", sid),
		zap.String("campus", string(owner)),
	)
	return &dto.EnrollmentResponse{CourseID: courseID, StudentID: sid}, nil
}

func (s *EnrollmentService) resolveStudent(actor *models.CurrentUser, studentID *int64) (int64, error) {
	if actor == nil {
		return 0, appErrors.ErrInvalidToken
	}
	switch actor.Role {
	case models.RoleStudent:
		if studentID != nil && *studentID != actor.UserID {
			return 0, appErrors.Clone(appErrors.ErrNoPermission, "students may only change their own enrollments")
		}
		return actor.UserID, nil
	case models.RoleAdmin:
		if studentID == nil {
			return 0, appErrors.Clone(appErrors.ErrValidation, "stu_id is required")
		}
		if !campus.ValidUserID(*studentID) || campus.RoleOf(*studentID) != models.RoleStudent {
			return 0, appErrors.Clone(appErrors.ErrInvalidID, "invalid student id")
		}
		return *studentID, nil
	default:
		return 0, appErrors.ErrNoPermission
	}
}

func (s *EnrollmentService) ensureWindowOpen(ctx context.Context) error {
	if s.window == nil {
		return nil
	}
	open, err := s.window.IsOpen(ctx, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection window")
	}
	if !open {
		return appErrors.ErrSelectionWindowClosed
	}
	return nil
}

func (s *EnrollmentService) delegate(ctx context.Context, owner campus.Campus, action string, courseID, studentID int64) error {
	result := s.remote.Call(ctx, remote.Request{
		Campus: owner,
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/users/%d/%s", studentID, action),
		Query:  url.Values{"course_id": []string{strconv.FormatInt(courseID, 10)}},
	})
	if result.OK() {
		return nil
	}
	return result.AsError()
}

// SelectLocal enrolls a student in a course of this campus. The course row
// is locked for the whole check-then-write sequence.
func (s *EnrollmentService) SelectLocal(ctx context.Context, courseID, studentID int64) error {
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return err
	}
	err := database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		lock, err := s.lockCourse(ctx, tx, courseID)
		if err != nil {
			return err
		}
		enrolled, err := s.store.EnrollmentExists(ctx, tx, courseID, studentID)
		if err != nil {
			return err
		}
		if enrolled {
			return appErrors.ErrAlreadySelected
		}
		if lock.NumSelected >= lock.Capacity {
			return appErrors.ErrCapacityConflict
		}
		if err := s.store.AddEnrollment(ctx, tx, courseID, studentID); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.ErrAlreadySelected
			}
			return err
		}
		return nil
	})
	return domainError(err, "failed to select course")
}

// DeselectLocal withdraws a student from a course of this campus. A missing
// enrollment is NOT_SELECTED and leaves the counter untouched.
func (s *EnrollmentService) DeselectLocal(ctx context.Context, courseID, studentID int64) error {
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return err
	}
	err := database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		if _, err := s.lockCourse(ctx, tx, courseID); err != nil {
			return err
		}
		removed, err := s.store.RemoveEnrollment(ctx, tx, courseID, studentID)
		if err != nil {
			return err
		}
		if !removed {
			return appErrors.ErrNotSelected
		}
		return nil
	})
	return domainError(err, "failed to deselect course")
}

// DeleteUser clears this campus's shard rows that reference a user. Teachers
// lose their teaching rows; students lose their enrollments through bounded
// cascade passes; admins own nothing here.
func (s *EnrollmentService) DeleteUser(ctx context.Context, userID int64) (models.UserRole, error) {
	if !campus.ValidUserID(userID) {
		return "", appErrors.Clone(appErrors.ErrInvalidID, "invalid user id")
	}
	role := campus.RoleOf(userID)
	switch role {
	case models.RoleTeacher:
		removed, err := s.store.DeleteTeachingByTeacher(ctx, userID)
		if err != nil {
			return role, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teaching rows")
		}
		s.logger.Info("teacher removed from courses", zap.Int64("teacher_id", userID), zap.Int64("rows", removed))
	case models.RoleStudent:
		if err := s.cascadeStudent(ctx, userID); err != nil {
			return role, err
		}
	}
	return role, nil
}

func (s *EnrollmentService) cascadeStudent(ctx context.Context, studentID int64) error {
	for pass := 1; pass <= s.maxPasses; pass++ {
		var found int
		err := database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
			var err error
			found, err = s.store.CascadeStudentPass(ctx, tx, studentID)
			return err
		})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollments")
		}
		if found == 0 {
			s.metrics.ObserveCascadePasses(pass)
			s.logger.Info("student enrollments cleared", zap.Int64("student_id", studentID), zap.Int("passes", pass))
			return nil
		}
	}
	s.metrics.ObserveCascadePasses(s.maxPasses)
	s.logger.Error("student enrollment cleanup did not converge",
		zap.Int64("student_id", studentID),
		zap.Int("max_passes", s.maxPasses),
	)
	return appErrors.Clone(appErrors.ErrInternal, "enrollment cleanup did not converge")
}

func (s *EnrollmentService) ensureStudent(ctx context.Context, studentID int64) error {
	exists, err := s.students.StudentExists(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !exists {
		return appErrors.ErrStudentNotFound
	}
	return nil
}

func (s *EnrollmentService) lockCourse(ctx context.Context, tx *sqlx.Tx, courseID int64) (*models.CourseLock, error) {
	lock, err := s.store.LockCourse(ctx, tx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, err
	}
	return lock, nil
}

// domainError passes typed errors through and wraps everything else as internal.
func domainError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
