package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/pkg/database"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type courseAdminStore interface {
	LockCourse(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseLock, error)
	InsertCourse(ctx context.Context, tx *sqlx.Tx, course models.Course) error
	UpdateCourse(ctx context.Context, tx *sqlx.Tx, id int64, name string, capacity int) error
	ReplaceTeaching(ctx context.Context, tx *sqlx.Tx, courseID int64, teacherIDs []int64) error
	DeleteCourse(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error)
	CourseExists(ctx context.Context, id int64) (bool, error)
	StudentIDsOfCourse(ctx context.Context, courseID int64) ([]int64, error)
}

type courseDirectory interface {
	CountTeachers(ctx context.Context, ids []int64) (int, error)
	StudentsByIDs(ctx context.Context, ids []int64) ([]models.Student, error)
}

type courseIDSource interface {
	Next(ctx context.Context, c campus.Campus) (int64, error)
}

// CourseServiceConfig wires CourseService.
type CourseServiceConfig struct {
	Local     campus.Campus
	ShardDB   database.TxBeginner
	Store     courseAdminStore
	Directory courseDirectory
	IDs       courseIDSource
	Remote    delegateCaller
	Validator *validator.Validate
	Logger    *zap.Logger
}

// CourseService administers courses on the campus that owns them.
type CourseService struct {
	local     campus.Campus
	shardDB   database.TxBeginner
	store     courseAdminStore
	directory courseDirectory
	ids       courseIDSource
	remote    delegateCaller
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(cfg CourseServiceConfig) *CourseService {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CourseService{
		local:     cfg.Local,
		shardDB:   cfg.ShardDB,
		store:     cfg.Store,
		directory: cfg.Directory,
		ids:       cfg.IDs,
		remote:    cfg.Remote,
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}
}

// Create creates a course on the campus named in the payload.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest) (*dto.CreateCourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	target, err := campus.Parse(req.Campus)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if target == s.local {
		return s.CreateLocal(ctx, req)
	}
	var out dto.CreateCourseResponse
	if err := s.delegate(ctx, target, http.MethodPost, "/courses", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLocal creates a course in this campus's shard.
func (s *CourseService) CreateLocal(ctx context.Context, req dto.CreateCourseRequest) (*dto.CreateCourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if campus.Campus(req.Campus) != s.local {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("campus %s is not served here", req.Campus))
	}
	teachers, err := s.ensureTeachers(ctx, req.TeacherIDs)
	if err != nil {
		return nil, err
	}
	id, err := s.ids.Next(ctx, s.local)
	if err != nil {
		return nil, err
	}

	course := models.Course{ID: id, Name: req.Name, Capacity: req.Capacity, Campus: string(s.local)}
	err = database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		if err := s.store.InsertCourse(ctx, tx, course); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.ErrIDConflict
			}
			return err
		}
		return s.store.ReplaceTeaching(ctx, tx, id, teachers)
	})
	if err != nil {
		return nil, domainError(err, "failed to create course")
	}
	s.logger.Info("course created", zap.Int64("course_id", id), zap.Int("teachers", len(teachers)))
	return &dto.CreateCourseResponse{CourseID: id}, nil
}

// Update changes a course on the campus that owns it.
func (s *CourseService) Update(ctx context.Context, id int64, req dto.UpdateCourseRequest) error {
	if err := s.validateUpdate(id, req); err != nil {
		return err
	}
	owner := campus.CampusOf(id)
	if owner == s.local {
		return s.UpdateLocal(ctx, id, req)
	}
	return s.delegate(ctx, owner, http.MethodPut, fmt.Sprintf("/courses/%d", id), req, nil)
}

// UpdateLocal changes a course of this campus. Capacity may not drop below
// the current number of enrollments.
func (s *CourseService) UpdateLocal(ctx context.Context, id int64, req dto.UpdateCourseRequest) error {
	if err := s.validateUpdate(id, req); err != nil {
		return err
	}
	teachers, err := s.ensureTeachers(ctx, req.TeacherIDs)
	if err != nil {
		return err
	}
	err = database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		lock, err := s.store.LockCourse(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrCourseNotFound
			}
			return err
		}
		if req.Capacity < lock.NumSelected {
			return appErrors.Clone(appErrors.ErrCapacityConflict,
				fmt.Sprintf("capacity %d is below the %d enrolled students", req.Capacity, lock.NumSelected))
		}
		if err := s.store.UpdateCourse(ctx, tx, id, req.Name, req.Capacity); err != nil {
			return err
		}
		return s.store.ReplaceTeaching(ctx, tx, id, teachers)
	})
	return domainError(err, "failed to update course")
}

// Delete removes a course on the campus that owns it.
func (s *CourseService) Delete(ctx context.Context, id int64) error {
	if !campus.ValidCourseID(id) {
		return appErrors.Clone(appErrors.ErrInvalidID, "invalid course id")
	}
	owner := campus.CampusOf(id)
	if owner == s.local {
		return s.DeleteLocal(ctx, id)
	}
	return s.delegate(ctx, owner, http.MethodDelete, fmt.Sprintf("/courses/%d", id), nil, nil)
}

// DeleteLocal removes a course of this campus with its enrollment and
// teaching rows. The course row is locked first so no select can add an
// enrollment between the learn and courses deletes.
func (s *CourseService) DeleteLocal(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		if _, err := s.store.LockCourse(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrCourseNotFound
			}
			return err
		}
		deleted, err := s.store.DeleteCourse(ctx, tx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return appErrors.ErrCourseNotFound
		}
		return nil
	})
	if err == nil {
		s.logger.Info("course deleted", zap.Int64("course_id", id))
	}
	return domainError(err, "failed to delete course")
}

// Students lists the students enrolled in a course on the campus that owns it.
func (s *CourseService) Students(ctx context.Context, id int64) (*dto.CourseStudentsResult, error) {
	if !campus.ValidCourseID(id) {
		return nil, appErrors.Clone(appErrors.ErrInvalidID, "invalid course id")
	}
	owner := campus.CampusOf(id)
	if owner == s.local {
		return s.StudentsLocal(ctx, id)
	}
	var out dto.CourseStudentsResult
	if err := s.delegate(ctx, owner, http.MethodGet, fmt.Sprintf("/courses/%d/students", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StudentsLocal resolves the students of a local course through the directory.
func (s *CourseService) StudentsLocal(ctx context.Context, id int64) (*dto.CourseStudentsResult, error) {
	exists, err := s.store.CourseExists(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !exists {
		return nil, appErrors.ErrCourseNotFound
	}
	ids, err := s.store.StudentIDsOfCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course students")
	}
	students, err := s.directory.StudentsByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	if students == nil {
		students = make([]models.Student, 0)
	}
	return &dto.CourseStudentsResult{Total: len(students), Results: students}, nil
}

func (s *CourseService) validateUpdate(id int64, req dto.UpdateCourseRequest) error {
	if !campus.ValidCourseID(id) {
		return appErrors.Clone(appErrors.ErrInvalidID, "invalid course id")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	return nil
}

// ensureTeachers dedupes ids and checks every one names an existing teacher.
func (s *CourseService) ensureTeachers(ctx context.Context, ids []int64) ([]int64, error) {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !campus.ValidUserID(id) || campus.RoleOf(id) != models.RoleTeacher {
			return nil, appErrors.Clone(appErrors.ErrInvalidID, fmt.Sprintf("invalid teacher id %d", id))
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	count, err := s.directory.CountTeachers(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teachers")
	}
	if count != len(unique) {
		return nil, appErrors.ErrTeacherNotFound
	}
	return unique, nil
}

func (s *CourseService) delegate(ctx context.Context, owner campus.Campus, method, path string, body, out interface{}) error {
	result := s.remote.Call(ctx, remote.Request{Campus: owner, Method: method, Path: path, Body: body})
	if !result.OK() {
		return result.AsError()
	}
	if out == nil {
		return nil
	}
	if err := result.Decode(out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBadGateway.Code, appErrors.ErrBadGateway.Status, "unexpected response from remote campus")
	}
	return nil
}
