package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/pkg/database"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

type courseListingStore interface {
	StageCandidates(ctx context.Context, tx *sqlx.Tx, filter models.CourseFilter, teacherIDs []int64) (string, []int64, error)
	StageTeacherNames(ctx context.Context, tx *sqlx.Tx, teachers []models.Teacher) error
	ListStaged(ctx context.Context, tx *sqlx.Tx, source string, studentID *int64) ([]models.CourseRow, error)
}

type teacherDirectory interface {
	TeacherIDsByName(ctx context.Context, substr string) ([]int64, error)
	TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, error)
}

type teacherNameCache interface {
	TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, []int64)
	SetTeacherNames(ctx context.Context, teachers []models.Teacher, ttl time.Duration)
}

type delegateCaller interface {
	Call(ctx context.Context, req remote.Request) remote.Result
}

// CourseQueryServiceConfig wires CourseQueryService.
type CourseQueryServiceConfig struct {
	Local     campus.Campus
	ShardDB   database.TxBeginner
	Courses   courseListingStore
	Directory teacherDirectory
	Cache     teacherNameCache
	Remote    delegateCaller
	Metrics   *MetricsService
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// CourseQueryService answers course listings over the local shard and, when
// asked, over peer campuses.
type CourseQueryService struct {
	local     campus.Campus
	shardDB   database.TxBeginner
	courses   courseListingStore
	directory teacherDirectory
	cache     teacherNameCache
	remote    delegateCaller
	metrics   *MetricsService
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewCourseQueryService constructs CourseQueryService.
func NewCourseQueryService(cfg CourseQueryServiceConfig) *CourseQueryService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &CourseQueryService{
		local:     cfg.Local,
		shardDB:   cfg.ShardDB,
		courses:   cfg.Courses,
		directory: cfg.Directory,
		cache:     cfg.Cache,
		remote:    cfg.Remote,
		metrics:   cfg.Metrics,
		cacheTTL:  cfg.CacheTTL,
		logger:    cfg.Logger,
	}
}

// List federates a listing over campuses. A specific course id narrows the
// query to its owning campus, or to nothing when that campus was not asked
// for. Peer failures shrink the answer instead of failing it.
func (s *CourseQueryService) List(ctx context.Context, campuses []campus.Campus, filter models.CourseFilter) (*dto.CourseQueryResult, error) {
	if filter.CourseID != nil {
		owner := campus.CampusOf(*filter.CourseID)
		if !campus.Contains(campuses, owner) {
			return emptyCourseResult(), nil
		}
		campuses = []campus.Campus{owner}
	}

	parts := make([][]models.CourseRow, len(campuses))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range campuses {
		i, c := i, c
		g.Go(func() error {
			if c == s.local {
				res, err := s.QueryLocal(gctx, filter)
				if err != nil {
					return err
				}
				parts[i] = res.Results
				return nil
			}
			parts[i] = s.queryRemote(gctx, c, filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]models.CourseRow, 0)
	for _, part := range parts {
		rows = append(rows, part...)
	}
	return &dto.CourseQueryResult{Total: len(rows), Results: rows}, nil
}

// QueryLocal answers a listing from this campus only.
func (s *CourseQueryService) QueryLocal(ctx context.Context, filter models.CourseFilter) (*dto.CourseQueryResult, error) {
	var teacherIDs []int64
	if filter.TeacherID == nil && filter.TeacherName != "" {
		ids, err := s.directory.TeacherIDsByName(ctx, filter.TeacherName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher filter")
		}
		if len(ids) == 0 {
			return emptyCourseResult(), nil
		}
		teacherIDs = ids
	}

	rows := make([]models.CourseRow, 0)
	err := database.WithTx(ctx, s.shardDB, nil, func(tx *sqlx.Tx) error {
		start := time.Now()
		source, tids, err := s.courses.StageCandidates(ctx, tx, filter, teacherIDs)
		s.metrics.ObserveStage("stage_candidates", time.Since(start))
		if err != nil {
			return err
		}
		if len(tids) == 0 {
			return nil
		}

		start = time.Now()
		teachers, err := s.resolveTeacherNames(ctx, tids)
		s.metrics.ObserveStage("resolve_teachers", time.Since(start))
		if err != nil {
			return err
		}
		if err := s.courses.StageTeacherNames(ctx, tx, teachers); err != nil {
			return err
		}

		start = time.Now()
		listed, err := s.courses.ListStaged(ctx, tx, source, filter.StudentID)
		s.metrics.ObserveStage("list_courses", time.Since(start))
		if err != nil {
			return err
		}
		rows = listed
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return &dto.CourseQueryResult{Total: len(rows), Results: rows}, nil
}

// resolveTeacherNames serves names from the cache and resolves the misses
// through the directory.
func (s *CourseQueryService) resolveTeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, error) {
	hits, misses := []models.Teacher(nil), ids
	if s.cache != nil {
		hits, misses = s.cache.TeacherNames(ctx, ids)
	}
	s.metrics.RecordTeacherCache(len(hits), len(misses))
	if len(misses) == 0 {
		return hits, nil
	}
	resolved, err := s.directory.TeacherNames(ctx, misses)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetTeacherNames(ctx, resolved, s.cacheTTL)
	}
	return append(hits, resolved...), nil
}

func (s *CourseQueryService) queryRemote(ctx context.Context, peer campus.Campus, filter models.CourseFilter) []models.CourseRow {
	path := "/courses"
	if filter.StudentID != nil {
		path = "/courses/student"
	}
	result := s.remote.Call(ctx, remote.Request{
		Campus: peer,
		Method: http.MethodGet,
		Path:   path,
		Query:  encodeCourseFilter(filter),
	})
	if !result.OK() {
		s.metrics.RecordFederationPartial(string(peer))
		s.logger.Warn("dropping campus from course listing",
			zap.String("peer", string(peer)),
			zap.Int("status", result.Status),
			zap.String("error", result.Err),
		)
		return nil
	}
	var out dto.CourseQueryResult
	if err := result.Decode(&out); err != nil {
		s.metrics.RecordFederationPartial(string(peer))
		s.logger.Warn("undecodable course listing from campus", zap.String("peer", string(peer)), zap.Error(err))
		return nil
	}
	return out.Results
}

// encodeCourseFilter renders a filter as the private listing query string.
func encodeCourseFilter(filter models.CourseFilter) url.Values {
	q := url.Values{}
	if filter.CourseID != nil {
		q.Set("course_id", strconv.FormatInt(*filter.CourseID, 10))
	}
	if filter.CourseName != "" {
		q.Set("course_name", filter.CourseName)
	}
	if filter.TeacherID != nil {
		q.Set("teacher_id", strconv.FormatInt(*filter.TeacherID, 10))
	}
	if filter.TeacherName != "" {
		q.Set("teacher_name", filter.TeacherName)
	}
	if filter.OnlyNotFull {
		q.Set("only_not_full", "true")
	}
	if filter.OnlySelected {
		q.Set("only_selected", "true")
	}
	if filter.StudentID != nil {
		q.Set("stu_id", strconv.FormatInt(*filter.StudentID, 10))
	}
	return q
}

// FilterFromPrivateQuery rebuilds a filter from the private listing query.
func FilterFromPrivateQuery(q dto.PrivateCourseListQuery) models.CourseFilter {
	return models.CourseFilter{
		CourseID:     q.CourseID,
		CourseName:   q.CourseName,
		TeacherID:    q.TeacherID,
		TeacherName:  q.TeacherName,
		OnlyNotFull:  q.OnlyNotFull,
		OnlySelected: q.OnlySelected,
		StudentID:    q.StudentID,
	}
}

func emptyCourseResult() *dto.CourseQueryResult {
	return &dto.CourseQueryResult{Total: 0, Results: make([]models.CourseRow, 0)}
}

// BuildCourseFilter turns public listing parameters into the campus set and
// filter to query. The campus set is mandatory. Numeric course and teacher values are ids and must sit in
// their bands; anything else is a name substring. Students always get the
// student variant.
func BuildCourseFilter(user *models.CurrentUser, q dto.CourseListQuery) ([]campus.Campus, models.CourseFilter, error) {
	var filter models.CourseFilter

	if strings.TrimSpace(q.Campus) == "" {
		return nil, filter, appErrors.Clone(appErrors.ErrValidation, "campus is required")
	}
	campuses, err := campus.ParseSet(q.Campus)
	if err != nil {
		return nil, filter, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	if course := strings.TrimSpace(q.Course); course != "" {
		if id, err := strconv.ParseInt(course, 10, 64); err == nil {
			if !campus.ValidCourseID(id) {
				return nil, filter, appErrors.Clone(appErrors.ErrInvalidID, "invalid course id")
			}
			filter.CourseID = &id
		} else {
			filter.CourseName = course
		}
	}

	if teacher := strings.TrimSpace(q.Teacher); teacher != "" {
		if id, err := strconv.ParseInt(teacher, 10, 64); err == nil {
			if !campus.ValidUserID(id) || campus.RoleOf(id) != models.RoleTeacher {
				return nil, filter, appErrors.Clone(appErrors.ErrInvalidID, "invalid teacher id")
			}
			filter.TeacherID = &id
		} else {
			filter.TeacherName = teacher
		}
	}

	filter.OnlyNotFull = q.OnlyNotFull
	if user != nil && user.Role == models.RoleStudent {
		sid := user.UserID
		filter.StudentID = &sid
		filter.OnlySelected = q.OnlySelected
	} else if q.OnlySelected {
		return nil, filter, appErrors.Clone(appErrors.ErrValidation, "only_selected is available to students only")
	}
	return campuses, filter, nil
}
