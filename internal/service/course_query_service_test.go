package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/pkg/config"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

func newShardMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() { _ = sqlxDB.Close() })
	return sqlxDB, mock
}

func int64Ptr(v int64) *int64 { return &v }

type listingStoreStub struct {
	rows     []models.CourseRow
	tids     []int64
	err      error
	staged   []models.Teacher
	filters  []models.CourseFilter
	students []*int64
}

func (s *listingStoreStub) StageCandidates(ctx context.Context, tx *sqlx.Tx, filter models.CourseFilter, teacherIDs []int64) (string, []int64, error) {
	s.filters = append(s.filters, filter)
	if s.err != nil {
		return "", nil, s.err
	}
	return "tmp_cid_tid", s.tids, nil
}

func (s *listingStoreStub) StageTeacherNames(ctx context.Context, tx *sqlx.Tx, teachers []models.Teacher) error {
	s.staged = teachers
	return nil
}

func (s *listingStoreStub) ListStaged(ctx context.Context, tx *sqlx.Tx, source string, studentID *int64) ([]models.CourseRow, error) {
	s.students = append(s.students, studentID)
	return s.rows, nil
}

type teacherDirectoryStub struct {
	byName   map[string][]int64
	names    map[int64]string
	resolved [][]int64
}

func (s *teacherDirectoryStub) TeacherIDsByName(ctx context.Context, substr string) ([]int64, error) {
	return s.byName[substr], nil
}

func (s *teacherDirectoryStub) TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, error) {
	s.resolved = append(s.resolved, ids)
	out := make([]models.Teacher, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Teacher{ID: id, Name: s.names[id]})
	}
	return out, nil
}

type teacherCacheStub struct {
	names  map[int64]string
	stored []models.Teacher
}

func (s *teacherCacheStub) TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, []int64) {
	var hits []models.Teacher
	var misses []int64
	for _, id := range ids {
		if name, ok := s.names[id]; ok {
			hits = append(hits, models.Teacher{ID: id, Name: name})
			continue
		}
		misses = append(misses, id)
	}
	return hits, misses
}

func (s *teacherCacheStub) SetTeacherNames(ctx context.Context, teachers []models.Teacher, ttl time.Duration) {
	s.stored = append(s.stored, teachers...)
}

// delegateStub answers per campus; a campus mapped to nil blocks until the
// caller's context ends.
type delegateStub struct {
	mu        sync.Mutex
	responses map[campus.Campus]*remote.Result
	calls     []remote.Request
}

func (d *delegateStub) Call(ctx context.Context, req remote.Request) remote.Result {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	res, ok := d.responses[req.Campus]
	d.mu.Unlock()
	if !ok || res == nil {
		<-ctx.Done()
		return remote.Result{Err: ctx.Err().Error()}
	}
	return *res
}

func (d *delegateStub) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func courseListingBody(t *testing.T, rows ...models.CourseRow) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"data": dto.CourseQueryResult{Total: len(rows), Results: rows},
	})
	require.NoError(t, err)
	return payload
}

func TestCourseQueryListCourseOutsideRequestedCampuses(t *testing.T) {
	db, mock := newShardMock(t)
	store := &listingStoreStub{}
	delegate := &delegateStub{}
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: store, Directory: &teacherDirectoryStub{}, Remote: delegate,
	})

	res, err := svc.List(context.Background(), []campus.Campus{campus.A, campus.B}, models.CourseFilter{CourseID: int64Ptr(1200007)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.Results)
	assert.Empty(t, store.filters)
	assert.Zero(t, delegate.callCount())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseQueryListCourseOnPeerQueriesOnlyThatPeer(t *testing.T) {
	db, _ := newShardMock(t)
	store := &listingStoreStub{}
	row := models.CourseRow{ID: 1100003, Teachers: "Ada", Name: "Compilers", Capacity: 20, NumSelected: 3, Campus: "B"}
	delegate := &delegateStub{responses: map[campus.Campus]*remote.Result{
		campus.B: {Status: http.StatusOK, Body: courseListingBody(t, row)},
	}}
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: store, Directory: &teacherDirectoryStub{}, Remote: delegate,
	})

	res, err := svc.List(context.Background(), campus.All, models.CourseFilter{CourseID: int64Ptr(1100003)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, row, res.Results[0])
	assert.Empty(t, store.filters)
	require.Len(t, delegate.calls, 1)
	assert.Equal(t, "1100003", delegate.calls[0].Query.Get("course_id"))
	assert.Equal(t, "/courses", delegate.calls[0].Path)
}

func TestCourseQueryListFanOutToleratesPeerFailures(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	db, mock := newShardMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	local := models.CourseRow{ID: 1000001, Teachers: "Grace", Name: "Databases", Capacity: 30, NumSelected: 30, Campus: "A"}
	peer := models.CourseRow{ID: 1100002, Teachers: "Ada", Name: "Networks", Capacity: 10, NumSelected: 1, Campus: "B"}
	store := &listingStoreStub{rows: []models.CourseRow{local}, tids: []int64{1200000001}}
	delegate := &delegateStub{responses: map[campus.Campus]*remote.Result{
		campus.B: {Status: http.StatusOK, Body: courseListingBody(t, peer)},
		campus.C: {Err: "dial tcp: connection refused"},
	}}
	metrics := NewMetricsService("A")
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local:     campus.A,
		ShardDB:   db,
		Courses:   store,
		Directory: &teacherDirectoryStub{names: map[int64]string{1200000001: "Grace"}},
		Remote:    delegate,
		Metrics:   metrics,
	})

	res, err := svc.List(context.Background(), campus.All, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []models.CourseRow{local, peer}, res.Results)
	assert.Equal(t, uint64(1), metrics.Snapshot().FederationPartials)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseQueryListLocalFailureFailsRequest(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	db, mock := newShardMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	store := &listingStoreStub{err: errors.New("relation courses does not exist")}
	// B never answers; the failing local query must cancel it.
	delegate := &delegateStub{responses: map[campus.Campus]*remote.Result{campus.B: nil}}
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: store, Directory: &teacherDirectoryStub{}, Remote: delegate,
	})

	_, err := svc.List(context.Background(), []campus.Campus{campus.A, campus.B}, models.CourseFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestCourseQueryLocalUnknownTeacherNameSkipsShard(t *testing.T) {
	db, mock := newShardMock(t)
	store := &listingStoreStub{}
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: store, Directory: &teacherDirectoryStub{},
	})

	res, err := svc.QueryLocal(context.Background(), models.CourseFilter{TeacherName: "Nobody"})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, store.filters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseQueryLocalMergesCachedTeacherNames(t *testing.T) {
	db, mock := newShardMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	sid := int64(1100000001)
	selected := true
	store := &listingStoreStub{
		tids: []int64{1200000001, 1200000002},
		rows: []models.CourseRow{{ID: 1000001, Teachers: "Ada, Grace", Name: "Databases", Capacity: 30, NumSelected: 2, Campus: "A", IsSelected: &selected}},
	}
	directory := &teacherDirectoryStub{names: map[int64]string{1200000002: "Grace"}}
	cache := &teacherCacheStub{names: map[int64]string{1200000001: "Ada"}}
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: store, Directory: directory, Cache: cache,
	})

	res, err := svc.QueryLocal(context.Background(), models.CourseFilter{StudentID: &sid, OnlySelected: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, [][]int64{{1200000002}}, directory.resolved)
	assert.ElementsMatch(t, []models.Teacher{{ID: 1200000001, Name: "Ada"}, {ID: 1200000002, Name: "Grace"}}, store.staged)
	assert.Equal(t, []models.Teacher{{ID: 1200000002, Name: "Grace"}}, cache.stored)
	require.Len(t, store.students, 1)
	assert.Equal(t, &sid, store.students[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseQueryFederatesOverHTTPPeer(t *testing.T) {
	peerRow := models.CourseRow{ID: 1100009, Teachers: "Ada", Name: "Algorithms", Capacity: 40, NumSelected: 0, Campus: "B"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/private/v1/courses/student", r.URL.Path)
		assert.Equal(t, "1100000001", r.URL.Query().Get("stu_id"))
		assert.Equal(t, "true", r.URL.Query().Get("only_not_full"))
		_, _ = w.Write(courseListingBody(t, peerRow))
	}))
	defer server.Close()

	client := remote.NewClient(config.CampusConfig{
		BWebURL: server.URL, CWebURL: "http://127.0.0.1:1", APISecret: "s3cret", RemoteTimeout: time.Second,
	}, "/api/private/v1", nil, nil)
	db, _ := newShardMock(t)
	svc := NewCourseQueryService(CourseQueryServiceConfig{
		Local: campus.A, ShardDB: db, Courses: &listingStoreStub{}, Directory: &teacherDirectoryStub{}, Remote: client,
	})

	sid := int64(1100000001)
	res, err := svc.List(context.Background(), []campus.Campus{campus.B}, models.CourseFilter{StudentID: &sid, OnlyNotFull: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, peerRow, res.Results[0])
}

func TestBuildCourseFilter(t *testing.T) {
	student := &models.CurrentUser{UserID: 1100000001, Role: models.RoleStudent}
	admin := &models.CurrentUser{UserID: 1000000001, Role: models.RoleAdmin}

	campuses, filter, err := BuildCourseFilter(student, dto.CourseListQuery{Campus: "b,a,B", Course: "1000002", Teacher: "Ada", OnlySelected: true})
	require.NoError(t, err)
	assert.Equal(t, []campus.Campus{campus.A, campus.B}, campuses)
	require.NotNil(t, filter.CourseID)
	assert.Equal(t, int64(1000002), *filter.CourseID)
	assert.Equal(t, "Ada", filter.TeacherName)
	assert.True(t, filter.OnlySelected)
	assert.Equal(t, int64(1100000001), *filter.StudentID)

	campuses, filter, err = BuildCourseFilter(admin, dto.CourseListQuery{Campus: "C,A,B", Course: "data", Teacher: "1200000003"})
	require.NoError(t, err)
	assert.Equal(t, campus.All, campuses)
	assert.Equal(t, "data", filter.CourseName)
	assert.Equal(t, int64(1200000003), *filter.TeacherID)
	assert.Nil(t, filter.StudentID)

	_, _, err = BuildCourseFilter(admin, dto.CourseListQuery{Campus: "A", Course: "999"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidID)

	_, _, err = BuildCourseFilter(admin, dto.CourseListQuery{Campus: "A", Teacher: "1100000001"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidID)

	_, _, err = BuildCourseFilter(admin, dto.CourseListQuery{Campus: "A", OnlySelected: true})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = BuildCourseFilter(admin, dto.CourseListQuery{Campus: "D"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = BuildCourseFilter(admin, dto.CourseListQuery{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = BuildCourseFilter(student, dto.CourseListQuery{Campus: "  ", Course: "data"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
