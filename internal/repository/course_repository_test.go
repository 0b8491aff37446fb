package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-course-api/internal/models"
)

func newCourseRepoMock(t *testing.T) (*CourseRepository, *sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewCourseRepository(sqlxDB), sqlxDB, mock, func() {
		_ = sqlxDB.Close()
	}
}

func beginTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	return tx
}

func TestCourseRepositoryStageCandidatesUnconstrained(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT tid FROM teach ORDER BY tid`)).
		WillReturnRows(sqlmock.NewRows([]string{"tid"}).AddRow(int64(1200000001)).AddRow(int64(1200000002)))

	source, tids, err := repo.StageCandidates(context.Background(), tx, models.CourseFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, candidatesAll, source)
	assert.Equal(t, []int64{1200000001, 1200000002}, tids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryStageCandidatesFiltered(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE tmp_cid_tid`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tmp_cid_tid (cid, tid) SELECT DISTINCT c.id, t.tid FROM courses c JOIN teach t ON t.cid = c.id WHERE c.capacity > c.num_selected`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT tid FROM tmp_cid_tid`)).
		WillReturnRows(sqlmock.NewRows([]string{"tid"}).AddRow(int64(1200000003)))

	source, tids, err := repo.StageCandidates(context.Background(), tx, models.CourseFilter{OnlyNotFull: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, candidatesStaged, source)
	assert.Equal(t, []int64{1200000003}, tids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListStagedStudentVariant(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	rows := sqlmock.NewRows([]string{"id", "teachers", "name", "capacity", "num_selected", "campus", "is_selected"}).
		AddRow(int64(1000001), "Ada, Grace", "Databases", 30, 12, "A", true)
	mock.ExpectQuery(`(?s)AS is_selected.*FROM tmp_cid_tid s.*GROUP BY c.id`).
		WithArgs(int64(1100000001)).
		WillReturnRows(rows)

	sid := int64(1100000001)
	result, err := repo.ListStaged(context.Background(), tx, candidatesStaged, &sid)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Ada, Grace", result[0].Teachers)
	require.NotNil(t, result[0].IsSelected)
	assert.True(t, *result[0].IsSelected)
}

func TestCourseRepositoryListStagedRejectsUnknownSource(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	_, err := repo.ListStaged(context.Background(), tx, "courses; DROP TABLE learn", nil)
	require.Error(t, err)
}

func TestCourseRepositoryLockCourseMissing(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity, num_selected FROM courses WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1000009)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LockCourse(context.Background(), tx, 1000009)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCourseRepositoryRemoveEnrollmentWithoutRowKeepsCounter(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM learn WHERE cid = $1 AND sid = $2`)).
		WithArgs(int64(1000001), int64(1100000001)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveEnrollment(context.Background(), tx, 1000001, 1100000001)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryRemoveEnrollmentDecrementsClamped(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM learn WHERE cid = $1 AND sid = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE courses SET num_selected = GREATEST(num_selected - 1, 0) WHERE id = $1`)).
		WithArgs(int64(1000001)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.RemoveEnrollment(context.Background(), tx, 1000001, 1100000001)
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCascadeStudentPass(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cid FROM learn WHERE sid = $1 ORDER BY cid`)).
		WithArgs(int64(1100000001)).
		WillReturnRows(sqlmock.NewRows([]string{"cid"}).AddRow(int64(1000001)).AddRow(int64(1000002)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM courses WHERE id = ANY($1) ORDER BY id FOR UPDATE`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1000001)).AddRow(int64(1000002)))
	// a concurrent deselect already removed 1000002
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM learn WHERE sid = $1 AND cid = ANY($2) RETURNING cid`)).
		WithArgs(int64(1100000001), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"cid"}).AddRow(int64(1000001)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE courses SET num_selected = GREATEST(num_selected - 1, 0) WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := repo.CascadeStudentPass(context.Background(), tx, 1100000001)
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCascadeStudentPassClean(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cid FROM learn WHERE sid = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"cid"}))

	found, err := repo.CascadeStudentPass(context.Background(), tx, 1100000001)
	require.NoError(t, err)
	assert.Zero(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryMaxCourseIDEmptyBand(t *testing.T) {
	repo, _, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(id) FROM courses WHERE id BETWEEN $1 AND $2`)).
		WithArgs(int64(1000000), int64(1099999)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	max, err := repo.MaxCourseID(context.Background(), 1000000, 1099999)
	require.NoError(t, err)
	assert.Nil(t, max)
}

func TestCourseRepositoryDeleteCourseMissing(t *testing.T) {
	repo, db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	tx := beginTx(t, db, mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM learn WHERE cid = $1`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM teach WHERE cid = $1`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM courses WHERE id = $1`)).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeleteCourse(context.Background(), tx, 1000404)
	require.NoError(t, err)
	assert.False(t, ok)
}
