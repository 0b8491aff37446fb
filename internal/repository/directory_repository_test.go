package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-course-api/internal/models"
)

func newDirectoryRepoMock(t *testing.T) (*DirectoryRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewDirectoryRepository(sqlxDB), mock, func() {
		_ = sqlxDB.Close()
	}
}

func TestDirectoryRepositoryStudentExists(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`)).
		WithArgs(int64(1100000001)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.StudentExists(context.Background(), 1100000001)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryCountTeachersEmpty(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	count, err := repo.CountTeachers(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryTeacherIDsByNameEscapesWildcards(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id FROM teachers WHERE name ILIKE").
		WithArgs(`100\%`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1200000001)))

	ids, err := repo.TeacherIDsByName(context.Background(), "100%")
	require.NoError(t, err)
	assert.Equal(t, []int64{1200000001}, ids)
}

func TestDirectoryRepositoryTeacherNamesStagesIDs(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE tmp_tid (tid BIGINT PRIMARY KEY) ON COMMIT DROP`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tmp_tid (tid) SELECT DISTINCT unnest($1::bigint[])`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT t.id, t.name FROM tmp_tid").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1200000001), "Ada").
			AddRow(int64(1200000002), "Grace"))
	mock.ExpectCommit()

	teachers, err := repo.TeacherNames(context.Background(), []int64{1200000001, 1200000002})
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, models.Teacher{ID: 1200000002, Name: "Grace"}, teachers[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryStudentsByIDsRollsBackOnFailure(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE tmp_sid").WillReturnError(errors.New("out of shared memory"))
	mock.ExpectRollback()

	_, err := repo.StudentsByIDs(context.Background(), []int64{1100000001})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryRepositoryUpsertSettings(t *testing.T) {
	repo, mock, cleanup := newDirectoryRepoMock(t)
	defer cleanup()

	admin := int64(1000000000)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO configurations").
		WithArgs(models.SettingSelectionBegin, "2026-09-01T00:00:00Z", admin, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO configurations").
		WithArgs(models.SettingSelectionEnd, "2026-09-15T00:00:00Z", admin, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertSettings(context.Background(), []models.Setting{
		{Key: models.SettingSelectionBegin, Value: "2026-09-01T00:00:00Z", UpdatedBy: &admin},
		{Key: models.SettingSelectionEnd, Value: "2026-09-15T00:00:00Z", UpdatedBy: &admin},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
