package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

// rowLockDriver is a database/sql driver whose only statement takes a
// per-course lock held until the transaction commits or rolls back.
type rowLockDriver struct {
	mu   sync.Mutex
	rows map[int64]*sync.Mutex
}

func newRowLockDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := sqlx.NewDb(sql.OpenDB(&rowLockDriver{rows: map[int64]*sync.Mutex{}}), "postgres")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (d *rowLockDriver) Connect(ctx context.Context) (driver.Conn, error) { return &rowLockConn{d: d}, nil }
func (d *rowLockDriver) Driver() driver.Driver                          { return d }
func (d *rowLockDriver) Open(string) (driver.Conn, error)               { return &rowLockConn{d: d}, nil }

func (d *rowLockDriver) row(id int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.rows[id]
	if !ok {
		m = &sync.Mutex{}
		d.rows[id] = m
	}
	return m
}

type rowLockConn struct {
	d    *rowLockDriver
	held []*sync.Mutex
}

func (c *rowLockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}

func (c *rowLockConn) Close() error { return nil }

func (c *rowLockConn) Begin() (driver.Tx, error) { return rowLockTx{c: c}, nil }

func (c *rowLockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	id, ok := args[0].Value.(int64)
	if !ok {
		return nil, errors.New("row lock expects an int64 id")
	}
	m := c.d.row(id)
	m.Lock()
	c.held = append(c.held, m)
	return driver.RowsAffected(1), nil
}

func (c *rowLockConn) release() {
	for _, m := range c.held {
		m.Unlock()
	}
	c.held = nil
}

type rowLockTx struct{ c *rowLockConn }

func (tx rowLockTx) Commit() error   { tx.c.release(); return nil }
func (tx rowLockTx) Rollback() error { tx.c.release(); return nil }

// lockingEnrollmentStore takes the course row lock through the transaction
// before reading the counter, like SELECT ... FOR UPDATE.
type lockingEnrollmentStore struct {
	*enrollmentStoreStub
}

func (s *lockingEnrollmentStore) LockCourse(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseLock, error) {
	if _, err := tx.ExecContext(ctx, `SELECT capacity, num_selected FROM courses WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	lock, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	snapshot := *lock
	return &snapshot, nil
}

func TestEnrollmentConcurrentSelectOnLastSeat(t *testing.T) {
	const other = testStudent + 1
	store := &lockingEnrollmentStore{&enrollmentStoreStub{
		courses:     map[int64]*models.CourseLock{localCourse: {Capacity: 1}},
		enrollments: map[[2]int64]bool{},
	}}
	svc := NewEnrollmentService(EnrollmentServiceConfig{
		Local:    campus.A,
		ShardDB:  newRowLockDB(t),
		Store:    store,
		Students: &studentDirectoryStub{known: map[int64]bool{testStudent: true, other: true}},
		Window:   &windowStub{open: true},
		Remote:   &delegateStub{responses: map[campus.Campus]*remote.Result{}},
	})

	start := make(chan struct{})
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, sid := range []int64{testStudent, other} {
		wg.Add(1)
		go func(i int, sid int64) {
			defer wg.Done()
			<-start
			results[i] = svc.SelectLocal(context.Background(), localCourse, sid)
		}(i, sid)
	}
	close(start)
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrCapacityConflict):
			conflicted++
		default:
			t.Fatalf("unexpected select error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 1, store.courses[localCourse].NumSelected)
	assert.Len(t, store.enrollments, 1)
}

// racingCascadeStore deletes every enrollment of the student per pass and
// lets a select slip in a new one after the first pass.
type racingCascadeStore struct {
	*enrollmentStoreStub
	lateCourse int64
	inserted   bool
}

func (s *racingCascadeStore) CascadeStudentPass(ctx context.Context, tx *sqlx.Tx, studentID int64) (int, error) {
	s.passCalls++
	found := 0
	for key := range s.enrollments {
		if key[1] != studentID {
			continue
		}
		delete(s.enrollments, key)
		s.courses[key[0]].NumSelected--
		found++
	}
	if !s.inserted {
		s.inserted = true
		s.courses[s.lateCourse].NumSelected++
		s.enrollments[[2]int64{s.lateCourse, studentID}] = true
	}
	return found, nil
}

func TestEnrollmentCascadeConvergesAfterLateSelect(t *testing.T) {
	svc, base, _ := newEnrollmentFixture(t, &models.CourseLock{Capacity: 5, NumSelected: 1})
	const lateCourse = int64(1000002)
	base.courses[lateCourse] = &models.CourseLock{Capacity: 5}
	base.enrollments[[2]int64{localCourse, testStudent}] = true
	store := &racingCascadeStore{enrollmentStoreStub: base, lateCourse: lateCourse}
	svc.store = store

	role, err := svc.DeleteUser(context.Background(), testStudent)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, role)
	assert.Equal(t, 3, store.passCalls)
	assert.Empty(t, store.enrollments)
	assert.Equal(t, 0, base.courses[localCourse].NumSelected)
	assert.Equal(t, 0, base.courses[lateCourse].NumSelected)
}
