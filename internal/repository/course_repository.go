package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// Candidate sources for the final course listing join.
const (
	candidatesAll    = "teach"
	candidatesStaged = "tmp_cid_tid"
)

// CourseRepository accesses the campus shard: courses, teaching rows and
// enrollment rows. Methods taking a tx run inside the caller's transaction.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// StageCandidates selects the (course, teacher) pairs matching filter and
// returns the table holding them plus the distinct teacher ids involved.
// An unconstrained filter reads straight from teach without staging.
func (r *CourseRepository) StageCandidates(ctx context.Context, tx *sqlx.Tx, filter models.CourseFilter, teacherIDs []int64) (string, []int64, error) {
	if filter.Unconstrained() {
		var tids []int64
		if err := tx.SelectContext(ctx, &tids, `SELECT DISTINCT tid FROM teach ORDER BY tid`); err != nil {
			return "", nil, fmt.Errorf("list teaching teachers: %w", err)
		}
		return candidatesAll, tids, nil
	}

	const create = `CREATE TEMP TABLE tmp_cid_tid (cid BIGINT NOT NULL, tid BIGINT NOT NULL) ON COMMIT DROP`
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return "", nil, fmt.Errorf("create tmp_cid_tid: %w", err)
	}
	query, args := newCourseFilter(filter, teacherIDs).stagingInsert()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return "", nil, fmt.Errorf("stage course candidates: %w", err)
	}
	var tids []int64
	if err := tx.SelectContext(ctx, &tids, `SELECT DISTINCT tid FROM tmp_cid_tid ORDER BY tid`); err != nil {
		return "", nil, fmt.Errorf("list candidate teachers: %w", err)
	}
	return candidatesStaged, tids, nil
}

// StageTeacherNames ships resolved teacher names into tmp_tid_name.
func (r *CourseRepository) StageTeacherNames(ctx context.Context, tx *sqlx.Tx, teachers []models.Teacher) error {
	const create = `CREATE TEMP TABLE tmp_tid_name (tid BIGINT PRIMARY KEY, name TEXT NOT NULL) ON COMMIT DROP`
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create tmp_tid_name: %w", err)
	}
	if len(teachers) == 0 {
		return nil
	}
	ids := make([]int64, len(teachers))
	names := make([]string, len(teachers))
	for i, t := range teachers {
		ids[i] = t.ID
		names[i] = t.Name
	}
	const load = `INSERT INTO tmp_tid_name (tid, name) SELECT * FROM unnest($1::bigint[], $2::text[])`
	if _, err := tx.ExecContext(ctx, load, pq.Array(ids), pq.Array(names)); err != nil {
		return fmt.Errorf("load tmp_tid_name: %w", err)
	}
	return nil
}

// ListStaged joins the candidate source with courses and tmp_tid_name,
// producing one row per course. A non-nil studentID adds is_selected.
func (r *CourseRepository) ListStaged(ctx context.Context, tx *sqlx.Tx, source string, studentID *int64) ([]models.CourseRow, error) {
	if source != candidatesAll && source != candidatesStaged {
		return nil, fmt.Errorf("unknown candidate source %q", source)
	}
	selected := ""
	var args []interface{}
	if studentID != nil {
		selected = `,
       EXISTS(SELECT 1 FROM learn l WHERE l.cid = c.id AND l.sid = $1) AS is_selected`
		args = append(args, *studentID)
	}
	query := fmt.Sprintf(`SELECT c.id, string_agg(n.name, ', ' ORDER BY n.name) AS teachers,
       c.name, c.capacity, c.num_selected, c.campus%s
FROM %s s
JOIN courses c ON c.id = s.cid
JOIN tmp_tid_name n ON n.tid = s.tid
GROUP BY c.id
ORDER BY c.id`, selected, source)

	rows := make([]models.CourseRow, 0)
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return rows, nil
}

// LockCourse reads capacity and counter with a row lock held until the tx
// ends. It returns sql.ErrNoRows for a missing course.
func (r *CourseRepository) LockCourse(ctx context.Context, tx *sqlx.Tx, id int64) (*models.CourseLock, error) {
	var lock models.CourseLock
	const query = `SELECT capacity, num_selected FROM courses WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &lock, query, id); err != nil {
		return nil, err
	}
	return &lock, nil
}

// EnrollmentExists reports whether the student is enrolled in the course.
func (r *CourseRepository) EnrollmentExists(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM learn WHERE cid = $1 AND sid = $2)`
	if err := tx.GetContext(ctx, &exists, query, courseID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// AddEnrollment bumps the course counter and inserts the enrollment row.
// The caller holds the course lock.
func (r *CourseRepository) AddEnrollment(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET num_selected = num_selected + 1 WHERE id = $1`, courseID); err != nil {
		return fmt.Errorf("increment num_selected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO learn (cid, sid) VALUES ($1, $2)`, courseID, studentID); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// RemoveEnrollment deletes the enrollment row and decrements the counter,
// clamped at zero. It reports false when there was no row to delete, in
// which case the counter is left untouched.
func (r *CourseRepository) RemoveEnrollment(ctx context.Context, tx *sqlx.Tx, courseID, studentID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM learn WHERE cid = $1 AND sid = $2`, courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	const decrement = `UPDATE courses SET num_selected = GREATEST(num_selected - 1, 0) WHERE id = $1`
	if _, err := tx.ExecContext(ctx, decrement, courseID); err != nil {
		return false, fmt.Errorf("decrement num_selected: %w", err)
	}
	return true, nil
}

// CascadeStudentPass removes the enrollments of a student found at the start
// of the pass. Courses are locked in id order before their rows are deleted,
// and only the rows actually deleted decrement a counter. It returns the
// number of enrollments the pass found; zero means the student is clean.
func (r *CourseRepository) CascadeStudentPass(ctx context.Context, tx *sqlx.Tx, studentID int64) (int, error) {
	var cids []int64
	if err := tx.SelectContext(ctx, &cids, `SELECT cid FROM learn WHERE sid = $1 ORDER BY cid`, studentID); err != nil {
		return 0, fmt.Errorf("list student enrollments: %w", err)
	}
	if len(cids) == 0 {
		return 0, nil
	}

	var locked []int64
	const lock = `SELECT id FROM courses WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err := tx.SelectContext(ctx, &locked, lock, pq.Array(cids)); err != nil {
		return 0, fmt.Errorf("lock enrolled courses: %w", err)
	}

	var removed []int64
	const del = `DELETE FROM learn WHERE sid = $1 AND cid = ANY($2) RETURNING cid`
	if err := tx.SelectContext(ctx, &removed, del, studentID, pq.Array(cids)); err != nil {
		return 0, fmt.Errorf("delete student enrollments: %w", err)
	}
	if len(removed) > 0 {
		const decrement = `UPDATE courses SET num_selected = GREATEST(num_selected - 1, 0) WHERE id = ANY($1)`
		if _, err := tx.ExecContext(ctx, decrement, pq.Array(removed)); err != nil {
			return 0, fmt.Errorf("decrement enrolled courses: %w", err)
		}
	}
	return len(cids), nil
}

// DeleteTeachingByTeacher removes every teaching row of a teacher.
func (r *CourseRepository) DeleteTeachingByTeacher(ctx context.Context, teacherID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teach WHERE tid = $1`, teacherID)
	if err != nil {
		return 0, fmt.Errorf("delete teaching rows: %w", err)
	}
	return res.RowsAffected()
}

// MaxCourseID returns the highest course id within [floor, ceiling], or nil
// when the band holds no course.
func (r *CourseRepository) MaxCourseID(ctx context.Context, floor, ceiling int64) (*int64, error) {
	var max sql.NullInt64
	if err := r.db.GetContext(ctx, &max, `SELECT MAX(id) FROM courses WHERE id BETWEEN $1 AND $2`, floor, ceiling); err != nil {
		return nil, fmt.Errorf("max course id: %w", err)
	}
	if !max.Valid {
		return nil, nil
	}
	return &max.Int64, nil
}

// CourseIDs returns the course ids within [floor, ceiling] in ascending order.
func (r *CourseRepository) CourseIDs(ctx context.Context, floor, ceiling int64) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM courses WHERE id BETWEEN $1 AND $2 ORDER BY id`, floor, ceiling); err != nil {
		return nil, fmt.Errorf("list course ids: %w", err)
	}
	return ids, nil
}

// InsertCourse inserts a new course row with a zero counter.
func (r *CourseRepository) InsertCourse(ctx context.Context, tx *sqlx.Tx, course models.Course) error {
	const query = `INSERT INTO courses (id, name, capacity, num_selected, campus)
VALUES (:id, :name, :capacity, 0, :campus)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// UpdateCourse changes name and capacity. The caller holds the course lock.
func (r *CourseRepository) UpdateCourse(ctx context.Context, tx *sqlx.Tx, id int64, name string, capacity int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET name = $1, capacity = $2 WHERE id = $3`, name, capacity, id); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// ReplaceTeaching sets the teachers of a course to exactly teacherIDs.
func (r *CourseRepository) ReplaceTeaching(ctx context.Context, tx *sqlx.Tx, courseID int64, teacherIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM teach WHERE cid = $1`, courseID); err != nil {
		return fmt.Errorf("clear teaching rows: %w", err)
	}
	const insert = `INSERT INTO teach (tid, cid) SELECT DISTINCT t, $2 FROM unnest($1::bigint[]) AS t`
	if _, err := tx.ExecContext(ctx, insert, pq.Array(teacherIDs), courseID); err != nil {
		return fmt.Errorf("insert teaching rows: %w", err)
	}
	return nil
}

// DeleteCourse removes a course with its enrollment and teaching rows. It
// reports false when the course did not exist.
func (r *CourseRepository) DeleteCourse(ctx context.Context, tx *sqlx.Tx, id int64) (bool, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM learn WHERE cid = $1`, id); err != nil {
		return false, fmt.Errorf("delete course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teach WHERE cid = $1`, id); err != nil {
		return false, fmt.Errorf("delete course teaching: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete course rows affected: %w", err)
	}
	return affected > 0, nil
}

// CourseExists reports whether a course row exists.
func (r *CourseRepository) CourseExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check course: %w", err)
	}
	return exists, nil
}

// StudentIDsOfCourse returns the ids of the students enrolled in a course.
func (r *CourseRepository) StudentIDsOfCourse(ctx context.Context, courseID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT sid FROM learn WHERE cid = $1 ORDER BY sid`, courseID); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return ids, nil
}
