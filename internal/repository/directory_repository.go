package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/pkg/database"
)

// DirectoryRepository reads the replicated directory store: students,
// teachers and global settings. It never touches course data.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// StudentExists reports whether a student profile exists.
func (r *DirectoryRepository) StudentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}

// CountTeachers returns how many of ids exist as teacher profiles.
func (r *DirectoryRepository) CountTeachers(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM teachers WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("count teachers: %w", err)
	}
	return count, nil
}

// TeacherIDsByName returns the ids of teachers whose name contains substr.
func (r *DirectoryRepository) TeacherIDsByName(ctx context.Context, substr string) ([]int64, error) {
	var ids []int64
	const query = `SELECT id FROM teachers WHERE name ILIKE '%' || $1 || '%' ORDER BY id`
	if err := r.db.SelectContext(ctx, &ids, query, escapeLike(substr)); err != nil {
		return nil, fmt.Errorf("find teachers by name: %w", err)
	}
	return ids, nil
}

// TeacherNames resolves ids to teacher rows by staging the id set in a
// transaction-scoped table and joining it against teachers.
func (r *DirectoryRepository) TeacherNames(ctx context.Context, ids []int64) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var teachers []models.Teacher
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if err := stageIDs(ctx, tx, "tmp_tid", "tid", ids); err != nil {
			return err
		}
		const query = `SELECT t.id, t.name FROM tmp_tid s JOIN teachers t ON t.id = s.tid ORDER BY t.id`
		return tx.SelectContext(ctx, &teachers, query)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve teacher names: %w", err)
	}
	return teachers, nil
}

// StudentsByIDs resolves ids to student profiles the same way TeacherNames does.
func (r *DirectoryRepository) StudentsByIDs(ctx context.Context, ids []int64) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var students []models.Student
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if err := stageIDs(ctx, tx, "tmp_sid", "sid", ids); err != nil {
			return err
		}
		const query = `SELECT st.id, st.name, st.sex, st.age, st.current_campus
FROM tmp_sid s JOIN students st ON st.id = s.sid ORDER BY st.id`
		return tx.SelectContext(ctx, &students, query)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}
	return students, nil
}

// GetSettings returns the settings stored under keys.
func (r *DirectoryRepository) GetSettings(ctx context.Context, keys []string) ([]models.Setting, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	const query = `SELECT key, value, updated_by, updated_at FROM configurations WHERE key = ANY($1) ORDER BY key`
	var settings []models.Setting
	if err := r.db.SelectContext(ctx, &settings, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// UpsertSettings writes all settings in one transaction.
func (r *DirectoryRepository) UpsertSettings(ctx context.Context, settings []models.Setting) error {
	if len(settings) == 0 {
		return nil
	}
	const query = `INSERT INTO configurations (key, value, updated_by, updated_at)
VALUES (:key, :value, :updated_by, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		for i := range settings {
			settings[i].UpdatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, settings[i]); err != nil {
				return fmt.Errorf("upsert setting %s: %w", settings[i].Key, err)
			}
		}
		return nil
	})
}

// stageIDs creates a transaction-scoped single column table and bulk loads ids
// into it. table and column are compile-time constants of this package.
func stageIDs(ctx context.Context, tx sqlx.ExecerContext, table, column string, ids []int64) error {
	create := fmt.Sprintf(`CREATE TEMP TABLE %s (%s BIGINT PRIMARY KEY) ON COMMIT DROP`, table, column)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	load := fmt.Sprintf(`INSERT INTO %s (%s) SELECT DISTINCT unnest($1::bigint[])`, table, column)
	if _, err := tx.ExecContext(ctx, load, pq.Array(ids)); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	return nil
}
