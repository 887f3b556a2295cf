// Package sqlite provides a SQLite-backed matrix storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/openraci/raciboard/internal/platform/storage/sqlitemigrate"
	"github.com/openraci/raciboard/internal/services/matrix/storage"
	"github.com/openraci/raciboard/internal/services/matrix/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists matrix aggregates in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite matrix store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	// Pragmas in the DSN apply to every pooled connection; foreign keys
	// drive the assignment cascade deletes.
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// withTx runs fn inside one transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// touchMatrix applies the audit stamp to the matrix row inside the same
// transaction as the structural change, and doubles as the existence
// check for the aggregate.
func touchMatrix(tx *sql.Tx, matrixID string, stamp storage.Stamp) error {
	result, err := tx.Exec(
		`UPDATE matrices SET updated_by = ?, updated_at = ? WHERE id = ?`,
		stamp.UserID,
		toMillis(stamp.At),
		matrixID,
	)
	if err != nil {
		return fmt.Errorf("touch matrix: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch matrix: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateMatrix stores a new matrix aggregate record.
func (s *Store) CreateMatrix(ctx context.Context, record storage.MatrixRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("matrix id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO matrices (id, project_id, name, description, approver_user_id, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ProjectID,
		record.Name,
		record.Description,
		record.ApproverUserID,
		record.CreatedBy,
		record.UpdatedBy,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create matrix: %w", err)
	}
	return nil
}

// GetMatrix returns one matrix aggregate record.
func (s *Store) GetMatrix(ctx context.Context, matrixID string) (storage.MatrixRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MatrixRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MatrixRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, project_id, name, description, approver_user_id, created_by, updated_by, created_at, updated_at
		 FROM matrices
		 WHERE id = ?`,
		matrixID,
	)
	return scanMatrix(row)
}

func scanMatrix(row *sql.Row) (storage.MatrixRecord, error) {
	var (
		record    storage.MatrixRecord
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&record.ID,
		&record.ProjectID,
		&record.Name,
		&record.Description,
		&record.ApproverUserID,
		&record.CreatedBy,
		&record.UpdatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MatrixRecord{}, storage.ErrNotFound
		}
		return storage.MatrixRecord{}, fmt.Errorf("get matrix: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListMatrices returns all matrices of a project ordered by creation time.
func (s *Store) ListMatrices(ctx context.Context, projectID string) ([]storage.MatrixRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, project_id, name, description, approver_user_id, created_by, updated_by, created_at, updated_at
		 FROM matrices
		 WHERE project_id = ?
		 ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list matrices: %w", err)
	}
	defer rows.Close()

	var records []storage.MatrixRecord
	for rows.Next() {
		var (
			record    storage.MatrixRecord
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.ProjectID,
			&record.Name,
			&record.Description,
			&record.ApproverUserID,
			&record.CreatedBy,
			&record.UpdatedBy,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("list matrices: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matrices: %w", err)
	}
	return records, nil
}

// DeleteMatrix removes the matrix and cascades tasks, columns, and
// assignments through foreign keys.
func (s *Store) DeleteMatrix(ctx context.Context, matrixID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM matrices WHERE id = ?`, matrixID)
		if err != nil {
			return fmt.Errorf("delete matrix: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete matrix: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		// Assignment cascade chains through tasks and columns; the
		// direct delete keeps the invariant even with FKs disabled.
		if _, err := tx.Exec(`DELETE FROM matrix_assignments WHERE matrix_id = ?`, matrixID); err != nil {
			return fmt.Errorf("delete matrix assignments: %w", err)
		}
		return nil
	})
}

// GetTask returns one task row.
func (s *Store) GetTask(ctx context.Context, matrixID string, rowOrder int) (storage.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TaskRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TaskRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT matrix_id, row_order, name, description
		 FROM matrix_tasks
		 WHERE matrix_id = ? AND row_order = ?`,
		matrixID,
		rowOrder,
	)
	var record storage.TaskRecord
	if err := row.Scan(&record.MatrixID, &record.RowOrder, &record.Name, &record.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TaskRecord{}, storage.ErrNotFound
		}
		return storage.TaskRecord{}, fmt.Errorf("get task: %w", err)
	}
	return record, nil
}

// ListTasks returns all task rows of a matrix ordered by row order.
func (s *Store) ListTasks(ctx context.Context, matrixID string) ([]storage.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT matrix_id, row_order, name, description
		 FROM matrix_tasks
		 WHERE matrix_id = ?
		 ORDER BY row_order ASC`,
		matrixID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var records []storage.TaskRecord
	for rows.Next() {
		var record storage.TaskRecord
		if err := rows.Scan(&record.MatrixID, &record.RowOrder, &record.Name, &record.Description); err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return records, nil
}

// InsertTask stores a new task row, auto-assigning the next row order
// when the requested row order is negative.
func (s *Store) InsertTask(ctx context.Context, record storage.TaskRecord, stamp storage.Stamp) (storage.TaskRecord, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, record.MatrixID, stamp); err != nil {
			return err
		}
		if record.RowOrder < 0 {
			row := tx.QueryRow(
				`SELECT COALESCE(MAX(row_order) + 1, 0) FROM matrix_tasks WHERE matrix_id = ?`,
				record.MatrixID,
			)
			if err := row.Scan(&record.RowOrder); err != nil {
				return fmt.Errorf("next row order: %w", err)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO matrix_tasks (matrix_id, row_order, name, description)
			 VALUES (?, ?, ?, ?)`,
			record.MatrixID,
			record.RowOrder,
			record.Name,
			record.Description,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.TaskRecord{}, err
	}
	return record, nil
}

// UpdateTask replaces the name and description of an existing task row.
func (s *Store) UpdateTask(ctx context.Context, record storage.TaskRecord, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, record.MatrixID, stamp); err != nil {
			return err
		}
		result, err := tx.Exec(
			`UPDATE matrix_tasks SET name = ?, description = ?
			 WHERE matrix_id = ? AND row_order = ?`,
			record.Name,
			record.Description,
			record.MatrixID,
			record.RowOrder,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// DeleteTask removes the task row; assignments at that row order go with
// it through the cascading foreign key.
func (s *Store) DeleteTask(ctx context.Context, matrixID string, rowOrder int, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, matrixID, stamp); err != nil {
			return err
		}
		result, err := tx.Exec(
			`DELETE FROM matrix_tasks WHERE matrix_id = ? AND row_order = ?`,
			matrixID,
			rowOrder,
		)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ListColumns returns the ordered participant columns of a matrix.
func (s *Store) ListColumns(ctx context.Context, matrixID string) ([]storage.ColumnRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT matrix_id, position, participant_key
		 FROM matrix_columns
		 WHERE matrix_id = ?
		 ORDER BY position ASC`,
		matrixID,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var records []storage.ColumnRecord
	for rows.Next() {
		var record storage.ColumnRecord
		if err := rows.Scan(&record.MatrixID, &record.Position, &record.ParticipantKey); err != nil {
			return nil, fmt.Errorf("list columns: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return records, nil
}

// AppendColumn appends the participant to the end of the column list.
func (s *Store) AppendColumn(ctx context.Context, matrixID string, participantKey string, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, matrixID, stamp); err != nil {
			return err
		}
		var position int
		row := tx.QueryRow(
			`SELECT COALESCE(MAX(position) + 1, 0) FROM matrix_columns WHERE matrix_id = ?`,
			matrixID,
		)
		if err := row.Scan(&position); err != nil {
			return fmt.Errorf("next column position: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO matrix_columns (matrix_id, participant_key, position)
			 VALUES (?, ?, ?)`,
			matrixID,
			participantKey,
			position,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("append column: %w", err)
		}
		return nil
	})
}

// RemoveColumn removes the column; its assignments go with it through
// the cascading foreign key. Other columns keep their positions.
func (s *Store) RemoveColumn(ctx context.Context, matrixID string, participantKey string, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, matrixID, stamp); err != nil {
			return err
		}
		result, err := tx.Exec(
			`DELETE FROM matrix_columns WHERE matrix_id = ? AND participant_key = ?`,
			matrixID,
			participantKey,
		)
		if err != nil {
			return fmt.Errorf("remove column: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove column: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ListAssignments returns all grid cells of a matrix.
func (s *Store) ListAssignments(ctx context.Context, matrixID string) ([]storage.AssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT matrix_id, row_order, participant_key, role
		 FROM matrix_assignments
		 WHERE matrix_id = ?
		 ORDER BY row_order ASC, participant_key ASC`,
		matrixID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var records []storage.AssignmentRecord
	for rows.Next() {
		var record storage.AssignmentRecord
		if err := rows.Scan(&record.MatrixID, &record.RowOrder, &record.ParticipantKey, &record.RoleLetter); err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return records, nil
}

// UpsertAssignment creates the grid cell or replaces its role. The
// schema's foreign keys backstop the task-and-column preconditions.
func (s *Store) UpsertAssignment(ctx context.Context, record storage.AssignmentRecord, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, record.MatrixID, stamp); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO matrix_assignments (matrix_id, row_order, participant_key, role)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(matrix_id, row_order, participant_key) DO UPDATE SET
			   role = excluded.role`,
			record.MatrixID,
			record.RowOrder,
			record.ParticipantKey,
			record.RoleLetter,
		); err != nil {
			if isForeignKeyViolation(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("upsert assignment: %w", err)
		}
		return nil
	})
}

// DeleteAssignment clears the grid cell; clearing an absent cell is a no-op.
func (s *Store) DeleteAssignment(ctx context.Context, matrixID string, rowOrder int, participantKey string, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchMatrix(tx, matrixID, stamp); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`DELETE FROM matrix_assignments
			 WHERE matrix_id = ? AND row_order = ? AND participant_key = ?`,
			matrixID,
			rowOrder,
			participantKey,
		); err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		return nil
	})
}

// SetApprover replaces the matrix approver; an empty user id clears it.
func (s *Store) SetApprover(ctx context.Context, matrixID string, approverUserID string, stamp storage.Stamp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE matrices SET approver_user_id = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			approverUserID,
			stamp.UserID,
			toMillis(stamp.At),
			matrixID,
		)
		if err != nil {
			return fmt.Errorf("set approver: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("set approver: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

var _ storage.MatrixStore = (*Store)(nil)
