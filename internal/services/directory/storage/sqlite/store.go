// Package sqlite provides a SQLite-backed directory storage implementation.
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
	"github.com/openraci/raciboard/internal/services/directory/storage"
	"github.com/openraci/raciboard/internal/services/directory/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists directory state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite directory store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
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

// PutProject upserts one project record.
func (s *Store) PutProject(ctx context.Context, record storage.ProjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO projects (id, name, product_owner_id, pmo_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   product_owner_id = excluded.product_owner_id,
		   pmo_user_id = excluded.pmo_user_id,
		   updated_at = excluded.updated_at`,
		record.ID,
		record.Name,
		record.ProductOwnerID,
		record.PMOUserID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put project: %w", err)
	}
	return nil
}

// GetProject returns one project record.
func (s *Store) GetProject(ctx context.Context, projectID string) (storage.ProjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProjectRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProjectRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, product_owner_id, pmo_user_id, created_at, updated_at
		 FROM projects
		 WHERE id = ?`,
		projectID,
	)
	var (
		record    storage.ProjectRecord
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&record.ID, &record.Name, &record.ProductOwnerID, &record.PMOUserID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProjectRecord{}, storage.ErrNotFound
		}
		return storage.ProjectRecord{}, fmt.Errorf("get project: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutTeamMember upserts one team member record.
func (s *Store) PutTeamMember(ctx context.Context, record storage.TeamMemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("team member id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO team_members (id, display_name, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = excluded.display_name,
		   email = excluded.email,
		   updated_at = excluded.updated_at`,
		record.ID,
		record.DisplayName,
		record.Email,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put team member: %w", err)
	}
	return nil
}

// GetTeamMember returns one team member record.
func (s *Store) GetTeamMember(ctx context.Context, memberID string) (storage.TeamMemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamMemberRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamMemberRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, display_name, email, created_at, updated_at
		 FROM team_members
		 WHERE id = ?`,
		memberID,
	)
	var (
		record    storage.TeamMemberRecord
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&record.ID, &record.DisplayName, &record.Email, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TeamMemberRecord{}, storage.ErrNotFound
		}
		return storage.TeamMemberRecord{}, fmt.Errorf("get team member: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutMembership upserts one project membership record.
func (s *Store) PutMembership(ctx context.Context, record storage.MembershipRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ProjectID) == "" {
		return fmt.Errorf("project id is required")
	}
	if strings.TrimSpace(record.MemberID) == "" {
		return fmt.Errorf("member id is required")
	}
	active := 0
	if record.Active {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO project_memberships (project_id, member_id, role_label, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, member_id) DO UPDATE SET
		   role_label = excluded.role_label,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		record.ProjectID,
		record.MemberID,
		record.RoleLabel,
		active,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put membership: %w", err)
	}
	return nil
}

// ListMemberships returns all memberships of a project in member order.
func (s *Store) ListMemberships(ctx context.Context, projectID string) ([]storage.MembershipRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT project_id, member_id, role_label, active, created_at, updated_at
		 FROM project_memberships
		 WHERE project_id = ?
		 ORDER BY created_at ASC, member_id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var records []storage.MembershipRecord
	for rows.Next() {
		var (
			record    storage.MembershipRecord
			active    int
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&record.ProjectID, &record.MemberID, &record.RoleLabel, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list memberships: %w", err)
		}
		record.Active = active != 0
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return records, nil
}

// ListMemberProjectIDs returns the ids of projects a member belongs to.
func (s *Store) ListMemberProjectIDs(ctx context.Context, memberID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT project_id
		 FROM project_memberships
		 WHERE member_id = ?
		 ORDER BY project_id ASC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member projects: %w", err)
	}
	defer rows.Close()

	var projectIDs []string
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return nil, fmt.Errorf("list member projects: %w", err)
		}
		projectIDs = append(projectIDs, projectID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list member projects: %w", err)
	}
	return projectIDs, nil
}

var _ storage.ProjectStore = (*Store)(nil)
var _ storage.TeamMemberStore = (*Store)(nil)
var _ storage.MembershipStore = (*Store)(nil)
