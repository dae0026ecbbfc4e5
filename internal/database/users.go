package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage/internal/apperr"
	"triage/internal/models"

	"github.com/lib/pq"
)

const userColumns = `u.id, u.name, u.email, u.role, u.department_id, u.department_admin, u.is_active, u.last_task_assigned_at`

// ListActiveStaff returns active users of the department. When roles is
// non-empty only users holding one of them are returned.
func (s *Store) ListActiveStaff(ctx context.Context, deptCode string, roles []models.Role) ([]models.User, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users u
		JOIN departments d ON d.id = u.department_id
		WHERE d.code = $1 AND u.is_active = true
			AND (cardinality($2::text[]) = 0 OR u.role = ANY($2))
		ORDER BY u.id ASC`, deptCode, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list staff of %s: %w", deptCode, err)
	}
	return users, nil
}

// LockDepartment takes a session advisory lock keyed by the department code so
// concurrent selections for one department run one at a time. The returned
// release func must be called.
func (s *Store) LockDepartment(ctx context.Context, deptCode string) (func(), error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for department lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, deptCode); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to lock department %s: %w", deptCode, err)
	}

	return func() {
		// unlock on a fresh context, the caller's may already be done
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, deptCode)
		conn.Close()
	}, nil
}

// TouchLastAssigned sets last_task_assigned_at for one user
func (s *Store) TouchLastAssigned(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_task_assigned_at = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to stamp user %d: %w", userID, err)
	}
	return nil
}

// GetUser loads a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

// GetDepartmentByCode looks a department up by its stable code
func (s *Store) GetDepartmentByCode(ctx context.Context, code string) (*models.Department, error) {
	var d models.Department
	err := s.db.GetContext(ctx, &d, `SELECT id, name, code, is_active FROM departments WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("department %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department %s: %w", code, err)
	}
	return &d, nil
}
