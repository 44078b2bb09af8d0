package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Elizabethomito/gatepass/internal/models"
)

const userColumns = `id, username, email, password_hash, full_name, employee_id, role,
	department, department_type, active, bulk_upload_enabled, last_login, created_by,
	is_delegated, delegated_by, delegation_start, delegation_end, delegated_permissions,
	created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u                       models.User
		lastLogin, dStart, dEnd sql.NullTime
		perms                   string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.EmployeeID, &u.Role,
		&u.Department, &u.DepartmentType, &u.Active, &u.BulkUploadEnabled, &lastLogin, &u.CreatedBy,
		&u.IsDelegated, &u.DelegatedBy, &dStart, &dEnd, &perms,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.LastLogin = timePtr(lastLogin)
	u.DelegationStart = timePtr(dStart)
	u.DelegationEnd = timePtr(dEnd)
	if perms != "" {
		var p models.DelegationPermissions
		if err := json.Unmarshal([]byte(perms), &p); err != nil {
			return nil, fmt.Errorf("decode delegated permissions: %w", err)
		}
		u.DelegatedPermissions = &p
	}
	return &u, nil
}

// CreateUser inserts u. A taken username or email yields ErrDuplicate.
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, full_name, employee_id, role,
		  department, department_type, active, bulk_upload_enabled, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.EmployeeID, u.Role,
		u.Department, u.DepartmentType, u.Active, u.BulkUploadEnabled, u.CreatedBy,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (q *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(q.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByLogin loads a user by username or email (case-insensitive).
func (q *Queries) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	u, err := scanUser(q.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = ? OR email = ? LIMIT 1`, login, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return u, nil
}

// ListUsers returns one page of users matching f and the total match count.
func (q *Queries) ListUsers(ctx context.Context, f models.UserFilter) ([]models.User, int, error) {
	where := []string{"1=1"}
	var args []any
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ? OR employee_id LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	_, limit, offset := pageBounds(f.Page, f.Limit)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// CountUsersByRole counts users holding role.
func (q *Queries) CountUsersByRole(ctx context.Context, role models.UserRole) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&n)
	return n, err
}

// SetUserActive flips the active flag.
func (q *Queries) SetUserActive(ctx context.Context, id string, active bool, now time.Time) error {
	return q.execOne(ctx, ErrNotFound,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`, active, now.UTC(), id)
}

// SetBulkUpload flips the bulk upload permission.
func (q *Queries) SetBulkUpload(ctx context.Context, id string, enabled bool, now time.Time) error {
	return q.execOne(ctx, ErrNotFound,
		`UPDATE users SET bulk_upload_enabled = ?, updated_at = ? WHERE id = ?`, enabled, now.UTC(), id)
}

// TouchLastLogin records a successful login.
func (q *Queries) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	return q.execOne(ctx, ErrNotFound,
		`UPDATE users SET last_login = ? WHERE id = ?`, now.UTC(), id)
}

// SetDelegationProjection copies an activated delegation onto its delegate.
func (q *Queries) SetDelegationProjection(ctx context.Context, d *models.Delegation, now time.Time) error {
	return q.execOne(ctx, ErrNotFound,
		`UPDATE users SET is_delegated = 1, delegated_by = ?, delegation_start = ?, delegation_end = ?,
		   delegated_permissions = ?, updated_at = ?
		 WHERE id = ?`,
		d.RequesterID, d.StartDate.UTC(), d.EndDate.UTC(), mustJSON(d.Permissions), now.UTC(), d.DelegateID)
}

// ClearDelegationProjection removes the projection written for the
// delegation granted by delegatedBy. A projection from another delegator
// is left untouched. It reports whether a row changed.
func (q *Queries) ClearDelegationProjection(ctx context.Context, userID, delegatedBy string, now time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE users SET is_delegated = 0, delegated_by = '', delegation_start = NULL, delegation_end = NULL,
		   delegated_permissions = '', updated_at = ?
		 WHERE id = ? AND delegated_by = ?`,
		now.UTC(), userID, delegatedBy)
	if err != nil {
		return false, fmt.Errorf("clear delegation projection: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
