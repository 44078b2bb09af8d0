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

const delegationColumns = `id, requester_id, delegate_id, reason, start_date, end_date, status,
	approved_by, approved_at, rejection_reason, permissions, created_at, updated_at`

func scanDelegation(row scanner) (*models.Delegation, error) {
	var (
		d          models.Delegation
		approvedAt sql.NullTime
		perms      string
	)
	if err := row.Scan(&d.ID, &d.RequesterID, &d.DelegateID, &d.Reason, &d.StartDate, &d.EndDate, &d.Status,
		&d.ApprovedBy, &approvedAt, &d.RejectionReason, &perms, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.StartDate = d.StartDate.UTC()
	d.EndDate = d.EndDate.UTC()
	d.ApprovedAt = timePtr(approvedAt)
	if err := json.Unmarshal([]byte(perms), &d.Permissions); err != nil {
		return nil, fmt.Errorf("decode delegation permissions: %w", err)
	}
	return &d, nil
}

// DelegationFilter narrows ListDelegations. Zero fields match everything;
// InvolvingUser matches either side of the delegation.
type DelegationFilter struct {
	RequesterID   string
	DelegateID    string
	InvolvingUser string
	Status        models.DelegationStatus
}

// CreateDelegation inserts d.
func (q *Queries) CreateDelegation(ctx context.Context, d *models.Delegation) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO delegations (id, requester_id, delegate_id, reason, start_date, end_date, status,
		  permissions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RequesterID, d.DelegateID, d.Reason, d.StartDate.UTC(), d.EndDate.UTC(), d.Status,
		mustJSON(d.Permissions), d.CreatedAt.UTC(), d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert delegation: %w", err)
	}
	return nil
}

// GetDelegation loads a delegation by id.
func (q *Queries) GetDelegation(ctx context.Context, id string) (*models.Delegation, error) {
	d, err := scanDelegation(q.q.QueryRowContext(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	return d, nil
}

// HasOpenDelegation reports whether requesterID already holds a pending,
// approved or active delegation.
func (q *Queries) HasOpenDelegation(ctx context.Context, requesterID string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM delegations
		 WHERE requester_id = ? AND status IN ('pending','approved','active'))`, requesterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open delegation: %w", err)
	}
	return exists, nil
}

// ListDelegations returns delegations matching f, newest first.
func (q *Queries) ListDelegations(ctx context.Context, f DelegationFilter) ([]models.Delegation, error) {
	where := []string{"1=1"}
	var args []any
	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.DelegateID != "" {
		where = append(where, "delegate_id = ?")
		args = append(args, f.DelegateID)
	}
	if f.InvolvingUser != "" {
		where = append(where, "(requester_id = ? OR delegate_id = ?)")
		args = append(args, f.InvolvingUser, f.InvolvingUser)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	return q.queryDelegations(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC`,
		args...)
}

// ListActiveDelegations returns delegations in the active state.
func (q *Queries) ListActiveDelegations(ctx context.Context) ([]models.Delegation, error) {
	return q.queryDelegations(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE status = 'active' ORDER BY start_date`)
}

// ListExpiredActiveDelegations returns active delegations whose end date
// is before now.
func (q *Queries) ListExpiredActiveDelegations(ctx context.Context, now time.Time) ([]models.Delegation, error) {
	return q.queryDelegations(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE status = 'active' AND end_date < ?`, now.UTC())
}

func (q *Queries) queryDelegations(ctx context.Context, query string, args ...any) ([]models.Delegation, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	defer rows.Close()

	out := []models.Delegation{}
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// TransitionDelegation persists d's status and review fields if the stored
// status still equals from.
func (q *Queries) TransitionDelegation(ctx context.Context, d *models.Delegation, from models.DelegationStatus) error {
	return q.execOne(ctx, ErrConflict,
		`UPDATE delegations
		 SET status = ?, approved_by = ?, approved_at = ?, rejection_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		d.Status, d.ApprovedBy, nullTime(d.ApprovedAt), d.RejectionReason, d.UpdatedAt.UTC(), d.ID, from)
}
