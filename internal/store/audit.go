package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Elizabethomito/gatepass/internal/models"
)

// AppendAudit writes one audit record.
func (q *Queries) AppendAudit(ctx context.Context, a *models.AuditLog) error {
	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, user_id, employee_id, target_user_id, target_employee_id,
		  details, context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Action, a.UserID, a.EmployeeID, a.TargetUserID, a.TargetEmployeeID,
		mustJSON(details), a.Context, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAudit returns one page of audit records matching f, newest first,
// and the total match count.
func (q *Queries) ListAudit(ctx context.Context, f models.AuditFilter) ([]models.AuditLog, int, error) {
	where := []string{"1=1"}
	var args []any
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.UserID != "" {
		where = append(where, "(user_id = ? OR target_user_id = ?)")
		args = append(args, f.UserID, f.UserID)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To.UTC())
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	_, limit, offset := pageBounds(f.Page, f.Limit)
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, action, user_id, employee_id, target_user_id, target_employee_id, details, context, created_at
		 FROM audit_logs WHERE `+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := []models.AuditLog{}
	for rows.Next() {
		var (
			a       models.AuditLog
			details string
		)
		if err := rows.Scan(&a.ID, &a.Action, &a.UserID, &a.EmployeeID, &a.TargetUserID, &a.TargetEmployeeID,
			&details, &a.Context, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, 0, fmt.Errorf("decode audit details: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
