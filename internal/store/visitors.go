package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

const visitorColumns = `v.id, v.visitor_name, v.visitor_id, v.national_id, v.phone, v.email, v.photo,
	v.purpose, v.brought_items, v.department, v.department_type, v.gate, v.access_type,
	v.is_group_visit, v.company_name, v.group_size, v.scheduled_date, v.scheduled_time, v.duration,
	v.status, v.reviewed_by, v.reviewed_at, v.review_comments, v.approval_code, v.priority,
	v.location, v.submitted_by, v.version, v.created_at, v.updated_at`

func scanVisitor(row scanner) (*models.VisitorRequest, error) {
	var (
		v          models.VisitorRequest
		items      string
		reviewedAt sql.NullTime
		code       sql.NullString
	)
	err := row.Scan(&v.ID, &v.VisitorName, &v.VisitorID, &v.NationalID, &v.Phone, &v.Email, &v.Photo,
		&v.Purpose, &items, &v.Department, &v.DepartmentType, &v.Gate, &v.AccessType,
		&v.IsGroupVisit, &v.CompanyName, &v.GroupSize, &v.ScheduledDate, &v.ScheduledTime, &v.Duration,
		&v.Status, &v.ReviewedBy, &reviewedAt, &v.ReviewComments, &code, &v.Priority,
		&v.Location, &v.SubmittedBy, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.ReviewedAt = timePtr(reviewedAt)
	v.ApprovalCode = code.String
	if err := json.Unmarshal([]byte(items), &v.BroughtItems); err != nil {
		return nil, fmt.Errorf("decode brought items: %w", err)
	}
	if v.BroughtItems == nil {
		v.BroughtItems = []string{}
	}
	return &v, nil
}

// CreateVisitor inserts a new request.
func (q *Queries) CreateVisitor(ctx context.Context, v *models.VisitorRequest) error {
	if v.BroughtItems == nil {
		v.BroughtItems = []string{}
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO visitor_requests (id, visitor_name, visitor_id, national_id, phone, email, photo,
		  purpose, brought_items, department, department_type, gate, access_type,
		  is_group_visit, company_name, group_size, scheduled_date, scheduled_time, duration,
		  status, approval_code, priority, location, submitted_by, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.VisitorName, v.VisitorID, v.NationalID, v.Phone, v.Email, v.Photo,
		v.Purpose, mustJSON(v.BroughtItems), v.Department, v.DepartmentType, v.Gate, v.AccessType,
		v.IsGroupVisit, v.CompanyName, v.GroupSize, v.ScheduledDate, v.ScheduledTime, v.Duration,
		v.Status, nullString(v.ApprovalCode), v.Priority, v.Location, v.SubmittedBy, v.Version,
		v.CreatedAt.UTC(), v.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert visitor request: %w", err)
	}
	return nil
}

// GetVisitor loads a request by id.
func (q *Queries) GetVisitor(ctx context.Context, id string) (*models.VisitorRequest, error) {
	v, err := scanVisitor(q.q.QueryRowContext(ctx,
		`SELECT `+visitorColumns+` FROM visitor_requests v WHERE v.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visitor request: %w", err)
	}
	return v, nil
}

// TransitionVisitor persists the status and review fields of v, but only
// if the stored status still equals from. The version column is bumped.
//
// LEARNING NOTE: this is a compare-and-swap. Two reviewers reading the
// same pending request both issue this UPDATE; the first flips the status
// and the second matches zero rows and gets ErrConflict.
func (q *Queries) TransitionVisitor(ctx context.Context, v *models.VisitorRequest, from models.VisitorStatus) error {
	err := q.execOne(ctx, ErrConflict,
		`UPDATE visitor_requests
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, review_comments = ?, approval_code = ?,
		     updated_at = ?, version = version + 1
		 WHERE id = ? AND status = ?`,
		v.Status, v.ReviewedBy, nullTime(v.ReviewedAt), v.ReviewComments, nullString(v.ApprovalCode),
		v.UpdatedAt.UTC(), v.ID, from,
	)
	if err != nil {
		return err
	}
	v.Version++
	return nil
}

// ApprovalCodeExists reports whether code is already assigned.
func (q *Queries) ApprovalCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM visitor_requests WHERE approval_code = ?)`, code).Scan(&exists)
	return exists, err
}

// scopeClause renders an authz.Scope as a WHERE fragment over alias v.
func scopeClause(s authz.Scope) (string, []any) {
	if s.All {
		return "1=1", nil
	}
	var (
		parts []string
		args  []any
	)
	if s.OwnerID != "" {
		parts = append(parts, "v.submitted_by = ?")
		args = append(args, s.OwnerID)
	}
	if len(s.Statuses) > 0 {
		parts = append(parts, "v.status IN ("+placeholders(len(s.Statuses))+")")
		for _, st := range s.Statuses {
			args = append(args, st)
		}
	}
	if len(parts) == 0 {
		return "1=0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func visitorWhere(scope authz.Scope, f models.VisitorFilter) (string, []any) {
	cond, args := scopeClause(scope)
	where := []string{cond}
	if f.Status != "" {
		where = append(where, "v.status = ?")
		args = append(args, f.Status)
	}
	if d := strings.TrimSpace(f.Department); d != "" {
		where = append(where, "LOWER(v.department) LIKE ?")
		args = append(args, "%"+strings.ToLower(d)+"%")
	}
	if f.Date != "" {
		where = append(where, "v.scheduled_date = ?")
		args = append(args, f.Date)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(v.visitor_name) LIKE ? OR LOWER(v.visitor_id) LIKE ? OR LOWER(COALESCE(v.approval_code, '')) LIKE ?)")
		args = append(args, like, like, like)
	}
	return strings.Join(where, " AND "), args
}

// ListVisitors returns one page of requests inside scope matching f, and
// the total match count.
func (q *Queries) ListVisitors(ctx context.Context, scope authz.Scope, f models.VisitorFilter) ([]models.VisitorRequest, int, error) {
	cond, args := visitorWhere(scope, f)

	var total int
	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_requests v WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visitor requests: %w", err)
	}

	_, limit, offset := pageBounds(f.Page, f.Limit)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+visitorColumns+` FROM visitor_requests v WHERE `+cond+`
		 ORDER BY v.created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list visitor requests: %w", err)
	}
	defer rows.Close()

	out := []models.VisitorRequest{}
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan visitor request: %w", err)
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

// ListAllVisitors returns every request inside scope matching f, ignoring
// pagination. Used by the export.
func (q *Queries) ListAllVisitors(ctx context.Context, scope authz.Scope, f models.VisitorFilter) ([]models.VisitorRequest, error) {
	cond, args := visitorWhere(scope, f)
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+visitorColumns+` FROM visitor_requests v WHERE `+cond+` ORDER BY v.scheduled_date, v.scheduled_time`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list visitor requests: %w", err)
	}
	defer rows.Close()

	out := []models.VisitorRequest{}
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visitor request: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// VisitorAnalytics aggregates the requests inside scope.
func (q *Queries) VisitorAnalytics(ctx context.Context, scope authz.Scope, today time.Time) (*models.VisitorAnalytics, error) {
	cond, args := scopeClause(scope)
	a := &models.VisitorAnalytics{
		ByStatus:     map[models.VisitorStatus]int{},
		ByDepartment: map[string]int{},
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT v.status, COUNT(*) FROM visitor_requests v WHERE `+cond+` GROUP BY v.status`, args...)
	if err != nil {
		return nil, fmt.Errorf("analytics by status: %w", err)
	}
	for rows.Next() {
		var (
			st models.VisitorStatus
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, err
		}
		a.ByStatus[st] = n
		a.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.q.QueryContext(ctx,
		`SELECT v.department, COUNT(*) FROM visitor_requests v WHERE `+cond+` GROUP BY v.department`, args...)
	if err != nil {
		return nil, fmt.Errorf("analytics by department: %w", err)
	}
	for rows.Next() {
		var (
			dept string
			n    int
		)
		if err := rows.Scan(&dept, &n); err != nil {
			rows.Close()
			return nil, err
		}
		a.ByDepartment[dept] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_requests v WHERE `+cond+` AND v.scheduled_date = ?`,
		append(append([]any{}, args...), today.Format(models.DateLayout))...).Scan(&a.ScheduledToday); err != nil {
		return nil, fmt.Errorf("analytics scheduled today: %w", err)
	}

	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_in_outs c JOIN visitor_requests v ON v.id = c.visitor_request_id
		 WHERE `+cond+` AND c.check_out_time IS NULL`, args...).Scan(&a.CurrentlyInside); err != nil {
		return nil, fmt.Errorf("analytics inside: %w", err)
	}

	var avg sql.NullFloat64
	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(c.duration_minutes) FROM check_in_outs c JOIN visitor_requests v ON v.id = c.visitor_request_id
		 WHERE `+cond+` AND c.check_out_time IS NOT NULL`, args...).Scan(&a.CompletedVisits, &avg); err != nil {
		return nil, fmt.Errorf("analytics durations: %w", err)
	}
	a.AvgVisitMinutes = avg.Float64
	return a, nil
}
