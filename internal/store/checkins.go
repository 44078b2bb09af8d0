package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Elizabethomito/gatepass/internal/models"
)

const checkInColumns = `id, visitor_request_id, check_in_time, check_in_by, check_out_time,
	check_out_by, duration_minutes, created_at`

func scanCheckIn(row scanner) (*models.CheckInOut, error) {
	var (
		c        models.CheckInOut
		out      sql.NullTime
		duration sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.VisitorRequestID, &c.CheckInTime, &c.CheckInBy, &out,
		&c.CheckOutBy, &duration, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CheckInTime = c.CheckInTime.UTC()
	c.CheckOutTime = timePtr(out)
	if duration.Valid {
		m := int(duration.Int64)
		c.DurationMinutes = &m
	}
	return &c, nil
}

// CreateCheckIn opens a visit record. A second open record for the same
// request violates idx_check_in_outs_open and yields ErrDuplicate.
func (q *Queries) CreateCheckIn(ctx context.Context, c *models.CheckInOut) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO check_in_outs (id, visitor_request_id, check_in_time, check_in_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.VisitorRequestID, c.CheckInTime.UTC(), c.CheckInBy, c.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}

// FindOpenCheckIn returns the record of a visitor who is still inside.
func (q *Queries) FindOpenCheckIn(ctx context.Context, visitorRequestID string) (*models.CheckInOut, error) {
	c, err := scanCheckIn(q.q.QueryRowContext(ctx,
		`SELECT `+checkInColumns+` FROM check_in_outs
		 WHERE visitor_request_id = ? AND check_out_time IS NULL`, visitorRequestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open check-in: %w", err)
	}
	return c, nil
}

// CloseCheckIn stamps the check-out on c. It only matches a record that is
// still open, so a concurrent check-out gets ErrConflict.
func (q *Queries) CloseCheckIn(ctx context.Context, c *models.CheckInOut) error {
	if c.CheckOutTime == nil || c.DurationMinutes == nil {
		return errors.New("close check-in: check-out time and duration are required")
	}
	return q.execOne(ctx, ErrConflict,
		`UPDATE check_in_outs SET check_out_time = ?, check_out_by = ?, duration_minutes = ?
		 WHERE id = ? AND check_out_time IS NULL`,
		c.CheckOutTime.UTC(), c.CheckOutBy, *c.DurationMinutes, c.ID)
}

// ListCheckIns returns every visit record of a request, oldest first.
func (q *Queries) ListCheckIns(ctx context.Context, visitorRequestID string) ([]models.CheckInOut, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+checkInColumns+` FROM check_in_outs WHERE visitor_request_id = ? ORDER BY check_in_time`,
		visitorRequestID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	out := []models.CheckInOut{}
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountOpenCheckIns counts visitors currently inside.
func (q *Queries) CountOpenCheckIns(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_in_outs WHERE check_out_time IS NULL`).Scan(&n)
	return n, err
}
