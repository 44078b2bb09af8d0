package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Elizabethomito/gatepass/internal/models"
)

const uploadColumns = `id, original_name, stored_name, size, mime_type, uploaded_by, status, error,
	extracted_rows, total_rows, imported_rows, failed_rows, processed_at, created_at, updated_at`

func scanUpload(row scanner) (*models.BulkUpload, error) {
	var (
		u         models.BulkUpload
		rowsJSON  string
		processed sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.OriginalName, &u.StoredName, &u.Size, &u.MimeType, &u.UploadedBy,
		&u.Status, &u.Error, &rowsJSON, &u.TotalRows, &u.ImportedRows, &u.FailedRows, &processed,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ProcessedAt = timePtr(processed)
	if err := json.Unmarshal([]byte(rowsJSON), &u.Rows); err != nil {
		return nil, fmt.Errorf("decode upload rows: %w", err)
	}
	if u.Rows == nil {
		u.Rows = []models.ExtractedRow{}
	}
	return &u, nil
}

// CreateUpload inserts a freshly stored upload.
func (q *Queries) CreateUpload(ctx context.Context, u *models.BulkUpload) error {
	if u.Rows == nil {
		u.Rows = []models.ExtractedRow{}
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO bulk_uploads (id, original_name, stored_name, size, mime_type, uploaded_by, status,
		  extracted_rows, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.OriginalName, u.StoredName, u.Size, u.MimeType, u.UploadedBy, u.Status,
		mustJSON(u.Rows), u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// GetUpload loads an upload by id.
func (q *Queries) GetUpload(ctx context.Context, id string) (*models.BulkUpload, error) {
	u, err := scanUpload(q.q.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM bulk_uploads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

// ListUploads returns uploads, newest first. An empty uploadedBy lists all.
func (q *Queries) ListUploads(ctx context.Context, uploadedBy string) ([]models.BulkUpload, error) {
	query := `SELECT ` + uploadColumns + ` FROM bulk_uploads`
	var args []any
	if uploadedBy != "" {
		query += ` WHERE uploaded_by = ?`
		args = append(args, uploadedBy)
	}
	rows, err := q.q.QueryContext(ctx, query+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := []models.BulkUpload{}
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ClaimUpload moves an upload into processing. Only uploads that are
// freshly uploaded or previously failed can be claimed; anything else
// yields ErrConflict.
func (q *Queries) ClaimUpload(ctx context.Context, id string, now time.Time) error {
	return q.execOne(ctx, ErrConflict,
		`UPDATE bulk_uploads SET status = 'processing', error = '', updated_at = ?
		 WHERE id = ? AND status IN ('uploaded','failed')`, now.UTC(), id)
}

// UpdateUpload writes back status, rows and counters.
func (q *Queries) UpdateUpload(ctx context.Context, u *models.BulkUpload) error {
	return q.execOne(ctx, ErrNotFound,
		`UPDATE bulk_uploads SET status = ?, error = ?, extracted_rows = ?, total_rows = ?, imported_rows = ?,
		   failed_rows = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		u.Status, u.Error, mustJSON(u.Rows), u.TotalRows, u.ImportedRows, u.FailedRows,
		nullTime(u.ProcessedAt), u.UpdatedAt.UTC(), u.ID)
}
