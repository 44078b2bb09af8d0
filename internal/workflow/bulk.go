package workflow

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

var pdfMagic = []byte("%PDF-")

const importFailurePrefix = "import: "

// UploadPDF stores a visitor list and records the upload. r is read at
// most up to the configured size limit.
func (s *Service) UploadPDF(ctx context.Context, p *authz.Principal, fileName string, r io.Reader) (*models.BulkUpload, error) {
	if err := authorize(p, authz.OpBulkUpload); err != nil {
		return nil, err
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, apperror.BadRequest("only .pdf files are accepted")
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, apperror.BadRequest("file is not a PDF document")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, apperror.Internal("could not prepare upload directory", err)
	}
	id := uuid.NewString()
	stored := id + ".pdf"
	path := filepath.Join(s.uploadDir, stored)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, apperror.Internal("could not store upload", err)
	}
	size, err := io.Copy(f, io.LimitReader(br, s.maxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, apperror.Internal("could not store upload", err)
	}
	if size > s.maxUploadBytes {
		os.Remove(path)
		return nil, apperror.New(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUploadBytes))
	}

	now := s.now()
	u := &models.BulkUpload{
		ID:           id,
		OriginalName: fileName,
		StoredName:   stored,
		Size:         size,
		MimeType:     "application/pdf",
		UploadedBy:   p.UserID,
		Status:       models.UploadUploaded,
		Rows:         []models.ExtractedRow{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUpload(ctx, u); err != nil {
		os.Remove(path)
		return nil, storeErr(err, "upload")
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditBulkUpload,
		details: map[string]any{"upload_id": u.ID, "file_name": fileName, "size": size},
	})
	return u, nil
}

// loadUpload returns an upload owned by p (or any upload for admins).
// Foreign uploads are reported as missing.
func (s *Service) loadUpload(ctx context.Context, q *store.Queries, p *authz.Principal, id string) (*models.BulkUpload, error) {
	u, err := q.GetUpload(ctx, id)
	if err != nil {
		return nil, storeErr(err, "upload")
	}
	if u.UploadedBy != p.UserID && p.Role != models.RoleAdmin {
		return nil, apperror.NotFound("upload not found")
	}
	return u, nil
}

// ProcessUpload extracts visitor rows from a stored upload.
func (s *Service) ProcessUpload(ctx context.Context, p *authz.Principal, id string) (*models.BulkUpload, error) {
	if err := authorize(p, authz.OpBulkUpload); err != nil {
		return nil, err
	}
	u, err := s.loadUpload(ctx, s.store.Queries, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClaimUpload(ctx, id, s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperror.BadRequest(fmt.Sprintf("upload cannot be processed (status: %s)", u.Status))
		}
		return nil, storeErr(err, "upload")
	}

	lines, extractErr := s.extractor.Lines(filepath.Join(s.uploadDir, u.StoredName))
	now := s.now()
	u.ProcessedAt = &now
	u.UpdatedAt = now
	if extractErr != nil {
		u.Status = models.UploadFailed
		u.Error = extractErr.Error()
		u.Rows = []models.ExtractedRow{}
	} else {
		u.Status = models.UploadCompleted
		u.Error = ""
		u.Rows = s.parser.Parse(lines)
	}
	u.TotalRows = len(u.Rows)
	u.ImportedRows, u.FailedRows = countRows(u.Rows)
	if err := s.store.UpdateUpload(ctx, u); err != nil {
		return nil, storeErr(err, "upload")
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditBulkProcess,
		details: map[string]any{"upload_id": u.ID, "status": u.Status, "rows": u.TotalRows},
	})
	if extractErr != nil {
		s.log.Warn("pdf extraction failed", "upload_id", u.ID, "err", extractErr)
		return nil, apperror.BadRequest("could not read text from the PDF")
	}
	return u, nil
}

func countRows(rows []models.ExtractedRow) (imported, failed int) {
	for _, r := range rows {
		switch r.Status {
		case models.RowImported:
			imported++
		case models.RowFailed:
			failed++
		}
	}
	return imported, failed
}

// ImportRows turns the selected rows of a processed upload into visitor
// requests. Each row succeeds or fails on its own.
func (s *Service) ImportRows(ctx context.Context, p *authz.Principal, id string, req models.ImportRequest) (*models.ImportResponse, error) {
	if err := authorize(p, authz.OpBulkUpload); err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, apperror.BadRequest("select at least one row to import")
	}
	u, err := s.loadUpload(ctx, s.store.Queries, p, id)
	if err != nil {
		return nil, err
	}
	if u.Status != models.UploadCompleted {
		return nil, apperror.BadRequest(fmt.Sprintf("upload has not been processed (status: %s)", u.Status))
	}

	resp := &models.ImportResponse{Results: []models.ImportRowResult{}}
	seen := make(map[int]bool, len(req.Rows))
	for _, idx := range req.Rows {
		res := models.ImportRowResult{Index: idx, Status: models.RowFailed}
		switch {
		case seen[idx]:
			res.Message = "row selected more than once"
		case idx < 0 || idx >= len(u.Rows):
			res.Message = "row does not exist"
		default:
			row := &u.Rows[idx]
			if row.Status == models.RowImported {
				res.Message = "row was already imported"
				res.VisitorRequestID = row.VisitorRequestID
				break
			}
			res.Message, res.VisitorRequestID = s.importRow(ctx, p, row, req)
			res.Status = row.Status
		}
		seen[idx] = true
		if res.Status == models.RowImported {
			resp.Imported++
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, res)
	}

	u.ImportedRows, u.FailedRows = countRows(u.Rows)
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUpload(ctx, u); err != nil {
		return nil, storeErr(err, "upload")
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditBulkImport,
		details: map[string]any{"upload_id": u.ID, "imported": resp.Imported, "failed": resp.Failed},
	})
	return resp, nil
}

// importRow creates the visitor request of one row and records the outcome
// on the row. It returns the failure message (empty on success) and the
// new request id.
func (s *Service) importRow(ctx context.Context, p *authz.Principal, row *models.ExtractedRow, req models.ImportRequest) (string, string) {
	// Rows the parser rejected stay rejected; a failed import may be retried.
	if row.Status == models.RowFailed && !strings.HasPrefix(row.Error, importFailurePrefix) {
		return row.Error, ""
	}

	deptType := req.DepartmentType
	if deptType == "" {
		deptType = p.DepartmentType
	}
	sub := models.SubmitVisitorRequest{
		VisitorName:    row.VisitorName,
		VisitorID:      row.VisitorID,
		NationalID:     row.NationalID,
		Phone:          row.Phone,
		Purpose:        row.Purpose,
		DepartmentType: deptType,
		Gate:           req.Gate,
		AccessType:     req.AccessType,
		ScheduledDate:  req.ScheduledDate,
		ScheduledTime:  req.ScheduledTime,
		Duration:       req.Duration,
	}
	fail := func(msg string) (string, string) {
		row.Status = models.RowFailed
		row.Error = importFailurePrefix + msg
		return msg, ""
	}
	if err := validateSubmission(&sub); err != nil {
		_, msg := apperror.StatusOf(err)
		return fail(msg)
	}
	v := s.newVisitorRequest(p, sub)
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		s.log.Warn("bulk import row failed", "row", row.Index, "err", err)
		return fail("could not save visitor request")
	}
	row.Status = models.RowImported
	row.Error = ""
	row.VisitorRequestID = v.ID
	return "", v.ID
}

// ListUploads returns the caller's uploads, or every upload for admins.
func (s *Service) ListUploads(ctx context.Context, p *authz.Principal) ([]models.BulkUpload, error) {
	if err := authorize(p, authz.OpBulkUpload); err != nil {
		return nil, err
	}
	owner := p.UserID
	if p.Role == models.RoleAdmin {
		owner = ""
	}
	list, err := s.store.ListUploads(ctx, owner)
	return list, storeErr(err, "upload")
}

// GetUpload returns one upload with its extracted rows.
func (s *Service) GetUpload(ctx context.Context, p *authz.Principal, id string) (*models.BulkUpload, error) {
	if err := authorize(p, authz.OpBulkUpload); err != nil {
		return nil, err
	}
	return s.loadUpload(ctx, s.store.Queries, p, id)
}
