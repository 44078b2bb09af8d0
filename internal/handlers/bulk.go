package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

// multipartOverhead is the slack allowed on top of the file size limit
// for boundaries and part headers.
const multipartOverhead = 64 << 10

// UploadPDF handles POST /api/bulk-upload/upload (multipart, field "file").
//
// The body is streamed part by part instead of buffered with
// ParseMultipartForm, so the PDF is written to disk without being held
// in memory first.
func (s *Server) UploadPDF(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	if !authz.Can(p, authz.OpBulkUpload) {
		return apperror.Forbidden("you do not have permission to perform this action")
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Svc.MaxUploadBytes()+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		return apperror.BadRequest("expected a multipart/form-data body")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return apperror.BadRequest("file field is required")
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return apperror.New(http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			}
			return apperror.BadRequest("malformed multipart body")
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		u, err := s.Svc.UploadPDF(r.Context(), p, part.FileName(), part)
		part.Close()
		if err != nil {
			return err
		}
		respond(w, http.StatusCreated, u)
		return nil
	}
}

// ProcessUpload handles POST /api/bulk-upload/process/{id}
func (s *Server) ProcessUpload(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	u, err := s.Svc.ProcessUpload(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, u)
	return nil
}

// ImportRows handles POST /api/bulk-upload/import/{id}
func (s *Server) ImportRows(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.ImportRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	resp, err := s.Svc.ImportRows(r.Context(), p, r.PathValue("id"), req)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, resp)
	return nil
}

// ListUploads handles GET /api/bulk-upload/uploads
func (s *Server) ListUploads(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	list, err := s.Svc.ListUploads(r.Context(), p)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, nonNil(list))
	return nil
}

// GetUpload handles GET /api/bulk-upload/uploads/{id}
func (s *Server) GetUpload(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	u, err := s.Svc.GetUpload(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, u)
	return nil
}

// ListBulkPermissions handles GET /api/bulk-upload/permissions
func (s *Server) ListBulkPermissions(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	users, err := s.Svc.ListBulkPermissions(r.Context(), p)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, nonNil(users))
	return nil
}

// SetBulkPermission handles PATCH /api/bulk-upload/permissions/{id}
func (s *Server) SetBulkPermission(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.BulkPermissionUpdate
	if err := decode(w, r, &req); err != nil {
		return err
	}
	u, err := s.Svc.SetBulkPermission(r.Context(), p, r.PathValue("id"), req.Enabled)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, u)
	return nil
}
