package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/workflow"
)

// visitorFilter reads the listing query string shared by the list and
// export endpoints.
func visitorFilter(r *http.Request) (models.VisitorFilter, error) {
	q := r.URL.Query()
	f := models.VisitorFilter{
		Status:     models.VisitorStatus(q.Get("status")),
		Department: strings.TrimSpace(q.Get("department")),
		Date:       strings.TrimSpace(q.Get("date")),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

// SubmitVisitor handles POST /api/visitors/request
func (s *Server) SubmitVisitor(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.SubmitVisitorRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	v, err := s.Svc.SubmitVisitor(r.Context(), p, req)
	if err != nil {
		return err
	}
	respond(w, http.StatusCreated, v)
	return nil
}

// ListVisitors handles GET /api/visitors/requests
//
// Query params: status, department, date (YYYY-MM-DD), search, page, limit.
// The result is limited to the caller's scope.
func (s *Server) ListVisitors(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	f, err := visitorFilter(r)
	if err != nil {
		return err
	}
	page, err := s.Svc.ListVisitors(r.Context(), p, f)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, page)
	return nil
}

// GetVisitor handles GET /api/visitors/requests/{id}
func (s *Server) GetVisitor(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	v, err := s.Svc.GetVisitor(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, v)
	return nil
}

// ReviewVisitor handles PATCH /api/visitors/requests/{id}/review
func (s *Server) ReviewVisitor(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.ReviewVisitorRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	v, err := s.Svc.ReviewVisitor(r.Context(), p, r.PathValue("id"), req)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, v)
	return nil
}

// CheckIn handles POST /api/visitors/checkin/{id}
func (s *Server) CheckIn(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	out, err := s.Svc.CheckIn(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, out)
	return nil
}

// CheckOut handles PATCH /api/visitors/checkout/{id}
func (s *Server) CheckOut(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	out, err := s.Svc.CheckOut(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, out)
	return nil
}

// Analytics handles GET /api/visitors/analytics
func (s *Server) Analytics(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	a, err := s.Svc.Analytics(r.Context(), p)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, a)
	return nil
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportVisitors handles GET /api/visitors/export. It takes the same
// filters as ListVisitors but ignores paging.
func (s *Server) ExportVisitors(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	f, err := visitorFilter(r)
	if err != nil {
		return err
	}
	data, err := s.Svc.ExportVisitors(r.Context(), p, f)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+workflow.ExportFileName(s.Svc.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}
