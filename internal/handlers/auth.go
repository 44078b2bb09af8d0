package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
)

// Login handles POST /api/auth/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request, _ *authz.Principal) error {
	var req models.LoginRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	resp, err := s.Svc.Login(r.Context(), req)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, resp)
	return nil
}

// Register handles POST /api/auth/register (admin only)
func (s *Server) Register(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	u, err := s.Svc.Register(r.Context(), p, req)
	if err != nil {
		return err
	}
	respond(w, http.StatusCreated, u)
	return nil
}

// Me handles GET /api/auth/me
func (s *Server) Me(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	u, err := s.Svc.Me(r.Context(), p)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, u)
	return nil
}

// Logout handles POST /api/auth/logout
func (s *Server) Logout(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	if err := s.Svc.Logout(r.Context(), p); err != nil {
		return err
	}
	respond(w, http.StatusOK, map[string]string{"message": "logged out"})
	return nil
}

// ListUsers handles GET /api/users?role=&active=&search=&page=&limit=
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	q := r.URL.Query()
	f := models.UserFilter{
		Role:   models.UserRole(q.Get("role")),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.BadRequest("active must be true or false")
		}
		f.Active = &active
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return err
	}
	page, err := s.Svc.ListUsers(r.Context(), p, f)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, page)
	return nil
}

// SetUserStatus handles PATCH /api/users/{id}/status
func (s *Server) SetUserStatus(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var req models.UserStatusUpdate
	if err := decode(w, r, &req); err != nil {
		return err
	}
	u, err := s.Svc.SetUserStatus(r.Context(), p, r.PathValue("id"), req.Active)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, u)
	return nil
}

// ListAuditLogs handles GET /api/audit-logs?action=&userId=&from=&to=&page=&limit=
//
// from and to accept RFC 3339 timestamps or plain YYYY-MM-DD dates. A
// plain to date includes that whole day.
func (s *Server) ListAuditLogs(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	q := r.URL.Query()
	f := models.AuditFilter{
		Action: models.AuditAction(q.Get("action")),
		UserID: q.Get("userId"),
	}
	var err error
	if f.From, err = queryTime(r, "from", false); err != nil {
		return err
	}
	if f.To, err = queryTime(r, "to", true); err != nil {
		return err
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		return err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return err
	}
	page, err := s.Svc.ListAuditLogs(r.Context(), p, f)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, page)
	return nil
}
