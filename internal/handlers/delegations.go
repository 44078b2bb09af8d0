package handlers

import (
	"net/http"

	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/workflow"
)

// RequestDelegation handles POST /api/delegations/request
func (s *Server) RequestDelegation(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var in models.DelegationRequestInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	d, err := s.Svc.RequestDelegation(r.Context(), p, in)
	if err != nil {
		return err
	}
	respond(w, http.StatusCreated, d)
	return nil
}

// ListDelegations handles GET /api/delegations?type=sent|received&status=
func (s *Server) ListDelegations(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	q := r.URL.Query()
	list, err := s.Svc.ListDelegations(r.Context(), p,
		workflow.DelegationView(q.Get("type")), models.DelegationStatus(q.Get("status")))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, nonNil(list))
	return nil
}

// ActiveDelegations handles GET /api/delegations/active
func (s *Server) ActiveDelegations(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	list, err := s.Svc.ActiveDelegations(r.Context(), p)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, nonNil(list))
	return nil
}

// ReviewDelegation handles PATCH /api/delegations/{id}/review
func (s *Server) ReviewDelegation(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	var in models.DelegationReviewInput
	if err := decode(w, r, &in); err != nil {
		return err
	}
	d, err := s.Svc.ReviewDelegation(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, d)
	return nil
}

// ActivateDelegation handles PATCH /api/delegations/{id}/activate
func (s *Server) ActivateDelegation(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	d, err := s.Svc.ActivateDelegation(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, d)
	return nil
}

// CancelDelegation handles PATCH /api/delegations/{id}/cancel
func (s *Server) CancelDelegation(w http.ResponseWriter, r *http.Request, p *authz.Principal) error {
	d, err := s.Svc.CancelDelegation(r.Context(), p, r.PathValue("id"))
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, d)
	return nil
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
