package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

// RequestDelegation asks for the caller's permissions to be handed to
// another user for a time window.
func (s *Service) RequestDelegation(ctx context.Context, p *authz.Principal, in models.DelegationRequestInput) (*models.Delegation, error) {
	if err := authorize(p, authz.OpRequestDelegation); err != nil {
		return nil, err
	}

	in.DelegateID = strings.TrimSpace(in.DelegateID)
	in.Reason = strings.TrimSpace(in.Reason)
	var v apperror.Validator
	v.Check(in.DelegateID != "", "delegate is required")
	v.Check(in.Reason != "", "reason is required")
	v.Check(!in.StartDate.IsZero(), "start date is required")
	v.Check(!in.EndDate.IsZero(), "end date is required")
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() {
		v.Check(in.EndDate.After(in.StartDate), "end date must be after start date")
	}
	v.Check(in.DelegateID != p.UserID, "you cannot delegate to yourself")
	if err := v.Err(); err != nil {
		return nil, err
	}

	delegate, err := s.store.GetUser(ctx, in.DelegateID)
	if err != nil {
		return nil, storeErr(err, "delegate")
	}
	if !delegate.Active {
		return nil, apperror.BadRequest("delegate account is deactivated")
	}
	if p.DepartmentType == models.DeptWing &&
		delegate.DepartmentType != models.DeptDirector && delegate.DepartmentType != models.DeptDivision {
		return nil, apperror.Forbidden("wing users can only delegate to director or division users")
	}
	if err := delegablePermissions(p, in.Permissions); err != nil {
		return nil, err
	}

	now := s.now()
	d := &models.Delegation{
		ID:          uuid.NewString(),
		RequesterID: p.UserID,
		DelegateID:  delegate.ID,
		Reason:      in.Reason,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		Status:      models.DelegationPending,
		Permissions: in.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		open, err := q.HasOpenDelegation(ctx, p.UserID)
		if err != nil {
			return storeErr(err, "delegation")
		}
		if open {
			return apperror.BadRequest("you already have an open delegation request")
		}
		return storeErr(q.CreateDelegation(ctx, d), "delegation")
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, auditEntry{
		action:    models.AuditDelegationRequest,
		target:    delegate.ID,
		targetEmp: delegate.EmployeeID,
		details:   map[string]any{"delegation_id": d.ID, "start_date": d.StartDate, "end_date": d.EndDate},
		context:   d.Reason,
	})
	return d, nil
}

// delegablePermissions rejects any flag in perms the requester cannot
// exercise itself.
func delegablePermissions(p *authz.Principal, perms models.DelegationPermissions) error {
	var denied []string
	if perms.CanCreateRequests && !authz.Can(p, authz.OpSubmitVisitor) {
		denied = append(denied, "create requests")
	}
	if perms.CanApproveRequests && !authz.Can(p, authz.OpReviewVisitor) {
		denied = append(denied, "approve requests")
	}
	if perms.CanBulkUpload && !authz.Can(p, authz.OpBulkUpload) {
		denied = append(denied, "bulk upload")
	}
	if len(denied) > 0 {
		return apperror.Forbidden("you cannot delegate permissions you do not hold: " + strings.Join(denied, ", "))
	}
	return nil
}

// DelegationView selects which delegations ListDelegations returns for a
// non-admin caller.
type DelegationView string

const (
	ViewAll      DelegationView = ""
	ViewSent     DelegationView = "sent"
	ViewReceived DelegationView = "received"
)

// ListDelegations lists delegations the caller takes part in. Admins see
// every delegation unless a view is given.
func (s *Service) ListDelegations(ctx context.Context, p *authz.Principal, view DelegationView, status models.DelegationStatus) ([]models.Delegation, error) {
	if err := authorize(p, authz.OpViewDelegations); err != nil {
		return nil, err
	}
	f := store.DelegationFilter{Status: status}
	switch view {
	case ViewSent:
		f.RequesterID = p.UserID
	case ViewReceived:
		f.DelegateID = p.UserID
	case ViewAll:
		if p.Role != models.RoleAdmin {
			f.InvolvingUser = p.UserID
		}
	default:
		return nil, apperror.BadRequest("type must be sent or received")
	}
	list, err := s.store.ListDelegations(ctx, f)
	return list, storeErr(err, "delegation")
}

// ReviewDelegation approves or rejects a pending delegation.
func (s *Service) ReviewDelegation(ctx context.Context, p *authz.Principal, id string, in models.DelegationReviewInput) (*models.Delegation, error) {
	if err := authorize(p, authz.OpReviewDelegation); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	switch in.Status {
	case models.DelegationApproved:
	case models.DelegationRejected:
		if in.Reason == "" {
			return nil, apperror.BadRequest("a reason is required when rejecting")
		}
	default:
		return nil, apperror.BadRequest("status must be approved or rejected")
	}

	d, err := s.store.GetDelegation(ctx, id)
	if err != nil {
		return nil, storeErr(err, "delegation")
	}
	if d.Status != models.DelegationPending {
		return nil, apperror.BadRequest(fmt.Sprintf("only pending delegations can be reviewed (status: %s)", d.Status))
	}

	now := s.now()
	d.Status = in.Status
	d.ApprovedBy = p.UserID
	d.ApprovedAt = &now
	d.UpdatedAt = now
	if in.Status == models.DelegationRejected {
		d.RejectionReason = in.Reason
	}
	if err := s.store.TransitionDelegation(ctx, d, models.DelegationPending); err != nil {
		return nil, storeErr(err, "delegation")
	}

	action := models.AuditDelegationApprove
	body := fmt.Sprintf("Your delegation request from %s to %s was approved.",
		d.StartDate.Format("2006-01-02 15:04"), d.EndDate.Format("2006-01-02 15:04"))
	if d.Status == models.DelegationRejected {
		action = models.AuditDelegationReject
		body = "Your delegation request was rejected: " + d.RejectionReason
	}
	s.audit(ctx, p, auditEntry{
		action:  action,
		target:  d.RequesterID,
		details: map[string]any{"delegation_id": d.ID},
		context: d.RejectionReason,
	})
	s.notifyUser(ctx, d.RequesterID, "Delegation request "+string(d.Status), body)
	return d, nil
}

// loadOwned loads a delegation the caller may manage: its requester or an
// administrator.
func (s *Service) loadOwned(ctx context.Context, p *authz.Principal, id string) (*models.Delegation, error) {
	if err := authorize(p, authz.OpManageDelegation); err != nil {
		return nil, err
	}
	d, err := s.store.GetDelegation(ctx, id)
	if err != nil {
		return nil, storeErr(err, "delegation")
	}
	if d.RequesterID != p.UserID && p.Role != models.RoleAdmin {
		return nil, apperror.Forbidden("only the requester or an administrator can manage this delegation")
	}
	return d, nil
}

// ActivateDelegation starts an approved delegation and copies its
// permissions onto the delegate. A delegation whose window already ended
// is completed instead and the call fails.
func (s *Service) ActivateDelegation(ctx context.Context, p *authz.Principal, id string) (*models.Delegation, error) {
	d, err := s.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DelegationApproved {
		return nil, apperror.BadRequest(fmt.Sprintf("only approved delegations can be activated (status: %s)", d.Status))
	}

	now := s.now()
	if now.Before(d.StartDate) {
		return nil, apperror.BadRequest("delegation period has not started yet")
	}
	if now.After(d.EndDate) {
		d.Status = models.DelegationCompleted
		d.UpdatedAt = now
		if err := s.store.TransitionDelegation(ctx, d, models.DelegationApproved); err != nil {
			return nil, storeErr(err, "delegation")
		}
		s.audit(ctx, p, auditEntry{
			action:  models.AuditDelegationComplete,
			target:  d.DelegateID,
			details: map[string]any{"delegation_id": d.ID, "reason": "ended before activation"},
		})
		return nil, apperror.BadRequest("delegation period has ended; the delegation was marked completed")
	}

	d.Status = models.DelegationActive
	d.UpdatedAt = now
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.TransitionDelegation(ctx, d, models.DelegationApproved); err != nil {
			return storeErr(err, "delegation")
		}
		return storeErr(q.SetDelegationProjection(ctx, d, now), "delegate")
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditDelegationActivate,
		target:  d.DelegateID,
		details: map[string]any{"delegation_id": d.ID, "permissions": d.Permissions},
	})
	return d, nil
}

// CancelDelegation cancels a pending, approved or active delegation. When
// the delegation was active, the delegate's projection is cleared in the
// same transaction.
func (s *Service) CancelDelegation(ctx context.Context, p *authz.Principal, id string) (*models.Delegation, error) {
	d, err := s.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.NonTerminal() {
		return nil, apperror.BadRequest(fmt.Sprintf("delegation cannot be cancelled (status: %s)", d.Status))
	}

	// Captured before the status is overwritten.
	from := d.Status
	wasActive := from == models.DelegationActive

	now := s.now()
	d.Status = models.DelegationCancelled
	d.UpdatedAt = now
	cleared := false
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.TransitionDelegation(ctx, d, from); err != nil {
			return storeErr(err, "delegation")
		}
		if !wasActive {
			return nil
		}
		var err error
		cleared, err = q.ClearDelegationProjection(ctx, d.DelegateID, d.RequesterID, now)
		return storeErr(err, "delegate")
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditDelegationCancel,
		target:  d.DelegateID,
		details: map[string]any{"delegation_id": d.ID, "was_active": wasActive, "projection_cleared": cleared},
	})
	return d, nil
}

// ActiveDelegations completes every active delegation whose window has
// ended and returns the ones still active. Non-admins only see their own.
func (s *Service) ActiveDelegations(ctx context.Context, p *authz.Principal) ([]models.Delegation, error) {
	if err := authorize(p, authz.OpViewDelegations); err != nil {
		return nil, err
	}
	if err := s.completeExpired(ctx, p); err != nil {
		return nil, err
	}

	all, err := s.store.ListActiveDelegations(ctx)
	if err != nil {
		return nil, storeErr(err, "delegation")
	}
	if p.Role == models.RoleAdmin {
		return all, nil
	}
	mine := []models.Delegation{}
	for _, d := range all {
		if d.RequesterID == p.UserID || d.DelegateID == p.UserID {
			mine = append(mine, d)
		}
	}
	return mine, nil
}

// completeExpired moves ended active delegations to completed and clears
// their projections.
func (s *Service) completeExpired(ctx context.Context, p *authz.Principal) error {
	now := s.now()
	expired, err := s.store.ListExpiredActiveDelegations(ctx, now)
	if err != nil {
		return storeErr(err, "delegation")
	}
	for i := range expired {
		d := &expired[i]
		d.Status = models.DelegationCompleted
		d.UpdatedAt = now
		err := s.store.InTx(ctx, func(q *store.Queries) error {
			if err := q.TransitionDelegation(ctx, d, models.DelegationActive); err != nil {
				return err
			}
			_, err := q.ClearDelegationProjection(ctx, d.DelegateID, d.RequesterID, now)
			return err
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return storeErr(err, "delegation")
		}
		s.audit(ctx, p, auditEntry{
			action:  models.AuditDelegationComplete,
			target:  d.DelegateID,
			details: map[string]any{"delegation_id": d.ID},
		})
	}
	return nil
}
