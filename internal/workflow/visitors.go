package workflow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/live"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

const (
	approvalCodePrefix   = "VIS"
	approvalCodeAttempts = 5
	codeAlphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newApprovalCode returns VIS + 6 digits + 3 uppercase alphanumerics,
// every character drawn from crypto/rand.
func newApprovalCode() (string, error) {
	var b strings.Builder
	b.WriteString(approvalCodePrefix)
	for i := 0; i < 9; i++ {
		alphabet := codeAlphabet
		if i < 6 {
			alphabet = "0123456789"
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

func validateSubmission(req *models.SubmitVisitorRequest) error {
	req.VisitorName = strings.TrimSpace(req.VisitorName)
	req.VisitorID = strings.TrimSpace(req.VisitorID)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}

	var v apperror.Validator
	v.Check(req.VisitorName != "", "visitor name is required")
	v.Check(req.VisitorID != "", "visitor id is required")
	v.Check(req.NationalID != "", "national id is required")
	v.Check(req.Phone != "", "phone is required")
	v.Check(req.Purpose != "", "purpose is required")
	v.Check(req.DepartmentType.Valid(), "department type must be one of wing, division, director")
	if _, err := time.Parse(models.DateLayout, req.ScheduledDate); err != nil {
		v.Add("scheduled date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", req.ScheduledTime); err != nil {
		v.Add("scheduled time must be HH:MM")
	}
	v.Check(req.Duration > 0, "duration must be a positive number of hours")
	if req.DepartmentType == models.DeptWing {
		v.Check(strings.TrimSpace(req.Gate) != "", "gate is required for wing visits")
		v.Check(strings.TrimSpace(req.AccessType) != "", "access type is required for wing visits")
	}
	if req.IsGroupVisit {
		v.Check(req.CompanyName != "", "company name is required for group visits")
		v.Check(req.GroupSize >= 2, "group size must be at least 2 for group visits")
	}
	v.Check(req.Priority.Valid(), "priority must be one of low, normal, high, urgent")
	return v.Err()
}

// newVisitorRequest builds a pending request owned by p. The request is
// expired straight away when its day has already passed.
func (s *Service) newVisitorRequest(p *authz.Principal, req models.SubmitVisitorRequest) *models.VisitorRequest {
	now := s.now()
	items := req.BroughtItems
	if items == nil {
		items = []string{}
	}
	v := &models.VisitorRequest{
		ID:             uuid.NewString(),
		VisitorName:    req.VisitorName,
		VisitorID:      req.VisitorID,
		NationalID:     req.NationalID,
		Phone:          req.Phone,
		Email:          strings.TrimSpace(req.Email),
		Photo:          req.Photo,
		Purpose:        req.Purpose,
		BroughtItems:   items,
		Department:     p.Department,
		DepartmentType: req.DepartmentType,
		Gate:           strings.TrimSpace(req.Gate),
		AccessType:     strings.TrimSpace(req.AccessType),
		IsGroupVisit:   req.IsGroupVisit,
		ScheduledDate:  req.ScheduledDate,
		ScheduledTime:  req.ScheduledTime,
		Duration:       req.Duration,
		Status:         models.VisitorPending,
		Priority:       req.Priority,
		Location:       p.Department,
		SubmittedBy:    p.UserID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.IsGroupVisit {
		v.CompanyName = req.CompanyName
		v.GroupSize = req.GroupSize
	}
	v.ExpireIfStale(now)
	return v
}

// SubmitVisitor creates a visitor request on behalf of the caller's
// department.
func (s *Service) SubmitVisitor(ctx context.Context, p *authz.Principal, req models.SubmitVisitorRequest) (*models.VisitorRequest, error) {
	if err := authorize(p, authz.OpSubmitVisitor); err != nil {
		return nil, err
	}
	if req.DepartmentType == "" {
		req.DepartmentType = p.DepartmentType
	}
	if err := validateSubmission(&req); err != nil {
		return nil, err
	}
	v := s.newVisitorRequest(p, req)
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		return nil, storeErr(err, "visitor request")
	}
	s.audit(ctx, p, auditEntry{
		action:  models.AuditVisitorCreate,
		details: map[string]any{"visitor_request_id": v.ID, "visitor_name": v.VisitorName, "status": v.Status},
	})
	return v, nil
}

// GetVisitor returns one request if it is inside the caller's scope.
// Requests outside the scope are reported as missing.
func (s *Service) GetVisitor(ctx context.Context, p *authz.Principal, id string) (*models.VisitorRequest, error) {
	if err := authorize(p, authz.OpListVisitors); err != nil {
		return nil, err
	}
	v, err := s.store.GetVisitor(ctx, id)
	if err != nil {
		return nil, storeErr(err, "visitor request")
	}
	if !authz.VisitorScope(p).Allows(v) {
		return nil, apperror.NotFound("visitor request not found")
	}
	return v, nil
}

func validateFilter(f models.VisitorFilter) error {
	var v apperror.Validator
	if f.Status != "" {
		v.Check(f.Status.Valid(), "unknown status filter")
	}
	if f.Date != "" {
		_, err := time.Parse(models.DateLayout, f.Date)
		v.Check(err == nil, "date filter must be YYYY-MM-DD")
	}
	return v.Err()
}

// ListVisitors returns one page of requests inside the caller's scope.
func (s *Service) ListVisitors(ctx context.Context, p *authz.Principal, f models.VisitorFilter) (*models.Page[models.VisitorRequest], error) {
	if err := authorize(p, authz.OpListVisitors); err != nil {
		return nil, err
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	items, total, err := s.store.ListVisitors(ctx, authz.VisitorScope(p), f)
	if err != nil {
		return nil, storeErr(err, "visitor request")
	}
	page, limit := store.PageBounds(f.Page, f.Limit)
	out := models.NewPage(items, total, page, limit)
	return &out, nil
}

// expire persists the pending -> expired flip of a stale request. A lost
// race is ignored: someone else already moved the request on.
func (s *Service) expire(ctx context.Context, v *models.VisitorRequest) {
	v.UpdatedAt = s.now()
	if err := s.store.TransitionVisitor(ctx, v, models.VisitorPending); err != nil && !errors.Is(err, store.ErrConflict) {
		s.log.Warn("could not persist expiry", "visitor_request_id", v.ID, "err", err)
	}
}

// ReviewVisitor approves or declines a pending request.
func (s *Service) ReviewVisitor(ctx context.Context, p *authz.Principal, id string, req models.ReviewVisitorRequest) (*models.VisitorRequest, error) {
	if err := authorize(p, authz.OpReviewVisitor); err != nil {
		return nil, err
	}
	if req.Status != models.VisitorApproved && req.Status != models.VisitorDeclined {
		return nil, apperror.BadRequest("status must be approved or declined")
	}

	v, err := s.store.GetVisitor(ctx, id)
	if err != nil {
		return nil, storeErr(err, "visitor request")
	}
	if authz.Delegated(p, authz.OpReviewVisitor) && !p.Grant.CoversVisit(v.Gate, v.AccessType) {
		return nil, apperror.Forbidden("your delegation does not cover this gate or access type")
	}
	now := s.now()
	if v.ExpireIfStale(now) {
		s.expire(ctx, v)
		return nil, apperror.BadRequest("request has expired")
	}
	if v.Status != models.VisitorPending {
		return nil, apperror.BadRequest(fmt.Sprintf("only pending requests can be reviewed (status: %s)", v.Status))
	}

	v.Status = req.Status
	v.ReviewedBy = p.UserID
	v.ReviewedAt = &now
	v.ReviewComments = strings.TrimSpace(req.Comments)
	v.UpdatedAt = now

	if req.Status == models.VisitorDeclined {
		if err := s.store.TransitionVisitor(ctx, v, models.VisitorPending); err != nil {
			return nil, storeErr(err, "visitor request")
		}
	} else if err := s.approve(ctx, v); err != nil {
		return nil, err
	}

	action := models.AuditVisitorApprove
	subject := "Visitor request approved"
	body := fmt.Sprintf("The visit of %s on %s at %s was approved. Approval code: %s.",
		v.VisitorName, v.ScheduledDate, v.ScheduledTime, v.ApprovalCode)
	if v.Status == models.VisitorDeclined {
		action = models.AuditVisitorDecline
		subject = "Visitor request declined"
		body = fmt.Sprintf("The visit of %s on %s was declined. %s", v.VisitorName, v.ScheduledDate, v.ReviewComments)
	}
	s.audit(ctx, p, auditEntry{
		action:  action,
		target:  v.SubmittedBy,
		details: map[string]any{"visitor_request_id": v.ID, "approval_code": v.ApprovalCode, "comments": v.ReviewComments},
	})
	s.notifyUser(ctx, v.SubmittedBy, subject, body)
	s.publish(live.Event{Type: live.EventReview, Content: v, OwnerID: v.SubmittedBy})
	return v, nil
}

// approve assigns a fresh approval code and persists the transition,
// regenerating the code when it collides with an existing one.
func (s *Service) approve(ctx context.Context, v *models.VisitorRequest) error {
	for attempt := 0; attempt < approvalCodeAttempts; attempt++ {
		code, err := newApprovalCode()
		if err != nil {
			return apperror.Internal("could not generate approval code", err)
		}
		taken, err := s.store.ApprovalCodeExists(ctx, code)
		if err != nil {
			return storeErr(err, "visitor request")
		}
		if taken {
			continue
		}
		v.ApprovalCode = code
		err = s.store.TransitionVisitor(ctx, v, models.VisitorPending)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			v.ApprovalCode = ""
			return storeErr(err, "visitor request")
		}
		return nil
	}
	v.ApprovalCode = ""
	return apperror.Internal("could not allocate a unique approval code", nil)
}

// CheckIn opens a visit for an approved request.
func (s *Service) CheckIn(ctx context.Context, p *authz.Principal, id string) (*models.CheckInResponse, error) {
	if err := authorize(p, authz.OpCheckIn); err != nil {
		return nil, err
	}
	now := s.now()
	var out models.CheckInResponse
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		v, err := q.GetVisitor(ctx, id)
		if err != nil {
			return storeErr(err, "visitor request")
		}
		if _, err := q.FindOpenCheckIn(ctx, id); err == nil {
			return apperror.BadRequest("visitor is already checked in")
		} else if !errors.Is(err, store.ErrNotFound) {
			return storeErr(err, "check-in")
		}
		if v.Status != models.VisitorApproved {
			return apperror.BadRequest(fmt.Sprintf("only approved requests can be checked in (status: %s)", v.Status))
		}

		rec := models.CheckInOut{
			ID:               uuid.NewString(),
			VisitorRequestID: v.ID,
			CheckInTime:      now,
			CheckInBy:        p.UserID,
			CreatedAt:        now,
		}
		if err := q.CreateCheckIn(ctx, &rec); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperror.BadRequest("visitor is already checked in")
			}
			return storeErr(err, "check-in")
		}
		v.Status = models.VisitorCheckedIn
		v.UpdatedAt = now
		if err := q.TransitionVisitor(ctx, v, models.VisitorApproved); err != nil {
			return storeErr(err, "visitor request")
		}
		out = models.CheckInResponse{Request: *v, Record: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, auditEntry{
		action:  models.AuditCheckIn,
		details: map[string]any{"visitor_request_id": id, "check_in_id": out.Record.ID},
	})
	s.publish(live.Event{Type: live.EventCheckIn, Content: out, OwnerID: out.Request.SubmittedBy})
	return &out, nil
}

// CheckOut closes the open visit of a request.
func (s *Service) CheckOut(ctx context.Context, p *authz.Principal, id string) (*models.CheckInResponse, error) {
	if err := authorize(p, authz.OpCheckOut); err != nil {
		return nil, err
	}
	now := s.now()
	var out models.CheckInResponse
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		v, err := q.GetVisitor(ctx, id)
		if err != nil {
			return storeErr(err, "visitor request")
		}
		rec, err := q.FindOpenCheckIn(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.BadRequest("visitor is not checked in")
		}
		if err != nil {
			return storeErr(err, "check-in")
		}
		if !now.After(rec.CheckInTime) {
			return apperror.BadRequest("check-out time must be after check-in time")
		}

		minutes := models.VisitDuration(rec.CheckInTime, now)
		rec.CheckOutTime = &now
		rec.CheckOutBy = p.UserID
		rec.DurationMinutes = &minutes
		if err := q.CloseCheckIn(ctx, rec); err != nil {
			return storeErr(err, "check-in")
		}

		from := v.Status
		v.Status = models.VisitorCheckedOut
		v.UpdatedAt = now
		if err := q.TransitionVisitor(ctx, v, from); err != nil {
			return storeErr(err, "visitor request")
		}
		out = models.CheckInResponse{Request: *v, Record: *rec}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, auditEntry{
		action: models.AuditCheckOut,
		details: map[string]any{
			"visitor_request_id": id,
			"check_in_id":        out.Record.ID,
			"duration_minutes":   *out.Record.DurationMinutes,
		},
	})
	s.publish(live.Event{Type: live.EventCheckOut, Content: out, OwnerID: out.Request.SubmittedBy})
	return &out, nil
}

// Analytics aggregates the requests inside the caller's scope.
func (s *Service) Analytics(ctx context.Context, p *authz.Principal) (*models.VisitorAnalytics, error) {
	if err := authorize(p, authz.OpViewAnalytics); err != nil {
		return nil, err
	}
	a, err := s.store.VisitorAnalytics(ctx, authz.VisitorScope(p), s.now())
	if err != nil {
		return nil, storeErr(err, "visitor request")
	}
	return a, nil
}
