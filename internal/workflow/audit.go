package workflow

import (
	"context"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/store"
)

// ListAuditLogs returns one page of audit records, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, p *authz.Principal, f models.AuditFilter) (*models.Page[models.AuditLog], error) {
	if err := authorize(p, authz.OpViewAuditLogs); err != nil {
		return nil, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return nil, apperror.BadRequest("to must be after from")
	}
	logs, total, err := s.store.ListAudit(ctx, f)
	if err != nil {
		return nil, storeErr(err, "audit log")
	}
	page, limit := store.PageBounds(f.Page, f.Limit)
	out := models.NewPage(logs, total, page, limit)
	return &out, nil
}
