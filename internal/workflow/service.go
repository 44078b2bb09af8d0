// Package workflow implements every operation of the API on top of the
// store: authorization, validation, state transitions and their side
// effects (audit records, notifications, live events).
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: where do the side effects go?
// ────────────────────────────────────────────────────────────────────
// A state transition is the only thing an operation must get right. The
// audit record, the e-mail and the live gate event are written after the
// transition succeeded and their failures are logged, never returned. A
// reviewer who approved a visitor sees "approved" even if the mail relay
// is down.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/auth"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/clock"
	"github.com/Elizabethomito/gatepass/internal/live"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/notify"
	"github.com/Elizabethomito/gatepass/internal/pdfimport"
	"github.com/Elizabethomito/gatepass/internal/store"
)

// Deps are the collaborators of a Service. Store and Tokens are required;
// everything else has a working default.
type Deps struct {
	Store   *store.Store
	Tokens  *auth.Issuer
	Revoker auth.Revoker
	Clock   clock.Clock
	Log     *slog.Logger

	Notifier notify.Notifier
	Hub      *live.Hub

	Extractor      pdfimport.Extractor
	Parser         pdfimport.RowParser
	UploadDir      string
	MaxUploadBytes int64

	BcryptCost int
}

// Service is the workflow layer.
type Service struct {
	store   *store.Store
	tokens  *auth.Issuer
	revoker auth.Revoker
	clock   clock.Clock
	log     *slog.Logger

	mail *notify.Dispatcher
	hub  *live.Hub

	extractor      pdfimport.Extractor
	parser         pdfimport.RowParser
	uploadDir      string
	maxUploadBytes int64

	bcryptCost int
}

// New builds a Service from d.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Revoker == nil {
		d.Revoker = auth.NewMemoryRevoker(d.Clock.Now)
	}
	if d.Notifier == nil {
		d.Notifier = notify.LogNotifier{Log: d.Log}
	}
	if d.Extractor == nil {
		d.Extractor = pdfimport.PDFExtractor{}
	}
	if d.Parser == nil {
		d.Parser = pdfimport.WhitespaceParser{}
	}
	if d.UploadDir == "" {
		d.UploadDir = "uploads"
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	return &Service{
		store:          d.Store,
		tokens:         d.Tokens,
		revoker:        d.Revoker,
		clock:          d.Clock,
		log:            d.Log,
		mail:           notify.NewDispatcher(d.Notifier, d.Log, 30*time.Second),
		hub:            d.Hub,
		extractor:      d.Extractor,
		parser:         d.Parser,
		uploadDir:      d.UploadDir,
		maxUploadBytes: d.MaxUploadBytes,
		bcryptCost:     d.BcryptCost,
	}
}

// Close waits for in-flight notifications.
func (s *Service) Close() { s.mail.Wait() }

// UploadDir is where stored PDFs live.
func (s *Service) UploadDir() string { return s.uploadDir }

// MaxUploadBytes is the upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// Now is the service clock's current time in UTC.
func (s *Service) Now() time.Time { return s.now() }

// authorize returns a 401 for a missing principal and a 403 unless p may
// perform op.
func authorize(p *authz.Principal, op authz.Operation) error {
	if p == nil {
		return apperror.Unauthorized("authentication required")
	}
	if !authz.Can(p, op) {
		return apperror.Forbidden("you do not have permission to perform this action")
	}
	return nil
}

// storeErr maps store sentinels to API errors. what names the entity
// for the not-found message.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperror.NotFound(what + " not found")
	case errors.Is(err, store.ErrConflict):
		return apperror.Conflict(what + " was modified by another request, reload and retry")
	case errors.Is(err, store.ErrDuplicate):
		return apperror.Conflict(what + " already exists")
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal("database error", err)
}

// auditEntry is the input to audit.
type auditEntry struct {
	action    models.AuditAction
	target    string
	targetEmp string
	details   map[string]any
	context   string
}

// audit appends a record. Failures are logged and swallowed.
func (s *Service) audit(ctx context.Context, p *authz.Principal, e auditEntry) {
	rec := &models.AuditLog{
		ID:               uuid.NewString(),
		Action:           e.action,
		TargetUserID:     e.target,
		TargetEmployeeID: e.targetEmp,
		Details:          e.details,
		Context:          e.context,
		CreatedAt:        s.now(),
	}
	if p != nil {
		rec.UserID = p.UserID
		rec.EmployeeID = p.EmployeeID
	}
	if err := s.store.AppendAudit(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("audit write failed", "action", e.action, "err", err)
	}
}

// notifyUser mails userID. Unknown users and users without an address are
// skipped.
func (s *Service) notifyUser(ctx context.Context, userID, subject, body string) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn("notification recipient lookup failed", "user_id", userID, "err", err)
		return
	}
	s.mail.Go(notify.Message{To: u.Email, Subject: subject, Body: body})
}

func (s *Service) publish(e live.Event) {
	if s.hub != nil {
		s.hub.Publish(e)
	}
}
