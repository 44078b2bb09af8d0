// Package handlers contains the HTTP layer of the gatepass API.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by domain (auth, visitors, delegations, bulk) purely for
// readability.
//
// Handlers are thin: they decode the request, call one workflow
// operation and encode its result. Every rule (who may do what, which
// transition is legal) lives in the workflow package, so a handler
// never switches on a role.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
	"github.com/Elizabethomito/gatepass/internal/live"
	"github.com/Elizabethomito/gatepass/internal/middleware"
	"github.com/Elizabethomito/gatepass/internal/models"
	"github.com/Elizabethomito/gatepass/internal/workflow"
)

// maxJSONBody caps every JSON request body.
const maxJSONBody = 1 << 20

// respond writes v as JSON with the given HTTP status code.
// Setting Content-Type before WriteHeader is important: once
// WriteHeader is called the headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring the encode error: if the client disconnected mid-write
	// there is nothing useful we can do.
	_ = json.NewEncoder(w).Encode(body)
}

// decode reads and parses a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.New(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return apperror.BadRequest("invalid JSON")
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.BadRequest(key + " must be a number")
	}
	return n, nil
}

// queryTime parses an optional RFC 3339 or YYYY-MM-DD query parameter.
// With inclusive set, a plain date means the end of that day, so a range
// ending on a date includes everything logged that day.
func queryTime(r *http.Request, key string, inclusive bool) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, apperror.BadRequest(key + " must be YYYY-MM-DD or an RFC 3339 timestamp")
	}
	if inclusive {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// apiFunc is a handler that reports failure by returning an error.
type apiFunc func(w http.ResponseWriter, r *http.Request, p *authz.Principal) error

// Server holds shared dependencies for all handlers.
// Using a struct instead of package-level globals means tests can spin
// up many independent Server instances without state leaking between them.
type Server struct {
	// Svc runs every operation of the API.
	Svc *workflow.Service
	// Hub broadcasts gate events to WebSocket clients. Optional.
	Hub *live.Hub
	Log *slog.Logger
	// CORSOrigin is the allowed browser origin, "*" for any.
	CORSOrigin string
}

// handle adapts fn to http.Handler. Errors become {"error": "..."} with
// the status they carry; unexpected failures are logged with their cause.
func (s *Server) handle(fn apiFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r, middleware.Principal(r.Context()))
		if err == nil {
			return
		}
		if status, _ := apperror.StatusOf(err); status >= http.StatusInternalServerError {
			s.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		middleware.WriteError(w, err)
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Routes builds the complete router.
func (s *Server) Routes() http.Handler {
	// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
	// wildcards ("{id}") natively.
	mux := http.NewServeMux()

	// Public routes: no token required.
	mux.Handle("GET /api/health", s.handle(s.Health))
	mux.Handle("POST /api/auth/login", s.handle(s.Login))

	// Everything else needs a valid, unrevoked token. The workflow checks
	// the operation itself, so auth is the only gate here.
	auth := middleware.Authenticate(s.Svc)
	route := func(pattern string, fn apiFunc) {
		mux.Handle(pattern, auth(s.handle(fn)))
	}

	route("POST /api/auth/register", s.Register)
	route("GET /api/auth/me", s.Me)
	route("POST /api/auth/logout", s.Logout)

	route("GET /api/users", s.ListUsers)
	route("PATCH /api/users/{id}/status", s.SetUserStatus)

	route("POST /api/visitors/request", s.SubmitVisitor)
	route("GET /api/visitors/requests", s.ListVisitors)
	route("GET /api/visitors/requests/{id}", s.GetVisitor)
	route("PATCH /api/visitors/requests/{id}/review", s.ReviewVisitor)
	route("POST /api/visitors/checkin/{id}", s.CheckIn)
	route("PATCH /api/visitors/checkout/{id}", s.CheckOut)
	route("GET /api/visitors/analytics", s.Analytics)
	route("GET /api/visitors/export", s.ExportVisitors)

	route("POST /api/delegations/request", s.RequestDelegation)
	route("GET /api/delegations", s.ListDelegations)
	route("GET /api/delegations/active", s.ActiveDelegations)
	route("PATCH /api/delegations/{id}/review", s.ReviewDelegation)
	route("PATCH /api/delegations/{id}/activate", s.ActivateDelegation)
	route("PATCH /api/delegations/{id}/cancel", s.CancelDelegation)

	route("POST /api/bulk-upload/upload", s.UploadPDF)
	route("POST /api/bulk-upload/process/{id}", s.ProcessUpload)
	route("POST /api/bulk-upload/import/{id}", s.ImportRows)
	route("GET /api/bulk-upload/uploads", s.ListUploads)
	route("GET /api/bulk-upload/uploads/{id}", s.GetUpload)
	route("GET /api/bulk-upload/permissions", s.ListBulkPermissions)
	route("PATCH /api/bulk-upload/permissions/{id}", s.SetBulkPermission)

	route("GET /api/audit-logs", s.ListAuditLogs)

	// Stored PDFs, read-only. Directory listings are not served.
	files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.Svc.UploadDir())))
	mux.Handle("GET /uploads/", auth(middleware.Require(authz.OpBulkUpload)(noListing(files))))

	mux.Handle("GET /ws", auth(middleware.Require(authz.OpLiveFeed)(http.HandlerFunc(s.LiveFeed))))

	return middleware.Logger(s.logger())(middleware.CORS(s.CORSOrigin)(mux))
}

// noListing answers 404 for directory paths.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /api/health
func (s *Server) Health(w http.ResponseWriter, r *http.Request, _ *authz.Principal) error {
	body := map[string]any{"status": "ok", "time": s.Svc.Now()}
	if s.Hub != nil {
		body["live_clients"] = s.Hub.Clients()
	}
	respond(w, http.StatusOK, body)
	return nil
}

// LiveFeed handles GET /ws. Department users only receive events about
// their own requests.
func (s *Server) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		middleware.WriteError(w, apperror.New(http.StatusServiceUnavailable, "live feed is disabled"))
		return
	}
	p := middleware.Principal(r.Context())
	s.Hub.Serve(w, r, live.Subscriber{UserID: p.UserID, SeesAll: p.Role != models.RoleDepartment})
}
