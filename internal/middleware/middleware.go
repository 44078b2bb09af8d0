// Package middleware provides the HTTP middleware of the gatepass server.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: what is middleware?
// ────────────────────────────────────────────────────────────────────
// In HTTP servers, "middleware" is a function that wraps a handler to
// add behaviour before and/or after it runs. The pattern in Go is:
//
//   func MyMiddleware(next http.Handler) http.Handler {
//       return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//           // do something before
//           next.ServeHTTP(w, r)  // call the real handler
//           // do something after
//       })
//   }
//
// Middleware can be chained: Logger(CORS(Authenticate(handler))) means
// Logger runs first, then CORS, then Authenticate, then the handler.
package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Elizabethomito/gatepass/internal/apperror"
	"github.com/Elizabethomito/gatepass/internal/authz"
)

// contextKey is a private type for context keys in this package.
// Using a named type prevents key collisions with other packages that
// also store values in the request context.
type contextKey string

// ContextPrincipal is the key under which Authenticate stores the caller.
const ContextPrincipal contextKey = "principal"

// Resolver turns a bearer token into the calling principal.
type Resolver interface {
	ResolveIdentity(ctx context.Context, token string) (*authz.Principal, error)
}

// WriteError writes err as {"error": "..."} with the status it carries.
func WriteError(w http.ResponseWriter, err error) {
	status, msg := apperror.StatusOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}

// bearerToken reads "Authorization: Bearer <token>". Browsers cannot set
// headers on a WebSocket handshake, so upgrade requests may pass the
// token as ?token= instead.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Authenticate resolves the caller of every request it wraps and stores
// the principal in the request context.
//
// Flow:
//  1. Read the bearer token.
//  2. Ask the resolver for the principal (signature, expiry, revocation,
//     account state and active delegation are all checked there).
//  3. Store the principal in the request context.
//  4. Call the next handler.
//
// If the token is missing or rejected, it responds with 401 and stops.
func Authenticate(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, apperror.Unauthorized("missing or invalid Authorization header"))
				return
			}
			p, err := res.ResolveIdentity(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ContextPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require only lets requests through whose principal may perform op. Must
// be used after Authenticate.
//
// Example: auth(Require(authz.OpCheckIn)(handler))
func Require(op authz.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := Principal(r.Context())
			if p == nil {
				WriteError(w, apperror.Unauthorized("authentication required"))
				return
			}
			if !authz.Can(p, op) {
				WriteError(w, apperror.Forbidden("you do not have permission to perform this action"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Principal returns the caller stored by Authenticate, or nil.
func Principal(ctx context.Context) *authz.Principal {
	p, _ := ctx.Value(ContextPrincipal).(*authz.Principal)
	return p
}

// CORS adds the CORS headers the web client needs. origin "*" allows any
// origin.
//
// LEARNING NOTE: what is CORS?
// Browsers enforce the Same-Origin Policy: a page at origin A cannot
// fetch from origin B unless B explicitly allows it via CORS headers.
// The OPTIONS preflight is a browser pre-check; we must reply 204 so
// the real request is allowed to proceed.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack hands the connection to the WebSocket upgrader.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logger logs one line per request and turns handler panics into a 500.
func Logger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error("panic serving request", "method", r.Method, "path", r.URL.Path,
						"panic", v, "stack", string(debug.Stack()))
					if rec.status == 0 {
						WriteError(rec, apperror.Internal("panic", nil))
					}
				}
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				level := slog.LevelInfo
				if status >= 500 {
					level = slog.LevelError
				}
				log.Log(r.Context(), level, "request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", rec.bytes,
					"duration", time.Since(start))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
