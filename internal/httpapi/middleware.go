// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/token"
)

// CORS response values for preflight requests.
const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
	corsMaxAge       = "600"
)

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough writer
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument logs each request and records its metrics.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		elapsed := h.now().Sub(start)

		if h.metrics != nil {
			h.metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		h.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"remote_ip", clientIP(r))
	})
}

// recoverPanics turns a handler panic into a 500 response.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(v)
				}
				err := oops.Code("HTTP_HANDLER_PANIC").
					With("method", r.Method).
					With("path", r.URL.Path).
					Errorf("panic: %v", v)
				h.writeError(w, r, auth.InternalError(codeInternal, messageInternal, err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

// claimsFromContext returns the access token claims stored by requireAuth.
func claimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return claims, ok
}

// authedFunc is a handler that runs for a verified caller.
type authedFunc func(w http.ResponseWriter, r *http.Request, caller ulid.ULID)

// requireAuth verifies the bearer access token before calling next.
func (h *Handler) requireAuth(next authedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := h.bearerToken(r)
		if !ok {
			h.writeError(w, r, missingToken())
			return
		}
		claims, err := h.auth.Authenticate(r.Context(), raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		caller, err := ulid.Parse(claims.Subject)
		if err != nil {
			h.writeError(w, r, auth.TokenError("INVALID_TOKEN", "Invalid token"))
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next(w, r.WithContext(ctx), caller)
	})
}

// corsPolicy matches request origins against glob patterns.
type corsPolicy struct {
	any      bool
	patterns []glob.Glob
}

func newCORSPolicy(origins []string) (*corsPolicy, error) {
	p := &corsPolicy{}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
			continue
		case "*":
			p.any = true
			continue
		}
		g, err := glob.Compile(origin, '.')
		if err != nil {
			return nil, oops.Code("CORS_ORIGIN_INVALID").With("origin", origin).Wrap(err)
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

func (p *corsPolicy) enabled() bool {
	return p.any || len(p.patterns) > 0
}

func (p *corsPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	for _, g := range p.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

// wrap adds CORS headers for allowed origins and answers preflight requests.
func (p *corsPolicy) wrap(next http.Handler) http.Handler {
	if !p.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		if !p.allows(origin) {
			if preflight {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if preflight {
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestTimeout bounds the time a handler may spend on one request.
func withRequestTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.TimeoutHandler(next, d, `{"success":false,"error":{"code":"REQUEST_TIMEOUT","message":"Request timed out"}}`)
}
