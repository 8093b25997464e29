// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package httpapi exposes the auth service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/observability"
	"github.com/streambox/auth-service/internal/token"
	"github.com/streambox/auth-service/internal/validate"
)

// BasePath prefixes every route.
const BasePath = "/api/v1/auth"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Banner is returned by the service root.
const Banner = "Stream Box Auth Service"

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.PublicUser, error)
	Login(ctx context.Context, in auth.LoginInput, device auth.DeviceContext) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, in auth.LogoutInput) (*auth.LogoutResult, error)
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)
	Profile(ctx context.Context, userID ulid.ULID) (auth.PublicUser, error)
	ListSessions(ctx context.Context, userID ulid.ULID) ([]auth.SessionSummary, error)
	RevokeSession(ctx context.Context, userID, sessionID ulid.ULID) (auth.SessionSummary, error)
}

// BearerExtractor pulls the token out of an Authorization header.
type BearerExtractor interface {
	ExtractBearer(header string) (string, bool)
}

// Deps holds the collaborators of a Handler.
type Deps struct {
	Auth      AuthService
	Validator *validate.Validator
	Bearer    BearerExtractor

	// AllowedOrigins are CORS origin glob patterns. Empty disables CORS.
	AllowedOrigins []string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Handler serves the auth API.
type Handler struct {
	auth      AuthService
	validator *validate.Validator
	bearer    BearerExtractor
	cors      *corsPolicy
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	root      http.Handler
}

// NewHandler creates a Handler with its routes and middleware.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("HTTP_HANDLER_INVALID").Errorf("auth service is required")
	case deps.Validator == nil:
		return nil, oops.Code("HTTP_HANDLER_INVALID").Errorf("validator is required")
	case deps.Bearer == nil:
		return nil, oops.Code("HTTP_HANDLER_INVALID").Errorf("bearer extractor is required")
	}
	cors, err := newCORSPolicy(deps.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		auth:      deps.Auth,
		validator: deps.Validator,
		bearer:    deps.Bearer,
		cors:      cors,
		logger:    logger,
		metrics:   deps.Metrics,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BasePath+"/{$}", h.handleBanner)
	mux.HandleFunc("POST "+BasePath+"/register", h.handleRegister)
	mux.HandleFunc("POST "+BasePath+"/login", h.handleLogin)
	mux.HandleFunc("POST "+BasePath+"/refresh", h.handleRefresh)
	mux.HandleFunc("POST "+BasePath+"/logout", h.handleLogout)
	mux.Handle("GET "+BasePath+"/me", h.requireAuth(h.handleMe))
	mux.Handle("GET "+BasePath+"/sessions", h.requireAuth(h.handleListSessions))
	mux.Handle("DELETE "+BasePath+"/sessions/{id}", h.requireAuth(h.handleRevokeSession))
	mux.HandleFunc("/", h.handleNotFound)

	h.root = h.recoverPanics(h.instrument(h.cors.wrap(mux)))
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleBanner(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, r, http.StatusOK, Banner, nil)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, auth.NotFoundError("ROUTE_NOT_FOUND", "Route not found"))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.validator.Register(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Email:                p.Email,
		Password:             p.Password,
		PasswordConfirmation: p.PasswordConfirmation,
		FirstName:            p.FirstName,
		LastName:             p.LastName,
		PhoneNumber:          p.PhoneNumber,
		Age:                  p.Age,
		PreferredGenres:      p.PreferredGenres,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusCreated, "User registered successfully", map[string]any{"user": user})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.validator.Login(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(),
		auth.LoginInput{Email: p.Email, Password: p.Password},
		auth.DeviceContext{Info: p.DeviceInfo, IPAddress: clientIP(r), UserAgent: r.UserAgent()})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Login successful", result)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.bearerToken(r)
	if !ok {
		h.writeError(w, r, missingToken())
		return
	}
	result, err := h.auth.Refresh(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Token refreshed successfully", result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.bearerToken(r)
	if !ok {
		h.writeError(w, r, missingToken())
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.validator.Logout(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.Logout(r.Context(), auth.LogoutInput{AccessToken: raw, RefreshToken: p.RefreshToken})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, result.Message, result)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request, caller ulid.ULID) {
	user, err := h.auth.Profile(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Profile retrieved", map[string]any{"user": user})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request, caller ulid.ULID) {
	sessions, err := h.auth.ListSessions(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := map[string]any{"sessions": sessions}
	if claims, ok := claimsFromContext(r.Context()); ok && claims.SessionID != "" {
		data["currentSessionId"] = claims.SessionID
	}
	h.writeSuccess(w, r, http.StatusOK, "Sessions retrieved", data)
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request, caller ulid.ULID) {
	sessionID, err := ulid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, auth.ValidationError("INVALID_SESSION_ID", "Session id is malformed"))
		return
	}
	session, err := h.auth.RevokeSession(r.Context(), caller, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, "Session revoked", map[string]any{"session": session})
}

func (h *Handler) bearerToken(r *http.Request) (string, bool) {
	return h.bearer.ExtractBearer(r.Header.Get("Authorization"))
}

func missingToken() *auth.Error {
	return auth.UnauthorizedError("MISSING_TOKEN", "Authorization token required")
}

// readBody reads at most MaxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, auth.ValidationError("PAYLOAD_TOO_LARGE", "Request body is too large")
		}
		return nil, auth.ValidationError("INVALID_BODY", "Request body could not be read")
	}
	return body, nil
}

// clientIP returns the host part of the connection's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
