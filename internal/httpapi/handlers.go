package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"crewbase.org/internal/auth"
	"crewbase.org/internal/obs"
)

// ReadyProbe — readiness check backed by a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	readyProbe ReadyProbe
	version    string

	// secureCookies marks cookies Secure; off only in local development.
	secureCookies bool
}

func New(svc *auth.Service, rp ReadyProbe, version string, secureCookies bool) *API {
	a := &API{
		mux:           http.NewServeMux(),
		svc:           svc,
		readyProbe:    rp,
		version:       version,
		secureCookies: secureCookies,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// identity and session lifecycle
	a.mux.HandleFunc("/v1/auth/signup/request", a.handleSignupRequest)
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/auth/password/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/password/reset", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/email", a.withUser(a.handleChangeEmail))
	a.mux.HandleFunc("/v1/auth/sessions", a.withUser(a.handleSessions))
	a.mux.HandleFunc("/v1/auth/2fa", a.withUser(a.handleTwoFactor))
	a.mux.HandleFunc("/v1/auth/2fa/confirm", a.withUser(a.handleTwoFactorConfirm))
	a.mux.HandleFunc("/v1/auth/connections", a.withUser(a.handleConnections))
	a.mux.HandleFunc("/v1/auth/connections/", a.withUser(a.handleConnectionResource))
	a.mux.HandleFunc("/v1/auth/providers/", a.handleProvider)
	a.mux.HandleFunc("/v1/auth/passkeys", a.withUser(a.handlePasskeys))
	a.mux.HandleFunc("/v1/auth/passkeys/", a.handlePasskeyResource)
	a.mux.HandleFunc("/v1/auth/account", a.withUser(a.handleAccount))

	// tenants
	a.mux.HandleFunc("/v1/me", a.withUser(a.handleMe))
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/orgs", a.withUser(a.handleOrgs))
	a.mux.HandleFunc("/v1/orgs/", a.withUser(a.handleOrgScoped))
	a.mux.HandleFunc("/v1/invitations/", a.handleInvitation)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented mux with session resolution attached.
// RequestID and the hardening middleware wrap it at the server assembly.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuthState(a.mux))
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "crewbase-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "crewbase-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, auth.ErrExpired), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid or expired credentials")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
