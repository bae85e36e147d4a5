package httpapi

import (
	"context"
	"net/http"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/auth"
)

// Cookie names. Stash cookies are per purpose so concurrent flows do not
// clobber each other.
const (
	authCookieName    = "cb_auth"
	pendingCookieName = "cb_pending"
	stashCookiePrefix = "cb_stash_"
)

// Stash purposes used across the verification flows.
const (
	stashOnboarding    = "onboarding-email"
	stashResetPassword = "reset-username"
	stashNewEmail      = "new-email"
	stashPasskey       = "passkey-state"
)

type sessionCtxKey struct{}

type sessionContext struct {
	state   *auth.AuthState
	session *auth.Session
	user    *auth.User
}

// withAuthState resolves the auth cookie once per request. A missing,
// invalid or expired cookie leaves the request anonymous; handlers that
// need a user gate through withUser.
func (a *API) withAuthState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		state, err := a.svc.Cookies().DecodeAuth(cookie.Value)
		if err != nil {
			a.clearCookie(w, authCookieName)
			next.ServeHTTP(w, r)
			return
		}
		session, err := a.svc.LookupSession(r.Context(), state.SessionID)
		if err != nil {
			a.clearCookie(w, authCookieName)
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.svc.UserForSession(r.Context(), session.ID)
		if err != nil {
			a.clearCookie(w, authCookieName)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey{}, &sessionContext{
			state:   state,
			session: session,
			user:    user,
		})
		ctx = audit.WithUser(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromRequest(r *http.Request) *sessionContext {
	if sc, ok := r.Context().Value(sessionCtxKey{}).(*sessionContext); ok {
		return sc
	}
	return nil
}

// withUser rejects anonymous requests.
func (a *API) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionFromRequest(r) == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// requireRecentVerification gates a sensitive handler behind the two-factor
// reverification window. It reports true when the caller may proceed;
// otherwise it has already written the challenge redirect.
func (a *API) requireRecentVerification(w http.ResponseWriter, r *http.Request, redirectTo string) bool {
	sc := sessionFromRequest(r)
	redirect, err := a.svc.RequireRecentVerification(r.Context(), sc.user.ID, sc.state, redirectTo)
	if err != nil {
		handleAuthError(w, r, err)
		return false
	}
	if redirect != "" {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":      "recent verification required",
			"redirectTo": redirect,
		})
		return false
	}
	return true
}

// --- cookie plumbing ---

func (a *API) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	a.setCookie(w, name, "", -1)
}

// setAuthCookie installs the signed session state. With remember the cookie
// persists for the session's full lifetime; without it the cookie dies with
// the browser session while the server-side row keeps its absolute expiry.
func (a *API) setAuthCookie(w http.ResponseWriter, r *http.Request, state auth.AuthState, remember bool) error {
	token, err := a.svc.Cookies().EncodeAuth(state)
	if err != nil {
		return err
	}
	maxAge := 0
	if remember {
		maxAge = int(auth.SessionTTL.Seconds())
	}
	a.setCookie(w, authCookieName, token, maxAge)
	return nil
}

func (a *API) setPendingCookie(w http.ResponseWriter, p auth.PendingVerification) error {
	token, err := a.svc.Cookies().EncodePending(p)
	if err != nil {
		return err
	}
	a.setCookie(w, pendingCookieName, token, 0)
	return nil
}

func (a *API) pendingFromRequest(r *http.Request) *auth.PendingVerification {
	cookie, err := r.Cookie(pendingCookieName)
	if err != nil {
		return nil
	}
	p, err := a.svc.Cookies().DecodePending(cookie.Value)
	if err != nil {
		return nil
	}
	return p
}

func (a *API) setStash(w http.ResponseWriter, purpose, value string) error {
	token, err := a.svc.Cookies().EncodeValue(purpose, value)
	if err != nil {
		return err
	}
	a.setCookie(w, stashCookiePrefix+purpose, token, 0)
	return nil
}

func (a *API) stashValue(r *http.Request, purpose string) string {
	cookie, err := r.Cookie(stashCookiePrefix + purpose)
	if err != nil {
		return ""
	}
	value, err := a.svc.Cookies().DecodeValue(purpose, cookie.Value)
	if err != nil {
		return ""
	}
	return value
}

func (a *API) clearStash(w http.ResponseWriter, purpose string) {
	a.clearCookie(w, stashCookiePrefix+purpose)
}

// applyLoginOutcome translates a core login decision into cookies plus the
// JSON the client acts on.
func (a *API) applyLoginOutcome(w http.ResponseWriter, r *http.Request, outcome *auth.LoginOutcome) {
	if outcome.Pending != nil {
		if err := a.setPendingCookie(w, *outcome.Pending); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"twoFactorRequired": true,
			"redirectTo":        outcome.RedirectTo,
		})
		return
	}

	if err := a.setAuthCookie(w, r, *outcome.Auth, outcome.Remember); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearCookie(w, pendingCookieName)
	writeJSON(w, http.StatusOK, map[string]any{
		"redirectTo": outcome.RedirectTo,
	})
}
