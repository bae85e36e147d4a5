package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"crewbase.org/internal/auth"
)

type signupRequestBody struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

func (a *API) handleSignupRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	challenge, err := a.svc.RequestOnboarding(r.Context(), req.Email, req.RedirectTo)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redirectTo": challenge.RedirectTo,
	})
}

type verifyBody struct {
	Type       string `json:"type"`
	Target     string `json:"target"`
	Code       string `json:"code"`
	RedirectTo string `json:"redirectTo"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	vr := &auth.VerifyRequest{
		Type:       auth.VerificationType(req.Type),
		Target:     req.Target,
		Code:       req.Code,
		RedirectTo: req.RedirectTo,
		Pending:    a.pendingFromRequest(r),
		NewEmail:   a.stashValue(r, stashNewEmail),
	}
	if sc := sessionFromRequest(r); sc != nil {
		vr.SessionUserID = sc.user.ID
	}
	result, err := a.svc.FinishVerification(r.Context(), vr)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	switch vr.Type {
	case auth.VerificationOnboarding:
		if err := a.setStash(w, stashOnboarding, result.OnboardingEmail); err != nil {
			handleAuthError(w, r, err)
			return
		}

	case auth.VerificationResetPassword:
		if err := a.setStash(w, stashResetPassword, result.ResetUsername); err != nil {
			handleAuthError(w, r, err)
			return
		}

	case auth.VerificationChangeEmail:
		a.clearStash(w, stashNewEmail)

	case auth.VerificationTwoFactor:
		if result.Session != nil {
			state := auth.AuthState{SessionID: result.Session.ID, VerifiedAt: &result.VerifiedAt}
			if err := a.setAuthCookie(w, r, state, result.Remember); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.clearCookie(w, pendingCookieName)
		}

	case auth.VerificationTwoFactorVerify:
		if sc := sessionFromRequest(r); sc != nil {
			state := *sc.state
			state.VerifiedAt = &result.VerifiedAt
			if err := a.setAuthCookie(w, r, state, true); err != nil {
				handleAuthError(w, r, err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"redirectTo": result.RedirectTo,
	})
}

type signupBody struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	Password     string `json:"password"`
	Remember     bool   `json:"remember"`
	InvitationID string `json:"invitationId"`
	RedirectTo   string `json:"redirectTo"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	email := a.stashValue(r, stashOnboarding)
	if email == "" {
		writeError(w, r, http.StatusForbidden, "email verification required before signup")
		return
	}
	var req signupBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := a.svc.Signup(r.Context(), auth.SignupParams{
		Email:        email,
		Username:     req.Username,
		Name:         req.Name,
		Password:     req.Password,
		InvitationID: req.InvitationID,
		Remember:     req.Remember,
		RedirectTo:   req.RedirectTo,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearStash(w, stashOnboarding)
	a.applyLoginOutcome(w, r, outcome)
}

type loginBody struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
	Remember        bool   `json:"remember"`
	InvitationID    string `json:"invitationId"`
	RedirectTo      string `json:"redirectTo"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := a.svc.Login(r.Context(), req.UsernameOrEmail, req.Password, req.InvitationID, req.Remember, req.RedirectTo)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.applyLoginOutcome(w, r, outcome)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if sc := sessionFromRequest(r); sc != nil {
		if err := a.svc.Logout(r.Context(), sc.session.ID); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	a.clearCookie(w, authCookieName)
	a.clearCookie(w, pendingCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"redirectTo": "/"})
}

type forgotPasswordBody struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	_, err := a.svc.RequestPasswordReset(r.Context(), req.UsernameOrEmail)
	if err != nil && !errors.Is(err, auth.ErrNotFound) {
		handleAuthError(w, r, err)
		return
	}
	// Unknown accounts get the same answer as known ones.
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "If that account exists, a reset code is on its way.",
	})
}

type resetPasswordBody struct {
	Password string `json:"password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	username := a.stashValue(r, stashResetPassword)
	if username == "" {
		writeError(w, r, http.StatusForbidden, "code verification required before reset")
		return
	}
	var req resetPasswordBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ResetUserPassword(r.Context(), username, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearStash(w, stashResetPassword)
	writeJSON(w, http.StatusOK, map[string]any{"redirectTo": "/login"})
}

type changeEmailBody struct {
	Email string `json:"email"`
}

func (a *API) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRecentVerification(w, r, "/settings/profile") {
		return
	}
	sc := sessionFromRequest(r)
	var req changeEmailBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	challenge, err := a.svc.RequestEmailChange(r.Context(), sc.user.ID, req.Email)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.setStash(w, stashNewEmail, strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redirectTo": challenge.RedirectTo,
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	sc := sessionFromRequest(r)
	switch r.Method {
	case http.MethodGet:
		count, err := a.svc.SessionCount(r.Context(), sc.user.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count})
	case http.MethodDelete:
		revoked, err := a.svc.RevokeOtherSessions(r.Context(), sc.user.ID, sc.session.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

type twoFactorConfirmBody struct {
	Code string `json:"code"`
}

func (a *API) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	sc := sessionFromRequest(r)
	switch r.Method {
	case http.MethodGet:
		enabled, err := a.svc.TwoFactorEnabled(r.Context(), sc.user.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
	case http.MethodPost:
		setup, err := a.svc.StartTwoFactorEnrollment(r.Context(), sc.user.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"secret":     setup.Secret,
			"otpauthUri": setup.OTPAuthURI,
		})
	case http.MethodDelete:
		if !a.requireRecentVerification(w, r, "/settings/two-factor") {
			return
		}
		if err := a.svc.DisableTwoFactor(r.Context(), sc.user.ID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleTwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sc := sessionFromRequest(r)
	var req twoFactorConfirmBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ConfirmTwoFactorEnrollment(r.Context(), sc.user.ID, req.Code); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// The confirming code entry counts as a fresh verification.
	now := a.svc.Now()
	state := *sc.state
	state.VerifiedAt = &now
	if err := a.setAuthCookie(w, r, state, true); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (a *API) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sc := sessionFromRequest(r)
	conns, err := a.svc.ListConnections(r.Context(), sc.user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	canDelete, err := a.svc.CanDeleteConnection(r.Context(), sc.user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"canDelete":   canDelete,
	})
}

func (a *API) handleConnectionResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	sc := sessionFromRequest(r)
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/connections/"), "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err := a.svc.DeleteConnection(r.Context(), sc.user.ID, id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleProvider serves /v1/auth/providers/{name} (start) and
// /v1/auth/providers/{name}/callback (finish).
func (a *API) handleProvider(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/providers/"), "/")
	parts := strings.Split(path, "/")

	provider, ok := a.svc.Provider(parts[0])
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown provider")
		return
	}
	redirectURI := a.svc.BaseURL() + "/v1/auth/providers/" + provider.Name() + "/callback"

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		redirectTo := r.URL.Query().Get("redirectTo")
		if redirectTo == "" {
			redirectTo = "/"
		}
		state, err := a.svc.Cookies().EncodeValue("oauth-"+provider.Name(), redirectTo)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.setCookie(w, stashCookiePrefix+"oauth-"+provider.Name(), state, 0)
		http.Redirect(w, r, provider.AuthorizationURL(state, redirectURI), http.StatusFound)

	case len(parts) == 2 && parts[1] == "callback":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.handleProviderCallback(w, r, provider, redirectURI)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProviderCallback(w http.ResponseWriter, r *http.Request, provider auth.Provider, redirectURI string) {
	purpose := "oauth-" + provider.Name()
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stashCookiePrefix + purpose)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}
	redirectTo, err := a.svc.Cookies().DecodeValue(purpose, state)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}
	a.clearStash(w, purpose)

	profile, err := provider.HandleCallback(r.Context(), r.URL.Query().Get("code"), redirectURI)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "provider callback failed")
		return
	}

	currentUserID := ""
	if sc := sessionFromRequest(r); sc != nil {
		currentUserID = sc.user.ID
	}
	result, err := a.svc.HandleProviderCallback(r.Context(), provider.Name(), profile, currentUserID, redirectTo)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	switch result.Kind {
	case auth.CallbackLoggedIn:
		a.applyLoginOutcome(w, r, result.Login)
	case auth.CallbackOnboarding:
		// Carry the provider identity into the signup form.
		raw, err := json.Marshal(result.Profile)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if err := a.setStash(w, "provider-"+provider.Name(), string(raw)); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"redirectTo": result.RedirectTo,
			"profile":    result.Profile,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"redirectTo": result.RedirectTo,
			"message":    result.Message,
		})
	}
}

func (a *API) handlePasskeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sc := sessionFromRequest(r)
	keys, err := a.svc.ListPasskeys(r.Context(), sc.user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passkeys": keys})
}

type passkeyFinishBody struct {
	Response   json.RawMessage `json:"response"`
	Remember   bool            `json:"remember"`
	RedirectTo string          `json:"redirectTo"`
}

// handlePasskeyResource routes registration (authenticated) and login
// (anonymous) ceremonies plus deletion.
func (a *API) handlePasskeyResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/passkeys/"), "/")
	sc := sessionFromRequest(r)

	switch path {
	case "register/begin":
		if sc == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		options, state, err := a.svc.BeginPasskeyRegistration(r.Context(), sc.user.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if err := a.setStash(w, stashPasskey, state); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"options": options})

	case "register/finish":
		if sc == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req passkeyFinishBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		state := a.stashValue(r, stashPasskey)
		pk, err := a.svc.FinishPasskeyRegistration(r.Context(), sc.user.ID, state, req.Response)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.clearStash(w, stashPasskey)
		writeJSON(w, http.StatusCreated, map[string]any{"id": pk.ID})

	case "login/begin":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		options, state, err := a.svc.BeginPasskeyLogin(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if err := a.setStash(w, stashPasskey, state); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"options": options})

	case "login/finish":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req passkeyFinishBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		state := a.stashValue(r, stashPasskey)
		outcome, err := a.svc.FinishPasskeyLogin(r.Context(), state, req.Response, req.Remember, req.RedirectTo)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.clearStash(w, stashPasskey)
		a.applyLoginOutcome(w, r, outcome)

	default:
		// /v1/auth/passkeys/{id}
		if sc == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if path == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if err := a.svc.DeletePasskey(r.Context(), sc.user.ID, path); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": path})
	}
}

func (a *API) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requireRecentVerification(w, r, "/settings/profile") {
		return
	}
	sc := sessionFromRequest(r)
	if err := a.svc.DeleteAccount(r.Context(), sc.user.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearCookie(w, authCookieName)
	a.clearCookie(w, pendingCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"redirectTo": "/"})
}
