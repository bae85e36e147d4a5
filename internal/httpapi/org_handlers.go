package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"crewbase.org/internal/auth"
)

type createOrgBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type inviteMemberBody struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type setRolesBody struct {
	Roles []string `json:"roles"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sc := sessionFromRequest(r)
	orgs, err := a.svc.OrganizationsForUser(r.Context(), sc.user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	twoFactor, err := a.svc.TwoFactorEnabled(r.Context(), sc.user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":             sc.user,
		"organizations":    orgs,
		"twoFactorEnabled": twoFactor,
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	catalog, err := a.svc.ListRoles(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": catalog})
}

func (a *API) handleOrgs(w http.ResponseWriter, r *http.Request) {
	sc := sessionFromRequest(r)
	switch r.Method {
	case http.MethodGet:
		orgs, err := a.svc.OrganizationsForUser(r.Context(), sc.user.ID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
	case http.MethodPost:
		var req createOrgBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.svc.CreateOrganization(r.Context(), sc.user.ID, req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/orgs/%s", org.ShortID))
		writeJSON(w, http.StatusCreated, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// ensurePermission resolves required inside the org and writes the refusal
// itself. The caller proceeds only on a non-nil membership.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, orgShortID, required string) *auth.Membership {
	sc := sessionFromRequest(r)
	membership, err := a.svc.Resolve(r.Context(), sc.user.ID, orgShortID, required)
	if err != nil {
		handleAuthError(w, r, err)
		return nil
	}
	return membership
}

func (a *API) handleOrgScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/orgs/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	shortID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleOrgResource(w, r, shortID)
	case len(parts) == 2 && parts[1] == "members":
		a.handleOrgMembers(w, r, shortID)
	case len(parts) == 3 && parts[1] == "members":
		a.handleOrgMember(w, r, shortID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrgResource(w http.ResponseWriter, r *http.Request, shortID string) {
	switch r.Method {
	case http.MethodGet:
		if a.ensurePermission(w, r, shortID, "read:organization") == nil {
			return
		}
		org, err := a.svc.Store().Organizations().FindByShortID(r.Context(), shortID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodDelete:
		membership := a.ensurePermission(w, r, shortID, "delete:organization")
		if membership == nil {
			return
		}
		if err := a.svc.DeleteOrganization(r.Context(), membership.OrganizationID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": shortID})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleOrgMembers(w http.ResponseWriter, r *http.Request, shortID string) {
	switch r.Method {
	case http.MethodGet:
		membership := a.ensurePermission(w, r, shortID, "read:member")
		if membership == nil {
			return
		}
		members, err := a.svc.ListMembers(r.Context(), membership.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	case http.MethodPost:
		membership := a.ensurePermission(w, r, shortID, "create:member")
		if membership == nil {
			return
		}
		var req inviteMemberBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		sc := sessionFromRequest(r)
		invited, err := a.svc.InviteMember(r.Context(), membership.OrganizationID, sc.user.ID, req.Email, req.Roles)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, invited)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrgMember(w http.ResponseWriter, r *http.Request, shortID, membershipID string) {
	switch r.Method {
	case http.MethodPut:
		caller := a.ensurePermission(w, r, shortID, "update:member")
		if caller == nil {
			return
		}
		target := a.membershipInOrg(w, r, membershipID, caller.OrganizationID)
		if target == nil {
			return
		}
		var req setRolesBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.svc.SetMemberRoles(r.Context(), membershipID, req.Roles)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		caller := a.ensurePermission(w, r, shortID, "delete:member")
		if caller == nil {
			return
		}
		target := a.membershipInOrg(w, r, membershipID, caller.OrganizationID)
		if target == nil {
			return
		}
		var err error
		if target.UserID == "" {
			err = a.svc.RevokeInvitation(r.Context(), membershipID)
		} else {
			err = a.svc.RemoveMember(r.Context(), membershipID)
		}
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": membershipID})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// membershipInOrg loads a membership and answers 404 when it does not
// belong to the organization the caller was authorized against. Rows in
// other tenants read as absent, never as forbidden.
func (a *API) membershipInOrg(w http.ResponseWriter, r *http.Request, membershipID, organizationID string) *auth.Membership {
	target, err := a.svc.Store().Memberships().FindByID(r.Context(), membershipID)
	if err != nil {
		handleAuthError(w, r, err)
		return nil
	}
	if target.OrganizationID != organizationID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return nil
	}
	return target
}

// handleInvitation serves the public invitation landing lookup and the
// authenticated accept action.
func (a *API) handleInvitation(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invitations/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		invitation, err := a.svc.InvitationByID(r.Context(), parts[0])
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		org, err := a.svc.Store().Organizations().FindByID(r.Context(), invitation.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"invitationId": invitation.InvitationID,
			"orgName":      org.Name,
			"email":        invitation.InviteEmail,
		})
	case len(parts) == 2 && parts[1] == "accept":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		sc := sessionFromRequest(r)
		if sc == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		membership, err := a.svc.AcceptInvitation(r.Context(), sc.user.ID, parts[0])
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, membership)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
