package auth

import (
	"context"
	"fmt"
	"strings"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/ids"

	"github.com/google/uuid"
)

// CreateOrganization opens a new shared tenant with the creator as its
// first admin. Personal organizations are never created here; they exist
// only through signup.
func (s *Service) CreateOrganization(ctx context.Context, userID, name, description string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}

	var org *Organization
	err := s.store.InTx(ctx, func(tx Store) error {
		now := s.now()
		org = &Organization{
			ID:          ids.New(),
			ShortID:     ids.Short(orgShortIDLength),
			Name:        name,
			Description: strings.TrimSpace(description),
			CreatedAt:   now,
		}
		if err := tx.Organizations().Create(ctx, org); err != nil {
			return err
		}
		return tx.Memberships().Create(ctx, &Membership{
			ID:             ids.New(),
			OrganizationID: org.ID,
			UserID:         userID,
			Roles:          []string{RoleAdmin},
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "org.created", map[string]any{"org_id": org.ID, "user_id": userID})
	return org, nil
}

// DeleteOrganization removes a shared tenant. Personal organizations are
// permanent; trying to delete one is refused regardless of role.
func (s *Service) DeleteOrganization(ctx context.Context, organizationID string) error {
	org, err := s.store.Organizations().FindByID(ctx, organizationID)
	if err != nil {
		return err
	}
	if org.PersonalUserID != "" {
		return fmt.Errorf("%w: a personal organization cannot be deleted", ErrInvalidInput)
	}
	if err := s.store.Organizations().Delete(ctx, organizationID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "org.deleted", map[string]any{"org_id": organizationID})
	return nil
}

// OrganizationsForUser lists every organization the user belongs to.
func (s *Service) OrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	memberships, err := s.store.Memberships().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	orgs := make([]Organization, 0, len(memberships))
	for _, m := range memberships {
		org, err := s.store.Organizations().FindByID(ctx, m.OrganizationID)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, nil
}

// ListMembers returns the organization's memberships, claimed and invited
// alike.
func (s *Service) ListMembers(ctx context.Context, organizationID string) ([]Membership, error) {
	return s.store.Memberships().ListByOrganization(ctx, organizationID)
}

// InviteMember creates an unclaimed membership addressed to an email and
// mails the invitation link. The membership binds to whoever claims the
// invitation id first; the email is a delivery hint, not a constraint.
func (s *Service) InviteMember(ctx context.Context, organizationID, invitedByID, email string, roles []string) (*Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: invite email is required", ErrInvalidInput)
	}
	if err := validateAssignableRoles(roles); err != nil {
		return nil, err
	}
	org, err := s.store.Organizations().FindByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org.PersonalUserID != "" {
		return nil, fmt.Errorf("%w: a personal organization cannot invite members", ErrInvalidInput)
	}

	membership := &Membership{
		ID:             ids.New(),
		OrganizationID: organizationID,
		InvitedByID:    invitedByID,
		InvitationID:   uuid.NewString(),
		InviteEmail:    email,
		Roles:          roles,
		CreatedAt:      s.now(),
	}
	if err := s.store.Memberships().Create(ctx, membership); err != nil {
		return nil, err
	}

	s.send(ctx, email, "org_invitation", map[string]string{
		"orgName":     org.Name,
		"inviteUrl":   s.baseURL + "/signup?" + InvitationParam + "=" + membership.InvitationID,
		"productName": s.productName,
	})
	_ = audit.LogEvent(ctx, "org.member.invited", map[string]any{"org_id": organizationID, "email": email})
	return membership, nil
}

// InvitationByID resolves an invitation for the signup landing page.
// Claimed invitations read as absent.
func (s *Service) InvitationByID(ctx context.Context, invitationID string) (*Membership, error) {
	m, err := s.store.Memberships().FindByInvitationID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if m.UserID != "" {
		return nil, ErrNotFound
	}
	return m, nil
}

// AcceptInvitation binds an open invitation to the user. Racing accepts
// are settled by the store; the loser sees ErrNotFound.
func (s *Service) AcceptInvitation(ctx context.Context, userID, invitationID string) (*Membership, error) {
	m, err := s.store.Memberships().Claim(ctx, userID, invitationID)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "org.member.joined", map[string]any{"org_id": m.OrganizationID, "user_id": userID})
	return m, nil
}

// RevokeInvitation deletes an unclaimed membership. Claimed memberships go
// through RemoveMember and its guards instead.
func (s *Service) RevokeInvitation(ctx context.Context, membershipID string) error {
	m, err := s.store.Memberships().FindByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.UserID != "" {
		return fmt.Errorf("%w: membership is already claimed", ErrInvalidInput)
	}
	return s.store.Memberships().Delete(ctx, membershipID)
}

// RemoveMember deletes a claimed membership. The personal-organization
// owner and the last remaining admin are both immovable.
func (s *Service) RemoveMember(ctx context.Context, membershipID string) error {
	m, err := s.store.Memberships().FindByID(ctx, membershipID)
	if err != nil {
		return err
	}
	org, err := s.store.Organizations().FindByID(ctx, m.OrganizationID)
	if err != nil {
		return err
	}
	if org.PersonalUserID != "" && org.PersonalUserID == m.UserID {
		return fmt.Errorf("%w: the owner of a personal organization cannot be removed", ErrInvalidInput)
	}
	if m.UserID != "" && m.HasRole(RoleAdmin) {
		if err := s.ensureAnotherAdmin(ctx, m.OrganizationID, m.ID); err != nil {
			return err
		}
	}
	if err := s.store.Memberships().Delete(ctx, membershipID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "org.member.removed", map[string]any{"org_id": m.OrganizationID, "membership_id": membershipID})
	return nil
}

// SetMemberRoles replaces a membership's role set. Stripping admin from the
// organization's only bound admin is refused, and the hidden super role is
// never assignable here.
func (s *Service) SetMemberRoles(ctx context.Context, membershipID string, roles []string) (*Membership, error) {
	if err := validateAssignableRoles(roles); err != nil {
		return nil, err
	}
	m, err := s.store.Memberships().FindByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.UserID != "" && m.HasRole(RoleAdmin) && !containsRole(roles, RoleAdmin) {
		if err := s.ensureAnotherAdmin(ctx, m.OrganizationID, m.ID); err != nil {
			return nil, err
		}
	}
	updated, err := s.store.Memberships().SetRoles(ctx, membershipID, roles)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "org.member.roles_changed", map[string]any{"membership_id": membershipID, "roles": roles})
	return updated, nil
}

// ensureAnotherAdmin errors unless some other claimed membership in the
// organization carries the admin role.
func (s *Service) ensureAnotherAdmin(ctx context.Context, organizationID, exceptID string) error {
	members, err := s.store.Memberships().ListByOrganization(ctx, organizationID)
	if err != nil {
		return err
	}
	for _, other := range members {
		if other.ID != exceptID && other.UserID != "" && other.HasRole(RoleAdmin) {
			return nil
		}
	}
	return fmt.Errorf("%w: an organization must keep at least one admin", ErrInvalidInput)
}

func validateAssignableRoles(roles []string) error {
	if len(roles) == 0 {
		return fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
	}
	for _, r := range roles {
		if r == RoleSuper {
			return fmt.Errorf("%w: role %q cannot be assigned", ErrInvalidInput, r)
		}
	}
	return nil
}

func containsRole(roles []string, name string) bool {
	for _, r := range roles {
		if r == name {
			return true
		}
	}
	return false
}
