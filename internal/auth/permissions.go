package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PermissionQuery is a parsed permission string: "action:entity" or
// "action:entity:access" where access is a comma-separated list.
type PermissionQuery struct {
	Action string
	Entity string
	Access []string
}

// ParsePermission parses a permission string. Both parts are mandatory;
// the access segment is optional and may carry several comma-separated
// qualifiers.
func ParsePermission(raw string) (PermissionQuery, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return PermissionQuery{}, fmt.Errorf("%w: malformed permission %q", ErrInvalidInput, raw)
	}
	q := PermissionQuery{Action: parts[0], Entity: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		q.Access = strings.Split(parts[2], ",")
	}
	return q, nil
}

// grantMatches applies the access-subset rule: every qualifier on the
// grant must appear in the query. A grant with no qualifiers is
// unconditional and matches any query; a query with no qualifiers is only
// satisfied by such unconditional grants.
func grantMatches(p *Permission, q PermissionQuery) bool {
	if p.Action != q.Action || p.Entity != q.Entity {
		return false
	}
	if p.Access == "" {
		return true
	}
	for _, granted := range strings.Split(p.Access, ",") {
		found := false
		for _, want := range q.Access {
			if granted == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Resolve checks whether the user holds the required permission inside the
// organization identified by its short id. Membership roles are resolved
// to their permission grants; any matching grant passes. No membership, or
// membership without a matching grant, reads as ErrUnauthorized.
func (s *Service) Resolve(ctx context.Context, userID, orgShortID, required string) (*Membership, error) {
	query, err := ParsePermission(required)
	if err != nil {
		return nil, err
	}

	membership, err := s.store.Memberships().FindByUserAndOrgShortID(ctx, userID, orgShortID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	grants, err := s.store.Permissions().ListByRoles(ctx, membership.Roles)
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if grantMatches(&grants[i], query) {
			return membership, nil
		}
	}
	return nil, ErrUnauthorized
}

// RequireSuper passes only for users holding a membership with the super
// role. The check is organization-independent.
func (s *Service) RequireSuper(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	_, err := s.store.Memberships().FindSuper(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}

// ListRoles returns the assignable role catalog in display order. The
// super role never appears here.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles().List(ctx)
}
