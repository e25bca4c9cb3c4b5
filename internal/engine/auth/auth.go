package auth

import (
	"context"
	"database/sql"
	"errors"

	"workbasket/internal/apperr"
	"workbasket/internal/config"
	"workbasket/internal/domain"
	"workbasket/internal/identity"
	"workbasket/internal/repo"
)

// RequestShape classifies a permission request for the role bypass table.
type RequestShape int

const (
	// ReadOnly is a request for exactly {READ}.
	ReadOnly RequestShape = iota
	Other
)

func ShapeOf(requested domain.Permission) RequestShape {
	if requested == domain.PermRead {
		return ReadOnly
	}
	return Other
}

type bypassKey struct {
	role  domain.Role
	shape RequestShape
}

// bypassTable lists the role and request combinations that skip the grant
// check. Anything absent falls through to the access item bitsets.
var bypassTable = map[bypassKey]bool{
	{domain.RoleAdmin, ReadOnly}:  true,
	{domain.RoleAdmin, Other}:     true,
	{domain.RoleTaskAdmin, Other}: true,
}

// Bypasses reports the table entry for one role and request shape.
func Bypasses(role domain.Role, shape RequestShape) bool {
	return bypassTable[bypassKey{role, shape}]
}

// Checker evaluates workbasket permissions for the principal carried by ctx.
type Checker struct {
	Repo   repo.Repo
	Config config.Config
}

// Principal returns the caller identity, or an anonymous one.
func Principal(ctx context.Context) identity.Context {
	if p, ok := identity.FromContext(ctx); ok {
		return p
	}
	return identity.Anonymous
}

func (c Checker) accessIDs(p identity.Context) []string {
	ids := p.AccessIDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := c.Config.NormalizeAccessID(id); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// RequireRole fails unless the principal holds one of roles.
func (c Checker) RequireRole(ctx context.Context, roles ...domain.Role) error {
	if !c.Config.SecurityEnabled() {
		return nil
	}
	p := Principal(ctx)
	if p.InRole(roles...) {
		return nil
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return &apperr.NotAuthorizedError{UserID: p.UserID(), Roles: names}
}

// InRole is a security aware role test used for read bypasses.
func (c Checker) InRole(ctx context.Context, roles ...domain.Role) bool {
	return !c.Config.SecurityEnabled() || Principal(ctx).InRole(roles...)
}

// Resolve loads the workbasket a ref points at.
func (c Checker) Resolve(ctx context.Context, tx *sql.Tx, ref domain.WorkbasketRef) (domain.Workbasket, error) {
	var (
		wb  domain.Workbasket
		err error
	)
	if ref.ID != "" {
		wb, err = c.Repo.GetWorkbasketTx(ctx, tx, ref.ID)
	} else {
		wb, err = c.Repo.GetWorkbasketByKeyTx(ctx, tx, ref.Key, ref.Domain)
	}
	if errors.Is(err, repo.ErrNotFound) {
		if ref.ID != "" {
			return wb, apperr.WorkbasketNotFound(ref.ID)
		}
		return wb, apperr.WorkbasketNotFoundByKey(ref.Key, ref.Domain)
	}
	return wb, err
}

// CheckWorkbasket resolves ref and verifies the principal holds every
// requested permission on it. The resolved workbasket is returned.
func (c Checker) CheckWorkbasket(ctx context.Context, tx *sql.Tx, ref domain.WorkbasketRef, perms ...domain.Permission) (domain.Workbasket, error) {
	wb, err := c.Resolve(ctx, tx, ref)
	if err != nil {
		return wb, err
	}
	requested := domain.Perms(perms...)
	ok, err := c.allowed(ctx, tx, wb.ID, requested)
	if err != nil {
		return wb, err
	}
	if !ok {
		return wb, &apperr.NotAuthorizedOnWorkbasketError{
			UserID:      Principal(ctx).UserID(),
			Workbasket:  ref.String(),
			Permissions: requested.Names(),
		}
	}
	return wb, nil
}

func (c Checker) allowed(ctx context.Context, tx *sql.Tx, workbasketID string, requested domain.Permission) (bool, error) {
	if !c.Config.SecurityEnabled() {
		return true, nil
	}
	p := Principal(ctx)
	shape := ShapeOf(requested)
	for _, role := range domain.Roles {
		if Bypasses(role, shape) && p.InRole(role) {
			return true, nil
		}
	}
	granted, err := c.Permissions(ctx, tx, workbasketID)
	if err != nil {
		return false, err
	}
	return granted.Has(requested), nil
}

// Permissions returns the union of the principal's grants on one workbasket.
func (c Checker) Permissions(ctx context.Context, tx *sql.Tx, workbasketID string) (domain.Permission, error) {
	items, err := c.Repo.ListGrantsTx(ctx, tx, workbasketID, c.accessIDs(Principal(ctx)))
	if err != nil {
		return 0, err
	}
	var granted domain.Permission
	for _, it := range items {
		granted |= it.Permissions
	}
	return granted, nil
}

// Grants returns the principal's permission union for every workbasket it
// holds at least one access item on.
func (c Checker) Grants(ctx context.Context, tx *sql.Tx) (map[string]domain.Permission, error) {
	items, err := c.Repo.ListGrantsTx(ctx, tx, "", c.accessIDs(Principal(ctx)))
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Permission, len(items))
	for _, it := range items {
		out[it.WorkbasketID] |= it.Permissions
	}
	return out, nil
}

// CanSee reports whether the principal may read wb given its grants.
func (c Checker) CanSee(ctx context.Context, grants map[string]domain.Permission, wb domain.Workbasket) bool {
	if !c.Config.SecurityEnabled() {
		return true
	}
	p := Principal(ctx)
	for _, role := range domain.Roles {
		if Bypasses(role, ReadOnly) && p.InRole(role) {
			return true
		}
	}
	return grants[wb.ID].Has(domain.PermRead)
}
