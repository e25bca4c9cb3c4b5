package identity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"workbasket/internal/config"
	"workbasket/internal/domain"
)

// Context is what the engine needs to know about the caller of one operation.
type Context interface {
	UserID() string
	// AccessIDs returns the user id followed by every group id.
	AccessIDs() []string
	InRole(roles ...domain.Role) bool
}

// Principal is the resolved caller. Build it with a Resolver so access ids
// are normalized the way the engine compares them.
type Principal struct {
	User   string
	Groups []string
	Roles  []domain.Role
	Source string
}

func (p Principal) UserID() string { return p.User }

func (p Principal) AccessIDs() []string {
	ids := make([]string, 0, len(p.Groups)+1)
	if p.User != "" {
		ids = append(ids, p.User)
	}
	for _, g := range p.Groups {
		if g != "" {
			ids = append(ids, g)
		}
	}
	return ids
}

func (p Principal) InRole(roles ...domain.Role) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Context) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Context, bool) {
	p, ok := ctx.Value(principalKey{}).(Context)
	return p, ok && p != nil
}

// Anonymous holds no id and no role.
var Anonymous Context = Principal{Source: "anonymous"}

// Resolver maps user and group ids to roles using the configured role lists.
type Resolver struct {
	Config config.Config
}

// Resolve normalizes the ids and collects every role whose member list
// contains the user or one of the groups.
func (r Resolver) Resolve(user string, groups ...string) Principal {
	p := Principal{User: r.Config.NormalizeAccessID(user), Source: "explicit"}
	seen := map[string]bool{}
	for _, g := range groups {
		for _, part := range strings.Split(g, ",") {
			id := r.Config.NormalizeAccessID(part)
			if id == "" || seen[id] || id == p.User {
				continue
			}
			seen[id] = true
			p.Groups = append(p.Groups, id)
		}
	}
	sort.Strings(p.Groups)
	ids := p.AccessIDs()
	for _, role := range domain.Roles {
		if containsAny(r.Config.RoleMembers(role), ids) {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}

func containsAny(members, ids []string) bool {
	for _, m := range members {
		for _, id := range ids {
			if m == id {
				return true
			}
		}
	}
	return false
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups,omitempty"`
}

// FromToken verifies an HS256 bearer token and resolves its subject and
// groups claim. Roles always come from configuration, never from the token.
func (r Resolver) FromToken(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	p := r.Resolve(claims.Subject, claims.Groups...)
	p.Source = "jwt"
	return p, nil
}

// IssueToken signs an HS256 token for the user and groups.
func IssueToken(secret, user string, groups ...string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: user}, Groups: groups}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
