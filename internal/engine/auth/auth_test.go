package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/apperr"
	"workbasket/internal/config"
	"workbasket/internal/db"
	"workbasket/internal/domain"
	"workbasket/internal/identity"
	"workbasket/internal/migrate"
	"workbasket/internal/repo"
)

func TestBypassTableIsExhaustive(t *testing.T) {
	want := map[domain.Role][2]bool{
		domain.RoleAdmin:         {true, true},
		domain.RoleTaskAdmin:     {false, true},
		domain.RoleBusinessAdmin: {false, false},
		domain.RoleUser:          {false, false},
		domain.RoleMonitor:       {false, false},
		domain.RoleTaskRouter:    {false, false},
	}
	for _, role := range domain.Roles {
		exp, ok := want[role]
		require.True(t, ok, "role %s missing from expectations", role)
		assert.Equal(t, exp[0], Bypasses(role, ReadOnly), "%s read-only", role)
		assert.Equal(t, exp[1], Bypasses(role, Other), "%s other", role)
	}
	assert.Equal(t, ReadOnly, ShapeOf(domain.PermRead))
	assert.Equal(t, Other, ShapeOf(domain.Perms(domain.PermRead, domain.PermAppend)))
	assert.Equal(t, Other, ShapeOf(domain.PermOpen))
}

type fixture struct {
	checker  Checker
	resolver identity.Resolver
}

func newFixture(t *testing.T, mutate func(*config.Config)) fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.InsertWorkbasketTx(ctx, nil, domain.Workbasket{ID: "WBI:1", Key: "K1", Domain: "DOMAIN_A", Name: "one", Type: domain.TypeGroup, Created: now, Modified: now}))
	require.NoError(t, r.InsertAccessItemTx(ctx, nil, domain.AccessItem{ID: "WAI:1", WorkbasketID: "WBI:1", AccessID: "user-1-1", Permissions: domain.Perms(domain.PermRead)}))
	require.NoError(t, r.InsertAccessItemTx(ctx, nil, domain.AccessItem{ID: "WAI:2", WorkbasketID: "WBI:1", AccessID: "group-1", Permissions: domain.Perms(domain.PermAppend)}))
	cfg := *config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	return fixture{checker: Checker{Repo: r, Config: cfg}, resolver: identity.Resolver{Config: cfg}}
}

func (f fixture) as(user string, groups ...string) context.Context {
	return identity.WithPrincipal(context.Background(), f.resolver.Resolve(user, groups...))
}

func TestCheckWorkbasketUnionOfGrants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.as("User-1-1", "Group-1")
	wb, err := f.checker.CheckWorkbasket(ctx, nil, domain.RefByID("WBI:1"), domain.PermRead, domain.PermAppend)
	require.NoError(t, err)
	assert.Equal(t, "K1", wb.Key)

	_, err = f.checker.CheckWorkbasket(ctx, nil, domain.RefByKey("K1", "DOMAIN_A"), domain.PermOpen)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorizedOnResource))
	var denied *apperr.NotAuthorizedOnWorkbasketError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "user-1-1", denied.UserID)
	assert.Equal(t, "K1@DOMAIN_A", denied.Workbasket)
	assert.Equal(t, []string{"OPEN"}, denied.Permissions)

	_, err = f.checker.CheckWorkbasket(f.as("user-1-1"), nil, domain.RefByID("WBI:1"), domain.PermAppend)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorizedOnResource))
}

func TestCheckWorkbasketAdminBypass(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.checker.CheckWorkbasket(f.as("admin"), nil, domain.RefByID("WBI:1"), domain.PermRead)
	assert.NoError(t, err)
	_, err = f.checker.CheckWorkbasket(f.as("admin"), nil, domain.RefByID("WBI:1"), domain.PermRead, domain.PermAppend)
	assert.NoError(t, err)

	_, err = f.checker.CheckWorkbasket(f.as("taskadmin"), nil, domain.RefByID("WBI:1"), domain.PermTransfer)
	assert.NoError(t, err)
	_, err = f.checker.CheckWorkbasket(f.as("taskadmin"), nil, domain.RefByID("WBI:1"), domain.PermRead)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorizedOnResource))

	_, err = f.checker.CheckWorkbasket(f.as("businessadmin"), nil, domain.RefByID("WBI:1"), domain.PermRead)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorizedOnResource))
}

func TestCheckWorkbasketNotFoundBeforeSecurity(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		off := false
		c.Security.Enabled = &off
	})
	_, err := f.checker.CheckWorkbasket(f.as("nobody"), nil, domain.RefByID("WBI:missing"), domain.PermRead)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.checker.CheckWorkbasket(f.as("nobody"), nil, domain.RefByID("WBI:1"), domain.AllPermissions)
	assert.NoError(t, err)
	assert.NoError(t, f.checker.RequireRole(f.as("nobody"), domain.RoleAdmin))
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.checker.RequireRole(f.as("businessadmin"), domain.RoleBusinessAdmin, domain.RoleAdmin))
	err := f.checker.RequireRole(f.as("user-1-1"), domain.RoleBusinessAdmin, domain.RoleAdmin)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorized))
	err = f.checker.RequireRole(context.Background(), domain.RoleAdmin)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorized))
}

func TestPermissionsAndGrants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.as("user-1-1", "group-1")
	perms, err := f.checker.Permissions(ctx, nil, "WBI:1")
	require.NoError(t, err)
	assert.Equal(t, domain.Perms(domain.PermRead, domain.PermAppend), perms)

	grants, err := f.checker.Grants(ctx, nil)
	require.NoError(t, err)
	wb := domain.Workbasket{ID: "WBI:1"}
	assert.True(t, f.checker.CanSee(ctx, grants, wb))
	assert.False(t, f.checker.CanSee(f.as("group-1"), map[string]domain.Permission{"WBI:1": domain.PermAppend}, wb))
	assert.True(t, f.checker.CanSee(f.as("admin"), nil, wb))
}
