package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/config"
	"workbasket/internal/domain"
)

func TestResolveRolesFromUserAndGroups(t *testing.T) {
	r := Resolver{Config: *config.Default()}

	admin := r.Resolve("Admin")
	assert.Equal(t, "admin", admin.UserID())
	assert.True(t, admin.InRole(domain.RoleAdmin))
	assert.False(t, admin.InRole(domain.RoleTaskAdmin))

	viaGroup := r.Resolve("someone", "BusinessAdmin, other")
	assert.Equal(t, []string{"someone", "businessadmin", "other"}, viaGroup.AccessIDs())
	assert.True(t, viaGroup.InRole(domain.RoleBusinessAdmin, domain.RoleAdmin))

	nobody := r.Resolve("stranger")
	assert.Empty(t, nobody.Roles)
}

func TestResolveKeepsCaseWhenNotLowercasing(t *testing.T) {
	cfg := *config.Default()
	cfg.Security.LowercaseAccessIDs = false
	p := Resolver{Config: cfg}.Resolve("User-1-1")
	assert.Equal(t, "User-1-1", p.UserID())
	assert.False(t, p.InRole(domain.RoleUser))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	p := Principal{User: "u"}
	got, ok := FromContext(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, "u", got.UserID())
}

func TestFromToken(t *testing.T) {
	r := Resolver{Config: *config.Default()}
	token, err := IssueToken("s3cret", "TeamLead-1", "taskadmin")
	require.NoError(t, err)

	p, err := r.FromToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "teamlead-1", p.UserID())
	assert.Equal(t, "jwt", p.Source)
	assert.True(t, p.InRole(domain.RoleUser))
	assert.True(t, p.InRole(domain.RoleTaskAdmin))

	_, err = r.FromToken(token, "wrong")
	assert.Error(t, err)
	_, err = r.FromToken(token, "")
	assert.Error(t, err)
}
