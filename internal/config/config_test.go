package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.SecurityEnabled())
	assert.True(t, cfg.History.Enabled)
	assert.True(t, cfg.HasDomain("DOMAIN_A"))
	assert.False(t, cfg.HasDomain("DOMAIN_X"))
	assert.Equal(t, []string{"admin"}, cfg.RoleMembers(domain.RoleAdmin))
}

func TestSecurityDefaultsToEnabled(t *testing.T) {
	cfg, err := FromYAML([]byte("domains: [D]\n"))
	require.NoError(t, err)
	assert.True(t, cfg.SecurityEnabled())

	cfg, err = FromYAML([]byte("security:\n  enabled: false\ndomains: [D]\n"))
	require.NoError(t, err)
	assert.False(t, cfg.SecurityEnabled())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no domains":       "domains: []\n",
		"empty domain":     "domains: [\"\"]\n",
		"duplicate":        "domains: [A, A]\n",
		"unknown role":     "domains: [A]\nroles:\n  superuser: [x]\n",
		"empty member":     "domains: [A]\nroles:\n  admin: [\"\"]\n",
		"redis no channel": "domains: [A]\nhistory:\n  redis:\n    addr: localhost:6379\n",
		"webhook no url":   "domains: [A]\nhistory:\n  webhooks:\n    - events: [workbasket.created]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeAccessID(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "teamlead-1", cfg.NormalizeAccessID(" TeamLead-1 "))
	cfg.Security.LowercaseAccessIDs = false
	assert.Equal(t, "TeamLead-1", cfg.NormalizeAccessID("TeamLead-1"))
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Domains, cfg.Domains)

	require.NoError(t, os.WriteFile(Path(dir), []byte("domains: [ONLY]\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ONLY"}, cfg.Domains)
}
