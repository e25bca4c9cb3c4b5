package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"workbasket/internal/domain"
)

// Config models workbasket.yml. The engine receives it by value at
// construction and never reads it from ambient state afterwards.
type Config struct {
	Security struct {
		Enabled            *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
		LowercaseAccessIDs bool  `yaml:"lowercase_access_ids" json:"lowercase_access_ids"`
	} `yaml:"security" json:"security"`
	Domains []string            `yaml:"domains" json:"domains"`
	Roles   map[string][]string `yaml:"roles" json:"roles"`
	History struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
		Redis   struct {
			Addr    string `yaml:"addr,omitempty" json:"addr,omitempty"`
			Channel string `yaml:"channel,omitempty" json:"channel,omitempty"`
		} `yaml:"redis" json:"redis"`
		Webhooks []Webhook `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
	} `yaml:"history" json:"history"`
}

// Webhook is one endpoint receiving committed history events. Events lists
// the event types to deliver; empty means all.
type Webhook struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// SecurityEnabled defaults to true when the switch is absent.
func (c Config) SecurityEnabled() bool {
	return c.Security.Enabled == nil || *c.Security.Enabled
}

func (c Config) HasDomain(name string) bool {
	for _, d := range c.Domains {
		if d == name {
			return true
		}
	}
	return false
}

// RoleMembers returns the access ids configured for a role, normalized the way
// the engine compares access ids.
func (c Config) RoleMembers(role domain.Role) []string {
	members := c.Roles[string(role)]
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, c.NormalizeAccessID(m))
	}
	return out
}

// NormalizeAccessID applies the lower-case switch.
func (c Config) NormalizeAccessID(id string) string {
	id = strings.TrimSpace(id)
	if c.Security.LowercaseAccessIDs {
		return strings.ToLower(id)
	}
	return id
}

// Validate ensures the config meets required structure.
func (c Config) Validate() error {
	if len(c.Domains) == 0 {
		return fmt.Errorf("config.domains must list at least one domain")
	}
	seen := map[string]bool{}
	for _, d := range c.Domains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("config.domains contains an empty domain")
		}
		if seen[d] {
			return fmt.Errorf("config.domains lists %s twice", d)
		}
		seen[d] = true
	}
	roleNames := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)
	for _, name := range roleNames {
		if _, err := domain.ParseRole(name); err != nil {
			return fmt.Errorf("config.roles: %w", err)
		}
		for _, member := range c.Roles[name] {
			if strings.TrimSpace(member) == "" {
				return fmt.Errorf("role %s has empty access id", name)
			}
		}
	}
	if c.History.Redis.Addr != "" && c.History.Redis.Channel == "" {
		return fmt.Errorf("config.history.redis.channel is required when addr is set")
	}
	for i, h := range c.History.Webhooks {
		if strings.TrimSpace(h.URL) == "" {
			return fmt.Errorf("config.history.webhooks[%d].url is required", i)
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("config.history.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "workbasket.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `security:
  enabled: true
  lowercase_access_ids: true

domains: [DOMAIN_A, DOMAIN_B]

roles:
  user: [teamlead-1, teamlead-2, user-1-1, user-1-2, user-b-1]
  business_admin: [businessadmin]
  admin: [admin]
  task_admin: [taskadmin]
  monitor: [monitor]
  task_router: [taskrouter]

history:
  enabled: true
  redis:
    addr: ""
    channel: ""
  # webhooks:
  #   - url: https://example.invalid/hooks/workbasket
  #     events: [workbasket.created, workbasket.deleted]
`
