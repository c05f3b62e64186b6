package multiauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/multiauth/identity"
	"gopkg.in/yaml.v3"
)

// Config is the orchestrator configuration. Build it from [DefaultConfig] or
// [LoadConfig]; it is treated as immutable once passed to the Builder.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Standing    StandingConfig    `yaml:"standing"`
	Switch      SwitchConfig      `yaml:"switch"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Security    SecurityConfig    `yaml:"security"`
	Routes      RoutesConfig      `yaml:"routes"`
	Audit       AuditConfig       `yaml:"audit"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig namespaces the persisted keys. Every key is stored under
// {KeyPrefix}:{DeviceID}:.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	DeviceID  string `yaml:"device_id"`
	// SlotTTL expires persisted keys. Zero keeps them until removed.
	SlotTTL time.Duration `yaml:"slot_ttl"`
}

// Namespace returns the key prefix used for this device.
func (s StorageConfig) Namespace() string {
	return s.KeyPrefix + ":" + s.DeviceID
}

/*
====================================
RESOLUTION
====================================
*/

// ResolverConfig bounds profile resolution.
type ResolverConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StandingConfig schedules the background standing check.
type StandingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

/*
====================================
SWITCH & CREDENTIALS
====================================
*/

// SwitchConfig tunes SwitchAccount.
type SwitchConfig struct {
	// AllowOwnerMismatch lets a switch continue when the provider's live
	// session belongs to another identity than the target. The live
	// session's owner is then resolved and activated. Off by default: a
	// mismatch aborts the switch.
	AllowOwnerMismatch bool `yaml:"allow_owner_mismatch"`
}

// CredentialsConfig controls the raw credential cache used to re-sign-in
// when an identity has no usable vault slot.
type CredentialsConfig struct {
	CacheEnabled bool `yaml:"cache_enabled"`
}

// SecurityConfig throttles interactive logins per email.
type SecurityConfig struct {
	MaxLoginAttempts      int           `yaml:"max_login_attempts"`
	LoginCooldownDuration time.Duration `yaml:"login_cooldown"`
}

/*
====================================
ROUTES
====================================
*/

// RoutesConfig maps roles to landing routes.
type RoutesConfig struct {
	// Entry is the unauthenticated entry surface.
	Entry string `yaml:"entry"`
	// Default is used for roles missing from Landing.
	Default string                   `yaml:"default"`
	Landing map[identity.Role]string `yaml:"landing"`
}

// LandingFor returns the route for role.
func (r RoutesConfig) LandingFor(role identity.Role) string {
	if route, ok := r.Landing[role]; ok && route != "" {
		return route
	}
	return r.Default
}

/*
====================================
AUDIT & METRICS
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a validated baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			KeyPrefix: "multiauth",
			DeviceID:  "default",
		},
		Resolver: ResolverConfig{
			Timeout: 30 * time.Second,
		},
		Standing: StandingConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Routes: RoutesConfig{
			Entry:   "/login",
			Default: "/",
			Landing: map[identity.Role]string{
				identity.RoleStudent:          "/student",
				identity.RoleFaculty:          "/faculty",
				identity.RoleParent:           "/parent",
				identity.RoleInstitutionAdmin: "/admin",
				identity.RolePlatformAdmin:    "/platform",
				identity.RoleAccountant:       "/accounts",
				identity.RoleCanteenManager:   "/canteen",
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Routes.Landing != nil {
		out.Routes.Landing = make(map[identity.Role]string, len(cfg.Routes.Landing))
		for role, route := range cfg.Routes.Landing {
			out.Routes.Landing[role] = route
		}
	}
	return out
}

/*
====================================
LOADING & VALIDATION
====================================
*/

// LoadConfig reads a YAML file over [DefaultConfig] and validates the result.
// Keys absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Storage
	if strings.TrimSpace(c.Storage.KeyPrefix) == "" {
		return errors.New("Storage KeyPrefix must be set")
	}
	if strings.TrimSpace(c.Storage.DeviceID) == "" {
		return errors.New("Storage DeviceID must be set")
	}
	if strings.Contains(c.Storage.DeviceID, ":") {
		return errors.New("Storage DeviceID must not contain ':'")
	}
	if c.Storage.SlotTTL < 0 {
		return errors.New("Storage SlotTTL must be >= 0")
	}

	// Resolution
	if c.Resolver.Timeout <= 0 {
		return errors.New("Resolver Timeout must be > 0")
	}
	if c.Standing.Enabled && c.Standing.Interval < time.Second {
		return errors.New("Standing Interval must be >= 1s when enabled")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0 when throttling is enabled")
	}

	// Routes
	if c.Routes.Entry == "" {
		return errors.New("Routes Entry must be set")
	}
	if c.Routes.Default == "" {
		return errors.New("Routes Default must be set")
	}
	for role := range c.Routes.Landing {
		if !role.Valid() {
			return fmt.Errorf("Routes Landing has unknown role %q", role)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
