// Package config centralizes environment and file configuration for the
// admission subsystem.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gatekit/admission/pkg/admission"
)

// Config holds everything the admission subsystem reads from the
// environment. An empty RedisAddr pins the subsystem to permanent local-only
// counting.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Env           string
	StoreTimeout  time.Duration
	ProbeInterval time.Duration
	SweepInterval time.Duration

	// PolicyFile optionally points at a YAML document of policy overrides
	// merged over the built-in tables.
	PolicyFile string
}

// Production reports whether the process runs in production mode, which
// among other things disables the webhook loopback bypass.
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment, consulting a .env file when
// present. Malformed values are load-time errors and should be fatal.
func Load() (Config, error) {
	_ = godotenv.Load()

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	storeTimeout, err := time.ParseDuration(getEnv("STORE_TIMEOUT", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	probeInterval, err := time.ParseDuration(getEnv("STORE_PROBE_INTERVAL", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid STORE_PROBE_INTERVAL: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("LOCAL_SWEEP_INTERVAL", "30m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOCAL_SWEEP_INTERVAL: %w", err)
	}

	return Config{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
		Env:           getEnv("APP_ENV", "development"),
		StoreTimeout:  storeTimeout,
		ProbeInterval: probeInterval,
		SweepInterval: sweepInterval,
		PolicyFile:    strings.TrimSpace(os.Getenv("POLICY_FILE")),
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// windowSpec is the YAML form of an admission.Window.
type windowSpec struct {
	Window string `yaml:"window"`
	Limit  int64  `yaml:"limit"`
}

func (w windowSpec) toWindow(field string) (admission.Window, error) {
	d, err := time.ParseDuration(w.Window)
	if err != nil {
		return admission.Window{}, fmt.Errorf("%s: invalid window %q: %w", field, w.Window, err)
	}
	return admission.Window{Duration: d, Limit: w.Limit}, nil
}

// policyFile is the YAML policy override document. Absent sections keep the
// built-in defaults.
type policyFile struct {
	Global      *windowSpec                      `yaml:"global"`
	Chat        *windowSpec                      `yaml:"chat"`
	Auth        *windowSpec                      `yaml:"auth"`
	Upload      *windowSpec                      `yaml:"upload"`
	Webhook     *windowSpec                      `yaml:"webhook"`
	Tiers       map[string]windowSpec            `yaml:"tiers"`
	Departments map[string]map[string]windowSpec `yaml:"departments"`
}

// LoadPolicyTable builds the policy table, merging the YAML file at path
// (when non-empty) over the defaults. Unparsable durations and windows that
// fail validation are load-time errors, fatal at startup so they can never
// surface at request time.
func LoadPolicyTable(path string) (*admission.PolicyTable, error) {
	cfg := admission.DefaultPolicyConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		var pf policyFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("parse policy file: %w", err)
		}
		if err := applyOverrides(&cfg, pf); err != nil {
			return nil, err
		}
	}

	table, err := admission.NewPolicyTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy validation: %w", err)
	}
	return table, nil
}

func applyOverrides(cfg *admission.PolicyConfig, pf policyFile) error {
	scalar := []struct {
		spec *windowSpec
		dst  *admission.Window
		name string
	}{
		{pf.Global, &cfg.Global, "global"},
		{pf.Chat, &cfg.Chat, "chat"},
		{pf.Auth, &cfg.Auth, "auth"},
		{pf.Upload, &cfg.Upload, "upload"},
		{pf.Webhook, &cfg.Webhook, "webhook"},
	}
	for _, s := range scalar {
		if s.spec == nil {
			continue
		}
		w, err := s.spec.toWindow(s.name)
		if err != nil {
			return err
		}
		*s.dst = w
	}

	for name, spec := range pf.Tiers {
		w, err := spec.toWindow("tier " + name)
		if err != nil {
			return err
		}
		cfg.Tiers[admission.Tier(name)] = w
	}

	for dept, ops := range pf.Departments {
		row, ok := cfg.Departments[dept]
		if !ok {
			row = make(map[admission.Operation]admission.Window)
			cfg.Departments[dept] = row
		}
		for op, spec := range ops {
			w, err := spec.toWindow(fmt.Sprintf("department %s/%s", dept, op))
			if err != nil {
				return err
			}
			row[admission.Operation(op)] = w
		}
	}

	return nil
}
