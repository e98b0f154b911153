// Package config loads the CLI's signing defaults from the environment.
// Struct-tag defaults are applied first, then PDFSIGNER_* environment
// variables override them.
package config

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every variable: PDFSIGNER_TSA_URL, PDFSIGNER_INFO_NAME, ...
const envPrefix = "pdfsigner"

// Info carries the human-readable signature dictionary defaults.
type Info struct {
	Name        string `envconfig:"INFO_NAME"`
	Location    string `envconfig:"INFO_LOCATION"`
	Reason      string `envconfig:"INFO_REASON"`
	ContactInfo string `envconfig:"INFO_CONTACT"`
}

// TSA configures the RFC 3161 time-stamp authority client.
type TSA struct {
	URL      string `envconfig:"TSA_URL"`
	Username string `envconfig:"TSA_USERNAME"`
	Password string `envconfig:"TSA_PASSWORD"`
}

// PKCS11 points at a hardware token when signing with one instead of a key
// file.
type PKCS11 struct {
	LibraryPath string `envconfig:"PKCS11_LIB"`
	Pin         string `envconfig:"PKCS11_PIN"`
	Serial      string `envconfig:"PKCS11_SERIAL"`
}

// Config is the root of the CLI configuration.
type Config struct {
	Info
	TSA
	PKCS11

	// Standard selects the container profile: "CMS" or "CAdES".
	Standard string `envconfig:"STANDARD" default:"CMS"`

	// CertificationLevel is the DocMDP permission level, 0-3.
	CertificationLevel int `envconfig:"CERTIFICATION_LEVEL" default:"0"`

	// EstimatedSize overrides the reservation size for /Contents; 0 keeps
	// the built-in formula.
	EstimatedSize int64 `envconfig:"ESTIMATED_SIZE" default:"0"`
}

// Load builds a Config from struct defaults overridden by PDFSIGNER_*
// environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	if cfg.Standard != "CMS" && cfg.Standard != "CAdES" {
		return nil, fmt.Errorf("config: unknown standard %q", cfg.Standard)
	}
	if cfg.CertificationLevel < 0 || cfg.CertificationLevel > 3 {
		return nil, fmt.Errorf("config: certification level %d out of range", cfg.CertificationLevel)
	}
	return cfg, nil
}
