package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional broker definition file. YAML (.yaml, .yml) and
// JSON with comments (.json, .jsonc) are accepted.
type FileConfig struct {
	Bearer []BearerBrokerConfig `yaml:"bearer" json:"bearer"`
	Vault  *VaultBrokerConfig   `yaml:"vault" json:"vault"`
}

var routePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadFile reads and validates a broker definition file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[LoadFile] reading %s: %w", path, err)
	}

	fc, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("[LoadFile] %s: %w", path, err)
	}
	return fc, nil
}

// Parse decodes data according to the file extension ext and validates it.
func Parse(ext string, data []byte) (*FileConfig, error) {
	var fc FileConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	routes := make(map[string]struct{})
	claim := func(route string) error {
		if !routePattern.MatchString(route) {
			return fmt.Errorf("invalid route %q", route)
		}
		if _, dup := routes[route]; dup {
			return fmt.Errorf("duplicate route %q", route)
		}
		routes[route] = struct{}{}
		return nil
	}

	for i := range fc.Bearer {
		b := &fc.Bearer[i]
		if err := claim(b.Route); err != nil {
			return err
		}
		if b.Upstream.Name == "" {
			b.Upstream.Name = b.Route
		}
		base, err := url.Parse(b.Upstream.BaseURL)
		if err != nil || base.Host == "" || (base.Scheme != "https" && base.Scheme != "http") {
			return fmt.Errorf("route %q: invalid base_url %q", b.Route, b.Upstream.BaseURL)
		}
		if err := validateTTL(b.SessionTTL); err != nil {
			return fmt.Errorf("route %q: %w", b.Route, err)
		}
	}

	if fc.Vault != nil {
		if fc.Vault.Route == "" {
			fc.Vault.Route = DefaultVaultBroker().Route
		}
		if err := claim(fc.Vault.Route); err != nil {
			return err
		}
		if err := validateTTL(fc.Vault.SessionTTL); err != nil {
			return fmt.Errorf("route %q: %w", fc.Vault.Route, err)
		}
	}
	return nil
}

func validateTTL(value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid session_ttl %q", value)
	}
	return nil
}
