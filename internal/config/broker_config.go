package config

import (
	"time"

	"github.com/jrsteele09/go-session-broker/upstream"
)

// BearerBrokerConfig defines one single-token broker and the upstream it
// proxies to. Route is the path segment the broker is served under.
type BearerBrokerConfig struct {
	Route      string          `yaml:"route" json:"route"`
	Upstream   upstream.Config `yaml:"upstream" json:"upstream"`
	SessionTTL string          `yaml:"session_ttl" json:"session_ttl"`

	TTL time.Duration `yaml:"-" json:"-"`
}

// VaultBrokerConfig defines the multi-provider key vault. An empty Providers
// list accepts any provider name.
type VaultBrokerConfig struct {
	Route         string   `yaml:"route" json:"route"`
	Providers     []string `yaml:"providers" json:"providers"`
	DisableVerify bool     `yaml:"disable_verify" json:"disable_verify"`
	SessionTTL    string   `yaml:"session_ttl" json:"session_ttl"`

	TTL time.Duration `yaml:"-" json:"-"`
}

// DefaultBearerBrokers are served when no config file defines any.
func DefaultBearerBrokers() []BearerBrokerConfig {
	return []BearerBrokerConfig{
		{
			Route: "github-proxy",
			Upstream: upstream.Config{
				Name:         "github",
				BaseURL:      "https://api.github.com",
				IdentityPath: "/user",
				Headers: map[string]string{
					"Accept":               "application/vnd.github+json",
					"X-GitHub-Api-Version": "2022-11-28",
				},
			},
		},
		{
			Route: "netlify-proxy",
			Upstream: upstream.Config{
				Name:         "netlify",
				BaseURL:      "https://api.netlify.com/api/v1",
				IdentityPath: "/user",
			},
		},
	}
}

func DefaultVaultBroker() VaultBrokerConfig {
	return VaultBrokerConfig{Route: "llm-keys"}
}

type Brokers struct {
	file *FileConfig
}

var _ BrokerConfig = Brokers{}

func (Brokers) GetBearerSessionTTL() time.Duration {
	return GetDurationEnv(bearerTTLVar, time.Hour)
}

func (Brokers) GetVaultSessionTTL() time.Duration {
	return GetDurationEnv(vaultTTLVar, 24*time.Hour)
}

// GetUpstreamTimeout bounds every upstream call, body read included.
func (Brokers) GetUpstreamTimeout() time.Duration {
	return GetDurationEnv(upstreamTimeoutVar, 30*time.Second)
}

// GetBearerBrokers returns the configured bearer brokers with TTL resolved.
func (b Brokers) GetBearerBrokers() []BearerBrokerConfig {
	brokers := DefaultBearerBrokers()
	if b.file != nil && len(b.file.Bearer) > 0 {
		brokers = append([]BearerBrokerConfig(nil), b.file.Bearer...)
	}
	for i := range brokers {
		brokers[i].TTL = ttlOrDefault(brokers[i].SessionTTL, b.GetBearerSessionTTL())
	}
	return brokers
}

func (b Brokers) GetVaultBroker() VaultBrokerConfig {
	vault := DefaultVaultBroker()
	if b.file != nil && b.file.Vault != nil {
		vault = *b.file.Vault
	}
	vault.TTL = ttlOrDefault(vault.SessionTTL, b.GetVaultSessionTTL())
	return vault
}

func ttlOrDefault(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
