package config

import (
	"time"
)

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	BrokerConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogPretty() bool
	GetConfigFile() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type BrokerConfig interface {
	GetBearerSessionTTL() time.Duration
	GetVaultSessionTTL() time.Duration
	GetUpstreamTimeout() time.Duration
	GetBearerBrokers() []BearerBrokerConfig
	GetVaultBroker() VaultBrokerConfig
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	Brokers
}

// New builds the configuration from the environment and, when configFile is
// not empty, the broker definitions in that file.
func New(configFile string) (Config, error) {
	brokers := Brokers{}
	if configFile != "" {
		file, err := LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		brokers.file = file
	}
	return mainConfig{Brokers: brokers}, nil
}
