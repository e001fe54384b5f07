package config

import (
	"github.com/jrsteele09/go-session-broker/internal/sealed"
)

type SecurityConfig interface {
	GetSealMode() string
	GetEnableRateLimiting() bool
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
	GetMaxRequestBytes() int64
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSealMode selects how secrets are sealed in the session table.
func (Security) GetSealMode() string {
	return GetEnv(sealModeVar, sealed.ModeAge)
}

func (Security) GetEnableRateLimiting() bool {
	return GetBoolEnv(rateLimitVar, false)
}

// GetRateLimitRPS is the sustained per-client request rate.
func (Security) GetRateLimitRPS() float64 {
	return GetFloatEnv(rateLimitRPSVar, 10)
}

func (Security) GetRateLimitBurst() int {
	return GetIntEnv(rateLimitBurstVar, 20)
}

func (Security) GetMaxRequestBytes() int64 {
	return 1 << 20
}
