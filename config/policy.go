package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy captures the serving policy for the HTTP API: authentication, rate
// limiting, and idempotency replay protection. It lives in its own YAML file
// so operators can tune it without touching the node configuration.
type Policy struct {
	Auth        AuthPolicy        `yaml:"auth"`
	RateLimit   RateLimitPolicy   `yaml:"rate_limit"`
	Idempotency IdempotencyPolicy `yaml:"idempotency"`
}

// AuthPolicy configures bearer-token verification. The signing secret is
// read from the named environment variable, never from the file itself.
type AuthPolicy struct {
	Disabled     bool   `yaml:"disabled"`
	JWTSecretEnv string `yaml:"jwt_secret_env"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
}

type RateLimitPolicy struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type IdempotencyPolicy struct {
	Path       string `yaml:"path"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the configured replay window.
func (p IdempotencyPolicy) TTL() time.Duration {
	return time.Duration(p.TTLSeconds) * time.Second
}

// LoadPolicy reads and validates the serving policy. An empty path yields
// the default policy: auth disabled, generous rate limit, no idempotency
// store.
func LoadPolicy(path string) (Policy, error) {
	policy := defaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("open policy: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&policy); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	policy.normalize()
	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func defaultPolicy() Policy {
	return Policy{
		Auth:      AuthPolicy{Disabled: true},
		RateLimit: RateLimitPolicy{PerSecond: 50, Burst: 100},
	}
}

func (p *Policy) normalize() {
	p.Auth.JWTSecretEnv = strings.TrimSpace(p.Auth.JWTSecretEnv)
	p.Auth.Issuer = strings.TrimSpace(p.Auth.Issuer)
	p.Auth.Audience = strings.TrimSpace(p.Auth.Audience)
	p.Idempotency.Path = strings.TrimSpace(p.Idempotency.Path)
	if p.RateLimit.PerSecond <= 0 {
		p.RateLimit.PerSecond = 50
	}
	if p.RateLimit.Burst <= 0 {
		p.RateLimit.Burst = int(p.RateLimit.PerSecond) * 2
	}
	if p.Idempotency.Path != "" && p.Idempotency.TTLSeconds <= 0 {
		p.Idempotency.TTLSeconds = 24 * 60 * 60
	}
}

func (p Policy) validate() error {
	if !p.Auth.Disabled && p.Auth.JWTSecretEnv == "" {
		return fmt.Errorf("policy: auth enabled but jwt_secret_env is empty")
	}
	if !p.Auth.Disabled {
		if secret := os.Getenv(p.Auth.JWTSecretEnv); strings.TrimSpace(secret) == "" {
			return fmt.Errorf("policy: environment variable %s holds no signing secret", p.Auth.JWTSecretEnv)
		}
	}
	return nil
}

// JWTSecret resolves the signing secret from the environment.
func (p AuthPolicy) JWTSecret() []byte {
	if p.Disabled || p.JWTSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(p.JWTSecretEnv))
}
