// Package config holds the plain configuration struct enumerated in
// spec.md §6. Loading it from a file, environment, or flags stays an
// external collaborator's job (spec.md §1); this package only defines the
// shape and its validation/defaulting rules.
package config

import (
	"fmt"
	"math/bits"
	"time"
)

// Config mirrors spec.md §6's enumerated field list exactly.
type Config struct {
	ListenAddr    string `json:"listen_addr"`
	UpstreamBaseURL string `json:"upstream_base_url"`

	RingCapacitySlots    int `json:"ring_capacity_slots"`
	RingSlotPayloadBytes int `json:"ring_slot_payload_bytes"`

	AuthHeaderName      string `json:"auth_header_name"`
	RequestIDHeaderName string `json:"request_id_header_name"`

	RateLimitRPSPerPrincipal float64 `json:"rate_limit_rps_per_principal"`
	RateLimitBurst           int64  `json:"rate_limit_burst"`

	RequestTimeoutMs  int `json:"request_timeout_ms"`
	DrainShutdownMs   int `json:"drain_shutdown_ms"`
	LoggingSampleRate float64 `json:"logging_sample_rate"`
}

// Default returns a Config with the defaults spec.md §6 calls out by name
// (auth_header_name defaults to X-Api-Key, request_id_header_name to
// X-Request-Id) plus conservative values for everything else, the way
// agilira-lethe's NewWithDefaults seeds a LoggerConfig before the caller
// overrides individual fields.
func Default() Config {
	return Config{
		ListenAddr:               ":8080",
		RingCapacitySlots:        1 << 16,
		RingSlotPayloadBytes:     1024,
		AuthHeaderName:           "X-Api-Key",
		RequestIDHeaderName:      "X-Request-Id",
		RateLimitRPSPerPrincipal: 50,
		RateLimitBurst:           100,
		RequestTimeoutMs:         30_000,
		DrainShutdownMs:          5_000,
		LoggingSampleRate:        1.0,
	}
}

// Validate checks the invariants spec.md's data model requires of these
// fields (ring_capacity_slots must be a power of two, §3's "N a power of
// two") and the ranges that make the rest of the fields meaningful.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("config: upstream_base_url must not be empty")
	}
	if c.RingCapacitySlots <= 0 || bits.OnesCount(uint(c.RingCapacitySlots)) != 1 {
		return fmt.Errorf("config: ring_capacity_slots must be a positive power of two, got %d", c.RingCapacitySlots)
	}
	if c.RingSlotPayloadBytes <= 0 {
		return fmt.Errorf("config: ring_slot_payload_bytes must be positive, got %d", c.RingSlotPayloadBytes)
	}
	if c.AuthHeaderName == "" {
		return fmt.Errorf("config: auth_header_name must not be empty")
	}
	if c.RequestIDHeaderName == "" {
		return fmt.Errorf("config: request_id_header_name must not be empty")
	}
	if c.RateLimitRPSPerPrincipal <= 0 {
		return fmt.Errorf("config: rate_limit_rps_per_principal must be positive, got %v", c.RateLimitRPSPerPrincipal)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: rate_limit_burst must be positive, got %d", c.RateLimitBurst)
	}
	if c.RequestTimeoutMs <= 0 {
		return fmt.Errorf("config: request_timeout_ms must be positive, got %d", c.RequestTimeoutMs)
	}
	if c.DrainShutdownMs < 0 {
		return fmt.Errorf("config: drain_shutdown_ms must not be negative, got %d", c.DrainShutdownMs)
	}
	if c.LoggingSampleRate < 0 || c.LoggingSampleRate > 1 {
		return fmt.Errorf("config: logging_sample_rate must be in [0,1], got %v", c.LoggingSampleRate)
	}
	return nil
}

// RequestTimeout returns RequestTimeoutMs as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// DrainShutdown returns DrainShutdownMs as a time.Duration.
func (c Config) DrainShutdown() time.Duration {
	return time.Duration(c.DrainShutdownMs) * time.Millisecond
}
