/*
 * Copyright 2026 Hostbeat Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models defines the shared data types for the hostbeat telemetry
// pipeline.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MetricDomain identifies one independently scheduled category of telemetry.
type MetricDomain string

const (
	DomainConnections MetricDomain = "connections"
	DomainPorts       MetricDomain = "ports"
	DomainServices    MetricDomain = "services"
	DomainCPU         MetricDomain = "cpu"
	DomainMemory      MetricDomain = "memory"
)

// KnownDomains returns every domain the pipeline schedules, in stable order.
func KnownDomains() []MetricDomain {
	return []MetricDomain{
		DomainConnections,
		DomainPorts,
		DomainServices,
		DomainCPU,
		DomainMemory,
	}
}

// Valid reports whether d names a known metric domain.
func (d MetricDomain) Valid() bool {
	switch d {
	case DomainConnections, DomainPorts, DomainServices, DomainCPU, DomainMemory:
		return true
	default:
		return false
	}
}

var (
	ErrUnknownDomain      = errors.New("unknown metric domain")
	ErrIntervalOutOfRange = errors.New("sampling interval out of range")
	ErrCacheTTLOutOfRange = errors.New("cache ttl out of range")
)

// Interval and TTL bounds enforced on settings updates. The service domain
// gets a wider interval range because systemctl enumeration is expensive.
const (
	MinIntervalSeconds        = 1.0
	MaxIntervalSeconds        = 60.0
	MaxServiceIntervalSeconds = 300.0
	MinCacheTTLSeconds        = 5
	MaxCacheTTLSeconds        = 3600
)

// IntervalBounds returns the [min, max] sampling interval for a domain.
func IntervalBounds(domain MetricDomain) (minSec, maxSec float64) {
	if domain == DomainServices {
		return MinIntervalSeconds, MaxServiceIntervalSeconds
	}

	return MinIntervalSeconds, MaxIntervalSeconds
}

// DomainSettings is the singleton runtime configuration for one domain.
// Exactly one row exists per domain; it is created lazily with defaults and
// never deleted.
type DomainSettings struct {
	Domain          MetricDomain `json:"domain"`
	Enabled         bool         `json:"enabled"`
	IntervalSeconds float64      `json:"interval_seconds"`
	CacheTTLSeconds int          `json:"cache_ttl_seconds"`
	LoggingEnabled  bool         `json:"logging_enabled"`
	LastModifiedBy  string       `json:"last_modified_by"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// DefaultDomainSettings returns the settings a domain starts with before any
// administrative update.
func DefaultDomainSettings(domain MetricDomain) *DomainSettings {
	interval := 5.0
	if domain == DomainServices {
		interval = 30.0
	}

	return &DomainSettings{
		Domain:          domain,
		Enabled:         true,
		IntervalSeconds: interval,
		CacheTTLSeconds: 60,
		LoggingEnabled:  false,
		LastModifiedBy:  "system",
		UpdatedAt:       time.Now().UTC(),
	}
}

// Interval converts the configured sampling interval to a time.Duration.
func (s *DomainSettings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds * float64(time.Second))
}

// CacheTTL converts the configured cache lifetime to a time.Duration.
func (s *DomainSettings) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// SettingsUpdate carries a partial settings mutation. Nil fields are left
// unchanged.
type SettingsUpdate struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	IntervalSeconds *float64 `json:"interval_seconds,omitempty"`
	CacheTTLSeconds *int     `json:"cache_ttl_seconds,omitempty"`
	LoggingEnabled  *bool    `json:"logging_enabled,omitempty"`
	ModifiedBy      string   `json:"modified_by,omitempty"`
}

// Validate checks range constraints for the targeted domain. Updates are
// rejected as a whole; no partial mutation is applied on failure.
func (u *SettingsUpdate) Validate(domain MetricDomain) error {
	if !domain.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	if u.IntervalSeconds != nil {
		minSec, maxSec := IntervalBounds(domain)
		if *u.IntervalSeconds < minSec || *u.IntervalSeconds > maxSec {
			return fmt.Errorf("%w: %.1fs not in [%.1f, %.1f]",
				ErrIntervalOutOfRange, *u.IntervalSeconds, minSec, maxSec)
		}
	}

	if u.CacheTTLSeconds != nil {
		if *u.CacheTTLSeconds < MinCacheTTLSeconds || *u.CacheTTLSeconds > MaxCacheTTLSeconds {
			return fmt.Errorf("%w: %ds not in [%d, %d]",
				ErrCacheTTLOutOfRange, *u.CacheTTLSeconds, MinCacheTTLSeconds, MaxCacheTTLSeconds)
		}
	}

	return nil
}

// Apply merges the update into settings, stamping the modification metadata.
func (u *SettingsUpdate) Apply(s *DomainSettings, now time.Time) {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}

	if u.IntervalSeconds != nil {
		s.IntervalSeconds = *u.IntervalSeconds
	}

	if u.CacheTTLSeconds != nil {
		s.CacheTTLSeconds = *u.CacheTTLSeconds
	}

	if u.LoggingEnabled != nil {
		s.LoggingEnabled = *u.LoggingEnabled
	}

	if u.ModifiedBy != "" {
		s.LastModifiedBy = u.ModifiedBy
	}

	s.UpdatedAt = now.UTC()
}

// Snapshot is one immutable result of a collector run for one domain. Data
// holds the domain payload as canonical JSON; collectors sort their output
// so the encoding is stable across runs.
type Snapshot struct {
	Domain     MetricDomain    `json:"domain"`
	CapturedAt time.Time       `json:"captured_at"`
	Data       json.RawMessage `json:"data"`
}

// NewSnapshot marshals payload into a snapshot envelope for domain.
func NewSnapshot(domain MetricDomain, capturedAt time.Time, payload interface{}) (*Snapshot, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s snapshot: %w", domain, err)
	}

	return &Snapshot{
		Domain:     domain,
		CapturedAt: capturedAt.UTC(),
		Data:       data,
	}, nil
}

// CacheEntry is a snapshot plus its expiry, as stored by both cache tiers.
type CacheEntry struct {
	Domain    MetricDomain `json:"domain"`
	Snapshot  *Snapshot    `json:"snapshot"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
