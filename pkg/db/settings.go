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

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// nowUTC allows tests to override the timestamp source.
//
//nolint:gochecknoglobals // test hooks need a package-level clock override.
var nowUTC = func() time.Time {
	return time.Now().UTC()
}

const (
	insertDefaultSettingsSQL = `
INSERT INTO domain_settings (
	domain,
	enabled,
	interval_seconds,
	cache_ttl_seconds,
	logging_enabled,
	last_modified_by,
	updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (domain) DO NOTHING`

	selectSettingsSQL = `
SELECT domain, enabled, interval_seconds, cache_ttl_seconds,
	logging_enabled, last_modified_by, updated_at
FROM domain_settings
WHERE domain = $1`

	updateSettingsSQL = `
UPDATE domain_settings SET
	enabled           = COALESCE($2, enabled),
	interval_seconds  = COALESCE($3, interval_seconds),
	cache_ttl_seconds = COALESCE($4, cache_ttl_seconds),
	logging_enabled   = COALESCE($5, logging_enabled),
	last_modified_by  = COALESCE($6, last_modified_by),
	updated_at        = $7
WHERE domain = $1
RETURNING domain, enabled, interval_seconds, cache_ttl_seconds,
	logging_enabled, last_modified_by, updated_at`
)

// SettingsStore manages the per-domain settings singletons. The domain
// column is the primary key, so concurrent creators converge on one row and
// every write targets the same identity.
type SettingsStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewSettingsStore(pool *pgxpool.Pool, log logger.Logger) *SettingsStore {
	return &SettingsStore{pool: pool, logger: log}
}

// Get returns the settings row for domain, creating it with defaults when
// absent. The insert uses ON CONFLICT DO NOTHING, so racing creators all end
// up reading the single surviving row.
func (s *SettingsStore) Get(ctx context.Context, domain models.MetricDomain) (*models.DomainSettings, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDomain, domain)
	}

	defaults := models.DefaultDomainSettings(domain)

	_, err := s.pool.Exec(ctx, insertDefaultSettingsSQL,
		string(domain),
		defaults.Enabled,
		defaults.IntervalSeconds,
		defaults.CacheTTLSeconds,
		defaults.LoggingEnabled,
		defaults.LastModifiedBy,
		nowUTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w settings for %s: %w", ErrFailedToInsert, domain, err)
	}

	return s.scanSettings(s.pool.QueryRow(ctx, selectSettingsSQL, string(domain)))
}

// Update validates and applies a partial settings mutation in one UPDATE
// statement, so readers never observe a half-applied record.
func (s *SettingsStore) Update(
	ctx context.Context, domain models.MetricDomain, update *models.SettingsUpdate,
) (*models.DomainSettings, error) {
	if err := update.Validate(domain); err != nil {
		return nil, err
	}

	// Make sure the singleton exists before updating it.
	if _, err := s.Get(ctx, domain); err != nil {
		return nil, err
	}

	var modifiedBy *string
	if update.ModifiedBy != "" {
		modifiedBy = &update.ModifiedBy
	}

	settings, err := s.scanSettings(s.pool.QueryRow(ctx, updateSettingsSQL,
		string(domain),
		update.Enabled,
		update.IntervalSeconds,
		update.CacheTTLSeconds,
		update.LoggingEnabled,
		modifiedBy,
		nowUTC(),
	))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("domain", string(domain)).
		Str("modified_by", settings.LastModifiedBy).
		Float64("interval_seconds", settings.IntervalSeconds).
		Bool("enabled", settings.Enabled).
		Msg("domain settings updated")

	return settings, nil
}

// Delete is deliberately a no-op: the settings row is a singleton that is
// never physically removed.
func (*SettingsStore) Delete(_ context.Context, _ models.MetricDomain) error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SettingsStore) scanSettings(row rowScanner) (*models.DomainSettings, error) {
	var (
		settings models.DomainSettings
		domain   string
	)

	err := row.Scan(
		&domain,
		&settings.Enabled,
		&settings.IntervalSeconds,
		&settings.CacheTTLSeconds,
		&settings.LoggingEnabled,
		&settings.LastModifiedBy,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w domain settings: %w", ErrFailedToScan, err)
	}

	settings.Domain = models.MetricDomain(domain)

	return &settings, nil
}
