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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostbeat/hostbeat/pkg/logger"
)

const (
	createSettingsTableSQL = `
CREATE TABLE IF NOT EXISTS domain_settings (
	domain            TEXT PRIMARY KEY,
	enabled           BOOLEAN NOT NULL,
	interval_seconds  DOUBLE PRECISION NOT NULL,
	cache_ttl_seconds INTEGER NOT NULL,
	logging_enabled   BOOLEAN NOT NULL,
	last_modified_by  TEXT NOT NULL DEFAULT 'system',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	createSnapshotCacheTableSQL = `
CREATE TABLE IF NOT EXISTS snapshot_cache (
	domain      TEXT PRIMARY KEY,
	captured_at TIMESTAMPTZ NOT NULL,
	snapshot    JSONB NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
)`

	createSnapshotCacheExpiryIndexSQL = `
CREATE INDEX IF NOT EXISTS snapshot_cache_expires_at_idx
	ON snapshot_cache (expires_at)`
)

// RunMigrations creates the schema the stores depend on. Statements are
// idempotent; running them on every startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	statements := []string{
		createSettingsTableSQL,
		createSnapshotCacheTableSQL,
		createSnapshotCacheExpiryIndexSQL,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToInit, err)
		}
	}

	if log != nil {
		log.Debug().Msg("database schema ready")
	}

	return nil
}
