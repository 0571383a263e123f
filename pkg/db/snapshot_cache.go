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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

const (
	upsertSnapshotSQL = `
INSERT INTO snapshot_cache (domain, captured_at, snapshot, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (domain) DO UPDATE SET
	captured_at = EXCLUDED.captured_at,
	snapshot    = EXCLUDED.snapshot,
	expires_at  = EXCLUDED.expires_at`

	selectSnapshotSQL = `
SELECT captured_at, snapshot, expires_at
FROM snapshot_cache
WHERE domain = $1 AND expires_at > $2`

	deleteExpiredSnapshotsSQL = `
DELETE FROM snapshot_cache WHERE expires_at <= $1`
)

// SnapshotStore is the durable cache tier. Rows live past fast-tier loss
// and are evicted only by the periodic TTL sweep, because Postgres enforces
// no TTL of its own.
type SnapshotStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewSnapshotStore(pool *pgxpool.Pool, log logger.Logger) *SnapshotStore {
	return &SnapshotStore{pool: pool, logger: log}
}

// Put upserts the snapshot for its domain; writes are last-writer-wins.
func (s *SnapshotStore) Put(ctx context.Context, snapshot *models.Snapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", snapshot.Domain, err)
	}

	expiresAt := nowUTC().Add(ttl)

	_, err = s.pool.Exec(ctx, upsertSnapshotSQL,
		string(snapshot.Domain), snapshot.CapturedAt, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("%w snapshot for %s: %w", ErrFailedToInsert, snapshot.Domain, err)
	}

	return nil
}

// Get returns the non-expired snapshot for domain. A miss (no row, or row
// past its expiry) is reported via the boolean, not an error.
func (s *SnapshotStore) Get(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, bool, error) {
	var (
		capturedAt time.Time
		payload    []byte
		expiresAt  time.Time
	)

	err := s.pool.QueryRow(ctx, selectSnapshotSQL, string(domain), nowUTC()).
		Scan(&capturedAt, &payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w snapshot for %s: %w", ErrFailedToQuery, domain, err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, false, fmt.Errorf("%w snapshot for %s: %w", ErrFailedToScan, domain, err)
	}

	return &snapshot, true, nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SnapshotStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpiredSnapshotsSQL, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToSweep, err)
	}

	removed := tag.RowsAffected()
	if removed > 0 {
		s.logger.Debug().Int64("removed", removed).Msg("swept expired snapshot cache rows")
	}

	return removed, nil
}
