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

// Package cache implements the two-tier snapshot cache: a volatile fast
// tier in a key-value store and a durable tier in Postgres.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hostbeat/hostbeat/pkg/kv"
	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// DurableTier is the slice of the Postgres snapshot store the cache needs.
type DurableTier interface {
	Put(ctx context.Context, snapshot *models.Snapshot, ttl time.Duration) error
	Get(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, bool, error)
	Sweep(ctx context.Context) (int64, error)
}

// Source reports which tier served a cache read.
type Source string

const (
	SourceFast    Source = "fast"
	SourceDurable Source = "durable"
	SourceNone    Source = "none"
)

// TwoTier composes the fast and durable tiers behind one put/get surface.
type TwoTier struct {
	fast    kv.Store
	durable DurableTier
	logger  logger.Logger
}

func NewTwoTier(fast kv.Store, durable DurableTier, log logger.Logger) *TwoTier {
	return &TwoTier{fast: fast, durable: durable, logger: log}
}

func fastKey(domain models.MetricDomain) string {
	return "snapshot." + string(domain)
}

// Put writes the snapshot to the fast tier and, best-effort, to the durable
// tier. A durable-tier failure is logged and swallowed so it never fails the
// fast-tier write or the caller.
func (c *TwoTier) Put(ctx context.Context, snapshot *models.Snapshot, ttl time.Duration) error {
	entry := models.CacheEntry{
		Domain:    snapshot.Domain,
		Snapshot:  snapshot,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	payload, err := json.Marshal(&entry)
	if err != nil {
		return err
	}

	if err := c.fast.Put(ctx, fastKey(snapshot.Domain), payload, ttl); err != nil {
		return err
	}

	if err := c.durable.Put(ctx, snapshot, ttl); err != nil {
		c.logger.Warn().
			Err(err).
			Str("domain", string(snapshot.Domain)).
			Msg("durable cache write failed; fast tier still updated")
	}

	return nil
}

// Get checks the fast tier first, then the durable tier. A durable hit is
// not re-promoted into the fast tier; only scheduler writes and explicit
// warms populate it. Absent from both tiers is a legitimate state reported
// as SourceNone with no error.
func (c *TwoTier) Get(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, Source, error) {
	if snapshot, ok := c.getFast(ctx, domain); ok {
		return snapshot, SourceFast, nil
	}

	snapshot, found, err := c.durable.Get(ctx, domain)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("domain", string(domain)).
			Msg("durable cache read failed; treating as miss")

		return nil, SourceNone, nil
	}

	if !found {
		return nil, SourceNone, nil
	}

	return snapshot, SourceDurable, nil
}

func (c *TwoTier) getFast(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, bool) {
	payload, found, err := c.fast.Get(ctx, fastKey(domain))
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("domain", string(domain)).
			Msg("fast cache read failed; falling back to durable tier")

		return nil, false
	}

	if !found {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.logger.Warn().
			Err(err).
			Str("domain", string(domain)).
			Msg("fast cache entry corrupt; falling back to durable tier")

		return nil, false
	}

	// The entry carries its own expiry: backends with bucket-level TTL
	// (NATS KV) cannot expire per key, so the deadline is checked here.
	if entry.Expired(time.Now().UTC()) {
		return nil, false
	}

	return entry.Snapshot, true
}
