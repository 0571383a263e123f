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

package telemetry

import (
	"context"
	"fmt"

	"github.com/hostbeat/hostbeat/pkg/cache"
	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// Resolver serves synchronous (non-push) snapshot requests: fast tier, then
// durable tier, then a live collector call that warms both tiers for the
// next caller. It never returns nothing, but a cold cache costs full
// collector latency.
type Resolver struct {
	registry *Registry
	settings SettingsSource
	cache    SnapshotCache
	logger   logger.Logger
}

func NewResolver(registry *Registry, settings SettingsSource, snapshotCache SnapshotCache, log logger.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		settings: settings,
		cache:    snapshotCache,
		logger:   log,
	}
}

// Resolve returns the freshest available snapshot for domain.
func (r *Resolver) Resolve(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, error) {
	collector, ok := r.registry.Collector(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDomain, domain)
	}

	snapshot, source, err := r.cache.Get(ctx, domain)
	if err != nil {
		return nil, err
	}

	if source != cache.SourceNone {
		r.logger.Debug().
			Str("domain", string(domain)).
			Str("source", string(source)).
			Msg("resolved snapshot from cache")

		return snapshot, nil
	}

	// Cold cache: collect live and warm both tiers before returning.
	snapshot, err = collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("live collection for %s failed: %w", domain, err)
	}

	ttl := models.DefaultDomainSettings(domain).CacheTTL()
	if settings, serr := r.settings.Get(ctx, domain); serr == nil {
		ttl = settings.CacheTTL()
	}

	if err := r.cache.Put(ctx, snapshot, ttl); err != nil {
		r.logger.Warn().
			Err(err).
			Str("domain", string(domain)).
			Msg("failed to warm cache after live collection")
	}

	return snapshot, nil
}
