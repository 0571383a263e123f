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

// Package telemetry drives the collect/cache/broadcast pipeline: one
// scheduler goroutine per metric domain, a fingerprinting broadcaster as
// the single fan-out point, and the synchronous read-path resolver.
package telemetry

import (
	"context"
	"time"

	"github.com/hostbeat/hostbeat/pkg/cache"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// Collector produces one normalized snapshot for its metric domain. It may
// block on OS I/O and must be safe to call repeatedly and concurrently
// across different domains.
type Collector interface {
	Domain() models.MetricDomain
	Collect(ctx context.Context) (*models.Snapshot, error)
}

// SettingsSource yields the current settings record for a domain. The
// scheduler re-reads it on every tick so interval and enabled changes take
// effect without a restart.
type SettingsSource interface {
	Get(ctx context.Context, domain models.MetricDomain) (*models.DomainSettings, error)
}

// SnapshotCache is the slice of the two-tier cache the pipeline uses.
type SnapshotCache interface {
	Put(ctx context.Context, snapshot *models.Snapshot, ttl time.Duration) error
	Get(ctx context.Context, domain models.MetricDomain) (*models.Snapshot, cache.Source, error)
}

// Subscriber receives broadcast snapshots for the domains it is interested
// in. Send must not block indefinitely; a subscriber whose send fails is
// dropped from the domain's subscriber set.
type Subscriber interface {
	ID() string
	Send(snapshot *models.Snapshot) error
}

// Clock abstracts time-related operations so scheduler tests never sleep.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
