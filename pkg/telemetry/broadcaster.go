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
	"sync"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// BroadcastStats are per-domain delivery counters, exposed on the health
// endpoint.
type BroadcastStats struct {
	Published  uint64 `json:"published"`
	Suppressed uint64 `json:"suppressed"`
	Dropped    uint64 `json:"dropped_subscribers"`
}

// Broadcaster is the single fan-out point between the N domain schedulers
// and the M subscriber sessions. It suppresses snapshots whose fingerprint
// matches the last one sent on the same domain.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[models.MetricDomain]map[string]Subscriber
	lastSent    map[models.MetricDomain]string
	stats       map[models.MetricDomain]*BroadcastStats
	logger      logger.Logger
}

func NewBroadcaster(log logger.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[models.MetricDomain]map[string]Subscriber),
		lastSent:    make(map[models.MetricDomain]string),
		stats:       make(map[models.MetricDomain]*BroadcastStats),
		logger:      log,
	}
}

// Subscribe registers sub for snapshots of domain.
func (b *Broadcaster) Subscribe(domain models.MetricDomain, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subscribers[domain]
	if !ok {
		set = make(map[string]Subscriber)
		b.subscribers[domain] = set
	}

	set[sub.ID()] = sub
}

// Unsubscribe removes the subscriber with id from one domain's set.
func (b *Broadcaster) Unsubscribe(domain models.MetricDomain, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers[domain], id)
}

// UnsubscribeAll removes the subscriber with id from every domain's set.
// Sessions call this during teardown, after their task has stopped, so no
// publish can race a send to a dead session.
func (b *Broadcaster) UnsubscribeAll(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, set := range b.subscribers {
		delete(set, id)
	}
}

// Subscribers returns the ids subscribed to domain.
func (b *Broadcaster) Subscribers(domain models.MetricDomain) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.subscribers[domain]))
	for id := range b.subscribers[domain] {
		ids = append(ids, id)
	}

	return ids
}

// Publish delivers snapshot to every subscriber of its domain, unless its
// fingerprint matches the last snapshot sent on that domain. Delivery
// errors are isolated per subscriber; a failed subscriber is dropped from
// the domain's set rather than stalling the broadcast.
func (b *Broadcaster) Publish(snapshot *models.Snapshot) {
	domain := snapshot.Domain
	fingerprint := Fingerprint(snapshot)

	b.mu.Lock()

	stats := b.statsLocked(domain)

	if b.lastSent[domain] == fingerprint {
		stats.Suppressed++
		b.mu.Unlock()

		return
	}

	b.lastSent[domain] = fingerprint
	stats.Published++

	targets := make([]Subscriber, 0, len(b.subscribers[domain]))
	for _, sub := range b.subscribers[domain] {
		targets = append(targets, sub)
	}

	b.mu.Unlock()

	var failed []string

	for _, sub := range targets {
		if err := sub.Send(snapshot); err != nil {
			b.logger.Warn().
				Err(err).
				Str("domain", string(domain)).
				Str("subscriber", sub.ID()).
				Msg("dropping subscriber after failed delivery")

			failed = append(failed, sub.ID())
		}
	}

	if len(failed) == 0 {
		return
	}

	b.mu.Lock()
	for _, id := range failed {
		delete(b.subscribers[domain], id)
		b.statsLocked(domain).Dropped++
	}
	b.mu.Unlock()
}

// Stats returns a copy of the per-domain delivery counters.
func (b *Broadcaster) Stats() map[models.MetricDomain]BroadcastStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[models.MetricDomain]BroadcastStats, len(b.stats))
	for domain, s := range b.stats {
		out[domain] = *s
	}

	return out
}

func (b *Broadcaster) statsLocked(domain models.MetricDomain) *BroadcastStats {
	s, ok := b.stats[domain]
	if !ok {
		s = &BroadcastStats{}
		b.stats[domain] = s
	}

	return s
}
