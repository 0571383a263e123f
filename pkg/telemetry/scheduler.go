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
	"sync"
	"time"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// DomainHealth is the scheduler's view of one domain's recent collection
// outcomes.
type DomainHealth struct {
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// Scheduler runs one long-lived timer goroutine per registered domain. Each
// tick re-reads the domain's settings, so interval and enabled changes take
// effect on the next cycle without restarting anything.
type Scheduler struct {
	registry    *Registry
	settings    SettingsSource
	cache       SnapshotCache
	broadcaster *Broadcaster
	clock       Clock
	logger      logger.Logger

	healthMu sync.RWMutex
	health   map[models.MetricDomain]*DomainHealth

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewScheduler(
	registry *Registry,
	settings SettingsSource,
	snapshotCache SnapshotCache,
	broadcaster *Broadcaster,
	clock Clock,
	log logger.Logger,
) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}

	return &Scheduler{
		registry:    registry,
		settings:    settings,
		cache:       snapshotCache,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      log,
		health:      make(map[models.MetricDomain]*DomainHealth),
		done:        make(chan struct{}),
	}
}

// Start launches one collection loop per registered domain and returns. The
// loops run until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for _, domain := range s.registry.Domains() {
		collector, _ := s.registry.Collector(domain)

		s.wg.Add(1)

		go func(domain models.MetricDomain, collector Collector) {
			defer s.wg.Done()
			s.runDomain(ctx, domain, collector)
		}(domain, collector)
	}
}

// Stop halts all domain loops and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()
}

// Health returns a copy of each domain's collection health.
func (s *Scheduler) Health() map[models.MetricDomain]DomainHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	out := make(map[models.MetricDomain]DomainHealth, len(s.health))
	for domain, h := range s.health {
		out[domain] = *h
	}

	return out
}

func (s *Scheduler) runDomain(ctx context.Context, domain models.MetricDomain, collector Collector) {
	log := s.logger.WithComponent("scheduler")

	interval := s.currentInterval(ctx, domain)
	ticker := s.clock.Ticker(interval)

	defer ticker.Stop()

	log.Info().
		Str("domain", string(domain)).
		Dur("interval", interval).
		Msg("starting domain collection loop")

	// Collect once at startup so subscribers and the read path have data
	// before the first full interval elapses.
	s.tick(ctx, domain, collector)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.Chan():
			s.tick(ctx, domain, collector)

			// Re-arm with the current interval so settings changes take
			// effect on the next cycle.
			if next := s.currentInterval(ctx, domain); next != interval {
				ticker.Stop()
				ticker = s.clock.Ticker(next)
				interval = next

				log.Info().
					Str("domain", string(domain)).
					Dur("interval", next).
					Msg("collection interval updated")
			}
		}
	}
}

// tick performs one scheduled cycle: settings gate, collect, cache both
// tiers, broadcast. Every failure mode is transient; the previous cache
// contents keep serving and the next tick retries naturally.
func (s *Scheduler) tick(ctx context.Context, domain models.MetricDomain, collector Collector) {
	settings, err := s.settings.Get(ctx, domain)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("domain", string(domain)).
			Msg("failed to read settings; skipping tick")

		return
	}

	if !settings.Enabled {
		// Deliberate short-circuit: no collector call, no cache write, no
		// broadcast.
		return
	}

	snapshot, err := collector.Collect(ctx)
	if err != nil {
		s.recordError(domain, err)
		s.logger.Error().
			Err(err).
			Str("domain", string(domain)).
			Msg("collector failed; previous cache contents remain valid")

		return
	}

	if settings.LoggingEnabled {
		s.logger.Info().
			Str("domain", string(domain)).
			Time("captured_at", snapshot.CapturedAt).
			Int("payload_bytes", len(snapshot.Data)).
			Msg("collected snapshot")
	}

	if err := s.cache.Put(ctx, snapshot, settings.CacheTTL()); err != nil {
		// Cache-tier failure surfaces as staleness, never as a crash; the
		// snapshot is still broadcast to live subscribers.
		s.logger.Error().
			Err(err).
			Str("domain", string(domain)).
			Msg("cache write failed")
	}

	s.recordSuccess(domain)
	s.broadcaster.Publish(snapshot)
}

func (s *Scheduler) currentInterval(ctx context.Context, domain models.MetricDomain) time.Duration {
	settings, err := s.settings.Get(ctx, domain)
	if err != nil {
		return models.DefaultDomainSettings(domain).Interval()
	}

	return settings.Interval()
}

func (s *Scheduler) recordSuccess(domain models.MetricDomain) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	s.healthLocked(domain).LastSuccess = s.clock.Now().UTC()
}

func (s *Scheduler) recordError(domain models.MetricDomain, err error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	h := s.healthLocked(domain)
	h.LastError = err.Error()
	h.LastErrorAt = s.clock.Now().UTC()
}

func (s *Scheduler) healthLocked(domain models.MetricDomain) *DomainHealth {
	h, ok := s.health[domain]
	if !ok {
		h = &DomainHealth{}
		s.health[domain] = h
	}

	return h
}
