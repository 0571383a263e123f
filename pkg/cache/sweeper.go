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

package cache

import (
	"context"
	"time"

	"github.com/hostbeat/hostbeat/pkg/logger"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically deletes expired durable-tier rows. The durable tier
// has no storage-engine TTL, so this pass bounds its growth.
type Sweeper struct {
	durable  DurableTier
	interval time.Duration
	logger   logger.Logger
	done     chan struct{}
}

func NewSweeper(durable DurableTier, interval time.Duration, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Sweeper{
		durable:  durable,
		interval: interval,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Run blocks until ctx is canceled or Stop is called, sweeping once per
// interval. Sweep failures are logged and retried on the next interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.durable.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("durable cache sweep failed")
			}
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.done)
}
