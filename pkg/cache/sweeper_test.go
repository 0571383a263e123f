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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

type countingDurable struct {
	sweeps atomic.Int64
}

func (c *countingDurable) Put(context.Context, *models.Snapshot, time.Duration) error {
	return nil
}

func (c *countingDurable) Get(context.Context, models.MetricDomain) (*models.Snapshot, bool, error) {
	return nil, false, nil
}

func (c *countingDurable) Sweep(context.Context) (int64, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func TestSweeperRunsUntilStopped(t *testing.T) {
	durable := &countingDurable{}
	sweeper := NewSweeper(durable, time.Millisecond, logger.NewTestLogger())

	done := make(chan struct{})

	go func() {
		sweeper.Run(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return durable.sweeps.Load() >= 2
	}, time.Second, time.Millisecond)

	sweeper.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(&countingDurable{}, time.Hour, logger.NewTestLogger())

	done := make(chan struct{})

	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
