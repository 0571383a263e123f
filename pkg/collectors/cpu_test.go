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

package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/models"
)

func stubCPU(t *testing.T, total, perCore []float64, cores int, avg *load.AvgStat) {
	t.Helper()

	origPercent := cpuPercentWithContext
	origCounts := cpuCountsWithContext
	origLoad := loadAvgWithContext

	cpuPercentWithContext = func(_ context.Context, _ time.Duration, percpu bool) ([]float64, error) {
		if percpu {
			return perCore, nil
		}

		return total, nil
	}
	cpuCountsWithContext = func(context.Context, bool) (int, error) {
		return cores, nil
	}
	loadAvgWithContext = func(context.Context) (*load.AvgStat, error) {
		if avg == nil {
			return nil, errors.New("load averages unavailable")
		}

		return avg, nil
	}

	t.Cleanup(func() {
		cpuPercentWithContext = origPercent
		cpuCountsWithContext = origCounts
		loadAvgWithContext = origLoad
	})
}

func TestCPUCollectorSnapshot(t *testing.T) {
	stubCPU(t,
		[]float64{42.34567},
		[]float64{40.11, 44.58},
		2,
		&load.AvgStat{Load1: 1.5, Load5: 1.2, Load15: 0.9})

	collector := NewCPUCollector()
	assert.Equal(t, models.DomainCPU, collector.Domain())

	snapshot, err := collector.Collect(context.Background())
	require.NoError(t, err)

	var payload models.CPUSnapshot
	require.NoError(t, json.Unmarshal(snapshot.Data, &payload))

	// Percentages are trimmed to one decimal so float noise does not defeat
	// change detection.
	assert.InDelta(t, 42.3, payload.UsagePercent, 0.001)
	assert.Equal(t, []float64{40.1, 44.6}, payload.PerCorePercent)
	assert.Equal(t, 2, payload.LogicalCores)
	assert.InDelta(t, 1.5, payload.Load1, 0.001)
}

func TestCPUCollectorDegradesWithoutLoadAverages(t *testing.T) {
	stubCPU(t, []float64{10}, []float64{10}, 1, nil)

	snapshot, err := NewCPUCollector().Collect(context.Background())
	require.NoError(t, err)

	var payload models.CPUSnapshot
	require.NoError(t, json.Unmarshal(snapshot.Data, &payload))

	assert.Zero(t, payload.Load1)
	assert.Zero(t, payload.Load5)
	assert.Zero(t, payload.Load15)
}

func TestCPUCollectorUsageFailure(t *testing.T) {
	orig := cpuPercentWithContext
	cpuPercentWithContext = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, errors.New("proc stat unreadable")
	}

	t.Cleanup(func() { cpuPercentWithContext = orig })

	_, err := NewCPUCollector().Collect(context.Background())
	require.Error(t, err)
}

func TestRoundPercent(t *testing.T) {
	assert.InDelta(t, 42.3, roundPercent(42.34999), 0.0001)
	assert.InDelta(t, 42.4, roundPercent(42.35001), 0.0001)
	assert.InDelta(t, 0.0, roundPercent(0), 0.0001)
	assert.InDelta(t, 100.0, roundPercent(99.96), 0.0001)
}
