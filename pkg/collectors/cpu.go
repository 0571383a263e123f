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
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/hostbeat/hostbeat/pkg/models"
)

var (
	cpuPercentWithContext = cpu.PercentWithContext
	cpuCountsWithContext  = cpu.CountsWithContext
	loadAvgWithContext    = load.AvgWithContext
)

// CPUCollector snapshots aggregate and per-core CPU utilization plus load
// averages.
type CPUCollector struct{}

func NewCPUCollector() *CPUCollector {
	return &CPUCollector{}
}

func (*CPUCollector) Domain() models.MetricDomain {
	return models.DomainCPU
}

func (*CPUCollector) Collect(ctx context.Context) (*models.Snapshot, error) {
	total, err := cpuPercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	perCore, err := cpuPercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read per-core cpu usage: %w", err)
	}

	cores, err := cpuCountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count logical cores: %w", err)
	}

	snapshot := models.CPUSnapshot{
		LogicalCores:   cores,
		PerCorePercent: roundPercents(perCore),
	}

	if len(total) > 0 {
		snapshot.UsagePercent = roundPercent(total[0])
	}

	// Load averages are unavailable on some platforms; degrade to zeros
	// rather than failing the whole snapshot.
	if avg, err := loadAvgWithContext(ctx); err == nil && avg != nil {
		snapshot.Load1 = avg.Load1
		snapshot.Load5 = avg.Load5
		snapshot.Load15 = avg.Load15
	}

	return models.NewSnapshot(models.DomainCPU, nowFunc(), &snapshot)
}

// roundPercent trims usage values to one decimal. Raw gopsutil percentages
// carry float noise that would defeat fingerprint-based change detection.
func roundPercent(v float64) float64 {
	return math.Round(v*10) / 10
}

func roundPercents(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = roundPercent(v)
	}

	return out
}
