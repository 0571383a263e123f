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

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hostbeat/hostbeat/pkg/models"
)

var (
	virtualMemoryWithContext = mem.VirtualMemoryWithContext
	swapMemoryWithContext    = mem.SwapMemoryWithContext
)

// MemoryCollector snapshots physical and swap memory usage.
type MemoryCollector struct{}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

func (*MemoryCollector) Domain() models.MetricDomain {
	return models.DomainMemory
}

func (*MemoryCollector) Collect(ctx context.Context) (*models.Snapshot, error) {
	vm, err := virtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}

	snapshot := models.MemorySnapshot{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		UsagePercent:   roundPercent(vm.UsedPercent),
	}

	if swap, err := swapMemoryWithContext(ctx); err == nil && swap != nil {
		snapshot.SwapTotalBytes = swap.Total
		snapshot.SwapUsedBytes = swap.Used
	}

	return models.NewSnapshot(models.DomainMemory, nowFunc(), &snapshot)
}
