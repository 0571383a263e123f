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
	"sort"
	"time"

	"github.com/hostbeat/hostbeat/pkg/models"
)

const defaultPortsLimit = 20

// nowFunc lets tests pin snapshot timestamps.
var nowFunc = time.Now

// PortsCollector snapshots the most used listening ports, bounded by a
// configurable result limit.
type PortsCollector struct {
	limit int
}

func NewPortsCollector(limit int) *PortsCollector {
	if limit <= 0 {
		limit = defaultPortsLimit
	}

	return &PortsCollector{limit: limit}
}

func (*PortsCollector) Domain() models.MetricDomain {
	return models.DomainPorts
}

func (c *PortsCollector) Collect(ctx context.Context) (*models.Snapshot, error) {
	stats, err := connectionsWithContext(ctx, "all")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate connections: %w", err)
	}

	type portAgg struct {
		protocol  string
		count     int
		processes map[string]struct{}
	}

	listeners := make(map[uint32]*portAgg)
	counts := make(map[uint32]int)
	names := make(map[int32]string)

	for i := range stats {
		stat := &stats[i]

		if stat.Laddr.Port == 0 {
			continue
		}

		counts[stat.Laddr.Port]++

		if stat.Status != "LISTEN" {
			continue
		}

		agg, ok := listeners[stat.Laddr.Port]
		if !ok {
			agg = &portAgg{
				protocol:  protocolName(stat.Family, stat.Type),
				processes: make(map[string]struct{}),
			}
			listeners[stat.Laddr.Port] = agg
		}

		if stat.Pid > 0 {
			if name := processName(ctx, stat.Pid, names); name != "" {
				agg.processes[name] = struct{}{}
			}
		}
	}

	ports := make([]models.PortUsage, 0, len(listeners))

	for port, agg := range listeners {
		ports = append(ports, models.PortUsage{
			Port:            port,
			Protocol:        agg.protocol,
			ConnectionCount: counts[port],
			Processes:       sortedKeys(agg.processes),
		})
	}

	// Most used first; ties break on port number for a stable encoding.
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].ConnectionCount != ports[j].ConnectionCount {
			return ports[i].ConnectionCount > ports[j].ConnectionCount
		}

		return ports[i].Port < ports[j].Port
	})

	if len(ports) > c.limit {
		ports = ports[:c.limit]
	}

	snapshot := models.PortsSnapshot{
		Limit: c.limit,
		Ports: ports,
	}

	return models.NewSnapshot(models.DomainPorts, nowFunc(), &snapshot)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
