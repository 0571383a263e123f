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

package netquery

import (
	"context"
	"fmt"
	"sort"

	"github.com/hostbeat/hostbeat/pkg/models"
)

// GroupByPID groups a raw connection list by owning PID, attaching resource
// stats once per PID and counting per-protocol and per-status occurrences.
// Groups come back sorted descending by total connection count. This is an
// independent view over the raw data, not a transformation of a search
// result.
func (e *Engine) GroupByPID(ctx context.Context, connections []models.ConnectionRecord) []models.ProcessGroup {
	groups := make(map[int32]*models.ProcessGroup)

	for i := range connections {
		record := &connections[i]

		group, ok := groups[record.PID]
		if !ok {
			group = &models.ProcessGroup{
				PID:         record.PID,
				ProcessName: record.ProcessName,
				ByProtocol:  make(map[string]int),
				ByStatus:    make(map[string]int),
			}
			groups[record.PID] = group

			if record.PID > 0 {
				group.Details = e.source.ProcessInfo(ctx, record.PID)
			}
		}

		group.TotalConnections++
		group.Connections = append(group.Connections, *record)

		if record.Protocol != "" {
			group.ByProtocol[record.Protocol]++
		}

		if record.Status != "" {
			group.ByStatus[record.Status]++
		}

		if group.ProcessName == "" && record.ProcessName != "" {
			group.ProcessName = record.ProcessName
		}
	}

	out := make([]models.ProcessGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, *group)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalConnections != out[j].TotalConnections {
			return out[i].TotalConnections > out[j].TotalConnections
		}

		return out[i].PID < out[j].PID
	})

	return out
}

// GroupLive enumerates the current socket table and groups it by PID.
func (e *Engine) GroupLive(ctx context.Context) ([]models.ProcessGroup, error) {
	connections, err := e.source.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	return e.GroupByPID(ctx, connections), nil
}
