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
	"strconv"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// Engine filters, groups, and ranks live connection snapshots.
type Engine struct {
	source LiveSource
	logger logger.Logger
}

func NewEngine(source LiveSource, log logger.Logger) *Engine {
	return &Engine{source: source, logger: log}
}

// matcher tests one connection record against the query. A nil matcher (bad
// numeric input for pid/port) means zero matches, not an error.
type matcher func(*models.ConnectionRecord) bool

func buildMatcher(kind models.SearchKind, value string) (matcher, error) {
	switch kind {
	case models.SearchByPID:
		pid, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, nil
		}

		return func(r *models.ConnectionRecord) bool {
			return r.PID == int32(pid)
		}, nil

	case models.SearchByPort:
		port, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, nil
		}

		return func(r *models.ConnectionRecord) bool {
			return r.LocalPort == uint32(port) || r.RemotePort == uint32(port)
		}, nil

	case models.SearchByIP:
		return func(r *models.ConnectionRecord) bool {
			return r.LocalAddr == value || r.RemoteAddr == value
		}, nil

	default:
		return nil, fmt.Errorf("unsupported search kind: %q", kind)
	}
}

// Search enumerates the live connection table once and accumulates every
// match into the flat list, the distinct sets, the per-PID detail map
// (resource usage fetched once per distinct PID, not once per connection),
// and the per-port aggregates ranked by connection count.
func (e *Engine) Search(ctx context.Context, kind models.SearchKind, value string) (*models.SearchResult, error) {
	match, err := buildMatcher(kind, value)
	if err != nil {
		return nil, err
	}

	result := &models.SearchResult{
		Kind:            kind,
		Value:           value,
		Connections:     []models.ConnectionRecord{},
		UniqueProcesses: []string{},
		UniquePorts:     []uint32{},
		UniqueIPs:       []string{},
		ProcessDetails:  map[int32]models.ProcessDetails{},
		PortDetails:     []models.PortDetail{},
	}

	if match == nil {
		return result, nil
	}

	connections, err := e.source.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	processes := make(map[string]struct{})
	ports := make(map[uint32]struct{})
	ips := make(map[string]struct{})

	type portAgg struct {
		count     int
		processes map[string]struct{}
	}

	portAggs := make(map[uint32]*portAgg)

	addPort := func(port uint32, processName string) {
		if port == 0 {
			return
		}

		ports[port] = struct{}{}

		agg, ok := portAggs[port]
		if !ok {
			agg = &portAgg{processes: make(map[string]struct{})}
			portAggs[port] = agg
		}

		agg.count++

		if processName != "" {
			agg.processes[processName] = struct{}{}
		}
	}

	for i := range connections {
		record := &connections[i]
		if !match(record) {
			continue
		}

		result.Connections = append(result.Connections, *record)

		if record.ProcessName != "" {
			processes[record.ProcessName] = struct{}{}
		}

		if record.LocalAddr != "" {
			ips[record.LocalAddr] = struct{}{}
		}

		if record.RemoteAddr != "" {
			ips[record.RemoteAddr] = struct{}{}
		}

		addPort(record.LocalPort, record.ProcessName)
		addPort(record.RemotePort, record.ProcessName)

		if record.PID > 0 {
			if _, seen := result.ProcessDetails[record.PID]; !seen {
				result.ProcessDetails[record.PID] = *e.source.ProcessInfo(ctx, record.PID)
			}
		}
	}

	result.UniqueProcesses = sortedStrings(processes)
	result.UniqueIPs = sortedStrings(ips)
	result.UniquePorts = sortedPorts(ports)

	for port, agg := range portAggs {
		result.PortDetails = append(result.PortDetails, models.PortDetail{
			Port:            port,
			ConnectionCount: agg.count,
			Processes:       sortedStrings(agg.processes),
		})
	}

	sort.Slice(result.PortDetails, func(i, j int) bool {
		if result.PortDetails[i].ConnectionCount != result.PortDetails[j].ConnectionCount {
			return result.PortDetails[i].ConnectionCount > result.PortDetails[j].ConnectionCount
		}

		return result.PortDetails[i].Port < result.PortDetails[j].Port
	})

	return result, nil
}

func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}

	sort.Strings(out)

	return out
}

func sortedPorts(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for port := range set {
		out = append(out, port)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
