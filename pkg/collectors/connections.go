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

// Package collectors provides the per-domain gopsutil-backed collectors
// feeding the telemetry pipeline. Every collector sorts its output so the
// snapshot encoding is stable across runs, which the broadcaster's
// change-detection fingerprint depends on.
package collectors

import (
	"context"
	"fmt"
	"sort"
	"syscall"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hostbeat/hostbeat/pkg/models"
)

// Function hooks so tests can stub OS enumeration.
var (
	connectionsWithContext = gopsnet.ConnectionsWithContext
	newProcessWithContext  = process.NewProcessWithContext
)

// ConnectionsCollector snapshots the live socket table with owning process
// names.
type ConnectionsCollector struct{}

func NewConnectionsCollector() *ConnectionsCollector {
	return &ConnectionsCollector{}
}

func (*ConnectionsCollector) Domain() models.MetricDomain {
	return models.DomainConnections
}

func (*ConnectionsCollector) Collect(ctx context.Context) (*models.Snapshot, error) {
	records, err := ListConnectionRecords(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]int)

	for i := range records {
		if records[i].Status != "" {
			byStatus[records[i].Status]++
		}
	}

	snapshot := models.ConnectionsSnapshot{
		Total:       len(records),
		ByStatus:    byStatus,
		Connections: records,
	}

	return models.NewSnapshot(models.DomainConnections, nowFunc(), &snapshot)
}

// ListConnectionRecords enumerates the live socket table once and returns
// normalized, sorted records with owning process names attached. The search
// engine shares this boundary so its results reflect the instant they were
// requested.
func ListConnectionRecords(ctx context.Context) ([]models.ConnectionRecord, error) {
	stats, err := connectionsWithContext(ctx, "all")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate connections: %w", err)
	}

	records := make([]models.ConnectionRecord, 0, len(stats))
	names := make(map[int32]string)

	for i := range stats {
		records = append(records, recordFromStat(ctx, &stats[i], names))
	}

	sortConnectionRecords(records)

	return records, nil
}

// recordFromStat converts one gopsutil connection, resolving the owning
// process name at most once per PID per collection pass.
func recordFromStat(ctx context.Context, stat *gopsnet.ConnectionStat, names map[int32]string) models.ConnectionRecord {
	record := models.ConnectionRecord{
		PID:        stat.Pid,
		Protocol:   protocolName(stat.Family, stat.Type),
		LocalAddr:  stat.Laddr.IP,
		LocalPort:  stat.Laddr.Port,
		RemoteAddr: stat.Raddr.IP,
		RemotePort: stat.Raddr.Port,
		Status:     stat.Status,
	}

	if stat.Pid > 0 {
		record.ProcessName = processName(ctx, stat.Pid, names)
	}

	return record
}

// processName resolves and memoizes the name for pid. A process that
// vanished between socket enumeration and lookup yields an empty name, not
// an error.
func processName(ctx context.Context, pid int32, names map[int32]string) string {
	if name, ok := names[pid]; ok {
		return name
	}

	name := ""

	if proc, err := newProcessWithContext(ctx, pid); err == nil {
		if n, err := proc.NameWithContext(ctx); err == nil {
			name = n
		}
	}

	names[pid] = name

	return name
}

func sortConnectionRecords(records []models.ConnectionRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := &records[i], &records[j]

		if a.PID != b.PID {
			return a.PID < b.PID
		}

		if a.LocalPort != b.LocalPort {
			return a.LocalPort < b.LocalPort
		}

		if a.RemoteAddr != b.RemoteAddr {
			return a.RemoteAddr < b.RemoteAddr
		}

		return a.RemotePort < b.RemotePort
	})
}

// protocolName maps a socket family/type pair onto the usual name.
func protocolName(family, sockType uint32) string {
	proto := "raw"

	switch sockType {
	case syscall.SOCK_STREAM:
		proto = "tcp"
	case syscall.SOCK_DGRAM:
		proto = "udp"
	}

	if family == syscall.AF_INET6 {
		proto += "6"
	}

	if family == syscall.AF_UNIX {
		return "unix"
	}

	return proto
}
