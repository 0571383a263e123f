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

// Package netquery answers "show everything related to PID/port/IP X" over
// a live snapshot of network connections. Results are computed fresh per
// call, never cached: a search is defined to reflect the instant it was
// requested.
package netquery

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/hostbeat/hostbeat/pkg/collectors"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// LiveSource is the live-connection boundary the engine consumes.
type LiveSource interface {
	// ListConnections enumerates the current socket table.
	ListConnections(ctx context.Context) ([]models.ConnectionRecord, error)

	// ProcessInfo fetches resource usage for one PID. A process that
	// vanished between enumeration and lookup yields a degraded record,
	// not an error.
	ProcessInfo(ctx context.Context, pid int32) *models.ProcessDetails
}

var newProcessWithContext = process.NewProcessWithContext

// SystemSource implements LiveSource against the running host.
type SystemSource struct{}

func NewSystemSource() *SystemSource {
	return &SystemSource{}
}

func (*SystemSource) ListConnections(ctx context.Context) ([]models.ConnectionRecord, error) {
	return collectors.ListConnectionRecords(ctx)
}

func (*SystemSource) ProcessInfo(ctx context.Context, pid int32) *models.ProcessDetails {
	details := &models.ProcessDetails{PID: pid}

	proc, err := newProcessWithContext(ctx, pid)
	if err != nil {
		details.Degraded = true
		return details
	}

	if name, err := proc.NameWithContext(ctx); err == nil {
		details.Name = name
	} else {
		details.Degraded = true
	}

	if username, err := proc.UsernameWithContext(ctx); err == nil {
		details.Username = username
	}

	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		details.Cmdline = cmdline
	}

	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		details.CPUPercent = cpuPercent
	}

	if memPercent, err := proc.MemoryPercentWithContext(ctx); err == nil {
		details.MemoryPercent = memPercent
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		details.MemoryRSS = memInfo.RSS
	}

	return details
}

var _ LiveSource = (*SystemSource)(nil)
