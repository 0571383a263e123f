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

package models

// ConnectionRecord is one live socket with its owning process. Records are
// derived and read-only; they carry no identity beyond their fields within
// one snapshot.
type ConnectionRecord struct {
	PID         int32  `json:"pid"`
	ProcessName string `json:"process_name"`
	Protocol    string `json:"protocol"`
	LocalAddr   string `json:"local_addr"`
	LocalPort   uint32 `json:"local_port"`
	RemoteAddr  string `json:"remote_addr"`
	RemotePort  uint32 `json:"remote_port"`
	Status      string `json:"status"`
}

// ProcessDetails is the per-process resource usage attached to search and
// grouping results. Degraded is set when the process vanished between socket
// enumeration and detail lookup and only partial data is available.
type ProcessDetails struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username,omitempty"`
	Cmdline       string  `json:"cmdline,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	MemoryRSS     uint64  `json:"memory_rss"`
	Degraded      bool    `json:"degraded,omitempty"`
}

// PortDetail aggregates the connections seen on one port.
type PortDetail struct {
	Port            uint32   `json:"port"`
	ConnectionCount int      `json:"connection_count"`
	Processes       []string `json:"processes"`
}

// SearchKind selects the match predicate for a connection search.
type SearchKind string

const (
	SearchByPID  SearchKind = "pid"
	SearchByPort SearchKind = "port"
	SearchByIP   SearchKind = "ip"
)

// SearchResult is the full answer to one connection search. All derived
// sets are materialized fresh per call and never cached.
type SearchResult struct {
	Kind            SearchKind               `json:"kind"`
	Value           string                   `json:"value"`
	Connections     []ConnectionRecord       `json:"connections"`
	UniqueProcesses []string                 `json:"unique_processes"`
	UniquePorts     []uint32                 `json:"unique_ports"`
	UniqueIPs       []string                 `json:"unique_ips"`
	ProcessDetails  map[int32]ProcessDetails `json:"process_details_by_pid"`
	PortDetails     []PortDetail             `json:"port_details"`
}

// ProcessGroup is one entry of the group-by-PID view over a connection
// snapshot, sorted descending by TotalConnections.
type ProcessGroup struct {
	PID              int32              `json:"pid"`
	ProcessName      string             `json:"process_name"`
	TotalConnections int                `json:"total_connections"`
	ByProtocol       map[string]int     `json:"by_protocol"`
	ByStatus         map[string]int     `json:"by_status"`
	Connections      []ConnectionRecord `json:"connections"`
	Details          *ProcessDetails    `json:"details,omitempty"`
}

// ConnectionsSnapshot is the payload of the connections domain.
type ConnectionsSnapshot struct {
	Total       int                `json:"total"`
	ByStatus    map[string]int     `json:"by_status"`
	Connections []ConnectionRecord `json:"connections"`
}

// PortUsage is one listening port with its user processes.
type PortUsage struct {
	Port            uint32   `json:"port"`
	Protocol        string   `json:"protocol"`
	ConnectionCount int      `json:"connection_count"`
	Processes       []string `json:"processes"`
}

// PortsSnapshot is the payload of the ports domain: the most used listening
// ports, bounded by the collector's configured limit.
type PortsSnapshot struct {
	Limit int         `json:"limit"`
	Ports []PortUsage `json:"ports"`
}

// ServiceStatus is one service-manager unit.
type ServiceStatus struct {
	Name        string `json:"name"`
	LoadState   string `json:"load_state"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
	Description string `json:"description,omitempty"`
}

// ServicesSnapshot is the payload of the services domain.
type ServicesSnapshot struct {
	Total    int             `json:"total"`
	Running  int             `json:"running"`
	Failed   int             `json:"failed"`
	Services []ServiceStatus `json:"services"`
}

// CPUSnapshot is the payload of the cpu domain.
type CPUSnapshot struct {
	UsagePercent    float64   `json:"usage_percent"`
	PerCorePercent  []float64 `json:"per_core_percent"`
	LogicalCores    int       `json:"logical_cores"`
	Load1           float64   `json:"load1"`
	Load5           float64   `json:"load5"`
	Load15          float64   `json:"load15"`
	ContextSwitches uint64    `json:"context_switches,omitempty"`
}

// MemorySnapshot is the payload of the memory domain.
type MemorySnapshot struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
	SwapTotalBytes uint64  `json:"swap_total_bytes"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
}
