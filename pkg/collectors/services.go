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
	"os/exec"
	"sort"
	"strings"

	"github.com/hostbeat/hostbeat/pkg/models"
)

// runSystemctl is a hook so tests can stub the service manager.
var runSystemctl = func(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "systemctl",
		"list-units", "--type=service", "--all", "--no-legend", "--no-pager", "--plain")

	return cmd.Output()
}

// ServicesCollector snapshots systemd unit states. On hosts without
// systemd the collector fails, which the scheduler treats as a transient
// collector failure.
type ServicesCollector struct{}

func NewServicesCollector() *ServicesCollector {
	return &ServicesCollector{}
}

func (*ServicesCollector) Domain() models.MetricDomain {
	return models.DomainServices
}

func (*ServicesCollector) Collect(ctx context.Context) (*models.Snapshot, error) {
	output, err := runSystemctl(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list service units: %w", err)
	}

	services := parseServiceUnits(string(output))

	sort.Slice(services, func(i, j int) bool {
		return services[i].Name < services[j].Name
	})

	snapshot := models.ServicesSnapshot{
		Total:    len(services),
		Services: services,
	}

	for i := range services {
		if services[i].SubState == "running" {
			snapshot.Running++
		}

		if services[i].ActiveState == "failed" {
			snapshot.Failed++
		}
	}

	return models.NewSnapshot(models.DomainServices, nowFunc(), &snapshot)
}

// parseServiceUnits reads `systemctl list-units --plain` output: one unit
// per line as "UNIT LOAD ACTIVE SUB DESCRIPTION...".
func parseServiceUnits(output string) []models.ServiceStatus {
	var services []models.ServiceStatus

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasSuffix(fields[0], ".service") {
			continue
		}

		service := models.ServiceStatus{
			Name:        strings.TrimSuffix(fields[0], ".service"),
			LoadState:   fields[1],
			ActiveState: fields[2],
			SubState:    fields[3],
		}

		if len(fields) > 4 {
			service.Description = strings.Join(fields[4:], " ")
		}

		services = append(services, service)
	}

	return services
}
