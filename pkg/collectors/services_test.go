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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/models"
)

const systemctlOutput = `sshd.service            loaded active running OpenSSH server daemon
postgresql.service      loaded active running PostgreSQL database server
backup.service          loaded failed failed  Nightly backup
rescue.service          loaded inactive dead   Rescue Shell
not-a-service.socket    loaded active listening Some socket
`

func stubSystemctl(t *testing.T, output string, err error) {
	t.Helper()

	orig := runSystemctl
	runSystemctl = func(context.Context) ([]byte, error) {
		return []byte(output), err
	}

	t.Cleanup(func() { runSystemctl = orig })
}

func TestParseServiceUnits(t *testing.T) {
	services := parseServiceUnits(systemctlOutput)
	require.Len(t, services, 4)

	assert.Equal(t, models.ServiceStatus{
		Name:        "sshd",
		LoadState:   "loaded",
		ActiveState: "active",
		SubState:    "running",
		Description: "OpenSSH server daemon",
	}, services[0])

	assert.Equal(t, "backup", services[2].Name)
	assert.Equal(t, "failed", services[2].ActiveState)
}

func TestParseServiceUnitsEmptyAndMalformed(t *testing.T) {
	assert.Empty(t, parseServiceUnits(""))
	assert.Empty(t, parseServiceUnits("garbage line\nshort.service loaded\n"))
}

func TestServicesCollectorSnapshot(t *testing.T) {
	stubSystemctl(t, systemctlOutput, nil)

	collector := NewServicesCollector()
	assert.Equal(t, models.DomainServices, collector.Domain())

	snapshot, err := collector.Collect(context.Background())
	require.NoError(t, err)

	var payload models.ServicesSnapshot
	require.NoError(t, json.Unmarshal(snapshot.Data, &payload))

	assert.Equal(t, 4, payload.Total)
	assert.Equal(t, 2, payload.Running)
	assert.Equal(t, 1, payload.Failed)

	// Sorted by unit name for a stable encoding.
	names := make([]string, 0, len(payload.Services))
	for _, s := range payload.Services {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{"backup", "postgresql", "rescue", "sshd"}, names)
}

func TestServicesCollectorCommandFailure(t *testing.T) {
	stubSystemctl(t, "", errors.New("systemctl: command not found"))

	_, err := NewServicesCollector().Collect(context.Background())
	require.Error(t, err)
}
