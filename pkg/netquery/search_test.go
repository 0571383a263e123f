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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
)

// fakeSource serves a fixed connection table and counts detail lookups.
type fakeSource struct {
	connections []models.ConnectionRecord
	listErr     error
	infoCalls   map[int32]int
}

func newFakeSource(connections ...models.ConnectionRecord) *fakeSource {
	return &fakeSource{connections: connections, infoCalls: make(map[int32]int)}
}

func (f *fakeSource) ListConnections(context.Context) ([]models.ConnectionRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.connections, nil
}

func (f *fakeSource) ProcessInfo(_ context.Context, pid int32) *models.ProcessDetails {
	f.infoCalls[pid]++

	return &models.ProcessDetails{PID: pid, Name: "proc"}
}

func conn(pid int32, name string, localPort, remotePort uint32, remoteAddr, status string) models.ConnectionRecord {
	return models.ConnectionRecord{
		PID:         pid,
		ProcessName: name,
		Protocol:    "tcp",
		LocalAddr:   "10.0.0.1",
		LocalPort:   localPort,
		RemoteAddr:  remoteAddr,
		RemotePort:  remotePort,
		Status:      status,
	}
}

func testEngine(source LiveSource) *Engine {
	return NewEngine(source, logger.NewTestLogger())
}

func TestSearchByPortIsExact(t *testing.T) {
	source := newFakeSource(
		conn(10, "nginx", 8080, 52000, "192.168.1.5", "ESTABLISHED"),
		conn(10, "nginx", 8080, 52001, "192.168.1.6", "ESTABLISHED"),
		// Port 80800 contains "8080" as a substring but must not match.
		conn(11, "other", 80800, 0, "", "LISTEN"),
		conn(12, "client", 41000, 8080, "10.0.0.9", "ESTABLISHED"),
	)

	result, err := testEngine(source).Search(context.Background(), models.SearchByPort, "8080")
	require.NoError(t, err)

	assert.Len(t, result.Connections, 3)
	assert.ElementsMatch(t, []string{"client", "nginx"}, result.UniqueProcesses)
	assert.Contains(t, result.UniquePorts, uint32(8080))
	assert.NotContains(t, result.UniquePorts, uint32(80800))
}

func TestSearchByPIDCollectsDerivedSets(t *testing.T) {
	source := newFakeSource(
		conn(10, "nginx", 80, 50001, "203.0.113.7", "ESTABLISHED"),
		conn(10, "nginx", 80, 50002, "203.0.113.8", "ESTABLISHED"),
		conn(20, "sshd", 22, 0, "", "LISTEN"),
	)

	result, err := testEngine(source).Search(context.Background(), models.SearchByPID, "10")
	require.NoError(t, err)

	assert.Len(t, result.Connections, 2)
	assert.Equal(t, []string{"nginx"}, result.UniqueProcesses)
	assert.ElementsMatch(t, []uint32{80, 50001, 50002}, result.UniquePorts)
	assert.ElementsMatch(t, []string{"10.0.0.1", "203.0.113.7", "203.0.113.8"}, result.UniqueIPs)

	// Detail lookup runs once per distinct PID, not once per connection.
	require.Contains(t, result.ProcessDetails, int32(10))
	assert.Equal(t, 1, source.infoCalls[10])
	assert.NotContains(t, result.ProcessDetails, int32(20))
}

func TestSearchByIPMatchesEitherEndpoint(t *testing.T) {
	source := newFakeSource(
		conn(10, "nginx", 80, 50001, "203.0.113.7", "ESTABLISHED"),
		conn(20, "sshd", 22, 50002, "198.51.100.4", "ESTABLISHED"),
	)

	result, err := testEngine(source).Search(context.Background(), models.SearchByIP, "203.0.113.7")
	require.NoError(t, err)
	assert.Len(t, result.Connections, 1)

	// The shared local address matches both records.
	result, err = testEngine(source).Search(context.Background(), models.SearchByIP, "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, result.Connections, 2)
}

func TestSearchPortDetailsRankedByCount(t *testing.T) {
	source := newFakeSource(
		conn(10, "nginx", 80, 50001, "203.0.113.7", "ESTABLISHED"),
		conn(10, "nginx", 80, 50002, "203.0.113.8", "ESTABLISHED"),
		conn(10, "nginx", 443, 50003, "203.0.113.9", "ESTABLISHED"),
	)

	result, err := testEngine(source).Search(context.Background(), models.SearchByPID, "10")
	require.NoError(t, err)

	require.NotEmpty(t, result.PortDetails)
	assert.Equal(t, uint32(80), result.PortDetails[0].Port)
	assert.Equal(t, 2, result.PortDetails[0].ConnectionCount)
	assert.Equal(t, []string{"nginx"}, result.PortDetails[0].Processes)
}

func TestSearchNonNumericValueYieldsEmptyResult(t *testing.T) {
	source := newFakeSource(conn(10, "nginx", 80, 0, "", "LISTEN"))

	for _, kind := range []models.SearchKind{models.SearchByPID, models.SearchByPort} {
		result, err := testEngine(source).Search(context.Background(), kind, "not-a-number")
		require.NoError(t, err)

		assert.Empty(t, result.Connections)
		assert.Empty(t, result.UniqueProcesses)
		assert.Empty(t, result.ProcessDetails)
	}
}

func TestSearchNoMatchesReturnsEmptyCollections(t *testing.T) {
	source := newFakeSource(conn(10, "nginx", 80, 0, "", "LISTEN"))

	result, err := testEngine(source).Search(context.Background(), models.SearchByPort, "9999")
	require.NoError(t, err)

	// Empty, not nil, so the JSON encoding is [] rather than null.
	assert.NotNil(t, result.Connections)
	assert.NotNil(t, result.UniqueProcesses)
	assert.NotNil(t, result.UniquePorts)
	assert.NotNil(t, result.UniqueIPs)
	assert.NotNil(t, result.PortDetails)
}

func TestSearchUnsupportedKind(t *testing.T) {
	_, err := testEngine(newFakeSource()).Search(context.Background(), models.SearchKind("hostname"), "x")
	require.Error(t, err)
}

func TestSearchListFailure(t *testing.T) {
	source := newFakeSource()
	source.listErr = errors.New("enumeration failed")

	_, err := testEngine(source).Search(context.Background(), models.SearchByPort, "80")
	require.Error(t, err)
}
