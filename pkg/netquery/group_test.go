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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/models"
)

func TestGroupByPID(t *testing.T) {
	source := newFakeSource()
	engine := testEngine(source)

	connections := []models.ConnectionRecord{
		conn(5, "nginx", 80, 50001, "203.0.113.7", "ESTABLISHED"),
		conn(5, "nginx", 443, 50002, "203.0.113.8", "TIME_WAIT"),
		conn(6, "sshd", 22, 0, "", "LISTEN"),
	}

	groups := engine.GroupByPID(context.Background(), connections)
	require.Len(t, groups, 2)

	// Sorted descending by total connections.
	assert.Equal(t, int32(5), groups[0].PID)
	assert.Equal(t, 2, groups[0].TotalConnections)
	assert.Equal(t, "nginx", groups[0].ProcessName)
	assert.Equal(t, map[string]int{"tcp": 2}, groups[0].ByProtocol)
	assert.Equal(t, map[string]int{"ESTABLISHED": 1, "TIME_WAIT": 1}, groups[0].ByStatus)
	assert.Len(t, groups[0].Connections, 2)

	assert.Equal(t, int32(6), groups[1].PID)
	assert.Equal(t, 1, groups[1].TotalConnections)

	// Details fetched once per PID.
	assert.Equal(t, 1, source.infoCalls[5])
	assert.Equal(t, 1, source.infoCalls[6])
	require.NotNil(t, groups[0].Details)
}

func TestGroupByPIDBackfillsProcessName(t *testing.T) {
	engine := testEngine(newFakeSource())

	connections := []models.ConnectionRecord{
		conn(5, "", 80, 0, "", "LISTEN"),
		conn(5, "nginx", 443, 0, "", "LISTEN"),
	}

	groups := engine.GroupByPID(context.Background(), connections)
	require.Len(t, groups, 1)
	assert.Equal(t, "nginx", groups[0].ProcessName)
}

func TestGroupByPIDKernelSocketsSkipDetails(t *testing.T) {
	source := newFakeSource()
	engine := testEngine(source)

	connections := []models.ConnectionRecord{
		conn(0, "", 68, 0, "", ""),
	}

	groups := engine.GroupByPID(context.Background(), connections)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Details)
	assert.Empty(t, source.infoCalls)
}

func TestGroupByPIDTieBreaksOnPID(t *testing.T) {
	engine := testEngine(newFakeSource())

	connections := []models.ConnectionRecord{
		conn(9, "b", 1, 0, "", ""),
		conn(3, "a", 2, 0, "", ""),
	}

	groups := engine.GroupByPID(context.Background(), connections)
	require.Len(t, groups, 2)
	assert.Equal(t, int32(3), groups[0].PID)
	assert.Equal(t, int32(9), groups[1].PID)
}

func TestGroupLive(t *testing.T) {
	source := newFakeSource(
		conn(5, "nginx", 80, 0, "", "LISTEN"),
		conn(5, "nginx", 443, 0, "", "LISTEN"),
	)

	groups, err := testEngine(source).GroupLive(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].TotalConnections)
}
