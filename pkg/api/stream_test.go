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

package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
	"github.com/hostbeat/hostbeat/pkg/telemetry"
)

func dialTestSocket(t *testing.T, server *APIServer, query string) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(server.Router())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws" + query

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return conn, func() {
		_ = conn.Close()
		ts.Close()
	}
}

func readStreamMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestWebSocketInitialSnapshotPush(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	server := newTestServer(t, WithBroadcaster(broadcaster))

	conn, cleanup := dialTestSocket(t, server, "?domains=cpu")
	defer cleanup()

	// The handler resolves subscribed domains immediately so the client
	// does not wait for the next scheduler tick.
	msg := readStreamMessage(t, conn)
	assert.Equal(t, "cpu_update", msg.Type)
	assert.NotEmpty(t, msg.Data)
	require.NotNil(t, msg.CapturedAt)
}

func TestWebSocketReceivesBroadcasts(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	server := newTestServer(t, WithBroadcaster(broadcaster))

	conn, cleanup := dialTestSocket(t, server, "?domains=memory")
	defer cleanup()

	// Drain the initial push.
	msg := readStreamMessage(t, conn)
	require.Equal(t, "memory_update", msg.Type)

	snapshot, err := models.NewSnapshot(models.DomainMemory, time.Now(), map[string]int{"used": 7})
	require.NoError(t, err)

	// Publish retries until the session is subscribed; activation races
	// the dial returning.
	require.Eventually(t, func() bool {
		return len(broadcaster.Subscribers(models.DomainMemory)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	broadcaster.Publish(snapshot)

	msg = readStreamMessage(t, conn)
	assert.Equal(t, "memory_update", msg.Type)
	assert.JSONEq(t, string(snapshot.Data), string(msg.Data))
}

func TestWebSocketGetActionResendsSnapshot(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	server := newTestServer(t, WithBroadcaster(broadcaster))

	conn, cleanup := dialTestSocket(t, server, "?domains=cpu")
	defer cleanup()

	readStreamMessage(t, conn)

	// An explicit get bypasses change detection and resends current data.
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "get_cpu"}))

	msg := readStreamMessage(t, conn)
	assert.Equal(t, "cpu_update", msg.Type)
}

func TestWebSocketDisconnectTearsDownSession(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	server := newTestServer(t, WithBroadcaster(broadcaster))

	conn, cleanup := dialTestSocket(t, server, "?domains=cpu")
	defer cleanup()

	readStreamMessage(t, conn)

	require.Eventually(t, func() bool {
		return server.sessions.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// The handler notices the disconnect, closes the session, and removes
	// it from the manager and from every subscriber set.
	require.Eventually(t, func() bool {
		return server.sessions.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, broadcaster.Subscribers(models.DomainCPU))
}
