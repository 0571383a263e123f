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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
	"github.com/hostbeat/hostbeat/pkg/telemetry"
)

// activateSession activates a session with a stand-in delivery task that
// drains nothing and stops on cancel, mirroring the websocket handler's
// contract that taskDone closes after the task exits.
func activateSession(t *testing.T, session *Session, interests ...models.MetricDomain) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	session.Activate(interests, cancel)

	go func() {
		<-ctx.Done()
		close(session.taskDone)
	}()
}

func sessionSnapshot(t *testing.T, domain models.MetricDomain) *models.Snapshot {
	t.Helper()

	snapshot, err := models.NewSnapshot(domain, time.Now(), map[string]int{"v": 1})
	require.NoError(t, err)

	return snapshot
}

func TestSessionLifecycle(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("10.0.0.1:54321", broadcaster, logger.NewTestLogger())

	assert.Equal(t, SessionConnecting, session.State())
	assert.NotEmpty(t, session.ID())

	activateSession(t, session, models.DomainCPU, models.DomainMemory)
	assert.Equal(t, SessionActive, session.State())
	assert.ElementsMatch(t,
		[]models.MetricDomain{models.DomainCPU, models.DomainMemory}, session.Interests())

	assert.Contains(t, broadcaster.Subscribers(models.DomainCPU), session.ID())
	assert.Contains(t, broadcaster.Subscribers(models.DomainMemory), session.ID())

	session.Close()
	assert.Equal(t, SessionClosed, session.State())

	// Teardown removed the session from every domain's subscriber set.
	assert.Empty(t, broadcaster.Subscribers(models.DomainCPU))
	assert.Empty(t, broadcaster.Subscribers(models.DomainMemory))
}

func TestSessionSendBeforeActivation(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("client", broadcaster, logger.NewTestLogger())

	err := session.Send(sessionSnapshot(t, models.DomainCPU))
	require.ErrorIs(t, err, errSessionNotActive)
}

func TestSessionSendNeverBlocks(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("client", broadcaster, logger.NewTestLogger())

	activateSession(t, session, models.DomainCPU)
	defer session.Close()

	snapshot := sessionSnapshot(t, models.DomainCPU)

	// Fill the queue without a consumer; every send must return
	// immediately.
	for i := 0; i < sessionQueueSize; i++ {
		require.NoError(t, session.Send(snapshot))
	}

	err := session.Send(snapshot)
	require.ErrorIs(t, err, errSessionQueueFull)
}

func TestSessionSetInterestDiffsSubscriptions(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("client", broadcaster, logger.NewTestLogger())

	activateSession(t, session, models.DomainCPU, models.DomainMemory)
	defer session.Close()

	session.SetInterest([]models.MetricDomain{models.DomainMemory, models.DomainPorts})

	assert.Empty(t, broadcaster.Subscribers(models.DomainCPU))
	assert.Contains(t, broadcaster.Subscribers(models.DomainMemory), session.ID())
	assert.Contains(t, broadcaster.Subscribers(models.DomainPorts), session.ID())
}

func TestSessionSetInterestIgnoresUnknownDomains(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("client", broadcaster, logger.NewTestLogger())

	activateSession(t, session, models.DomainCPU)
	defer session.Close()

	session.SetInterest([]models.MetricDomain{models.MetricDomain("disk")})

	assert.Empty(t, session.Interests())
	assert.Empty(t, broadcaster.Subscribers(models.DomainCPU))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	session := NewSession("client", broadcaster, logger.NewTestLogger())

	activateSession(t, session, models.DomainCPU)

	session.Close()
	session.Close()

	assert.Equal(t, SessionClosed, session.State())
}

func TestSessionManagerTracksSessions(t *testing.T) {
	broadcaster := telemetry.NewBroadcaster(logger.NewTestLogger())
	manager := NewSessionManager(logger.NewTestLogger())

	first := NewSession("a", broadcaster, logger.NewTestLogger())
	second := NewSession("b", broadcaster, logger.NewTestLogger())

	activateSession(t, first, models.DomainCPU)
	activateSession(t, second, models.DomainMemory)

	manager.Register(first)
	manager.Register(second)
	assert.Equal(t, 2, manager.Count())

	manager.Unregister(first.ID())
	assert.Equal(t, 1, manager.Count())

	manager.CloseAll()
	assert.Equal(t, 0, manager.Count())
	assert.Equal(t, SessionClosed, second.State())

	first.Close()
}
