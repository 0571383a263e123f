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
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
	"github.com/hostbeat/hostbeat/pkg/telemetry"
)

// SessionState tracks the lifecycle of one client connection:
// Connecting -> Active -> Closing -> Closed.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionClosing
	SessionClosed
)

const sessionQueueSize = 16

var (
	errSessionNotActive = errors.New("session is not active")
	errSessionQueueFull = errors.New("session send queue is full")
)

// Session is the server-side state owned for one live client connection.
// Its delivery task is independent of every other session's; a slow or
// broken client affects only its own session.
type Session struct {
	id          string
	user        string
	createdAt   time.Time
	broadcaster *telemetry.Broadcaster
	logger      logger.Logger

	mu        sync.Mutex
	state     SessionState
	interests map[models.MetricDomain]struct{}

	queue    chan *models.Snapshot
	cancel   context.CancelFunc
	taskDone chan struct{}
	closeOnce sync.Once
}

func NewSession(user string, broadcaster *telemetry.Broadcaster, log logger.Logger) *Session {
	return &Session{
		id:          uuid.NewString(),
		user:        user,
		createdAt:   time.Now().UTC(),
		broadcaster: broadcaster,
		logger:      log,
		state:       SessionConnecting,
		interests:   make(map[models.MetricDomain]struct{}),
		queue:       make(chan *models.Snapshot, sessionQueueSize),
		taskDone:    make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Send enqueues a snapshot for the session's delivery task. It never
// blocks: a full queue means the client is too slow to keep up, and the
// returned error tells the broadcaster to drop this subscriber.
func (s *Session) Send(snapshot *models.Snapshot) error {
	if s.State() != SessionActive {
		return errSessionNotActive
	}

	select {
	case s.queue <- snapshot:
		return nil
	default:
		return errSessionQueueFull
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Activate completes the handshake: the session becomes Active and is
// subscribed to every domain in interests.
func (s *Session) Activate(interests []models.MetricDomain, cancel context.CancelFunc) {
	s.mu.Lock()
	s.state = SessionActive
	s.cancel = cancel

	for _, domain := range interests {
		s.interests[domain] = struct{}{}
	}

	domains := make([]models.MetricDomain, 0, len(s.interests))
	for domain := range s.interests {
		domains = append(domains, domain)
	}
	s.mu.Unlock()

	for _, domain := range domains {
		s.broadcaster.Subscribe(domain, s)
	}
}

// SetInterest replaces the session's subscription set.
func (s *Session) SetInterest(domains []models.MetricDomain) {
	next := make(map[models.MetricDomain]struct{}, len(domains))
	for _, domain := range domains {
		if domain.Valid() {
			next[domain] = struct{}{}
		}
	}

	s.mu.Lock()
	previous := s.interests
	s.interests = next
	s.mu.Unlock()

	for domain := range previous {
		if _, keep := next[domain]; !keep {
			s.broadcaster.Unsubscribe(domain, s.id)
		}
	}

	for domain := range next {
		if _, had := previous[domain]; !had {
			s.broadcaster.Subscribe(domain, s)
		}
	}
}

// Interests returns the current subscription set.
func (s *Session) Interests() []models.MetricDomain {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.MetricDomain, 0, len(s.interests))
	for domain := range s.interests {
		out = append(out, domain)
	}

	return out
}

// Close tears the session down deterministically: cancel the delivery
// task, wait for it to fully stop, and only then remove the session from
// every domain's subscriber set. The ordering prevents a publish racing a
// send to a session whose task already exited.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = SessionClosing
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		<-s.taskDone

		s.broadcaster.UnsubscribeAll(s.id)

		s.mu.Lock()
		s.state = SessionClosed
		s.mu.Unlock()

		s.logger.Debug().
			Str("session_id", s.id).
			Str("user", s.user).
			Msg("session closed")
	})
}

// SessionManager tracks the live sessions for shutdown and health
// reporting.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   logger.Logger
}

func NewSessionManager(log logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   log,
	}
}

func (m *SessionManager) Register(session *Session) {
	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()
}

func (m *SessionManager) Unregister(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// CloseAll closes every live session; used during shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))

	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
