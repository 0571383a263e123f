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
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hostbeat/hostbeat/pkg/models"
)

const (
	writeTimeout      = 10 * time.Second
	readTimeout       = 60 * time.Second
	keepaliveInterval = 30 * time.Second
)

// StreamMessage is the server-to-client envelope. Type is "<domain>_update"
// for snapshot pushes, or "ping"/"error".
type StreamMessage struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	CapturedAt *time.Time      `json:"captured_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// clientMessage is the client-to-server envelope.
type clientMessage struct {
	Action   string   `json:"action"`
	Domains  []string `json:"domains,omitempty"`
	Interval float64  `json:"interval,omitempty"`
}

// handleWebSocket upgrades the connection and runs the session: one
// delivery goroutine owned by the session, and the reader loop on the
// handler goroutine for disconnect detection and client actions.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade to websocket")

		return
	}

	defer conn.Close()

	interests := parseInterests(r.URL.Query().Get("domains"))

	session := NewSession(r.RemoteAddr, s.broadcaster, s.logger)
	s.sessions.Register(session)

	defer func() {
		session.Close()
		s.sessions.Unregister(session.ID())
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session.Activate(interests, cancel)

	s.logger.Info().
		Str("session_id", session.ID()).
		Str("remote_addr", r.RemoteAddr).
		Int("domains", len(interests)).
		Msg("websocket session established")

	go s.runDeliveryTask(ctx, session, conn)

	// Initial data: resolve each subscribed domain so the client does not
	// wait for the next scheduler tick.
	for _, domain := range interests {
		s.pushResolved(ctx, session, domain)
	}

	s.readClientMessages(ctx, session, conn, cancel)
}

func parseInterests(raw string) []models.MetricDomain {
	if raw == "" {
		return models.KnownDomains()
	}

	var interests []models.MetricDomain

	for _, part := range strings.Split(raw, ",") {
		domain := models.MetricDomain(strings.TrimSpace(part))
		if domain.Valid() {
			interests = append(interests, domain)
		}
	}

	return interests
}

// runDeliveryTask is the session's owned task: it is the only writer to
// the websocket connection, draining the send queue in publish order and
// emitting keepalive pings.
func (s *APIServer) runDeliveryTask(ctx context.Context, session *Session, conn *websocket.Conn) {
	defer close(session.taskDone)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-session.queue:
			if err := writeSnapshot(conn, snapshot); err != nil {
				s.logger.Debug().
					Err(err).
					Str("session_id", session.ID()).
					Msg("websocket write failed")

				return
			}
		case <-ticker.C:
			msg := StreamMessage{Type: "ping", Timestamp: time.Now().UTC()}
			if err := writeMessage(conn, &msg); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snapshot *models.Snapshot) error {
	capturedAt := snapshot.CapturedAt
	msg := StreamMessage{
		Type:       string(snapshot.Domain) + "_update",
		Data:       snapshot.Data,
		CapturedAt: &capturedAt,
		Timestamp:  time.Now().UTC(),
	}

	return writeMessage(conn, &msg)
}

func writeMessage(conn *websocket.Conn, msg *StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return conn.WriteJSON(msg)
}

// readClientMessages blocks on the websocket until disconnect, dispatching
// client actions as they arrive. Any read error cancels the session's
// delivery task.
func (s *APIServer) readClientMessages(
	ctx context.Context, session *Session, conn *websocket.Conn, cancel context.CancelFunc,
) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().
					Err(err).
					Str("session_id", session.ID()).
					Msg("websocket closed unexpectedly")
			}

			return
		}

		s.dispatchClientAction(ctx, session, &msg)
	}
}

func (s *APIServer) dispatchClientAction(ctx context.Context, session *Session, msg *clientMessage) {
	switch {
	case strings.HasPrefix(msg.Action, "get_"):
		domain := models.MetricDomain(strings.TrimPrefix(msg.Action, "get_"))
		if !domain.Valid() {
			s.logger.Debug().
				Str("session_id", session.ID()).
				Str("action", msg.Action).
				Msg("ignoring request for unknown domain")

			return
		}

		// Immediate resend on request, bypassing fingerprint comparison.
		s.pushResolved(ctx, session, domain)

	case msg.Action == "set_interest":
		domains := make([]models.MetricDomain, 0, len(msg.Domains))
		for _, raw := range msg.Domains {
			domains = append(domains, models.MetricDomain(raw))
		}

		session.SetInterest(domains)

	case msg.Action == "set_interval":
		// Advisory only: the scheduler interval is shared across all
		// sessions and changes only through the settings API.
		s.logger.Info().
			Str("session_id", session.ID()).
			Float64("requested_interval", msg.Interval).
			Msg("client interval hint ignored (scheduler interval is global)")

	default:
		s.logger.Debug().
			Str("session_id", session.ID()).
			Str("action", msg.Action).
			Msg("unknown client action")
	}
}

// pushResolved resolves a domain synchronously and queues the snapshot on
// the session, independent of broadcaster change detection.
func (s *APIServer) pushResolved(ctx context.Context, session *Session, domain models.MetricDomain) {
	snapshot, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", session.ID()).
			Str("domain", string(domain)).
			Msg("failed to resolve snapshot for session")

		return
	}

	if err := session.Send(snapshot); err != nil {
		s.logger.Debug().
			Err(err).
			Str("session_id", session.ID()).
			Str("domain", string(domain)).
			Msg("failed to queue snapshot for session")
	}
}
