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

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hostbeat/hostbeat/pkg/logger"
)

// Duration wraps time.Duration for JSON configs, accepting either a numeric
// nanosecond value or a Go duration string such as "30s".
type Duration time.Duration

var errInvalidDuration = errors.New("invalid duration")

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DatabaseConfig describes the Postgres instance backing the durable cache
// tier and the settings store.
type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	Password        string `json:"password,omitempty"`
	SSLMode         string `json:"ssl_mode,omitempty"`
	ApplicationName string `json:"application_name,omitempty"`
	MaxConnections  int32  `json:"max_connections,omitempty"`
	MinConnections  int32  `json:"min_connections,omitempty"`
}

// NATSConfig describes the JetStream KV bucket used as the fast cache tier.
// When nil, an in-process memory store is used instead.
type NATSConfig struct {
	URL    string   `json:"url"`
	Bucket string   `json:"bucket"`
	TTL    Duration `json:"ttl,omitempty"`
}

// CORSConfig mirrors the websocket/HTTP origin policy.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// CoreConfig is the daemon configuration loaded from the -config JSON file.
type CoreConfig struct {
	ListenAddr    string          `json:"listen_addr"`
	APIKey        string          `json:"api_key,omitempty"`
	CORS          CORSConfig      `json:"cors"`
	Database      *DatabaseConfig `json:"database"`
	NATS          *NATSConfig     `json:"nats,omitempty"`
	PortsLimit    int             `json:"ports_limit,omitempty"`
	SweepInterval Duration        `json:"sweep_interval,omitempty"`
	Logging       *logger.Config  `json:"logging,omitempty"`
}
