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

package telemetry

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hostbeat/hostbeat/pkg/models"
)

// Fingerprint returns a deterministic content hash of a snapshot's payload,
// used only for change detection. The capture timestamp is deliberately
// excluded: two ticks that observe identical OS state must fingerprint
// identically, or unchanged snapshots would be re-broadcast every tick.
//
// The payload is canonical by construction: encoding/json sorts map keys,
// and collectors sort their slices before encoding.
func Fingerprint(snapshot *models.Snapshot) string {
	h := sha256.New()
	h.Write([]byte(snapshot.Domain))
	h.Write([]byte{0})
	h.Write(snapshot.Data)

	return hex.EncodeToString(h.Sum(nil))
}
