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
	"fmt"

	"github.com/hostbeat/hostbeat/pkg/models"
)

// Registry maps metric domains to their collectors. The scheduler,
// resolver, and broadcaster are all parameterized by whatever is
// registered here.
type Registry struct {
	collectors map[models.MetricDomain]Collector
	order      []models.MetricDomain
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[models.MetricDomain]Collector)}
}

// Register adds a collector for its domain. Registering the same domain
// twice is a programming error.
func (r *Registry) Register(c Collector) error {
	domain := c.Domain()
	if !domain.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownDomain, domain)
	}

	if _, exists := r.collectors[domain]; exists {
		return fmt.Errorf("collector for domain %q already registered", domain)
	}

	r.collectors[domain] = c
	r.order = append(r.order, domain)

	return nil
}

// Collector returns the collector registered for domain.
func (r *Registry) Collector(domain models.MetricDomain) (Collector, bool) {
	c, ok := r.collectors[domain]
	return c, ok
}

// Domains returns the registered domains in registration order.
func (r *Registry) Domains() []models.MetricDomain {
	out := make([]models.MetricDomain, len(r.order))
	copy(out, r.order)

	return out
}
