//  Copyright (c) 2019 Cisco and/or its affiliates.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at:
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package metrics

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// RoundDuration is the default value used for rounding durations.
var RoundDuration = time.Microsecond * 10

// Calls maps method names to their call statistics.
type Calls map[string]*CallStats

// MarshalJSON implements json.Marshaler interface, methods with the highest
// total duration go first.
func (m Calls) MarshalJSON() ([]byte, error) {
	calls := make([]*CallStats, 0, len(m))
	for _, s := range m {
		calls = append(calls, s)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].Total == calls[j].Total {
			return calls[i].Name < calls[j].Name
		}
		return calls[i].Total > calls[j].Total
	})
	return json.Marshal(calls)
}

// CallStats represents generic stats for call metrics.
type CallStats struct {
	Name  string `json:",omitempty"`
	Count uint64
	Total Duration
	Avg   Duration
	Min   Duration
	Max   Duration
}

// Increment increments call count and recalculates durations
func (m *CallStats) Increment(d time.Duration) {
	took := Duration(d)
	m.Count++
	m.Total += took
	m.Avg = m.Total / Duration(m.Count)
	if took > m.Max {
		m.Max = took
	}
	if m.Count == 1 || took < m.Min {
		m.Min = took
	}
}

// Duration is time.Duration printed rounded to RoundDuration.
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (m Duration) MarshalJSON() ([]byte, error) {
	s := time.Duration(m).Round(RoundDuration).String()
	return json.Marshal(s)
}

// CallTracker collects Calls of named methods, safe for concurrent use.
type CallTracker struct {
	mu    sync.RWMutex
	calls Calls
}

// NewCallTracker returns an empty tracker.
func NewCallTracker() *CallTracker {
	return &CallTracker{calls: make(Calls)}
}

// Track starts measuring a call of <method>; the returned function
// stops the measurement.
//
//	defer tracker.Track("fetch")()
func (t *CallTracker) Track(method string) func() {
	start := time.Now()
	return func() {
		took := time.Since(start)
		t.mu.Lock()
		stats, ok := t.calls[method]
		if !ok {
			stats = &CallStats{Name: method}
			t.calls[method] = stats
		}
		stats.Increment(took)
		t.mu.Unlock()
	}
}

// Calls returns a copy of the collected statistics.
func (t *CallTracker) Calls() Calls {
	t.mu.RLock()
	defer t.mu.RUnlock()
	calls := make(Calls, len(t.calls))
	for name, stats := range t.calls {
		copied := *stats
		calls[name] = &copied
	}
	return calls
}

// MarshalJSON implements json.Marshaler interface
func (t *CallTracker) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Calls())
}
