// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jetstream

import (
	"expvar"
	"sync"

	"github.com/ligato/jetstream/pkg/metrics"
	"github.com/ligato/jetstream/pkg/scope"
)

const statsName = "jetstream"

var (
	stats   Stats
	statsMu sync.RWMutex

	sessionMethods = metrics.NewCallTracker()
	clientMethods  = metrics.NewCallTracker()
)

func init() {
	stats.ChangeSets = make(map[string]uint64)
	expvar.Publish(statsName, expvar.Func(func() interface{} {
		return GetStats()
	}))
	metrics.Register(statsName, func() interface{} {
		return GetStats()
	})
}

// Stats summarizes activity of all clients in the process.
type Stats struct {
	MessagesSent      uint64
	MessagesReceived  uint64
	DuplicatesDropped uint64
	Gaps              uint64
	Sessions          uint64
	ChangeSets        map[string]uint64 // by outcome

	SessionMethods metrics.Calls
	ClientMethods  metrics.Calls
}

// GetStats returns a copy of the current statistics.
func GetStats() *Stats {
	s := new(Stats)
	statsMu.RLock()
	*s = stats
	s.ChangeSets = make(map[string]uint64, len(stats.ChangeSets))
	for outcome, count := range stats.ChangeSets {
		s.ChangeSets[outcome] = count
	}
	statsMu.RUnlock()
	s.SessionMethods = sessionMethods.Calls()
	s.ClientMethods = clientMethods.Calls()
	return s
}

func updateStats(update func(s *Stats)) {
	statsMu.Lock()
	update(&stats)
	statsMu.Unlock()
}

func countChangeSet(state scope.State) {
	updateStats(func(s *Stats) { s.ChangeSets[state.String()]++ })
}

func trackSessionMethod(m string) func() {
	return sessionMethods.Track(m)
}

func trackClientMethod(m string) func() {
	return clientMethods.Track(m)
}
