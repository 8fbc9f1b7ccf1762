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

// Package test provides an in-memory transport adapter for tests.
package test

import (
	"sync"

	"github.com/ligato/jetstream/plugins/jetstream/api"
)

// MockAdapter records sent messages and lets tests drive status changes
// and incoming messages. Observers are invoked synchronously.
type MockAdapter struct {
	mu               sync.Mutex
	status           api.Status
	sent             []api.Message
	session          api.SessionInfo
	connects         int
	disconnects      int
	reconnects       int
	statusObservers  []func(api.Status)
	messageObservers []func(api.Message)
}

// NewMockAdapter returns closed adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// Name returns "MockAdapter".
func (m *MockAdapter) Name() string {
	return "MockAdapter"
}

// URL returns a dummy URL.
func (m *MockAdapter) URL() string {
	return "mock://jetstream"
}

// Status returns the status set by SetStatus.
func (m *MockAdapter) Status() api.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect only counts the call, use SetStatus to connect.
func (m *MockAdapter) Connect() {
	m.mu.Lock()
	m.connects++
	m.mu.Unlock()
}

// Disconnect counts the call and reports Closed.
func (m *MockAdapter) Disconnect() {
	m.mu.Lock()
	m.disconnects++
	m.session = nil
	m.mu.Unlock()
	m.SetStatus(api.Closed)
}

// Reconnect only counts the call.
func (m *MockAdapter) Reconnect() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
}

// Send records the message.
func (m *MockAdapter) Send(msg api.Message) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
}

// SessionEstablished records the session.
func (m *MockAdapter) SessionEstablished(session api.SessionInfo) {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
}

// ObserveStatus registers status observer.
func (m *MockAdapter) ObserveStatus(cb func(api.Status)) {
	m.mu.Lock()
	m.statusObservers = append(m.statusObservers, cb)
	m.mu.Unlock()
}

// ObserveMessage registers message observer.
func (m *MockAdapter) ObserveMessage(cb func(api.Message)) {
	m.mu.Lock()
	m.messageObservers = append(m.messageObservers, cb)
	m.mu.Unlock()
}

// SetStatus changes status and notifies observers if it differs.
func (m *MockAdapter) SetStatus(status api.Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	observers := append(([]func(api.Status))(nil), m.statusObservers...)
	m.mu.Unlock()
	for _, cb := range observers {
		cb(status)
	}
}

// Inject delivers messages as if received from the server.
func (m *MockAdapter) Inject(msgs ...api.Message) {
	m.mu.Lock()
	observers := append(([]func(api.Message))(nil), m.messageObservers...)
	m.mu.Unlock()
	for _, msg := range msgs {
		for _, cb := range observers {
			cb(msg)
		}
	}
}

// Sent returns all sent messages.
func (m *MockAdapter) Sent() []api.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.Message(nil), m.sent...)
}

// LastSent returns the last sent message or nil.
func (m *MockAdapter) LastSent() api.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// ClearSent forgets sent messages.
func (m *MockAdapter) ClearSent() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

// Session returns the established session, nil if none.
func (m *MockAdapter) Session() api.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connects returns the number of Connect calls.
func (m *MockAdapter) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Disconnects returns the number of Disconnect calls.
func (m *MockAdapter) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// Reconnects returns the number of Reconnect calls.
func (m *MockAdapter) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// Factory builds mock adapters and keeps them for inspection.
type Factory struct {
	mu      sync.Mutex
	created []*MockAdapter
}

// New builds a new adapter, it implements api.AdapterFactory.
func (f *Factory) New() (api.TransportAdapter, error) {
	adapter := NewMockAdapter()
	f.mu.Lock()
	f.created = append(f.created, adapter)
	f.mu.Unlock()
	return adapter, nil
}

// Created returns the number of adapters built.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Last returns the most recently built adapter.
func (f *Factory) Last() *MockAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}
