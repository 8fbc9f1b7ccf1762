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

package snapshot

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded snapshots in memory.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

// Save stores encoded copy of the snapshot.
func (m *MemoryStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snapshots[snapshot.Scope] = data
	m.mu.Unlock()
	return nil
}

// Load decodes the stored snapshot, callers get their own copy.
func (m *MemoryStore) Load(ctx context.Context, scope string) (*Snapshot, error) {
	m.mu.Lock()
	data, found := m.snapshots[scope]
	m.mu.Unlock()
	if !found {
		return nil, ErrNotFound
	}
	return Decode(data)
}

// Delete removes the snapshot.
func (m *MemoryStore) Delete(ctx context.Context, scope string) error {
	m.mu.Lock()
	delete(m.snapshots, scope)
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
