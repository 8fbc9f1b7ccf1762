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

// Package snapshot persists full-state snapshots of scopes so that a client
// can show the last known state before its session is (re)established.
package snapshot

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when no snapshot is stored for the scope.
var ErrNotFound = errors.New("snapshot not found")

var codec = sonic.Config{
	UseNumber:   true,
	CopyString:  true,
	SortMapKeys: true,
}.Froze()

// Snapshot is a serialized full state of a scope: the root fragment followed
// by Add fragments of all other nodes, as they appear on the wire.
type Snapshot struct {
	Scope     string                   `json:"scope"`
	Params    map[string]interface{}   `json:"params,omitempty"`
	Root      map[string]interface{}   `json:"root"`
	Fragments []map[string]interface{} `json:"fragments"`
	Taken     time.Time                `json:"taken"`
}

// Store keeps the latest snapshot of every scope.
type Store interface {
	// Save replaces the stored snapshot of <snapshot.Scope>.
	Save(ctx context.Context, snapshot *Snapshot) error
	// Load returns the stored snapshot or ErrNotFound.
	Load(ctx context.Context, scope string) (*Snapshot, error)
	// Delete removes the snapshot, deleting a missing one is not an error.
	Delete(ctx context.Context, scope string) error
	// Close releases resources of the store.
	Close() error
}

// Encode serializes the snapshot.
func Encode(snapshot *Snapshot) ([]byte, error) {
	if snapshot.Scope == "" {
		return nil, errors.New("snapshot without scope name")
	}
	if snapshot.Root == nil {
		return nil, errors.Errorf("snapshot of %s without root fragment", snapshot.Scope)
	}
	return codec.Marshal(snapshot)
}

// Decode parses snapshot serialized by Encode.
func Decode(data []byte) (*Snapshot, error) {
	snapshot := new(Snapshot)
	if err := codec.Unmarshal(data, snapshot); err != nil {
		return nil, errors.Wrap(err, "malformed snapshot")
	}
	if snapshot.Root == nil {
		return nil, errors.Errorf("snapshot of %s without root fragment", snapshot.Scope)
	}
	return snapshot, nil
}
