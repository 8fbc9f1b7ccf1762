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
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream/api"
	"github.com/ligato/jetstream/plugins/jetstream/snapshot"
)

// snapshotTimeout bounds a single write to the snapshot store.
const snapshotTimeout = 5 * time.Second

// takeSnapshot serializes full state of the scope, nil if it has no root.
func takeSnapshot(sc *scope.Scope, params map[string]interface{}) *snapshot.Snapshot {
	root, fragments := sc.Snapshot()
	if root == nil {
		return nil
	}
	snap := &snapshot.Snapshot{
		Scope:     sc.Name(),
		Params:    params,
		Root:      root.Serialize(),
		Fragments: make([]map[string]interface{}, 0, len(fragments)),
		Taken:     time.Now(),
	}
	for _, fragment := range fragments {
		snap.Fragments = append(snap.Fragments, fragment.Serialize())
	}
	return snap
}

// queueSnapshot is called on the event loop after remote state was applied
// to a fetched scope.
func (c *Client) queueSnapshot(fs *fetchedScope) {
	snap := takeSnapshot(fs.scope, fs.params)
	if snap == nil {
		return
	}
	select {
	case c.snapshotQueue <- snap:
	default:
		c.Log.WithField("scope", snap.Scope).Warn("Snapshot queue is full, dropping snapshot")
	}
}

// persistSnapshots writes queued snapshots in order.
func (c *Client) persistSnapshots() {
	defer c.wg.Done()

	for {
		select {
		case snap := <-c.snapshotQueue:
			ctx, cancel := context.WithTimeout(c.ctx, snapshotTimeout)
			if err := c.Snapshots.Save(ctx, snap); err != nil {
				c.Log.WithField("scope", snap.Scope).Warnf("Failed to save snapshot: %v", err)
			}
			cancel()
		case <-c.ctx.Done():
			return
		}
	}
}

// SaveSnapshot stores the current state of the scope.
func (c *Client) SaveSnapshot(ctx context.Context, sc *scope.Scope) error {
	if c.Snapshots == nil {
		return api.ErrSnapshotsDisabled
	}
	var snap *snapshot.Snapshot
	err := c.Do(func() {
		var params map[string]interface{}
		for _, fs := range c.fetched {
			if fs.scope == sc {
				params = fs.params
			}
		}
		snap = takeSnapshot(sc, params)
	})
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.Errorf("scope %s has no root", sc.Name())
	}
	return c.Snapshots.Save(ctx, snap)
}

// RestoreSnapshot applies the stored state of the scope as if it was
// received from the server. The scope needs a root.
func (c *Client) RestoreSnapshot(ctx context.Context, sc *scope.Scope) error {
	if c.Snapshots == nil {
		return api.ErrSnapshotsDisabled
	}
	snap, err := c.Snapshots.Load(ctx, sc.Name())
	if err != nil {
		return err
	}
	root, err := scope.UnserializeFragment(snap.Root)
	if err != nil {
		return errors.Wrapf(err, "snapshot of %s", sc.Name())
	}
	if root.Type != scope.Root {
		return errors.Wrapf(scope.ErrInvalidFragment, "snapshot of %s starts with %s fragment", sc.Name(), root.Type)
	}
	log := c.Log.WithField("scope", sc.Name())
	fragments := unserializeFragments(snap.Fragments, log)

	var restoreErr error
	err = c.Do(func() {
		if sc.Root() == nil {
			restoreErr = errors.Errorf("scope %s has no root", sc.Name())
			return
		}
		sc.StartApplyingRemote(func() {
			sc.ApplyFullState(root, fragments)
		})
		log.Infof("Restored snapshot taken %s", snap.Taken.Format(time.RFC3339))
	})
	if err != nil {
		return err
	}
	return restoreErr
}
