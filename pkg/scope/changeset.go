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

package scope

import (
	"context"
	"crypto/rand"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/value"
)

// State of a change set.
type State int

const (
	// Syncing is the initial state, the change set waits for the server.
	Syncing State = iota

	// Completed means the server accepted all fragments.
	Completed

	// PartiallyReverted means the server rejected some of the fragments
	// and their changes were reverted.
	PartiallyReverted

	// Reverted means all changes of the change set were reverted.
	Reverted
)

var stateNames = map[State]string{
	Syncing:           "syncing",
	Completed:         "completed",
	PartiallyReverted: "partially-reverted",
	Reverted:          "reverted",
}

// String returns human-readable name of the state.
func (s State) String() string {
	if name, has := stateNames[s]; has {
		return name
	}
	return "unknown"
}

// IsTerminal returns true for states the change set never leaves.
func (s State) IsTerminal() bool {
	return s != Syncing
}

// FragmentReply is the server answer for one fragment of a change set.
type FragmentReply struct {
	// Accepted is false if the server rejected the fragment.
	Accepted bool

	// Err describes why the fragment was rejected.
	Err error

	// Modifications are property values (wire representation) the server
	// applied in addition to or instead of the fragment's.
	Modifications map[string]interface{}
}

// StateObserver is notified about state transitions of a change set.
type StateObserver func(changeSet *ChangeSet, state State)

// ChangeSet is one local transaction: a batch of fragments plus the original
// values of all properties it changed, used to revert it.
type ChangeSet struct {
	id          ulid.ULID
	created     time.Time
	scope       *Scope
	fragments   []*SyncFragment
	atomic      bool
	procedure   string
	description string

	state State
	err   error

	// node -> key -> original value
	touches    map[*model.Node]map[string]interface{}
	touchOrder []*model.Node

	queue               *ChangeSetQueue
	stateObservers      []StateObserver
	completionObservers []func(error)
}

// NewChangeSet creates change set from fragments drained from the scope.
// Options (atomic, procedure, description) are read from <ctx>.
// Add fragments of nodes not referenced by any fragment of the set are
// left out.
func NewChangeSet(ctx context.Context, s *Scope, fragments []*SyncFragment) *ChangeSet {
	procedure, withProcedure := IsWithProcedure(ctx)
	description, _ := IsWithDescription(ctx)
	c := &ChangeSet{
		id:          ulid.MustNew(ulid.Now(), rand.Reader),
		created:     time.Now(),
		scope:       s,
		fragments:   append([]*SyncFragment(nil), fragments...),
		atomic:      IsAtomic(ctx) || withProcedure,
		procedure:   procedure,
		description: description,
		touches:     make(map[*model.Node]map[string]interface{}),
	}

	var (
		attached = mapset.NewThreadUnsafeSet[string]()
		added    []*SyncFragment
	)
	for _, fragment := range fragments {
		node := s.NodeByID(fragment.ObjectUUID)
		if node == nil {
			continue
		}
		for key, newValue := range fragment.Properties {
			info, has := node.Class().Property(key)
			if !has {
				continue
			}
			switch info.Kind {
			case value.Ref:
				if id, isString := newValue.(string); isString {
					attached.Add(id)
				}
			case value.RefList:
				if ids, isList := newValue.([]interface{}); isList {
					for _, id := range ids {
						if s, isString := id.(string); isString {
							attached.Add(s)
						}
					}
				}
			}
		}
		switch fragment.Type {
		case Change:
			for key, original := range fragment.OriginalProperties {
				if _, changed := fragment.Properties[key]; changed {
					c.touch(node, key, original)
				}
			}
		case Add:
			added = append(added, fragment)
		}
	}
	for _, fragment := range added {
		if !attached.Contains(fragment.ObjectUUID.String()) {
			c.removeFragment(fragment)
		}
	}
	return c
}

// ID returns unique identifier of the change set.
func (c *ChangeSet) ID() ulid.ULID {
	return c.id
}

// Created returns time when the change set was created.
func (c *ChangeSet) Created() time.Time {
	return c.created
}

// Scope returns scope the change set was created for.
func (c *ChangeSet) Scope() *Scope {
	return c.scope
}

// Fragments returns fragments of the change set.
func (c *ChangeSet) Fragments() []*SyncFragment {
	return c.fragments
}

// IsAtomic returns true if the server should apply all fragments or none.
func (c *ChangeSet) IsAtomic() bool {
	return c.atomic
}

// Procedure returns name of the server procedure the change set invokes.
func (c *ChangeSet) Procedure() string {
	return c.procedure
}

// Description returns description of the change set.
func (c *ChangeSet) Description() string {
	return c.description
}

// State returns the current state.
func (c *ChangeSet) State() State {
	return c.state
}

// Err returns error of a (partially) reverted change set.
func (c *ChangeSet) Err() error {
	return c.err
}

// Touches returns true if the change set changed the property of the node.
func (c *ChangeSet) Touches(node *model.Node, key string) bool {
	_, has := c.touches[node][key]
	return has
}

// OriginalValue returns value the property had before the change set.
func (c *ChangeSet) OriginalValue(node *model.Node, key string) (interface{}, bool) {
	v, has := c.touches[node][key]
	return v, has
}

// ObserveState registers callback for state transitions.
func (c *ChangeSet) ObserveState(cb StateObserver) {
	c.stateObservers = append(c.stateObservers, cb)
}

// ObserveCompletion registers callback invoked once the change set reaches
// a terminal state, with nil error if it completed. The callback is invoked
// immediately if the change set is already terminal.
func (c *ChangeSet) ObserveCompletion(cb func(err error)) *ChangeSet {
	if c.state.IsTerminal() {
		cb(c.err)
		return c
	}
	c.completionObservers = append(c.completionObservers, cb)
	return c
}

// Completed marks the change set as accepted by the server.
func (c *ChangeSet) Completed() {
	c.setState(Completed, nil)
}

// RevertOnScope restores original values of all properties the change set
// changed, except those changed again by a later change set still in the
// queue.
func (c *ChangeSet) RevertOnScope(s *Scope) {
	c.revertOn(s, "change set reverted")
}

func (c *ChangeSet) revert(reason string) {
	c.revertOn(c.scope, reason)
}

func (c *ChangeSet) revertOn(s *Scope, reason string) {
	if c.state.IsTerminal() {
		return
	}
	s.withoutEcho(func() {
		for _, node := range c.touchOrder {
			c.restore(node, nil)
		}
	})
	c.setState(Reverted, errors.Wrap(ErrChangeSetFailed, reason))
}

// RebaseOnChangeSet takes over original values recorded by <other> for
// the nodes both change sets touch.
func (c *ChangeSet) RebaseOnChangeSet(other *ChangeSet) {
	for node, otherProps := range other.touches {
		props, has := c.touches[node]
		if !has {
			continue
		}
		for key, original := range otherProps {
			props[key] = original
		}
	}
}

// RemoveTouchesFromChangeSet forgets all properties touched by <other>.
func (c *ChangeSet) RemoveTouchesFromChangeSet(other *ChangeSet) {
	for node, otherProps := range other.touches {
		for key := range otherProps {
			c.untouch(node, key)
		}
	}
}

// ProcessFragmentReplies resolves the change set with the server replies,
// one reply per fragment. A reply count mismatch reverts the whole change
// set. Rejected fragments are reverted, modifications are applied.
func (c *ChangeSet) ProcessFragmentReplies(replies []FragmentReply, s *Scope) {
	if c.state.IsTerminal() {
		return
	}
	if len(replies) != len(c.fragments) {
		s.log.WithField("changeSet", c.id).Errorf("Fragment reply mismatch (%d replies for %d fragments), reverting change set",
			len(replies), len(c.fragments))
		c.revertOn(s, "fragment reply mismatch")
		return
	}

	var (
		rejected int
		firstErr error
	)
	s.withoutEcho(func() {
		for i, reply := range replies {
			fragment := c.fragments[i]
			node := s.NodeByID(fragment.ObjectUUID)
			if !reply.Accepted {
				rejected++
				if firstErr == nil {
					firstErr = reply.Err
				}
				if node != nil && fragment.Type == Change {
					c.restore(node, fragment.Properties)
				}
				continue
			}
			if node != nil && len(reply.Modifications) > 0 {
				c.applyModifications(s, node, reply.Modifications)
			}
		}
	})

	switch {
	case rejected == 0:
		c.setState(Completed, nil)
	case rejected == len(replies):
		c.setState(Reverted, errors.Wrapf(ErrChangeSetFailed, "all fragments rejected: %v", firstErr))
	default:
		c.setState(PartiallyReverted, errors.Wrapf(ErrChangeSetFailed, "%d of %d fragments rejected: %v",
			rejected, len(replies), firstErr))
	}
}

func (c *ChangeSet) applyModifications(s *Scope, node *model.Node, modifications map[string]interface{}) {
	for _, info := range node.Class().Properties() {
		raw, has := modifications[info.Key]
		if !has || !info.IsSynced() {
			continue
		}
		v, err := value.Unserialize(info.Kind, raw, s.resolve)
		if err != nil && errors.Cause(err) != value.ErrUnresolvedReference {
			s.log.Warnf("Invalid modification of %s.%s: %v", node, info.Key, err)
			continue
		}
		c.setProperty(s, node, info.Key, v)
		c.untouch(node, info.Key)
	}
}

// restore sets touched properties of the node back to original values.
// Nil <only> restores all touched properties.
func (c *ChangeSet) restore(node *model.Node, only map[string]interface{}) {
	props := c.touches[node]
	for _, info := range node.Class().Properties() {
		original, touched := props[info.Key]
		if !touched {
			continue
		}
		if _, selected := only[info.Key]; only != nil && !selected {
			continue
		}
		c.setProperty(c.scope, node, info.Key, original)
	}
}

func (c *ChangeSet) setProperty(s *Scope, node *model.Node, key string, v interface{}) {
	if c.pendingChangesTouch(node, key) {
		return
	}
	if err := node.SetProperty(key, v); err != nil {
		s.log.Warnf("Failed to restore %s.%s: %v", node, key, err)
	}
}

// pendingChangesTouch returns true if a change set queued after this one
// touches the property.
func (c *ChangeSet) pendingChangesTouch(node *model.Node, key string) bool {
	if c.queue == nil {
		return false
	}
	for _, later := range c.queue.after(c) {
		if later.Touches(node, key) {
			return true
		}
	}
	return false
}

func (c *ChangeSet) touch(node *model.Node, key string, original interface{}) {
	props, has := c.touches[node]
	if !has {
		props = make(map[string]interface{})
		c.touches[node] = props
		c.touchOrder = append(c.touchOrder, node)
	}
	props[key] = original
}

func (c *ChangeSet) untouch(node *model.Node, key string) {
	props, has := c.touches[node]
	if !has {
		return
	}
	delete(props, key)
	if len(props) > 0 {
		return
	}
	delete(c.touches, node)
	for i, n := range c.touchOrder {
		if n == node {
			c.touchOrder = append(c.touchOrder[:i], c.touchOrder[i+1:]...)
			break
		}
	}
}

func (c *ChangeSet) removeFragment(fragment *SyncFragment) {
	for i, f := range c.fragments {
		if f == fragment {
			c.fragments = append(c.fragments[:i], c.fragments[i+1:]...)
			return
		}
	}
}

// setState performs Syncing -> terminal transition, other transitions are
// ignored.
func (c *ChangeSet) setState(state State, err error) {
	if c.state.IsTerminal() || state == c.state {
		return
	}
	c.state = state
	c.err = err
	for _, o := range append([]StateObserver(nil), c.stateObservers...) {
		o(c, state)
	}
	completion := c.completionObservers
	c.completionObservers = nil
	for _, cb := range completion {
		cb(err)
	}
}
