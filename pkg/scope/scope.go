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

// Package scope implements the identity space of synchronized nodes together
// with the outbound fragment buffer, change sets and their queue.
package scope

import (
	"context"
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/sanity-io/litter"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/value"
)

// ObserverID is a handle of a scope observer.
type ObserverID uint64

// Option customizes scope created by New.
type Option func(*Scope)

// UseRegistry sets class registry used to construct nodes of Add fragments.
func UseRegistry(registry *model.Registry) Option {
	return func(s *Scope) {
		s.registry = registry
	}
}

// UseLogger sets the logger of the scope.
func UseLogger(log logging.Logger) Option {
	return func(s *Scope) {
		s.log = log
	}
}

// UseClock replaces time source used for property throttling.
func UseClock(now func() time.Time) Option {
	return func(s *Scope) {
		s.now = now
	}
}

// Scope is an identity space of nodes reachable from a single root node.
// Scope is not safe for concurrent use, all access is expected from a single
// event loop.
type Scope struct {
	name     string
	log      logging.Logger
	registry *model.Registry
	now      func() time.Time

	// arena
	nodes     []*model.Node
	byID      map[uuid.UUID]*model.Node
	tempByID  map[uuid.UUID]*model.Node
	listeners map[*model.Node]model.ListenerID

	// outbound fragment buffer
	fragments     []*SyncFragment
	pending       map[uuid.UUID]*SyncFragment // add/change fragment per node
	removals      map[uuid.UUID]*removal
	changesQueued bool
	updateDates   map[string]time.Time

	// inbound
	applyingRemote bool
	pauseCount     int
	incoming       []func()

	lastObserverID  ObserverID
	changeObservers []changeObserver
	remoteObservers []remoteObserver
}

type changeObserver struct {
	id ObserverID
	cb func(*ChangeSet)
}

type remoteObserver struct {
	id ObserverID
	cb func()
}

// New creates an empty scope.
func New(name string, opts ...Option) *Scope {
	s := &Scope{
		name:        name,
		byID:        make(map[uuid.UUID]*model.Node),
		listeners:   make(map[*model.Node]model.ListenerID),
		pending:     make(map[uuid.UUID]*SyncFragment),
		removals:    make(map[uuid.UUID]*removal),
		updateDates: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logrus.NewLogger("scope-" + name)
	}
	if s.registry == nil {
		s.registry = model.DefaultRegistry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Promote makes the node root of a fresh scope named after its class.
func Promote(node *model.Node, opts ...Option) *Scope {
	s := New(node.ClassName(), opts...)
	node.SetScopeAndMakeRootModel(s)
	return s
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.name
}

// Registry returns class registry of the scope.
func (s *Scope) Registry() *model.Registry {
	return s.registry
}

// Root returns root node of the scope (nil if the scope has no nodes).
func (s *Scope) Root() *model.Node {
	if len(s.nodes) == 0 {
		return nil
	}
	return s.nodes[0]
}

// SetRoot makes the node root of the scope unless the scope already has
// some nodes.
func (s *Scope) SetRoot(node *model.Node) {
	if len(s.nodes) == 0 && node != nil {
		node.SetScopeAndMakeRootModel(s)
	}
}

// Nodes returns all nodes of the scope in the order they were added.
func (s *Scope) Nodes() []*model.Node {
	return append([]*model.Node(nil), s.nodes...)
}

// NodeByID returns node of the scope with the given UUID.
func (s *Scope) NodeByID(id uuid.UUID) *model.Node {
	return s.byID[id]
}

// lookupNode also returns nodes constructed by the batch of fragments being
// applied that were not attached yet.
func (s *Scope) lookupNode(id uuid.UUID) *model.Node {
	if node := s.byID[id]; node != nil {
		return node
	}
	return s.tempByID[id]
}

func (s *Scope) resolve(id uuid.UUID) value.Object {
	if node := s.lookupNode(id); node != nil {
		return node
	}
	return nil
}

// AddNode is called by a node joining the scope.
func (s *Scope) AddNode(node *model.Node) {
	id := node.UUID()
	if _, known := s.byID[id]; known {
		return
	}
	s.nodes = append(s.nodes, node)
	s.byID[id] = node
	s.listeners[node] = node.ObserveChange(func(change model.PropertyChange) {
		s.propertyChanged(change)
	})

	if !node.HasParents() {
		return
	}
	if r, removed := s.removals[id]; removed {
		// re-attached within the same window, the server still has the node
		s.dropFragment(r.fragment)
		delete(s.removals, id)
		s.changedWhileDetached(node, r.values)
	} else if !s.applyingRemote {
		s.fragmentFor(Add, node)
	}
}

// RemoveNode is called by a node leaving the scope.
func (s *Scope) RemoveNode(node *model.Node) {
	id := node.UUID()
	if _, known := s.byID[id]; !known {
		return
	}
	for i, n := range s.nodes {
		if n == node {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	if listenerID, has := s.listeners[node]; has {
		node.RemoveObserver(listenerID)
		delete(s.listeners, node)
	}

	pending := s.pending[id]
	if pending != nil && pending.Type == Add {
		// the server has never seen the node
		s.dropFragment(pending)
		return
	}
	if s.applyingRemote || node.IsScopeRoot() {
		if pending != nil {
			s.dropFragment(pending)
		}
		return
	}
	r := &removal{
		fragment: &SyncFragment{Type: Remove, ObjectUUID: id, ClassName: node.ClassName()},
		values:   syncedValues(node),
	}
	s.appendFragment(r.fragment)
	s.removals[id] = r
}

// removal is a Remove fragment not sent yet, with the synced values
// the node had when it left the scope.
type removal struct {
	fragment *SyncFragment
	values   map[string]interface{}
}

func syncedValues(node *model.Node) map[string]interface{} {
	values := make(map[string]interface{})
	for _, info := range node.Class().Properties() {
		if info.Kind != value.Composite && info.IsSynced() {
			values[info.Key] = node.Get(info.Key)
		}
	}
	return values
}

// changedWhileDetached records into a Change fragment the properties that
// changed while the node was out of the scope and thus unobserved.
func (s *Scope) changedWhileDetached(node *model.Node, before map[string]interface{}) {
	for _, info := range node.Class().Properties() {
		old, synced := before[info.Key]
		if !synced {
			continue
		}
		if current := node.Get(info.Key); !value.Equal(old, current) {
			s.fragmentFor(Change, node).newValueForKey(info, current, old)
		}
	}
}

func (s *Scope) updateUUID(node *model.Node, id uuid.UUID) {
	if node.UUID() == id {
		return
	}
	if _, known := s.byID[node.UUID()]; !known {
		return
	}
	delete(s.byID, node.UUID())
	node.SetUUID(id)
	s.byID[id] = node
}

func (s *Scope) propertyChanged(change model.PropertyChange) {
	if s.applyingRemote {
		return
	}
	node := change.Node
	info, has := node.Class().Property(change.Key)
	if !has || !info.IsSynced() {
		return
	}
	if info.MinSyncInterval > 0 {
		now := s.now()
		dateKey := node.UUID().String() + "_" + info.Key
		if last, has := s.updateDates[dateKey]; has && now.Sub(last) < info.MinSyncInterval {
			return
		}
		s.updateDates[dateKey] = now
	}
	s.fragmentFor(Change, node).newValueForKey(info, change.New, change.Old)
}

func (s *Scope) fragmentFor(fragmentType FragmentType, node *model.Node) *SyncFragment {
	if fragment, has := s.pending[node.UUID()]; has {
		s.changesQueued = true
		return fragment
	}
	fragment := NewSyncFragment(fragmentType, node)
	s.appendFragment(fragment)
	s.pending[node.UUID()] = fragment
	return fragment
}

func (s *Scope) appendFragment(fragment *SyncFragment) {
	s.fragments = append(s.fragments, fragment)
	s.changesQueued = true
}

func (s *Scope) dropFragment(fragment *SyncFragment) {
	for i, f := range s.fragments {
		if f == fragment {
			s.fragments = append(s.fragments[:i], s.fragments[i+1:]...)
			break
		}
	}
	if s.pending[fragment.ObjectUUID] == fragment {
		delete(s.pending, fragment.ObjectUUID)
	}
}

// GetAndClearSyncFragments drains fragments accumulated since the last call,
// in the order the changes occurred. Change fragments without properties
// are left out.
func (s *Scope) GetAndClearSyncFragments() []*SyncFragment {
	fragments := s.fragments
	s.fragments = nil
	s.pending = make(map[uuid.UUID]*SyncFragment)
	s.removals = make(map[uuid.UUID]*removal)

	var nonVoid []*SyncFragment
	for _, fragment := range fragments {
		if fragment.Type == Change && len(fragment.Properties) == 0 {
			continue
		}
		nonVoid = append(nonVoid, fragment)
	}
	return nonVoid
}

// HasPendingChanges returns true if some changes were not sent yet.
func (s *Scope) HasPendingChanges() bool {
	return s.changesQueued
}

// PauseIncomingMessages defers application of incoming messages until
// ResumeIncomingMessages is called the same number of times.
func (s *Scope) PauseIncomingMessages() {
	s.pauseCount++
}

// ResumeIncomingMessages replays deferred incoming messages in arrival order
// once the scope is no longer paused.
func (s *Scope) ResumeIncomingMessages() error {
	if s.pauseCount == 0 {
		return ErrNotPaused
	}
	s.pauseCount--
	if s.pauseCount > 0 {
		return nil
	}
	queue := s.incoming
	s.incoming = nil
	s.withoutEcho(func() {
		for _, apply := range queue {
			apply()
		}
	})
	return nil
}

// IsPaused returns true if incoming messages are deferred.
func (s *Scope) IsPaused() bool {
	return s.pauseCount > 0
}

// StartApplyingRemote runs <apply> immediately, or defers it if the scope is
// paused. Changes made by <apply> do not generate fragments.
func (s *Scope) StartApplyingRemote(apply func()) {
	if s.pauseCount > 0 {
		s.incoming = append(s.incoming, apply)
		return
	}
	s.withoutEcho(apply)
}

// withoutEcho runs <fn> with fragment generation disabled.
func (s *Scope) withoutEcho(fn func()) {
	prev := s.applyingRemote
	s.applyingRemote = true
	defer func() { s.applyingRemote = prev }()
	fn()
}

// ApplySyncFragments applies fragments in two passes: nodes of Add fragments
// are constructed first so that references between fragments of the batch
// resolve, then all fragments are applied in order.
func (s *Scope) ApplySyncFragments(fragments []*SyncFragment, applyDefaults bool) {
	s.tempByID = make(map[uuid.UUID]*model.Node)
	for _, fragment := range fragments {
		if node := fragment.createNodeIfNecessary(s); node != nil {
			s.tempByID[node.UUID()] = node
		}
	}
	for _, fragment := range fragments {
		fragment.ApplyToScope(s, applyDefaults)
	}
	s.tempByID = nil

	if s.applyingRemote {
		for _, o := range append([]remoteObserver(nil), s.remoteObservers...) {
			o.cb()
		}
	}
}

// ApplyFullState replaces state of the scope with a full snapshot:
// the root is re-identified, nodes not mentioned by the snapshot are detached
// and properties missing from the fragments are reset to defaults.
func (s *Scope) ApplyFullState(root *SyncFragment, fragments []*SyncFragment) {
	rootNode := s.Root()
	if rootNode == nil || root == nil {
		return
	}
	s.updateUUID(rootNode, root.ObjectUUID)

	mentioned := mapset.NewThreadUnsafeSet[uuid.UUID](root.ObjectUUID)
	for _, fragment := range fragments {
		mentioned.Add(fragment.ObjectUUID)
	}
	var removals []*model.Node
	for _, node := range s.nodes {
		if !mentioned.Contains(node.UUID()) && node != rootNode {
			removals = append(removals, node)
		}
	}
	for _, node := range removals {
		node.Detach()
	}

	s.ApplySyncFragments(append([]*SyncFragment{root}, fragments...), true)
	s.updateDates = make(map[string]time.Time)
}

// Snapshot returns full state of the scope as a Root fragment followed by
// Add fragments of all other nodes.
func (s *Scope) Snapshot() (root *SyncFragment, fragments []*SyncFragment) {
	rootNode := s.Root()
	if rootNode == nil {
		return nil, nil
	}
	root = NewSyncFragment(Root, rootNode)
	for _, node := range s.nodes[1:] {
		fragments = append(fragments, NewSyncFragment(Add, node))
	}
	return root, fragments
}

func (s *Scope) setRemoteProperty(node *model.Node, key string, v interface{}) {
	if err := node.SetProperty(key, v); err != nil {
		s.log.Warnf("Failed to apply %s.%s: %v", node, key, err)
	}
}

// Modify runs <changes> and groups fragments they generated into a new
// change set. Changes made before the call are flushed into their own
// change set first. See WithAtomic, WithProcedure, WithConstraints and
// WithDescription for options carried by <ctx>.
func (s *Scope) Modify(ctx context.Context, changes func()) *ChangeSet {
	s.SendChanges()
	changes()
	fragments := s.GetAndClearSyncFragments()
	s.changesQueued = false

	changeSet := NewChangeSet(ctx, s, fragments)
	if matcher, withConstraints := IsWithConstraints(ctx); withConstraints && !matcher.MatchesAll(fragments) {
		s.log.WithField("changeSet", changeSet.ID()).Warn("Change set does not match constraints, reverting")
		changeSet.revert("constraints not matched")
		return changeSet
	}
	s.emit(changeSet)
	return changeSet
}

// CreateAtomicChangeSet runs <changes> and sends the generated fragments
// as one atomic change set.
func (s *Scope) CreateAtomicChangeSet(changes func()) *ChangeSet {
	return s.Modify(WithAtomic(context.Background()), changes)
}

// SendChanges flushes pending fragments into a non-atomic change set.
func (s *Scope) SendChanges() {
	if !s.changesQueued {
		return
	}
	s.changesQueued = false
	fragments := s.GetAndClearSyncFragments()
	if len(fragments) == 0 {
		return
	}
	s.emit(NewChangeSet(context.Background(), s, fragments))
}

func (s *Scope) emit(changeSet *ChangeSet) {
	if len(changeSet.Fragments()) == 0 {
		// nothing to synchronize
		changeSet.Completed()
		return
	}
	for _, o := range append([]changeObserver(nil), s.changeObservers...) {
		o.cb(changeSet)
	}
}

// OnChanges registers callback for change sets created by the scope.
func (s *Scope) OnChanges(cb func(*ChangeSet)) ObserverID {
	s.lastObserverID++
	s.changeObservers = append(s.changeObservers, changeObserver{id: s.lastObserverID, cb: cb})
	return s.lastObserverID
}

// OnRemoteSync registers callback fired after remote fragments were applied.
func (s *Scope) OnRemoteSync(cb func()) ObserverID {
	s.lastObserverID++
	s.remoteObservers = append(s.remoteObservers, remoteObserver{id: s.lastObserverID, cb: cb})
	return s.lastObserverID
}

// RemoveObserver unregisters observer added by OnChanges or OnRemoteSync.
func (s *Scope) RemoveObserver(id ObserverID) {
	for i, o := range s.changeObservers {
		if o.id == id {
			s.changeObservers = append(s.changeObservers[:i], s.changeObservers[i+1:]...)
			return
		}
	}
	for i, o := range s.remoteObservers {
		if o.id == id {
			s.remoteObservers = append(s.remoteObservers[:i], s.remoteObservers[i+1:]...)
			return
		}
	}
}

// NodeDump is a printable form of a node.
type NodeDump struct {
	UUID       string
	Class      string
	Root       bool
	Parents    []string
	Properties map[string]interface{}
}

// DumpNodes returns printable form of all nodes of the scope.
func (s *Scope) DumpNodes() []NodeDump {
	var dump []NodeDump
	for _, node := range s.nodes {
		nd := NodeDump{
			UUID:       node.UUID().String(),
			Class:      node.ClassName(),
			Root:       node.IsScopeRoot(),
			Properties: make(map[string]interface{}),
		}
		for _, rel := range node.Parents() {
			nd.Parents = append(nd.Parents, fmt.Sprintf("%s.%s", rel.ParentID, rel.Key))
		}
		sort.Strings(nd.Parents)
		for _, info := range node.Class().Properties() {
			nd.Properties[info.Key] = value.Serialize(info.Kind, node.Get(info.Key))
		}
		dump = append(dump, nd)
	}
	return dump
}

// Dump returns human-readable dump of the scope for debugging.
func (s *Scope) Dump() string {
	return fmt.Sprintf("Scope %q (%d nodes)\n%s", s.name, len(s.nodes), litter.Options{
		HidePrivateFields: true,
		HideZeroValues:    true,
	}.Sdump(s.DumpNodes()))
}
