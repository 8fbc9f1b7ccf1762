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

package model

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// ListenerID is an opaque handle of a registered observer.
type ListenerID uint64

// PropertyChange is fired after a property value changed.
// Old and New are nil for composite properties.
type PropertyChange struct {
	Node *Node
	Key  string
	Old  interface{}
	New  interface{}
}

// CollectionChange is fired for every element added to or removed from
// a RefList property.
type CollectionChange struct {
	Node    *Node
	Key     string
	Element *Node
	Index   int
}

// ParentChange is fired when a parent relationship is added or removed.
type ParentChange struct {
	Child  *Node
	Parent *Node
	Key    string
}

// ScopeChange is fired when the node attaches to or detaches from a scope.
type ScopeChange struct {
	Node  *Node
	Scope Container
}

type changeListener struct {
	id   ListenerID
	keys mapset.Set[string] // nil = all keys
	cb   func(PropertyChange)
}

type collectionListener struct {
	id ListenerID
	cb func(CollectionChange)
}

type parentListener struct {
	id ListenerID
	cb func(ParentChange)
}

type scopeListener struct {
	id ListenerID
	cb func(ScopeChange)
}

type treeListener struct {
	id ListenerID
	cb func(*Node)
}

// observers is a per-node event bus.
type observers struct {
	lastID ListenerID

	change          []changeListener
	addedToColl     []collectionListener
	removedFromColl []collectionListener
	addedParent     []parentListener
	removedParent   []parentListener
	attached        []scopeListener
	detached        []scopeListener
	tree            []treeListener
}

func (o *observers) nextID() ListenerID {
	o.lastID++
	return o.lastID
}

func (o *observers) remove(id ListenerID) bool {
	var removed bool
	o.change = filterChange(o.change, id, &removed)
	o.addedToColl = filterColl(o.addedToColl, id, &removed)
	o.removedFromColl = filterColl(o.removedFromColl, id, &removed)
	o.addedParent = filterParent(o.addedParent, id, &removed)
	o.removedParent = filterParent(o.removedParent, id, &removed)
	o.attached = filterScope(o.attached, id, &removed)
	o.detached = filterScope(o.detached, id, &removed)
	o.tree = filterTree(o.tree, id, &removed)
	return removed
}

func (o *observers) fireChange(ev PropertyChange) {
	for _, l := range append([]changeListener(nil), o.change...) {
		if l.keys == nil || l.keys.Contains(ev.Key) {
			l.cb(ev)
		}
	}
}

func (o *observers) fireCollection(listeners []collectionListener, ev CollectionChange) {
	for _, l := range append([]collectionListener(nil), listeners...) {
		l.cb(ev)
	}
}

func (o *observers) fireParent(listeners []parentListener, ev ParentChange) {
	for _, l := range append([]parentListener(nil), listeners...) {
		l.cb(ev)
	}
}

func (o *observers) fireScope(listeners []scopeListener, ev ScopeChange) {
	for _, l := range append([]scopeListener(nil), listeners...) {
		l.cb(ev)
	}
}

func (o *observers) fireTree(node *Node) {
	for _, l := range append([]treeListener(nil), o.tree...) {
		l.cb(node)
	}
}

func filterChange(ls []changeListener, id ListenerID, removed *bool) []changeListener {
	out := ls[:0]
	for _, l := range ls {
		if l.id == id {
			*removed = true
			continue
		}
		out = append(out, l)
	}
	return out
}

func filterColl(ls []collectionListener, id ListenerID, removed *bool) []collectionListener {
	out := ls[:0]
	for _, l := range ls {
		if l.id == id {
			*removed = true
			continue
		}
		out = append(out, l)
	}
	return out
}

func filterParent(ls []parentListener, id ListenerID, removed *bool) []parentListener {
	out := ls[:0]
	for _, l := range ls {
		if l.id == id {
			*removed = true
			continue
		}
		out = append(out, l)
	}
	return out
}

func filterScope(ls []scopeListener, id ListenerID, removed *bool) []scopeListener {
	out := ls[:0]
	for _, l := range ls {
		if l.id == id {
			*removed = true
			continue
		}
		out = append(out, l)
	}
	return out
}

func filterTree(ls []treeListener, id ListenerID, removed *bool) []treeListener {
	out := ls[:0]
	for _, l := range ls {
		if l.id == id {
			*removed = true
			continue
		}
		out = append(out, l)
	}
	return out
}

// ObserveChange registers callback for changes of any property.
func (n *Node) ObserveChange(cb func(PropertyChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.change = append(n.obs.change, changeListener{id: id, cb: cb})
	return id
}

// ObserveChangeOf registers callback for changes of the given properties only.
func (n *Node) ObserveChangeOf(keys []string, cb func(PropertyChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.change = append(n.obs.change, changeListener{
		id:   id,
		keys: mapset.NewThreadUnsafeSet[string](keys...),
		cb:   cb,
	})
	return id
}

// ObserveCollectionAdd registers callback for elements added into RefList properties.
func (n *Node) ObserveCollectionAdd(cb func(CollectionChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.addedToColl = append(n.obs.addedToColl, collectionListener{id: id, cb: cb})
	return id
}

// ObserveCollectionRemove registers callback for elements removed from RefList properties.
func (n *Node) ObserveCollectionRemove(cb func(CollectionChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.removedFromColl = append(n.obs.removedFromColl, collectionListener{id: id, cb: cb})
	return id
}

// ObserveAddedParent registers callback for new parent relationships.
func (n *Node) ObserveAddedParent(cb func(ParentChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.addedParent = append(n.obs.addedParent, parentListener{id: id, cb: cb})
	return id
}

// ObserveRemovedParent registers callback for removed parent relationships.
func (n *Node) ObserveRemovedParent(cb func(ParentChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.removedParent = append(n.obs.removedParent, parentListener{id: id, cb: cb})
	return id
}

// ObserveAttach registers callback fired when the node joins a scope.
func (n *Node) ObserveAttach(cb func(ScopeChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.attached = append(n.obs.attached, scopeListener{id: id, cb: cb})
	return id
}

// ObserveDetach registers callback fired when the node leaves a scope.
func (n *Node) ObserveDetach(cb func(ScopeChange)) ListenerID {
	id := n.obs.nextID()
	n.obs.detached = append(n.obs.detached, scopeListener{id: id, cb: cb})
	return id
}

// ObserveTreeChange registers callback fired when the node or any node
// below it changes.
func (n *Node) ObserveTreeChange(cb func(*Node)) ListenerID {
	id := n.obs.nextID()
	n.obs.tree = append(n.obs.tree, treeListener{id: id, cb: cb})
	return id
}

// RemoveObserver unregisters observer. Returns false if the handle is unknown.
func (n *Node) RemoveObserver(id ListenerID) bool {
	return n.obs.remove(id)
}
