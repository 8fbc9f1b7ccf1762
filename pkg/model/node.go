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
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/value"
)

// Container is implemented by scopes. A scope is the only owner of the nodes
// it contains; nodes keep just a back-reference to it.
type Container interface {
	// Name returns the scope name.
	Name() string

	// AddNode is called when the node joins the scope.
	AddNode(node *Node)

	// RemoveNode is called when the node leaves the scope.
	RemoveNode(node *Node)

	// NodeByID returns node of the scope with the given UUID.
	NodeByID(id uuid.UUID) *Node
}

// ParentRelationship is one (parent, key) pair under which a node is
// referenced.
type ParentRelationship struct {
	ParentID uuid.UUID
	Key      string

	parent *Node
}

// Parent returns the parent node. Detached parents are in no scope to look
// them up by ParentID, so the relationship holds the node itself. For
// attached parents both resolve to the same node.
func (r ParentRelationship) Parent() *Node {
	return r.parent
}

// Node is an identified record with typed properties (object of the synced
// graph).
type Node struct {
	id      uuid.UUID
	class   *Class
	values  map[string]interface{}
	parents []ParentRelationship
	scope   Container
	root    bool
	obs     observers

	// scope a detached node constructed from remote fragments is about to join
	reserved Container
}

// NewNode creates a node of the given class with a fresh UUID.
func NewNode(class *Class) *Node {
	return NewNodeWithUUID(class, uuid.New())
}

// NewNodeWithUUID creates a node of the given class with the given UUID.
// All properties are initialized to their defaults.
func NewNodeWithUUID(class *Class, id uuid.UUID) *Node {
	n := &Node{
		id:     id,
		class:  class,
		values: make(map[string]interface{}, len(class.props)),
	}
	for _, info := range class.props {
		if info.Kind != value.Composite {
			n.values[info.Key] = info.Default
		}
	}
	return n
}

// UUID returns identity of the node.
func (n *Node) UUID() uuid.UUID {
	return n.id
}

// SetUUID re-identifies the node. Only the scope owning the node may use it,
// when the server assigns identity to the scope root.
func (n *Node) SetUUID(id uuid.UUID) {
	n.id = id
	for _, child := range n.Children() {
		for i := range child.parents {
			if child.parents[i].parent == n {
				child.parents[i].ParentID = id
			}
		}
	}
}

// Class returns class of the node.
func (n *Node) Class() *Class {
	return n.class
}

// ClassName returns name of the node class.
func (n *Node) ClassName() string {
	return n.class.name
}

// Scope returns scope the node belongs to (nil if detached).
func (n *Node) Scope() Container {
	return n.scope
}

// IsScopeRoot returns true if the node is root of its scope.
func (n *Node) IsScopeRoot() bool {
	return n.root
}

// Parents returns a copy of the parent relationships.
func (n *Node) Parents() []ParentRelationship {
	return append([]ParentRelationship(nil), n.parents...)
}

// HasParents returns true if the node is referenced from at least one parent.
func (n *Node) HasParents() bool {
	return len(n.parents) > 0
}

// String returns short human-readable identification of the node.
func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.class.name, n.id)
}

// Get returns current value of the property (nil for unknown keys).
func (n *Node) Get(key string) interface{} {
	info, has := n.class.byKey[key]
	if !has {
		return nil
	}
	if info.Kind == value.Composite {
		return info.Compute(n)
	}
	return n.values[key]
}

// GetNode returns node referenced by a Ref property.
func (n *Node) GetNode(key string) *Node {
	return asNode(n.Get(key))
}

// GetNodes returns nodes referenced by a RefList property.
func (n *Node) GetNodes(key string) []*Node {
	var nodes []*Node
	for _, obj := range value.Objects(n.Get(key)) {
		if node := asNode(obj); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Children returns all nodes referenced from the node's properties,
// each node once, in declaration order of the properties.
func (n *Node) Children() []*Node {
	var (
		children []*Node
		seen     = make(map[*Node]struct{})
	)
	for _, info := range n.class.props {
		if !info.Kind.IsReference() {
			continue
		}
		for _, obj := range value.Objects(n.values[info.Key]) {
			child := asNode(obj)
			if child == nil {
				continue
			}
			if _, dup := seen[child]; dup {
				continue
			}
			seen[child] = struct{}{}
			children = append(children, child)
		}
	}
	return children
}

// SetProperty sets value of the property. Setting a value equal to the
// current one is a no-op. Ref and RefList properties accept *Node and
// []*Node in addition to value.Object and []value.Object.
func (n *Node) SetProperty(key string, v interface{}) error {
	info, has := n.class.byKey[key]
	if !has {
		return errors.Wrapf(ErrUnknownProperty, "%s.%s", n.class.name, key)
	}
	if info.Kind == value.Composite {
		return errors.Wrapf(ErrReadOnlyProperty, "%s.%s", n.class.name, key)
	}
	newValue, err := value.Convert(info.Kind, normalize(v))
	if err != nil {
		return errors.Wrapf(err, "%s.%s", n.class.name, key)
	}
	oldValue := n.values[key]
	if value.Equal(oldValue, newValue) {
		return nil
	}
	if info.Kind.IsReference() {
		if err := n.checkChildren(key, newValue); err != nil {
			return err
		}
	}
	n.values[key] = newValue
	n.keyChanged(info, oldValue, newValue)
	return nil
}

// MustSetProperty is like SetProperty but panics on error.
func (n *Node) MustSetProperty(key string, v interface{}) {
	if err := n.SetProperty(key, v); err != nil {
		panic(err)
	}
}

// SetScopeAndMakeRootModel detaches the node from its parents and makes it
// root of the given scope.
// It panics with ErrMultipleScopes if the node or its subtree belongs
// to another scope.
func (n *Node) SetScopeAndMakeRootModel(scope Container) {
	n.Detach()
	if node, other := n.foreignScope(scope, make(map[*Node]struct{})); other != nil {
		panic(errors.Wrapf(ErrMultipleScopes, "%s belongs to scope %s", node, other.Name()))
	}
	n.root = true
	n.setScope(scope)
}

// DemoteScopeRoot removes the node from its scope, which leaves the scope
// without nodes.
func (n *Node) DemoteScopeRoot() {
	if !n.root {
		return
	}
	n.root = false
	n.setScope(nil)
}

// Detach removes the node from all its parents.
func (n *Node) Detach() {
	for len(n.parents) > 0 {
		rel := n.parents[0]
		rel.parent.removeChild(rel.Key, n)
		// parent did not reference the node (anymore)
		if len(n.parents) > 0 && n.parents[0].parent == rel.parent && n.parents[0].Key == rel.Key {
			n.removeParentRelationship(rel.parent, rel.Key)
		}
	}
}

// ReserveScope lets a detached node reference nodes of <scope> before
// it joins it. The reservation ends once the node joins a scope.
func (n *Node) ReserveScope(scope Container) {
	if n.scope == nil {
		n.reserved = scope
	}
}

func (n *Node) targetScope() Container {
	if n.scope != nil {
		return n.scope
	}
	return n.reserved
}

// checkChildren rejects children that are, or have detached descendants
// that are, in a scope other than the one of the node.
func (n *Node) checkChildren(key string, v interface{}) error {
	target := n.targetScope()
	visited := map[*Node]struct{}{n: {}}
	for _, obj := range value.Objects(v) {
		child := asNode(obj)
		if child == nil {
			return errors.Wrapf(value.ErrInvalidValue, "%s.%s: %T is not a node", n.class.name, key, obj)
		}
		if node, other := child.foreignScope(target, visited); other != nil {
			return errors.Wrapf(ErrMultipleScopes, "%s.%s: %s belongs to scope %s",
				n.class.name, key, node, other.Name())
		}
	}
	return nil
}

// foreignScope returns the first node of the subtree that belongs to a scope
// other than <target>. Subtrees of nodes already in <target> are not walked.
func (n *Node) foreignScope(target Container, visited map[*Node]struct{}) (*Node, Container) {
	if _, done := visited[n]; done {
		return nil, nil
	}
	visited[n] = struct{}{}
	if n.scope != nil {
		if n.scope != target {
			return n, n.scope
		}
		return nil, nil
	}
	for _, child := range n.Children() {
		if node, other := child.foreignScope(target, visited); other != nil {
			return node, other
		}
	}
	return nil, nil
}

func (n *Node) keyChanged(info *PropertyInfo, oldValue, newValue interface{}) {
	switch info.Kind {
	case value.Ref:
		if child := asNode(oldValue); child != nil {
			child.removeParentRelationship(n, info.Key)
		}
		if child := asNode(newValue); child != nil {
			child.addParentRelationship(n, info.Key)
		}
	case value.RefList:
		oldList, newList := value.Objects(oldValue), value.Objects(newValue)
		for idx, obj := range oldList {
			if containsObject(newList, obj) {
				continue
			}
			child := asNode(obj)
			child.removeParentRelationship(n, info.Key)
			n.obs.fireCollection(n.obs.removedFromColl, CollectionChange{Node: n, Key: info.Key, Element: child, Index: idx})
		}
		for idx, obj := range newList {
			if containsObject(oldList, obj) {
				continue
			}
			child := asNode(obj)
			child.addParentRelationship(n, info.Key)
			n.obs.fireCollection(n.obs.addedToColl, CollectionChange{Node: n, Key: info.Key, Element: child, Index: idx})
		}
	}

	n.obs.fireChange(PropertyChange{Node: n, Key: info.Key, Old: oldValue, New: newValue})
	for _, composite := range n.class.Dependents(info.Key) {
		n.obs.fireChange(PropertyChange{Node: n, Key: composite})
	}
	n.propagateTreeChange(make(map[*Node]struct{}))
}

func (n *Node) addParentRelationship(parent *Node, key string) {
	if n.parentIndex(parent, key) >= 0 {
		return
	}
	n.parents = append(n.parents, ParentRelationship{ParentID: parent.id, Key: key, parent: parent})
	n.obs.fireParent(n.obs.addedParent, ParentChange{Child: n, Parent: parent, Key: key})

	if parent.scope != nil && n.scope == nil {
		n.setScope(parent.scope)
	}
}

func (n *Node) removeParentRelationship(parent *Node, key string) {
	idx := n.parentIndex(parent, key)
	if idx < 0 {
		return
	}
	n.parents = append(n.parents[:idx], n.parents[idx+1:]...)
	n.obs.fireParent(n.obs.removedParent, ParentChange{Child: n, Parent: parent, Key: key})

	if n.scope != nil && !n.root && !n.hasScopedParent() {
		n.setScope(nil)
	}
}

func (n *Node) parentIndex(parent *Node, key string) int {
	for i, rel := range n.parents {
		if rel.parent == parent && rel.Key == key {
			return i
		}
	}
	return -1
}

func (n *Node) hasScopedParent() bool {
	for _, rel := range n.parents {
		if rel.parent.scope != nil {
			return true
		}
	}
	return false
}

// removeChild clears reference to <child> stored under <key>.
func (n *Node) removeChild(key string, child *Node) {
	info, has := n.class.byKey[key]
	if !has {
		return
	}
	switch info.Kind {
	case value.Ref:
		if asNode(n.values[key]) == child {
			n.MustSetProperty(key, nil)
		}
	case value.RefList:
		var remaining []value.Object
		for _, obj := range value.Objects(n.values[key]) {
			if asNode(obj) != child {
				remaining = append(remaining, obj)
			}
		}
		n.MustSetProperty(key, remaining)
	}
}

func (n *Node) setScope(scope Container) {
	if n.scope == scope {
		return
	}
	if oldScope := n.scope; oldScope != nil {
		n.scope = nil
		oldScope.RemoveNode(n)
		n.obs.fireScope(n.obs.detached, ScopeChange{Node: n, Scope: oldScope})
	}
	if scope != nil {
		n.scope = scope
		n.reserved = nil
		scope.AddNode(n)
		n.obs.fireScope(n.obs.attached, ScopeChange{Node: n, Scope: scope})
	}

	for _, child := range n.Children() {
		if scope != nil {
			if child.scope == nil {
				child.setScope(scope)
			}
		} else if child.scope != nil && !child.root && !child.hasScopedParent() {
			child.setScope(nil)
		}
	}
}

func (n *Node) propagateTreeChange(visited map[*Node]struct{}) {
	if _, done := visited[n]; done {
		return
	}
	visited[n] = struct{}{}
	n.obs.fireTree(n)
	for _, rel := range n.parents {
		rel.parent.propagateTreeChange(visited)
	}
}

func asNode(v interface{}) *Node {
	node, _ := v.(*Node)
	return node
}

func containsObject(list []value.Object, obj value.Object) bool {
	for _, o := range list {
		if o == obj {
			return true
		}
	}
	return false
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case *Node:
		if val == nil {
			return nil
		}
	case []*Node:
		objs := make([]value.Object, 0, len(val))
		for _, node := range val {
			objs = append(objs, node)
		}
		return objs
	}
	return v
}
