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
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/value"
)

// testScope is a minimal Container recording membership changes.
type testScope struct {
	name    string
	nodes   map[uuid.UUID]*Node
	added   []*Node
	removed []*Node
}

func newTestScope(name string) *testScope {
	return &testScope{name: name, nodes: make(map[uuid.UUID]*Node)}
}

func (s *testScope) Name() string { return s.name }

func (s *testScope) AddNode(node *Node) {
	s.nodes[node.UUID()] = node
	s.added = append(s.added, node)
}

func (s *testScope) RemoveNode(node *Node) {
	delete(s.nodes, node.UUID())
	s.removed = append(s.removed, node)
}

func (s *testScope) NodeByID(id uuid.UUID) *Node { return s.nodes[id] }

func newTestClass() *Class {
	registry := NewRegistry()
	return registry.MustRegister(ClassDescriptor{
		Name: "TestModel",
		Properties: []PropertyInfo{
			{Key: "string", Kind: value.String},
			{Key: "int", Kind: value.Int64},
			{Key: "float", Kind: value.Float32},
			{Key: "childModel", Kind: value.Ref},
			{Key: "childModel2", Kind: value.Ref},
			{Key: "array", Kind: value.RefList},
			{Key: "localString", Kind: value.String, DontSync: true},
			{
				Key:       "compositeProperty",
				Kind:      value.Composite,
				DependsOn: []string{"float", "array"},
				Compute: func(n *Node) interface{} {
					return fmt.Sprintf("%v %d", n.Get("float"), len(n.GetNodes("array")))
				},
			},
		},
	})
}

func TestSetProperty(t *testing.T) {
	RegisterTestingT(t)

	node := newTestClass().New()
	var changes []PropertyChange
	node.ObserveChange(func(change PropertyChange) {
		changes = append(changes, change)
	})

	Expect(node.Get("int")).To(Equal(int64(0)))
	Expect(node.Get("string")).To(BeNil())

	Expect(node.SetProperty("int", 1)).To(Succeed())
	Expect(node.Get("int")).To(Equal(int64(1)))
	Expect(changes).To(HaveLen(1))
	Expect(changes[0].Key).To(Equal("int"))
	Expect(changes[0].Old).To(Equal(int64(0)))
	Expect(changes[0].New).To(Equal(int64(1)))

	// equal value is a no-op
	Expect(node.SetProperty("int", int64(1))).To(Succeed())
	Expect(changes).To(HaveLen(1))

	err := node.SetProperty("missing", 1)
	Expect(errors.Cause(err)).To(Equal(ErrUnknownProperty))

	err = node.SetProperty("int", "text")
	Expect(errors.Cause(err)).To(Equal(value.ErrInvalidValue))

	err = node.SetProperty("compositeProperty", "x")
	Expect(errors.Cause(err)).To(Equal(ErrReadOnlyProperty))
	Expect(changes).To(HaveLen(1))
}

func TestCompositeDependencies(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	Expect(class.Dependents("float")).To(Equal([]string{"compositeProperty"}))
	Expect(class.Dependents("int")).To(BeEmpty())

	node := class.New()
	var keys []string
	node.ObserveChangeOf([]string{"compositeProperty"}, func(change PropertyChange) {
		keys = append(keys, change.Key)
		Expect(change.Old).To(BeNil())
		Expect(change.New).To(BeNil())
	})

	node.MustSetProperty("float", 1.5)
	node.MustSetProperty("int", 3)
	node.MustSetProperty("array", []*Node{class.New()})
	Expect(keys).To(Equal([]string{"compositeProperty", "compositeProperty"}))
	Expect(node.Get("compositeProperty")).To(Equal("1.5 1"))
}

func TestParentRelationshipsAndScope(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	scope := newTestScope("Testing")
	root, child, grandchild := class.New(), class.New(), class.New()
	root.SetScopeAndMakeRootModel(scope)
	Expect(root.IsScopeRoot()).To(BeTrue())
	Expect(root.Scope()).To(BeIdenticalTo(scope))

	// build detached subtree first
	child.MustSetProperty("childModel", grandchild)
	Expect(grandchild.Scope()).To(BeNil())
	Expect(grandchild.Parents()).To(HaveLen(1))
	Expect(grandchild.Parents()[0].ParentID).To(Equal(child.UUID()))

	var attached []*Node
	grandchild.ObserveAttach(func(ev ScopeChange) {
		attached = append(attached, ev.Node)
	})

	// attaching the subtree propagates scope recursively
	root.MustSetProperty("childModel", child)
	Expect(child.Scope()).To(BeIdenticalTo(scope))
	Expect(grandchild.Scope()).To(BeIdenticalTo(scope))
	Expect(attached).To(ConsistOf(grandchild))
	Expect(scope.nodes).To(HaveLen(3))

	// second parent relationship keeps the node attached
	root.MustSetProperty("childModel2", child)
	Expect(child.Parents()).To(HaveLen(2))
	for _, rel := range child.Parents() {
		Expect(scope.NodeByID(rel.ParentID)).To(BeIdenticalTo(root))
		Expect(rel.Parent()).To(BeIdenticalTo(root))
	}
	root.MustSetProperty("childModel", nil)
	Expect(child.Parents()).To(HaveLen(1))
	Expect(child.Scope()).To(BeIdenticalTo(scope))

	// losing the last parent detaches the whole subtree
	root.MustSetProperty("childModel2", nil)
	Expect(child.HasParents()).To(BeFalse())
	Expect(child.Scope()).To(BeNil())
	Expect(grandchild.Scope()).To(BeNil())
	Expect(grandchild.Parents()).To(HaveLen(1))
	Expect(scope.nodes).To(HaveLen(1))
}

func TestMultipleScopesRejected(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root1, root2, child := class.New(), class.New(), class.New()
	root1.SetScopeAndMakeRootModel(newTestScope("one"))
	root2.SetScopeAndMakeRootModel(newTestScope("two"))

	root1.MustSetProperty("childModel", child)
	err := root2.SetProperty("childModel", child)
	Expect(errors.Cause(err)).To(Equal(ErrMultipleScopes))
	Expect(root2.Get("childModel")).To(BeNil())
	Expect(child.Parents()).To(HaveLen(1))
}

func TestScopedChildOfDetachedNodeRejected(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root1, root2, child := class.New(), class.New(), class.New()
	one, two := newTestScope("one"), newTestScope("two")
	root1.SetScopeAndMakeRootModel(one)
	root2.SetScopeAndMakeRootModel(two)
	root2.MustSetProperty("childModel", child)

	detached := class.New()
	err := detached.SetProperty("childModel", child)
	Expect(errors.Cause(err)).To(Equal(ErrMultipleScopes))
	Expect(detached.Get("childModel")).To(BeNil())
	Expect(child.Parents()).To(HaveLen(1))

	Expect(root1.SetProperty("childModel", detached)).To(Succeed())
	Expect(detached.Scope()).To(BeIdenticalTo(one))
	Expect(child.Scope()).To(BeIdenticalTo(two))
}

func TestDetachedSubtreeSpanningScopesRejected(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root1, root2, middle, child := class.New(), class.New(), class.New(), class.New()
	one, two := newTestScope("one"), newTestScope("two")
	root1.SetScopeAndMakeRootModel(one)
	root2.SetScopeAndMakeRootModel(two)
	root2.MustSetProperty("childModel", middle)
	middle.MustSetProperty("childModel", child)
	root2.MustSetProperty("childModel2", child)

	// middle leaves the scope, child stays referenced from root2
	root2.MustSetProperty("childModel", nil)
	Expect(middle.Scope()).To(BeNil())
	Expect(child.Scope()).To(BeIdenticalTo(two))

	err := root1.SetProperty("array", []*Node{middle})
	Expect(errors.Cause(err)).To(Equal(ErrMultipleScopes))
	Expect(middle.Scope()).To(BeNil())
	Expect(one.nodes).To(HaveLen(1))

	Expect(func() {
		middle.SetScopeAndMakeRootModel(newTestScope("three"))
	}).To(Panic())

	// back in its own scope
	Expect(root2.SetProperty("childModel", middle)).To(Succeed())
	Expect(middle.Scope()).To(BeIdenticalTo(two))
}

func TestReservedScope(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root, child := class.New(), class.New()
	scope := newTestScope("Testing")
	root.SetScopeAndMakeRootModel(scope)
	root.MustSetProperty("childModel", child)

	pending := class.New()
	pending.ReserveScope(scope)
	Expect(pending.SetProperty("childModel", child)).To(Succeed())
	Expect(pending.Scope()).To(BeNil())

	Expect(root.SetProperty("childModel2", pending)).To(Succeed())
	Expect(pending.Scope()).To(BeIdenticalTo(scope))
	Expect(child.Parents()).To(HaveLen(2))

	other := newTestScope("other")
	Expect(func() {
		root.SetScopeAndMakeRootModel(other)
	}).To(Panic())
}

func TestCollectionEvents(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	scope := newTestScope("Testing")
	root := class.New()
	root.SetScopeAndMakeRootModel(scope)
	a, b, c := class.New(), class.New(), class.New()

	var added, removed []CollectionChange
	root.ObserveCollectionAdd(func(ev CollectionChange) { added = append(added, ev) })
	root.ObserveCollectionRemove(func(ev CollectionChange) { removed = append(removed, ev) })

	root.MustSetProperty("array", []*Node{a, b})
	Expect(added).To(HaveLen(2))
	Expect(added[1].Element).To(BeIdenticalTo(b))
	Expect(added[1].Index).To(Equal(1))

	added = nil
	root.MustSetProperty("array", []*Node{b, c})
	Expect(removed).To(HaveLen(1))
	Expect(removed[0].Element).To(BeIdenticalTo(a))
	Expect(removed[0].Index).To(Equal(0))
	Expect(added).To(HaveLen(1))
	Expect(added[0].Element).To(BeIdenticalTo(c))
	Expect(added[0].Index).To(Equal(1))

	Expect(a.Scope()).To(BeNil())
	Expect(b.Scope()).To(BeIdenticalTo(scope))
	Expect(c.Scope()).To(BeIdenticalTo(scope))
	Expect(root.GetNodes("array")).To(Equal([]*Node{b, c}))
}

func TestDetach(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	scope := newTestScope("Testing")
	root, child := class.New(), class.New()
	root.SetScopeAndMakeRootModel(scope)
	root.MustSetProperty("childModel", child)
	root.MustSetProperty("array", []*Node{child})

	var removedParents []string
	child.ObserveRemovedParent(func(ev ParentChange) {
		removedParents = append(removedParents, ev.Key)
	})

	child.Detach()
	Expect(root.Get("childModel")).To(BeNil())
	Expect(root.GetNodes("array")).To(BeEmpty())
	Expect(removedParents).To(ConsistOf("childModel", "array"))
	Expect(child.Scope()).To(BeNil())
	Expect(scope.removed).To(ConsistOf(child))
}

func TestTreeChangeAndObservers(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root, child := class.New(), class.New()
	root.MustSetProperty("childModel", child)

	var treeChanges int
	id := root.ObserveTreeChange(func(*Node) { treeChanges++ })

	child.MustSetProperty("int", 5)
	Expect(treeChanges).To(Equal(1))

	Expect(root.RemoveObserver(id)).To(BeTrue())
	Expect(root.RemoveObserver(id)).To(BeFalse())
	child.MustSetProperty("int", 6)
	Expect(treeChanges).To(Equal(1))
}

func TestSetUUID(t *testing.T) {
	RegisterTestingT(t)

	class := newTestClass()
	root, child := class.New(), class.New()
	root.MustSetProperty("childModel", child)

	id := uuid.New()
	root.SetUUID(id)
	Expect(root.UUID()).To(Equal(id))
	Expect(child.Parents()[0].ParentID).To(Equal(id))
}

func TestRegistry(t *testing.T) {
	RegisterTestingT(t)

	registry := NewRegistry()
	_, err := registry.Register(ClassDescriptor{Name: "A", Properties: []PropertyInfo{
		{Key: "n", Kind: value.Int32, Default: 7},
	}})
	Expect(err).ToNot(HaveOccurred())

	_, err = registry.Register(ClassDescriptor{Name: "A"})
	Expect(errors.Cause(err)).To(Equal(ErrClassExists))

	_, err = registry.Register(ClassDescriptor{Name: "B", Properties: []PropertyInfo{
		{Key: "c", Kind: value.Composite, DependsOn: []string{"missing"}, Compute: func(*Node) interface{} { return nil }},
	}})
	Expect(errors.Cause(err)).To(Equal(ErrInvalidDescriptor))

	id := uuid.New()
	node, err := registry.New("A", id)
	Expect(err).ToNot(HaveOccurred())
	Expect(node.UUID()).To(Equal(id))
	Expect(node.Get("n")).To(Equal(int32(7)))

	_, err = registry.New("C", id)
	Expect(errors.Cause(err)).To(Equal(ErrUnknownClass))
	Expect(registry.ClassNames()).To(Equal([]string{"A"}))
}
