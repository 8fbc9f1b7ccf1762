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
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/model/testmodel"
)

// parent (root) -> child
func fragmentTestSetup() (s *Scope, parent, child *model.Node) {
	parent = testmodel.New()
	child = testmodel.New()
	parent.MustSetProperty("childModel", child)
	s = New("Testing")
	parent.SetScopeAndMakeRootModel(s)
	return s, parent, child
}

func mustUnserialize(data map[string]interface{}) *SyncFragment {
	fragment, err := UnserializeFragment(data)
	Expect(err).ShouldNot(HaveOccurred())
	return fragment
}

func TestUnserializeFragmentFailures(t *testing.T) {
	RegisterTestingT(t)
	_, _, child := fragmentTestSetup()

	_, err := UnserializeFragment(map[string]interface{}{
		"uuid": child.UUID().String(),
	})
	Expect(errors.Cause(err)).To(Equal(ErrInvalidFragment))

	_, err = UnserializeFragment(map[string]interface{}{
		"type": "remove",
	})
	Expect(errors.Cause(err)).To(Equal(ErrInvalidFragment))

	_, err = UnserializeFragment(map[string]interface{}{
		"type":       "add",
		"uuid":       uuid.New().String(),
		"properties": map[string]interface{}{"string": "set correctly"},
	})
	Expect(errors.Cause(err)).To(Equal(ErrInvalidFragment))

	_, err = UnserializeFragment(map[string]interface{}{
		"type": "change",
		"uuid": "not-an-uuid",
	})
	Expect(errors.Cause(err)).To(Equal(ErrInvalidFragment))
}

func TestFragmentSerialization(t *testing.T) {
	RegisterTestingT(t)
	_, parent, child := fragmentTestSetup()
	child.MustSetProperty("string", "hello")

	data := NewSyncFragment(Add, child).Serialize()
	Expect(data["type"]).To(Equal("add"))
	Expect(data["uuid"]).To(Equal(child.UUID().String()))
	Expect(data["cls"]).To(Equal(testmodel.TestModelClass))
	props := data["properties"].(map[string]interface{})
	Expect(props["string"]).To(Equal("hello"))
	Expect(props).ToNot(HaveKey("localString"))
	Expect(props).ToNot(HaveKey("compositeProperty"))

	data = (&SyncFragment{Type: Remove, ObjectUUID: child.UUID(), ClassName: "TestModel"}).Serialize()
	Expect(data).ToNot(HaveKey("cls"))
	Expect(data).ToNot(HaveKey("properties"))

	// legacy class key and upper-case uuid key
	fragment := mustUnserialize(map[string]interface{}{
		"type":    "root",
		"UUID":    parent.UUID().String(),
		"clsName": "TestModel",
	})
	Expect(fragment.Type).To(Equal(Root))
	Expect(fragment.ClassName).To(Equal("TestModel"))
	Expect(fragment.ObjectUUID).To(Equal(parent.UUID()))
}

func TestApplyChangeFragment(t *testing.T) {
	RegisterTestingT(t)
	s, parent, child := fragmentTestSetup()

	fragment := mustUnserialize(map[string]interface{}{
		"type":       "change",
		"uuid":       child.UUID().String(),
		"properties": map[string]interface{}{"string": "testing", "int": 20},
	})
	Expect(fragment.ObjectUUID).To(Equal(child.UUID()))
	Expect(fragment.Properties).To(HaveLen(2))

	fragment.ApplyToScope(s, false)
	Expect(parent.GetNode("childModel").Get("string")).To(Equal("testing"))
	Expect(parent.GetNode("childModel").Get("int")).To(Equal(int64(20)))

	// change of an unknown node is ignored
	mustUnserialize(map[string]interface{}{
		"type":       "change",
		"uuid":       uuid.New().String(),
		"properties": map[string]interface{}{"string": "ignored"},
	}).ApplyToScope(s, false)
	Expect(s.Nodes()).To(HaveLen(2))
}

func TestApplyAddFragment(t *testing.T) {
	RegisterTestingT(t)
	s, _, child := fragmentTestSetup()
	id := uuid.New()

	add := mustUnserialize(map[string]interface{}{
		"type":       "add",
		"uuid":       id.String(),
		"properties": map[string]interface{}{"string": "set correctly"},
		"clsName":    "TestModel",
	})
	change := mustUnserialize(map[string]interface{}{
		"type":       "change",
		"uuid":       child.UUID().String(),
		"properties": map[string]interface{}{"childModel": id.String()},
	})
	Expect(add.ObjectUUID).To(Equal(id))
	Expect(add.ClassName).To(Equal("TestModel"))

	s.ApplySyncFragments([]*SyncFragment{add, change}, false)
	added := child.GetNode("childModel")
	Expect(added).ToNot(BeNil())
	Expect(added.UUID()).To(Equal(id))
	Expect(added.Parents()[0].Parent()).To(BeIdenticalTo(child))
	Expect(added.Scope()).To(BeIdenticalTo(s))
	Expect(added.Get("string")).To(Equal("set correctly"))
	Expect(s.Nodes()).To(HaveLen(3))

	// applying the same add again does not duplicate anything
	s.ApplySyncFragments([]*SyncFragment{add, change}, false)
	Expect(s.Nodes()).To(HaveLen(3))
	Expect(added.Parents()).To(HaveLen(1))
	Expect(s.NodeByID(id)).To(BeIdenticalTo(added))
}

func TestApplyAddReferencingScopedNode(t *testing.T) {
	RegisterTestingT(t)
	s, parent, child := fragmentTestSetup()
	id := uuid.New()

	s.ApplySyncFragments([]*SyncFragment{
		mustUnserialize(map[string]interface{}{
			"type":       "add",
			"uuid":       id.String(),
			"cls":        "TestModel",
			"properties": map[string]interface{}{"childModel": child.UUID().String()},
		}),
		mustUnserialize(map[string]interface{}{
			"type":       "change",
			"uuid":       parent.UUID().String(),
			"properties": map[string]interface{}{"childModel2": id.String()},
		}),
	}, false)

	added := parent.GetNode("childModel2")
	Expect(added).ToNot(BeNil())
	Expect(added.Scope()).To(BeIdenticalTo(s))
	Expect(added.GetNode("childModel")).To(BeIdenticalTo(child))
	Expect(child.Parents()).To(HaveLen(2))
}

func TestApplyAddToArray(t *testing.T) {
	RegisterTestingT(t)
	s, _, child := fragmentTestSetup()
	id := uuid.New()

	s.ApplySyncFragments([]*SyncFragment{
		mustUnserialize(map[string]interface{}{
			"type":       "add",
			"uuid":       id.String(),
			"properties": map[string]interface{}{"string": "set correctly"},
			"cls":        "TestModel",
		}),
		mustUnserialize(map[string]interface{}{
			"type":       "change",
			"uuid":       child.UUID().String(),
			"properties": map[string]interface{}{"array": []interface{}{id.String()}},
		}),
	}, false)

	array := child.GetNodes("array")
	Expect(array).To(HaveLen(1))
	Expect(array[0].Parents()[0].Parent()).To(BeIdenticalTo(child))
	Expect(array[0].Scope()).To(BeIdenticalTo(s))
	Expect(array[0].Get("string")).To(Equal("set correctly"))
	Expect(s.Nodes()).To(HaveLen(3))
}

func TestApplyNullValues(t *testing.T) {
	RegisterTestingT(t)
	s, _, child := fragmentTestSetup()

	fragment := mustUnserialize(map[string]interface{}{
		"type": "change",
		"uuid": child.UUID().String(),
		"properties": map[string]interface{}{
			"array":  nil,
			"string": nil,
			"int":    nil,
			"float":  nil,
			"int32":  nil,
		},
	})

	child.MustSetProperty("string", "test")
	child.MustSetProperty("int", 10)
	child.MustSetProperty("float", 10.0)
	child.MustSetProperty("int32", 10)

	s.ApplySyncFragments([]*SyncFragment{fragment}, false)
	Expect(child.Get("string")).To(BeNil())
	Expect(child.Get("int")).To(Equal(int64(10)))
	Expect(child.Get("float")).To(Equal(float32(10)))
	Expect(child.Get("int32")).To(Equal(int32(10)))
}

func TestApplyInvalidValues(t *testing.T) {
	RegisterTestingT(t)
	s, _, child := fragmentTestSetup()

	fragment := mustUnserialize(map[string]interface{}{
		"type": "change",
		"uuid": child.UUID().String(),
		"properties": map[string]interface{}{
			"string": 10,
			"int":    "5",
			"float":  "whatever",
			"int32":  5.5,
		},
	})

	child.MustSetProperty("string", "test")
	child.MustSetProperty("int", 10)
	child.MustSetProperty("float", 10.0)
	child.MustSetProperty("int32", 10)

	s.ApplySyncFragments([]*SyncFragment{fragment}, false)
	Expect(child.Get("string")).To(BeNil())
	Expect(child.Get("int")).To(Equal(int64(10)))
	Expect(child.Get("float")).To(Equal(float32(10)))
	Expect(child.Get("int32")).To(Equal(int32(5)))
}

func TestUnresolvedReferencesDegrade(t *testing.T) {
	RegisterTestingT(t)
	s, parent, child := fragmentTestSetup()
	other := testmodel.New()
	parent.MustSetProperty("array", []*model.Node{other})

	mustUnserialize(map[string]interface{}{
		"type": "change",
		"uuid": parent.UUID().String(),
		"properties": map[string]interface{}{
			"childModel": uuid.New().String(),
			"array":      []interface{}{uuid.New().String(), other.UUID().String()},
		},
	}).ApplyToScope(s, false)

	Expect(parent.Get("childModel")).To(BeNil())
	Expect(child.Scope()).To(BeNil())
	Expect(parent.GetNodes("array")).To(Equal([]*model.Node{other}))
}

func TestApplyRemoveFragment(t *testing.T) {
	RegisterTestingT(t)
	s, parent, child := fragmentTestSetup()

	remove := mustUnserialize(map[string]interface{}{
		"type": "remove",
		"uuid": child.UUID().String(),
	})
	remove.ApplyToScope(s, false)
	Expect(parent.Get("childModel")).To(BeNil())
	Expect(s.Nodes()).To(HaveLen(1))

	// root is never removed
	mustUnserialize(map[string]interface{}{
		"type": "remove",
		"uuid": parent.UUID().String(),
	}).ApplyToScope(s, false)
	Expect(s.Root()).To(BeIdenticalTo(parent))
}

func TestApplyRootFragment(t *testing.T) {
	RegisterTestingT(t)
	s, parent, _ := fragmentTestSetup()
	id := uuid.New()

	mustUnserialize(map[string]interface{}{
		"type":       "root",
		"uuid":       id.String(),
		"cls":        "TestModel",
		"properties": map[string]interface{}{"string": "root"},
	}).ApplyToScope(s, false)

	Expect(parent.UUID()).To(Equal(id))
	Expect(s.NodeByID(id)).To(BeIdenticalTo(parent))
	Expect(parent.Get("string")).To(Equal("root"))
}

func TestApplyToScopeWithoutRoot(t *testing.T) {
	RegisterTestingT(t)
	s := New("Empty")

	mustUnserialize(map[string]interface{}{
		"type": "add",
		"uuid": uuid.New().String(),
		"cls":  "TestModel",
	}).ApplyToScope(s, false)
	Expect(s.Nodes()).To(BeEmpty())
}
