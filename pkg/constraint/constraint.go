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

// Package constraint implements predicates describing the expected shape
// of a batch of sync fragments.
package constraint

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/pkg/value"
)

// ArrayOperation is a kind of change applied to a list property.
type ArrayOperation int

const (
	// Insert means the list grew.
	Insert ArrayOperation = iota
	// Remove means the list shrank.
	Remove
)

type hasNewValue struct{}

type arrayConstraint struct {
	op ArrayOperation
}

var (
	// HasNewValue used as a property value of a constraint matches any valid
	// new value (including nil) of the property.
	HasNewValue interface{} = hasNewValue{}

	// ArrayInsert used as a property value of a constraint matches a list
	// property that gained elements.
	ArrayInsert interface{} = arrayConstraint{op: Insert}

	// ArrayRemove used as a property value of a constraint matches a list
	// property that lost elements.
	ArrayRemove interface{} = arrayConstraint{op: Remove}
)

// Constraint describes a fragment of the given type and class, optionally
// with the given property values.
type Constraint struct {
	Type      scope.FragmentType
	ClassName string

	// Properties maps property keys to expected values (wire representation)
	// or to one of the markers HasNewValue, ArrayInsert, ArrayRemove.
	Properties map[string]interface{}

	// Strict disallows fragment properties not listed in Properties.
	Strict bool
}

// Matches validates the constraint against a fragment. Classes are looked up
// in model.DefaultRegistry.
func (c *Constraint) Matches(fragment *scope.SyncFragment) bool {
	return c.matches(model.DefaultRegistry, fragment)
}

func (c *Constraint) matches(registry *model.Registry, fragment *scope.SyncFragment) bool {
	if c.Type != fragment.Type || fragment.ClassName == "" || c.ClassName != fragment.ClassName {
		return false
	}
	if len(c.Properties) == 0 {
		return !c.Strict || len(fragment.Properties) == 0
	}

	class, known := registry.Lookup(fragment.ClassName)
	if !known || fragment.Properties == nil {
		return false
	}
	keys := mapset.NewThreadUnsafeSetFromMapKeys(fragment.Properties)
	if c.Strict && keys.Cardinality() != len(c.Properties) {
		return false
	}

	for key, expected := range c.Properties {
		if !keys.Contains(key) {
			return false
		}
		info, declared := class.Property(key)
		if !declared {
			return false
		}
		actual := fragment.Properties[key]

		switch marker := expected.(type) {
		case hasNewValue:
			if actual != nil && !isValid(info.Kind, actual) {
				return false
			}
		case arrayConstraint:
			if !c.matchesArray(marker.op, actual, fragment.OriginalProperties[key]) {
				return false
			}
		default:
			if !valuesEqual(info.Kind, expected, actual) {
				return false
			}
		}
	}
	return true
}

func (c *Constraint) matchesArray(op ArrayOperation, actual, original interface{}) bool {
	length, isList := listLen(actual)
	if !isList {
		return false
	}
	switch c.Type {
	case scope.Add:
		// only insert of actual elements makes sense for a new node
		return op == Insert && length > 0
	case scope.Change:
		originalLength, isList := listLen(original)
		if !isList {
			return false
		}
		if op == Insert {
			return length > originalLength
		}
		return length < originalLength
	}
	return false
}

// MatchesAll returns true if every fragment is matched by some constraint.
// Each constraint consumes all fragments it matches.
func MatchesAll(constraints []*Constraint, fragments []*scope.SyncFragment) bool {
	return Set{Constraints: constraints}.MatchesAll(fragments)
}

// Set is a list of constraints usable with scope.WithConstraints.
type Set struct {
	Constraints []*Constraint

	// Registry used to look up classes, model.DefaultRegistry if nil.
	Registry *model.Registry
}

// MatchesAll returns true if every fragment is matched by some constraint
// of the set.
func (s Set) MatchesAll(fragments []*scope.SyncFragment) bool {
	registry := s.Registry
	if registry == nil {
		registry = model.DefaultRegistry
	}
	unmatched := fragments
	for _, c := range s.Constraints {
		var remaining []*scope.SyncFragment
		for _, fragment := range unmatched {
			if !c.matches(registry, fragment) {
				remaining = append(remaining, fragment)
			}
		}
		unmatched = remaining
	}
	return len(unmatched) == 0
}

func isValid(kind value.Kind, raw interface{}) bool {
	switch kind {
	case value.Ref:
		_, err := uuid.Parse(asString(raw))
		return err == nil
	case value.RefList:
		_, isList := listLen(raw)
		return isList
	}
	_, err := value.Unserialize(kind, raw, nil)
	return err == nil
}

func valuesEqual(kind value.Kind, expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if kind.IsReference() {
		// references are compared by identity
		return value.Equal(refIDs(expected), refIDs(actual))
	}
	e, err := value.Unserialize(kind, expected, nil)
	if err != nil {
		return false
	}
	a, err := value.Unserialize(kind, actual, nil)
	if err != nil {
		return false
	}
	return value.Equal(e, a)
}

type refID uuid.UUID

func (id refID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

// refIDs turns a serialized reference or reference list into comparable
// objects.
func refIDs(raw interface{}) []value.Object {
	var ids []value.Object
	appendID := func(item interface{}) {
		switch v := item.(type) {
		case value.Object:
			ids = append(ids, refID(v.UUID()))
		default:
			if id, err := uuid.Parse(asString(v)); err == nil {
				ids = append(ids, refID(id))
			}
		}
	}
	switch list := raw.(type) {
	case []interface{}:
		for _, item := range list {
			appendID(item)
		}
	case []value.Object:
		for _, item := range list {
			appendID(item)
		}
	default:
		appendID(raw)
	}
	return ids
}

func listLen(raw interface{}) (int, bool) {
	switch list := raw.(type) {
	case []interface{}:
		return len(list), true
	case []value.Object:
		return len(list), true
	case []string:
		return len(list), true
	}
	return 0, false
}

func asString(raw interface{}) string {
	s, _ := raw.(string)
	return s
}
