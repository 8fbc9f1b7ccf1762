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
	"fmt"

	"github.com/google/uuid"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/value"
)

// FragmentType enumerates kinds of sync fragments.
type FragmentType string

const (
	// Root fragment carries state of the scope root.
	Root FragmentType = "root"

	// Add fragment creates a node.
	Add FragmentType = "add"

	// Change fragment updates properties of an existing node.
	Change FragmentType = "change"

	// Remove fragment detaches a node.
	Remove FragmentType = "remove"
)

func (t FragmentType) isValid() bool {
	switch t {
	case Root, Add, Change, Remove:
		return true
	}
	return false
}

// SyncFragment is a diff describing creation, mutation or removal of one node.
type SyncFragment struct {
	Type       FragmentType
	ObjectUUID uuid.UUID

	// ClassName is mandatory for Root and Add fragments.
	ClassName string

	// Properties are in the wire representation (see value.Serialize).
	Properties map[string]interface{}

	// OriginalProperties holds values (not serialized) the changed properties
	// had before the first change recorded by this fragment.
	OriginalProperties map[string]interface{}
}

// NewSyncFragment creates fragment of the given type for the node.
// Add and Root fragments are seeded with all synced properties of the node.
func NewSyncFragment(fragmentType FragmentType, node *model.Node) *SyncFragment {
	fragment := &SyncFragment{
		Type:       fragmentType,
		ObjectUUID: node.UUID(),
		ClassName:  node.ClassName(),
	}
	if fragmentType == Add || fragmentType == Root {
		fragment.Properties = make(map[string]interface{})
		for _, info := range node.Class().Properties() {
			if !info.IsSynced() {
				continue
			}
			fragment.Properties[info.Key] = value.Serialize(info.Kind, node.Get(info.Key))
		}
	}
	return fragment
}

// String returns short human-readable description of the fragment.
func (f *SyncFragment) String() string {
	return fmt.Sprintf("%s %s(%s) %d properties", f.Type, f.ClassName, f.ObjectUUID, len(f.Properties))
}

// Serialize returns wire representation of the fragment.
func (f *SyncFragment) Serialize() map[string]interface{} {
	data := map[string]interface{}{
		"type": string(f.Type),
		"uuid": f.ObjectUUID.String(),
	}
	if f.ClassName != "" && (f.Type == Root || f.Type == Add) {
		data["cls"] = f.ClassName
	}
	if f.Properties != nil && f.Type != Remove {
		data["properties"] = f.Properties
	}
	return data
}

// UnserializeFragment builds fragment from its wire representation.
// Type and uuid are mandatory, cls is mandatory for Root and Add fragments.
func UnserializeFragment(data map[string]interface{}) (*SyncFragment, error) {
	var (
		fragment    = &SyncFragment{}
		hasUUID     bool
		unknownKeys []string
	)
	for key, raw := range data {
		switch key {
		case "type":
			if s, ok := raw.(string); ok {
				fragment.Type = FragmentType(s)
			}
		case "uuid", "UUID":
			if s, ok := raw.(string); ok {
				id, err := uuid.Parse(s)
				if err != nil {
					return nil, errors.Wrapf(ErrInvalidFragment, "uuid %q: %v", s, err)
				}
				fragment.ObjectUUID = id
				hasUUID = true
			}
		case "cls", "clsName":
			if s, ok := raw.(string); ok {
				fragment.ClassName = s
			}
		case "properties":
			if props, ok := raw.(map[string]interface{}); ok {
				fragment.Properties = props
			}
		default:
			unknownKeys = append(unknownKeys, key)
		}
	}
	if len(unknownKeys) > 0 {
		logrus.DefaultLogger().Warnf("Sync fragment contained unknown keys %v", unknownKeys)
	}

	if !fragment.Type.isValid() || !hasUUID {
		return nil, errors.Wrap(ErrInvalidFragment, "type and uuid are required")
	}
	if (fragment.Type == Root || fragment.Type == Add) && fragment.ClassName == "" {
		return nil, errors.Wrapf(ErrInvalidFragment, "cls is required for fragments of type %s", fragment.Type)
	}
	return fragment, nil
}

// newValueForKey records change of a property into the fragment.
// The first old value seen for the key is kept as the original one.
func (f *SyncFragment) newValueForKey(info *model.PropertyInfo, newValue, oldValue interface{}) {
	if f.Properties == nil {
		f.Properties = make(map[string]interface{})
	}
	if f.OriginalProperties == nil {
		f.OriginalProperties = make(map[string]interface{})
	}
	if _, has := f.OriginalProperties[info.Key]; !has {
		f.OriginalProperties[info.Key] = oldValue
	}
	f.Properties[info.Key] = value.Serialize(info.Kind, newValue)
}

// createNodeIfNecessary returns target node of an Add fragment, constructing
// it when the scope does not know the UUID yet.
func (f *SyncFragment) createNodeIfNecessary(s *Scope) *model.Node {
	if f.Type != Add {
		return nil
	}
	if node := s.lookupNode(f.ObjectUUID); node != nil {
		return node
	}
	node, err := s.registry.New(f.ClassName, f.ObjectUUID)
	if err != nil {
		s.log.Warnf("Cannot create node for %v: %v", f, err)
		return nil
	}
	node.ReserveScope(s)
	return node
}

// ApplyToScope applies the fragment to the scope. It is a no-op if the scope
// has no root. With <applyDefaults> every synced property absent from
// the fragment is reset to its default value.
func (f *SyncFragment) ApplyToScope(s *Scope, applyDefaults bool) {
	root := s.Root()
	if root == nil {
		return
	}

	switch f.Type {
	case Root:
		s.updateUUID(root, f.ObjectUUID)
		f.applyProperties(root, s, applyDefaults)
	case Add:
		if node := f.createNodeIfNecessary(s); node != nil {
			f.applyProperties(node, s, applyDefaults)
		}
	case Change:
		if node := s.lookupNode(f.ObjectUUID); node != nil {
			f.applyProperties(node, s, applyDefaults)
		}
	case Remove:
		if node := s.NodeByID(f.ObjectUUID); node != nil && !node.IsScopeRoot() {
			node.Detach()
		}
	}
}

func (f *SyncFragment) applyProperties(node *model.Node, s *Scope, applyDefaults bool) {
	if f.Properties == nil && !applyDefaults {
		return
	}
	for _, info := range node.Class().Properties() {
		if info.Kind == value.Composite {
			continue
		}
		raw, has := f.Properties[info.Key]
		if !has {
			if applyDefaults && info.IsSynced() {
				s.setRemoteProperty(node, info.Key, info.Default)
			}
			continue
		}
		v, err := value.Unserialize(info.Kind, raw, s.resolve)
		if err != nil {
			if errors.Cause(err) == value.ErrUnresolvedReference {
				s.log.WithFields(map[string]interface{}{
					"node": node.String(),
					"key":  info.Key,
				}).Warn("Unresolved reference in sync fragment")
			} else if info.AcceptsNil() {
				v = nil
			} else {
				s.log.Debugf("Ignoring invalid value %v of %s.%s: %v", raw, node.ClassName(), info.Key, err)
				continue
			}
		}
		s.setRemoteProperty(node, info.Key, v)
	}
}
