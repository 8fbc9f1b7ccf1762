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
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/value"
)

// PropertyInfo declares one property of a class.
type PropertyInfo struct {
	// Key under which the property is stored and synchronized.
	Key string

	// Kind of the property value.
	Kind value.Kind

	// Default is the initial value and the value back-filled by full state
	// snapshots. Zero value of the kind is used when nil.
	Default interface{}

	// DontSync marks local properties that never generate fragments.
	DontSync bool

	// MinSyncInterval throttles fragments generated for the property.
	MinSyncInterval time.Duration

	// DependsOn lists properties a Composite property is derived from.
	DependsOn []string

	// Compute returns value of a Composite property.
	Compute func(node *Node) interface{}
}

// AcceptsNil returns true if the property can be set to nil.
func (p *PropertyInfo) AcceptsNil() bool {
	return p.Kind.IsNillable()
}

// IsSynced returns true if the property travels over the wire.
func (p *PropertyInfo) IsSynced() bool {
	return p.Kind.IsSynced() && !p.DontSync
}

// ClassDescriptor is a registration-time schema of a class.
type ClassDescriptor struct {
	Name       string
	Properties []PropertyInfo
}

// Class is a registered class descriptor with pre-computed lookups.
type Class struct {
	name       string
	props      []*PropertyInfo
	byKey      map[string]*PropertyInfo
	dependents map[string][]string // dependency key -> composite keys
}

// Name returns name of the class.
func (c *Class) Name() string {
	return c.name
}

// Property returns info about the given property.
func (c *Class) Property(key string) (*PropertyInfo, bool) {
	info, has := c.byKey[key]
	return info, has
}

// Properties returns all declared properties in declaration order.
func (c *Class) Properties() []*PropertyInfo {
	return c.props
}

// Dependents returns keys of composite properties derived from <key>.
func (c *Class) Dependents(key string) []string {
	return c.dependents[key]
}

// New creates a node of this class with a fresh UUID.
func (c *Class) New() *Node {
	return NewNodeWithUUID(c, uuid.New())
}

// NewWithUUID creates a node of this class with the given UUID.
func (c *Class) NewWithUUID(id uuid.UUID) *Node {
	return NewNodeWithUUID(c, id)
}

func compileClass(desc ClassDescriptor) (*Class, error) {
	if desc.Name == "" {
		return nil, errors.Wrap(ErrInvalidDescriptor, "missing class name")
	}
	class := &Class{
		name:       desc.Name,
		byKey:      make(map[string]*PropertyInfo),
		dependents: make(map[string][]string),
	}
	for i := range desc.Properties {
		info := desc.Properties[i]
		if info.Key == "" || info.Kind == value.Invalid {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "class %s: property %q without key or kind",
				desc.Name, info.Key)
		}
		if _, duplicate := class.byKey[info.Key]; duplicate {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "class %s: duplicate property %q",
				desc.Name, info.Key)
		}
		if info.Kind == value.Composite && info.Compute == nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "class %s: composite %q without Compute",
				desc.Name, info.Key)
		}
		if info.Default != nil {
			def, err := value.Convert(info.Kind, info.Default)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidDescriptor, "class %s: default of %q: %v",
					desc.Name, info.Key, err)
			}
			info.Default = def
		} else {
			info.Default = value.Zero(info.Kind)
		}
		class.props = append(class.props, &info)
		class.byKey[info.Key] = &info
	}

	// invert composite dependencies
	dependents := make(map[string]mapset.Set[string])
	for _, info := range class.props {
		for _, dep := range info.DependsOn {
			if _, declared := class.byKey[dep]; !declared {
				return nil, errors.Wrapf(ErrInvalidDescriptor, "class %s: %q depends on undeclared %q",
					desc.Name, info.Key, dep)
			}
			if dependents[dep] == nil {
				dependents[dep] = mapset.NewThreadUnsafeSet[string]()
			}
			dependents[dep].Add(info.Key)
		}
	}
	for dep, composites := range dependents {
		keys := composites.ToSlice()
		sort.Strings(keys)
		class.dependents[dep] = keys
	}
	return class, nil
}

// Registry maps class names to registered classes.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// DefaultRegistry is used by package-level Register and Lookup.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty class registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Register compiles and registers class descriptor.
func (r *Registry) Register(desc ClassDescriptor) (*Class, error) {
	class, err := compileClass(desc)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classes[desc.Name]; exists {
		return nil, errors.Wrapf(ErrClassExists, "class %s", desc.Name)
	}
	r.classes[desc.Name] = class
	return class, nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(desc ClassDescriptor) *Class {
	class, err := r.Register(desc)
	if err != nil {
		panic(err)
	}
	return class
}

// Lookup returns class registered under the given name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	class, has := r.classes[name]
	return class, has
}

// New constructs a node of the named class.
func (r *Registry) New(className string, id uuid.UUID) (*Node, error) {
	class, has := r.Lookup(className)
	if !has {
		return nil, errors.Wrapf(ErrUnknownClass, "class %q", className)
	}
	return NewNodeWithUUID(class, id), nil
}

// ClassNames returns names of all registered classes, sorted.
func (r *Registry) ClassNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register registers class into DefaultRegistry.
func Register(desc ClassDescriptor) (*Class, error) {
	return DefaultRegistry.Register(desc)
}

// MustRegister registers class into DefaultRegistry and panics on error.
func MustRegister(desc ClassDescriptor) *Class {
	return DefaultRegistry.MustRegister(desc)
}

// Lookup finds class in DefaultRegistry.
func Lookup(name string) (*Class, bool) {
	return DefaultRegistry.Lookup(name)
}
