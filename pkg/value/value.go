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

// Package value defines the closed set of value kinds that can be stored
// in properties of synchronized objects.
//
// Values are plain Go values tagged by the Kind declared for the property:
//
//	Int8 .. Uint64   int8 .. uint64
//	Float32/Float64  float32/float64
//	Bool             bool
//	String           string
//	Bytes            []byte
//	Date             time.Time
//	Color            value.RGBA
//	Ref              value.Object
//	RefList          []value.Object
//
// A nil interface represents an absent value and is accepted only by
// nillable kinds (see Kind.IsNillable).
package value

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kind identifies type of a property value.
type Kind int

const (
	// Invalid is the zero Kind.
	Invalid Kind = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Bool
	String
	Bytes
	Date
	Color
	// Ref is a reference to a single object.
	Ref
	// RefList is an ordered list of references.
	RefList
	// Composite is a derived property computed from other properties.
	// Composite values are never synchronized.
	Composite
)

var kindNames = map[Kind]string{
	Invalid:   "invalid",
	Int8:      "int8",
	Uint8:     "uint8",
	Int16:     "int16",
	Uint16:    "uint16",
	Int32:     "int32",
	Uint32:    "uint32",
	Int64:     "int64",
	Uint64:    "uint64",
	Float32:   "float32",
	Float64:   "float64",
	Bool:      "bool",
	String:    "string",
	Bytes:     "bytes",
	Date:      "date",
	Color:     "color",
	Ref:       "ref",
	RefList:   "ref-list",
	Composite: "composite",
}

// String returns human-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind returns the kind named <name>, the inverse of Kind.String.
// Composite kind cannot be parsed, it needs Compute.
func ParseKind(name string) (Kind, error) {
	for kind, kindName := range kindNames {
		if kindName == name && kind != Invalid && kind != Composite {
			return kind, nil
		}
	}
	return Invalid, errors.Errorf("unknown kind %q", name)
}

// IsNillable returns true for kinds that accept nil as a value.
func (k Kind) IsNillable() bool {
	switch k {
	case String, Bytes, Date, Color, Ref, Composite:
		return true
	}
	return false
}

// IsReference returns true for Ref and RefList.
func (k Kind) IsReference() bool {
	return k == Ref || k == RefList
}

// IsSynced returns false for kinds that never travel over the wire.
func (k Kind) IsSynced() bool {
	return k != Composite && k != Invalid
}

// RGBA is a RGBA color packed into 32 bits (R in the most significant byte).
type RGBA uint32

// RGBA returns color components.
func (c RGBA) RGBA() (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// NewColor packs color components.
func NewColor(r, g, b, a uint8) RGBA {
	return RGBA(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a))
}

// Object is anything that can be referenced from a Ref or RefList value.
type Object interface {
	UUID() uuid.UUID
}

// Resolver looks up a referenced object by its UUID.
// Nil is returned when the object is not known.
type Resolver func(id uuid.UUID) Object

// Zero returns the value used for a property of the given kind when no
// default was declared.
func Zero(kind Kind) interface{} {
	switch kind {
	case Int8:
		return int8(0)
	case Uint8:
		return uint8(0)
	case Int16:
		return int16(0)
	case Uint16:
		return uint16(0)
	case Int32:
		return int32(0)
	case Uint32:
		return uint32(0)
	case Int64:
		return int64(0)
	case Uint64:
		return uint64(0)
	case Float32:
		return float32(0)
	case Float64:
		return float64(0)
	case Bool:
		return false
	case RefList:
		return []Object(nil)
	}
	return nil
}

// Equal compares two values of the same kind.
// References are compared by identity, lists of references by identity
// and order. Nil equals only nil, with the exception of an empty RefList.
func Equal(a, b interface{}) bool {
	la, aIsList := a.([]Object)
	lb, bIsList := b.([]Object)
	if aIsList || bIsList {
		if (!aIsList && a != nil) || (!bIsList && b != nil) {
			return false
		}
		return objectsEqual(la, lb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch va := a.(type) {
	case []byte:
		vb, ok := b.([]byte)
		return ok && bytes.Equal(va, vb)
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Equal(vb)
	case Object:
		vb, ok := b.(Object)
		return ok && va == vb
	}
	return a == b
}

func objectsEqual(a, b []Object) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Objects returns referenced objects of a Ref or RefList value.
func Objects(v interface{}) []Object {
	switch val := v.(type) {
	case []Object:
		return val
	case Object:
		if val != nil {
			return []Object{val}
		}
	}
	return nil
}
