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

// Package testmodel registers classes used by tests of the sync engine.
package testmodel

import (
	"fmt"
	"time"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/value"
)

const (
	// TestModelClass is the name of the class with a property of every kind.
	TestModelClass = "TestModel"

	// AnotherTestModelClass is the name of the class referenced
	// from TestModel.anotherArray.
	AnotherTestModelClass = "AnotherTestModel"

	// ThrottleInterval is MinSyncInterval of TestModel.throttledProperty.
	ThrottleInterval = 50 * time.Millisecond
)

var (
	// TestModel class, registered into model.DefaultRegistry.
	TestModel = model.MustRegister(model.ClassDescriptor{
		Name: TestModelClass,
		Properties: []model.PropertyInfo{
			{Key: "string", Kind: value.String},
			{Key: "int", Kind: value.Int64},
			{Key: "uint", Kind: value.Uint64},
			{Key: "float", Kind: value.Float32},
			{Key: "uint8", Kind: value.Uint8},
			{Key: "int8", Kind: value.Int8},
			{Key: "uint16", Kind: value.Uint16},
			{Key: "int16", Kind: value.Int16},
			{Key: "uint32", Kind: value.Uint32},
			{Key: "int32", Kind: value.Int32},
			{Key: "uint64", Kind: value.Uint64},
			{Key: "int64", Kind: value.Int64},
			{Key: "double", Kind: value.Float64},
			{Key: "bool", Kind: value.Bool},
			{Key: "date", Kind: value.Date},
			{Key: "color", Kind: value.Color},
			{Key: "image", Kind: value.Bytes},
			{Key: "localString", Kind: value.String, DontSync: true},
			{Key: "array", Kind: value.RefList},
			{Key: "array2", Kind: value.RefList},
			{Key: "anotherArray", Kind: value.RefList},
			{Key: "childModel", Kind: value.Ref},
			{Key: "childModel2", Kind: value.Ref},
			{Key: "throttledProperty", Kind: value.Int64, MinSyncInterval: ThrottleInterval},
			{
				Key:       "compositeProperty",
				Kind:      value.Composite,
				DependsOn: []string{"float", "anotherArray"},
				Compute: func(n *model.Node) interface{} {
					return fmt.Sprintf("%v %d", n.Get("float"), len(n.GetNodes("anotherArray")))
				},
			},
		},
	})

	// AnotherTestModel class, registered into model.DefaultRegistry.
	AnotherTestModel = model.MustRegister(model.ClassDescriptor{
		Name: AnotherTestModelClass,
		Properties: []model.PropertyInfo{
			{Key: "anotherString", Kind: value.String, Default: ""},
			{Key: "anotherInteger", Kind: value.Int64},
			{
				Key:       "anotherCompositeProperty",
				Kind:      value.Composite,
				DependsOn: []string{"anotherString", "anotherInteger"},
				Compute: func(n *model.Node) interface{} {
					return fmt.Sprintf("%v %v", n.Get("anotherString"), n.Get("anotherInteger"))
				},
			},
		},
	})
)

// New returns a fresh TestModel node.
func New() *model.Node {
	return TestModel.New()
}

// NewAnother returns a fresh AnotherTestModel node.
func NewAnother() *model.Node {
	return AnotherTestModel.New()
}
