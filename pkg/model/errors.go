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
	"github.com/pkg/errors"
)

var (
	// ErrUnknownProperty is returned when property is not declared by the class.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrReadOnlyProperty is returned when setting a composite property.
	ErrReadOnlyProperty = errors.New("composite property cannot be set")

	// ErrMultipleScopes is returned when a node of one scope would become
	// a child of a node from another scope.
	ErrMultipleScopes = errors.New("attaching a model object to two scopes is not supported")

	// ErrUnknownClass is returned by registry for unregistered class names.
	ErrUnknownClass = errors.New("unknown class")

	// ErrClassExists is returned when registering the same class twice.
	ErrClassExists = errors.New("class already registered")

	// ErrInvalidDescriptor is returned for malformed class descriptors.
	ErrInvalidDescriptor = errors.New("invalid class descriptor")
)
