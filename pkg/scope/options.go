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
	"context"
)

type changeSetCtxKey int

const (
	// atomicCtxKey is a key under which *atomic* change-set option is stored
	// into the context.
	atomicCtxKey changeSetCtxKey = iota

	// procedureCtxKey is a key under which *procedure* change-set option is
	// stored into the context.
	procedureCtxKey

	// constraintsCtxKey is a key under which *constraints* change-set option
	// is stored into the context.
	constraintsCtxKey

	// descriptionCtxKey is a key under which change-set description is stored
	// into the context.
	descriptionCtxKey
)

// FragmentMatcher verifies that a batch of fragments has an expected shape.
type FragmentMatcher interface {
	// MatchesAll returns true if every fragment is accounted for.
	MatchesAll(fragments []*SyncFragment) bool
}

/* Atomic */

// atomicOpt represents the *atomic* change-set option.
type atomicOpt struct {
	// no attributes
}

// WithAtomic prepares context for change set that the server should apply
// atomically - either all fragments are applied or none.
// By default, fragments are applied in a best-effort mode.
func WithAtomic(ctx context.Context) context.Context {
	return context.WithValue(ctx, atomicCtxKey, &atomicOpt{})
}

// IsAtomic returns true if the context is configured for an atomic change set.
func IsAtomic(ctx context.Context) bool {
	_, isAtomic := ctx.Value(atomicCtxKey).(*atomicOpt)
	return isAtomic
}

/* Procedure */

// procedureOpt represents the *procedure* change-set option.
type procedureOpt struct {
	name string
}

// WithProcedure prepares context for change set that invokes the named
// procedure on the server. Change sets with procedure are always atomic.
func WithProcedure(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, procedureCtxKey, &procedureOpt{name: name})
}

// IsWithProcedure returns the procedure name if the context carries one.
func IsWithProcedure(ctx context.Context) (name string, withProcedure bool) {
	procedure, withProcedure := ctx.Value(procedureCtxKey).(*procedureOpt)
	if !withProcedure {
		return "", false
	}
	return procedure.name, true
}

/* Constraints */

// constraintsOpt represents the *constraints* change-set option.
type constraintsOpt struct {
	matcher FragmentMatcher
}

// WithConstraints prepares context for change set whose fragments must
// satisfy the given matcher. A change set that does not match is reverted
// immediately and never leaves the client.
func WithConstraints(ctx context.Context, matcher FragmentMatcher) context.Context {
	return context.WithValue(ctx, constraintsCtxKey, &constraintsOpt{matcher: matcher})
}

// IsWithConstraints returns the fragment matcher if the context carries one.
func IsWithConstraints(ctx context.Context) (matcher FragmentMatcher, withConstraints bool) {
	constraints, withConstraints := ctx.Value(constraintsCtxKey).(*constraintsOpt)
	if !withConstraints {
		return nil, false
	}
	return constraints.matcher, true
}

/* Description */

// descriptionOpt represents the *description* change-set option.
type descriptionOpt struct {
	description string
}

// WithDescription prepares context for change set that will have description
// provided (shown in the change-set history).
func WithDescription(ctx context.Context, description string) context.Context {
	return context.WithValue(ctx, descriptionCtxKey, &descriptionOpt{description: description})
}

// IsWithDescription returns true if the context includes change-set description.
func IsWithDescription(ctx context.Context) (description string, withDescription bool) {
	descOpt, withDescription := ctx.Value(descriptionCtxKey).(*descriptionOpt)
	if !withDescription {
		return "", false
	}
	return descOpt.description, true
}
