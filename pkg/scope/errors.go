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
	"github.com/pkg/errors"
)

var (
	// ErrNotPaused is returned when resuming incoming messages of a scope
	// that is not paused.
	ErrNotPaused = errors.New("scope is not paused")

	// ErrChangeSetFailed is reported by a change set which was (partially)
	// reverted.
	ErrChangeSetFailed = errors.New("failed to apply change set")

	// ErrInvalidFragment is returned when a fragment cannot be unserialized.
	ErrInvalidFragment = errors.New("invalid sync fragment")
)
