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

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSessionAlreadyClosed is returned when scope is fetched over a closed session.
	ErrSessionAlreadyClosed = errors.New("session already closed")

	// ErrSessionBecameClosed is returned when session was closed before the server replied.
	ErrSessionBecameClosed = errors.New("session became closed")

	// ErrScopeFetchFailed is returned when the server reply to ScopeFetch is unusable.
	ErrScopeFetchFailed = errors.New("scope fetch failed")

	// ErrNoSession is returned when an operation requires an established session.
	ErrNoSession = errors.New("no session established")

	// ErrClientClosed is returned when the client was closed.
	ErrClientClosed = errors.New("client was closed")

	// ErrScopeAlreadyFetched is returned when the same scope is fetched twice.
	ErrScopeAlreadyFetched = errors.New("scope already fetched")

	// ErrSnapshotsDisabled is returned by snapshot operations without a snapshot store.
	ErrSnapshotsDisabled = errors.New("snapshots are disabled")

	// ErrUnknownMessageType is returned for messages of unrecognized type.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMalformedMessage is returned for messages missing mandatory fields.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrEmptyFrame is returned when decoding an empty transport frame.
	ErrEmptyFrame = errors.New("empty frame")
)

// Error is an error reported by the server.
type Error struct {
	Code    int    `json:"code,omitempty"`
	Slug    string `json:"slug,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error returns the server message prefixed by its slug.
func (e *Error) Error() string {
	switch {
	case e.Slug != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Slug, e.Message)
	case e.Message != "":
		return e.Message
	case e.Slug != "":
		return e.Slug
	}
	return fmt.Sprintf("server error (code %d)", e.Code)
}
