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

// SessionTokenHeader carries the session token on reconnect.
const SessionTokenHeader = "X-Jetstream-SessionToken"

// Status is the connection status of a transport adapter.
type Status int

const (
	// Closed means there is no connection and none is being attempted.
	Closed Status = iota
	// Connecting means a connection is being (re-)established.
	Connecting
	// Connected means messages can be sent.
	Connected
	// Fatal means the adapter cannot recover and must be replaced.
	Fatal
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// SessionInfo is what an adapter needs to know about an established session.
type SessionInfo interface {
	// Token identifies the session to the server.
	Token() string

	// ServerIndex returns the index of the last in-order message received
	// from the server, used as the acknowledgement in pings.
	ServerIndex() uint64
}

// TransportAdapter moves messages between the client and a Jetstream server.
// Observers may be invoked from goroutines of the adapter.
type TransportAdapter interface {
	// Name of the adapter, used in logs.
	Name() string

	// URL of the server.
	URL() string

	// Status returns the current connection status.
	Status() Status

	// Connect starts connecting; it is a no-op if already connecting.
	Connect()

	// Disconnect closes the connection for good.
	Disconnect()

	// Reconnect drops the current connection and connects again.
	Reconnect()

	// Send transmits message, or buffers it for resend once a session exists.
	Send(msg Message)

	// SessionEstablished is called once the server granted a session.
	SessionEstablished(session SessionInfo)

	// ObserveStatus registers callback for status changes.
	ObserveStatus(cb func(Status))

	// ObserveMessage registers callback for received messages.
	ObserveMessage(cb func(Message))
}

// AdapterFactory builds a fresh adapter, used to replace an adapter after
// a fatal failure.
type AdapterFactory func() (TransportAdapter, error)
