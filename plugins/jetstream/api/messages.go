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

// ClientVersion is the protocol version announced in SessionCreate.
const ClientVersion = "0.2.0"

// MessageType identifies the kind of a message on the wire.
type MessageType string

const (
	// SessionCreateType asks the server to open a session.
	SessionCreateType MessageType = "SessionCreate"
	// SessionCreateReplyType carries a session token or an error.
	SessionCreateReplyType MessageType = "SessionCreateReply"
	// ScopeFetchType asks the server to attach a scope by name.
	ScopeFetchType MessageType = "ScopeFetch"
	// ScopeFetchReplyType carries the index of a fetched scope or an error.
	ScopeFetchReplyType MessageType = "ScopeFetchReply"
	// ScopeStateType carries full state of a scope.
	ScopeStateType MessageType = "ScopeState"
	// ScopeSyncType carries incremental changes of a scope.
	ScopeSyncType MessageType = "ScopeSync"
	// ScopeSyncReplyType carries per-fragment outcome of a ScopeSync.
	ScopeSyncReplyType MessageType = "ScopeSyncReply"
	// PingType acknowledges received messages and may ask for a resend.
	PingType MessageType = "Ping"
	// ReplyType is a generic reply with no payload.
	ReplyType MessageType = "Reply"
)

// Message is implemented by every message exchanged with a Jetstream server.
type Message interface {
	// GetType returns the wire type of the message.
	GetType() MessageType

	// GetIndex returns the sequence index of the message. Index 0 is used
	// for messages outside of the session ordering (SessionCreate, Ping).
	GetIndex() uint64
}

// ReplyMessage is a message answering the message with index GetReplyTo().
type ReplyMessage interface {
	Message
	GetReplyTo() uint64
}

// Header is embedded into every message.
type Header struct {
	Type  MessageType `json:"type"`
	Index uint64      `json:"index"`
}

// GetType returns the wire type of the message.
func (h *Header) GetType() MessageType {
	return h.Type
}

// GetIndex returns the sequence index of the message.
func (h *Header) GetIndex() uint64 {
	return h.Index
}

// ReplyHeader is embedded into every reply message.
type ReplyHeader struct {
	Header
	ReplyTo uint64 `json:"replyTo"`
}

// GetReplyTo returns the index of the message this reply answers.
func (h *ReplyHeader) GetReplyTo() uint64 {
	return h.ReplyTo
}

// SessionCreate is sent when the client goes online without a session.
type SessionCreate struct {
	Header
	Params  map[string]interface{} `json:"params"`
	Version string                 `json:"version"`
}

// NewSessionCreate returns SessionCreate with index 0 and the client version.
func NewSessionCreate(params map[string]interface{}) *SessionCreate {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &SessionCreate{
		Header:  Header{Type: SessionCreateType},
		Params:  params,
		Version: ClientVersion,
	}
}

// SessionCreateReply grants a session (SessionToken) or denies it (Error).
type SessionCreateReply struct {
	Header
	SessionToken string `json:"sessionToken,omitempty"`
	Error        *Error `json:"error,omitempty"`
}

// ScopeFetch asks the server to attach the named scope to the session.
type ScopeFetch struct {
	Header
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

// NewScopeFetch returns ScopeFetch with the given index.
func NewScopeFetch(index uint64, name string, params map[string]interface{}) *ScopeFetch {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &ScopeFetch{
		Header: Header{Type: ScopeFetchType, Index: index},
		Name:   name,
		Params: params,
	}
}

// ScopeFetchReply carries the session-local index of the fetched scope.
type ScopeFetchReply struct {
	ReplyHeader
	ScopeIndex *uint64 `json:"scopeIndex,omitempty"`
	Error      *Error  `json:"error,omitempty"`
}

// ScopeState carries full state of a scope: the root fragment followed by
// fragments of all other nodes.
type ScopeState struct {
	Header
	ScopeIndex   uint64                   `json:"scopeIndex"`
	RootFragment map[string]interface{}   `json:"rootFragment"`
	Fragments    []map[string]interface{} `json:"fragments"`
}

// ScopeSync carries incremental changes of a scope, in both directions.
type ScopeSync struct {
	Header
	ScopeIndex uint64                   `json:"scopeIndex"`
	Atomic     bool                     `json:"atomic,omitempty"`
	Procedure  string                   `json:"procedure,omitempty"`
	Fragments  []map[string]interface{} `json:"fragments"`
}

// NewScopeSync returns ScopeSync with the given index.
func NewScopeSync(index, scopeIndex uint64, fragments []map[string]interface{}) *ScopeSync {
	if fragments == nil {
		fragments = []map[string]interface{}{}
	}
	return &ScopeSync{
		Header:     Header{Type: ScopeSyncType, Index: index},
		ScopeIndex: scopeIndex,
		Fragments:  fragments,
	}
}

// FragmentReply is the server outcome of one fragment of a ScopeSync.
// A reply without error means the fragment was accepted.
type FragmentReply struct {
	Error         *Error                 `json:"error,omitempty"`
	Modifications map[string]interface{} `json:"modifications,omitempty"`
}

// Accepted returns true if the server applied the fragment.
func (r FragmentReply) Accepted() bool {
	return r.Error == nil
}

// ScopeSyncReply answers ScopeSync with one reply per fragment, in order.
type ScopeSyncReply struct {
	ReplyHeader
	FragmentReplies []FragmentReply `json:"fragmentReplies"`
}

// Ping acknowledges messages received up to Ack. With ResendMissing set,
// the receiver resends all messages the sender did not acknowledge.
type Ping struct {
	Header
	Ack           uint64 `json:"ack"`
	ResendMissing bool   `json:"resendMissing"`
}

// NewPing returns Ping with index 0.
func NewPing(ack uint64, resendMissing bool) *Ping {
	return &Ping{
		Header:        Header{Type: PingType},
		Ack:           ack,
		ResendMissing: resendMissing,
	}
}

// Reply is a reply without payload.
type Reply struct {
	ReplyHeader
}

// NewReply returns a generic reply to message <replyTo>.
func NewReply(index, replyTo uint64) *Reply {
	return &Reply{ReplyHeader{Header: Header{Type: ReplyType, Index: index}, ReplyTo: replyTo}}
}
