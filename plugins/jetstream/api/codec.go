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
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// wire keeps numbers as json.Number so that integer properties survive
// decoding without a detour through float64.
var wire = sonic.Config{
	UseNumber:      true,
	CopyString:     true,
	ValidateString: true,
}.Froze()

// envelope is the first decoding step: just enough to pick the message type
// and check mandatory header fields.
type envelope struct {
	Type    MessageType `json:"type"`
	Index   *uint64     `json:"index"`
	ReplyTo *uint64     `json:"replyTo"`
}

// Marshal encodes a single message.
func Marshal(msg Message) ([]byte, error) {
	data, err := wire.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", msg.GetType())
	}
	return data, nil
}

// MarshalBatch encodes messages as one JSON array.
func MarshalBatch(msgs []Message) ([]byte, error) {
	data, err := wire.Marshal(msgs)
	if err != nil {
		return nil, errors.Wrap(err, "marshal batch")
	}
	return data, nil
}

// Unmarshal decodes a frame carrying either a single message or an array of
// messages. Messages that fail to decode are skipped, the last such failure
// is returned alongside the messages that decoded.
func Unmarshal(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if data[0] != '[' {
		msg, err := unmarshalOne(data)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	var raws []json.RawMessage
	if err := wire.Unmarshal(data, &raws); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	var (
		msgs    []Message
		lastErr error
	)
	for _, raw := range raws {
		msg, err := unmarshalOne(raw)
		if err != nil {
			lastErr = err
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, lastErr
}

func unmarshalOne(data []byte) (Message, error) {
	var env envelope
	if err := wire.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	if env.Index == nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s without index", env.Type)
	}

	var msg Message
	switch env.Type {
	case SessionCreateType:
		msg = &SessionCreate{}
	case SessionCreateReplyType:
		msg = &SessionCreateReply{}
	case ScopeFetchType:
		msg = &ScopeFetch{}
	case ScopeFetchReplyType:
		msg = &ScopeFetchReply{}
	case ScopeStateType:
		msg = &ScopeState{}
	case ScopeSyncType:
		msg = &ScopeSync{}
	case ScopeSyncReplyType:
		msg = &ScopeSyncReply{}
	case PingType:
		msg = &Ping{}
	case ReplyType:
		msg = &Reply{}
	default:
		return nil, errors.Wrapf(ErrUnknownMessageType, "%q", env.Type)
	}
	if _, isReply := msg.(ReplyMessage); isReply && env.ReplyTo == nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s without replyTo", env.Type)
	}
	if err := wire.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "%s: %v", env.Type, err)
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// validate checks payload fields the message cannot be processed without.
func validate(msg Message) error {
	var missing string
	switch m := msg.(type) {
	case *SessionCreateReply:
		if m.SessionToken == "" && m.Error == nil {
			missing = "sessionToken or error"
		}
	case *ScopeFetchReply:
		if m.ScopeIndex == nil && m.Error == nil {
			missing = "scopeIndex or error"
		}
	case *ScopeState:
		if m.RootFragment == nil {
			missing = "rootFragment"
		}
	case *ScopeSync:
		if m.Fragments == nil {
			missing = "fragments"
		}
	case *ScopeSyncReply:
		if m.FragmentReplies == nil {
			missing = "fragmentReplies"
		}
	}
	if missing != "" {
		return errors.Wrapf(ErrMalformedMessage, "%s without %s", msg.GetType(), missing)
	}
	return nil
}
