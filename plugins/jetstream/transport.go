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

package jetstream

import (
	"sort"

	"github.com/ligato/cn-infra/logging"

	"github.com/ligato/jetstream/plugins/jetstream/api"
)

// ReplyCallback receives the reply to a sent message, or an error if
// the reply will never come.
type ReplyCallback func(reply api.ReplyMessage, err error)

// Transport wraps an adapter and routes replies to the continuations
// registered by SendWithReply. It is not safe for concurrent use, all calls
// are made from the client event loop.
type Transport struct {
	log     logging.Logger
	adapter api.TransportAdapter

	waitingReply       map[uint64]ReplyCallback
	waitingObservers   []func(count int)
	lastReportedStatus api.Status
}

// NewTransport returns transport over <adapter>.
func NewTransport(adapter api.TransportAdapter, log logging.Logger) *Transport {
	return &Transport{
		log:          log,
		adapter:      adapter,
		waitingReply: make(map[uint64]ReplyCallback),
	}
}

// Adapter returns the underlying adapter.
func (t *Transport) Adapter() api.TransportAdapter {
	return t.adapter
}

// Status returns status of the adapter.
func (t *Transport) Status() api.Status {
	return t.adapter.Status()
}

// WaitingReplies returns the number of messages still waiting for a reply.
func (t *Transport) WaitingReplies() int {
	return len(t.waitingReply)
}

// ObserveWaitingReplies registers callback fired whenever the number of
// messages waiting for a reply changes.
func (t *Transport) ObserveWaitingReplies(cb func(count int)) {
	t.waitingObservers = append(t.waitingObservers, cb)
}

func (t *Transport) waitingChanged() {
	count := len(t.waitingReply)
	reportWaitingReplies(count)
	for _, cb := range t.waitingObservers {
		cb(count)
	}
}

func (t *Transport) statusChanged(status api.Status) {
	if status == t.lastReportedStatus {
		return
	}
	t.lastReportedStatus = status
	switch status {
	case api.Connecting:
		t.log.Infof("Connecting using %s to %s", t.adapter.Name(), t.adapter.URL())
	case api.Fatal:
		t.log.Errorf("Adapter %s failed", t.adapter.Name())
	default:
		t.log.Infof("Transport %s", status)
	}
}

// messageReceived hands reply messages to their continuations.
func (t *Transport) messageReceived(msg api.Message) {
	reply, isReply := msg.(api.ReplyMessage)
	if !isReply {
		return
	}
	cb, waiting := t.waitingReply[reply.GetReplyTo()]
	if !waiting {
		return
	}
	delete(t.waitingReply, reply.GetReplyTo())
	t.waitingChanged()
	cb(reply, nil)
}

// Connect starts connecting the adapter.
func (t *Transport) Connect() {
	t.adapter.Connect()
}

// Disconnect closes the adapter.
func (t *Transport) Disconnect() {
	t.adapter.Disconnect()
}

// Reconnect drops and re-establishes the connection.
func (t *Transport) Reconnect() {
	t.adapter.Reconnect()
}

// Send transmits a message no reply is expected for.
func (t *Transport) Send(msg api.Message) {
	reportSent(msg.GetType())
	updateStats(func(s *Stats) { s.MessagesSent++ })
	t.log.WithField("index", msg.GetIndex()).Debugf("Sending %s", msg.GetType())
	t.adapter.Send(msg)
}

// SendWithReply transmits a message and registers continuation for its reply.
func (t *Transport) SendWithReply(msg api.Message, cb ReplyCallback) {
	t.waitingReply[msg.GetIndex()] = cb
	t.waitingChanged()
	t.Send(msg)
}

// FailWaiting fails all registered continuations with <err>.
func (t *Transport) FailWaiting(err error) {
	if len(t.waitingReply) == 0 {
		return
	}
	waiting := t.waitingReply
	t.waitingReply = make(map[uint64]ReplyCallback)
	t.waitingChanged()

	// in the order the messages were sent
	indexes := make([]uint64, 0, len(waiting))
	for index := range waiting {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, index := range indexes {
		waiting[index](nil, err)
	}
}
