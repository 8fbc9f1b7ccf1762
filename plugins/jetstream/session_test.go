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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/model/testmodel"
	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream/api"
	"github.com/ligato/jetstream/plugins/jetstream/internal/test"
)

type nopRecorder struct{}

func (nopRecorder) preRecordChangeSet(*scope.ChangeSet, uint64, uint64) *RecordedChangeSet {
	return nil
}

func (nopRecorder) recordChangeSet(*RecordedChangeSet, *scope.ChangeSet) {}

type sessionFixture struct {
	adapter   *test.MockAdapter
	transport *Transport
	session   *Session
	server    *fakeServer
}

func newSessionFixture() *sessionFixture {
	log := logging.ForPlugin("session-test")
	adapter := test.NewMockAdapter()
	transport := NewTransport(adapter, log)
	return &sessionFixture{
		adapter:   adapter,
		transport: transport,
		session:   newSession("token", transport, log, nopRecorder{}),
		server:    &fakeServer{adapter: adapter},
	}
}

// receive delivers messages the way the client does.
func (f *sessionFixture) receive(msgs ...api.Message) {
	for _, msg := range msgs {
		f.session.ReceivedMessage(msg)
	}
}

func (f *sessionFixture) fetchReply(replyTo, scopeIndex uint64) *api.ScopeFetchReply {
	return &api.ScopeFetchReply{
		ReplyHeader: f.server.replyHeader(api.ScopeFetchReplyType, replyTo),
		ScopeIndex:  &scopeIndex,
	}
}

func TestSessionOrdering(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	Expect(f.session.ServerIndex()).To(BeZero())

	s, root := newTestScope()
	f.session.ScopeAttach(s, 1, nil)

	change := func(index uint64, v int) *api.ScopeSync {
		return api.NewScopeSync(index, 1, []map[string]interface{}{{
			"type":       "change",
			"uuid":       root.UUID().String(),
			"properties": map[string]interface{}{"int": json.Number(fmt.Sprint(v))},
		}})
	}

	f.receive(change(1, 1))
	Expect(f.session.ServerIndex()).To(Equal(uint64(1)))
	Expect(root.Get("int")).To(Equal(int64(1)))

	// duplicate is dropped
	f.receive(change(1, 5))
	Expect(f.session.ServerIndex()).To(Equal(uint64(1)))
	Expect(root.Get("int")).To(Equal(int64(1)))
	Expect(f.adapter.Reconnects()).To(BeZero())

	// gap triggers reconnect without advancing
	f.receive(change(3, 3))
	Expect(f.session.ServerIndex()).To(Equal(uint64(1)))
	Expect(root.Get("int")).To(Equal(int64(1)))
	Expect(f.adapter.Reconnects()).To(Equal(1))

	// the resent messages are applied in order
	f.receive(change(2, 2), change(3, 3))
	Expect(f.session.ServerIndex()).To(Equal(uint64(3)))
	Expect(root.Get("int")).To(Equal(int64(3)))

	// ephemeral message is applied without touching the index
	f.receive(change(0, 9))
	Expect(f.session.ServerIndex()).To(Equal(uint64(3)))
	Expect(root.Get("int")).To(Equal(int64(9)))
}

func TestSessionFetch(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, _ := newTestScope()

	fetchErr := errNotCalled
	f.session.Fetch(s, map[string]interface{}{"id": 7}, func(err error) {
		fetchErr = err
	})
	fetch := f.adapter.LastSent().(*api.ScopeFetch)
	Expect(fetch.Index).To(Equal(uint64(1)))
	Expect(fetch.Params).To(HaveKeyWithValue("id", 7))
	Expect(f.transport.WaitingReplies()).To(Equal(1))

	f.receive(f.fetchReply(fetch.Index, 3))
	Expect(fetchErr).ToNot(HaveOccurred())
	Expect(f.transport.WaitingReplies()).To(BeZero())
	attached, found := f.session.Scope(3)
	Expect(found).To(BeTrue())
	Expect(attached).To(BeIdenticalTo(s))

	infos := f.session.Scopes()
	Expect(infos).To(HaveLen(1))
	Expect(infos[0].Name).To(Equal("Testing"))
	Expect(infos[0].Index).To(Equal(uint64(3)))
	Expect(infos[0].Nodes).To(Equal(1))
}

func TestSessionGappedReply(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, _ := newTestScope()

	fetchErr := errNotCalled
	f.session.Fetch(s, nil, func(err error) { fetchErr = err })
	fetch := f.adapter.LastSent().(*api.ScopeFetch)

	f.server.index = 4
	f.receive(f.fetchReply(fetch.Index, 3))
	Expect(fetchErr).To(Equal(errNotCalled))
	Expect(f.adapter.Reconnects()).To(Equal(1))
	Expect(f.transport.WaitingReplies()).To(Equal(1))
	_, found := f.session.Scope(3)
	Expect(found).To(BeFalse())

	f.server.index = 0
	f.receive(f.fetchReply(fetch.Index, 3))
	Expect(fetchErr).ToNot(HaveOccurred())
	_, found = f.session.Scope(3)
	Expect(found).To(BeTrue())
}

func TestSessionFetchErrors(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, _ := newTestScope()

	var fetchErr error
	cb := func(err error) { fetchErr = err }

	// reply without scope index
	f.session.Fetch(s, nil, cb)
	fetch := f.adapter.LastSent().(*api.ScopeFetch)
	f.receive(&api.ScopeFetchReply{ReplyHeader: f.server.replyHeader(api.ScopeFetchReplyType, fetch.Index)})
	Expect(errors.Cause(fetchErr)).To(Equal(api.ErrScopeFetchFailed))

	// reply of unexpected type
	f.session.Fetch(s, nil, cb)
	fetch = f.adapter.LastSent().(*api.ScopeFetch)
	f.receive(&api.Reply{ReplyHeader: f.server.replyHeader(api.ReplyType, fetch.Index)})
	Expect(errors.Cause(fetchErr)).To(Equal(api.ErrScopeFetchFailed))

	// server error
	f.session.Fetch(s, nil, cb)
	fetch = f.adapter.LastSent().(*api.ScopeFetch)
	f.receive(&api.ScopeFetchReply{
		ReplyHeader: f.server.replyHeader(api.ScopeFetchReplyType, fetch.Index),
		Error:       &api.Error{Code: 404, Slug: "not-found"},
	})
	Expect(fetchErr).To(Equal(&api.Error{Code: 404, Slug: "not-found"}))

	// session closed while waiting
	f.session.Fetch(s, nil, cb)
	f.session.Close()
	Expect(fetchErr).To(Equal(api.ErrSessionBecameClosed))

	// session already closed
	sent := len(f.adapter.Sent())
	f.session.Fetch(s, nil, cb)
	Expect(fetchErr).To(Equal(api.ErrSessionAlreadyClosed))
	Expect(f.adapter.Sent()).To(HaveLen(sent))
}

func TestSessionStateForUnknownScope(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, root := newTestScope()
	f.session.ScopeAttach(s, 1, nil)
	original := root.UUID()

	f.receive(&api.ScopeState{
		Header:       api.Header{Type: api.ScopeStateType, Index: 1},
		ScopeIndex:   2,
		RootFragment: rootFragment(uuid.New(), nil),
	})
	Expect(root.UUID()).To(Equal(original))
	Expect(f.session.ServerIndex()).To(Equal(uint64(1)))

	// invalid root fragment
	f.receive(&api.ScopeState{
		Header:       api.Header{Type: api.ScopeStateType, Index: 2},
		ScopeIndex:   1,
		RootFragment: map[string]interface{}{"type": "add", "uuid": uuid.New().String(), "cls": "TestModel"},
	})
	Expect(root.UUID()).To(Equal(original))
}

func TestSessionSyncSkipsInvalidFragments(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, root := newTestScope()
	f.session.ScopeAttach(s, 1, nil)

	f.receive(api.NewScopeSync(1, 1, []map[string]interface{}{
		{"type": "change"},
		{"type": "change", "uuid": root.UUID().String(), "properties": map[string]interface{}{"string": "valid"}},
	}))
	Expect(root.Get("string")).To(Equal("valid"))
}

func TestSessionCloseRevertsChangeSets(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, root := newTestScope()
	f.session.ScopeAttach(s, 1, nil)

	root.MustSetProperty("bool", true)
	s.SendChanges()
	sync := f.adapter.LastSent().(*api.ScopeSync)
	Expect(sync.Index).To(Equal(uint64(1)))
	Expect(f.session.Queue().Count()).To(Equal(1))

	f.session.Close()
	Expect(f.session.Closed()).To(BeTrue())
	Expect(root.Get("bool")).To(Equal(false))
	Expect(f.session.Queue().Count()).To(BeZero())
	Expect(f.transport.WaitingReplies()).To(BeZero())

	// detached scope no longer sends
	sent := len(f.adapter.Sent())
	root.MustSetProperty("bool", true)
	s.SendChanges()
	Expect(f.adapter.Sent()).To(HaveLen(sent))
}

func TestSessionPartialReply(t *testing.T) {
	RegisterTestingT(t)
	f := newSessionFixture()
	s, root := newTestScope()
	child := testmodel.New()
	root.MustSetProperty("childModel", child)
	s.GetAndClearSyncFragments()
	f.session.ScopeAttach(s, 1, nil)

	changeSet := s.CreateAtomicChangeSet(func() {
		root.MustSetProperty("string", "kept")
		child.MustSetProperty("string", "dropped")
	})
	sync := f.adapter.LastSent().(*api.ScopeSync)
	Expect(sync.Atomic).To(BeTrue())
	Expect(sync.Fragments).To(HaveLen(2))

	f.receive(&api.ScopeSyncReply{
		ReplyHeader: f.server.replyHeader(api.ScopeSyncReplyType, sync.Index),
		FragmentReplies: []api.FragmentReply{
			{},
			{Error: &api.Error{Message: "denied"}},
		},
	})
	Expect(changeSet.State()).To(Equal(scope.PartiallyReverted))
	Expect(root.Get("string")).To(Equal("kept"))
	Expect(child.Get("string")).To(BeNil())
}
