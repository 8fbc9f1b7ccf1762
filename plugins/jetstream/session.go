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
	"sync/atomic"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream/api"
)

// changeSetRecorder records change sets sent over a session.
type changeSetRecorder interface {
	preRecordChangeSet(changeSet *scope.ChangeSet, scopeIndex, msgIndex uint64) *RecordedChangeSet
	recordChangeSet(record *RecordedChangeSet, changeSet *scope.ChangeSet)
}

// Session is a server-granted session. It orders incoming messages,
// applies remote state to attached scopes and sends local change sets.
// Except for ServerIndex and Token, methods must be called from the client
// event loop.
type Session struct {
	token     string
	log       logging.Logger
	transport *Transport
	recorder  changeSetRecorder

	nextMessageIndex uint64
	serverIndex      atomic.Uint64

	scopes map[uint64]*attachedScope
	closed bool
	queue  *scope.ChangeSetQueue
}

// attachedScope is a scope fetched over the session.
type attachedScope struct {
	scope    *scope.Scope
	index    uint64
	params   map[string]interface{}
	observer scope.ObserverID
}

// ScopeInfo describes a scope attached to a session.
type ScopeInfo struct {
	Name           string `json:"name"`
	Index          uint64 `json:"index"`
	Nodes          int    `json:"nodes"`
	Paused         bool   `json:"paused"`
	PendingChanges bool   `json:"pending-changes"`
}

func newSession(token string, transport *Transport, log logging.Logger, recorder changeSetRecorder) *Session {
	s := &Session{
		token:            token,
		log:              log,
		transport:        transport,
		recorder:         recorder,
		nextMessageIndex: 1,
		scopes:           make(map[uint64]*attachedScope),
		queue:            scope.NewChangeSetQueue(),
	}
	s.queue.ObserveAdded(func(*scope.ChangeSet) { reportQueueLength(s.queue.Count()) })
	s.queue.ObserveRemoved(func(*scope.ChangeSet) { reportQueueLength(s.queue.Count()) })
	return s
}

// Token identifies the session to the server.
func (s *Session) Token() string {
	return s.token
}

// ServerIndex returns the index of the last in-order message received from
// the server. Safe for concurrent use.
func (s *Session) ServerIndex() uint64 {
	return s.serverIndex.Load()
}

// Closed returns true once the session was closed.
func (s *Session) Closed() bool {
	return s.closed
}

// Queue returns change sets waiting for the server.
func (s *Session) Queue() *scope.ChangeSetQueue {
	return s.queue
}

// Scope returns the scope attached under <index>.
func (s *Session) Scope(index uint64) (*scope.Scope, bool) {
	as, attached := s.scopes[index]
	if !attached {
		return nil, false
	}
	return as.scope, true
}

// Scopes returns info about attached scopes ordered by index.
func (s *Session) Scopes() []ScopeInfo {
	infos := make([]ScopeInfo, 0, len(s.scopes))
	for index, as := range s.scopes {
		infos = append(infos, ScopeInfo{
			Name:           as.scope.Name(),
			Index:          index,
			Nodes:          len(as.scope.Nodes()),
			Paused:         as.scope.IsPaused(),
			PendingChanges: as.scope.HasPendingChanges(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Index < infos[j].Index })
	return infos
}

func (s *Session) nextIndex() uint64 {
	index := s.nextMessageIndex
	s.nextMessageIndex++
	return index
}

// Fetch asks the server for the scope and attaches it once the server
// replies. The callback receives ErrSessionAlreadyClosed right away if
// the session is closed, the server error (*api.Error) if the fetch was
// denied and ErrSessionBecameClosed if the session closed in the meantime.
func (s *Session) Fetch(sc *scope.Scope, params map[string]interface{}, cb func(error)) {
	defer trackSessionMethod("fetch")()

	if s.closed {
		cb(api.ErrSessionAlreadyClosed)
		return
	}

	msg := api.NewScopeFetch(s.nextIndex(), sc.Name(), params)
	s.transport.SendWithReply(msg, func(reply api.ReplyMessage, err error) {
		if err != nil {
			cb(err)
			return
		}
		fetchReply, ok := reply.(*api.ScopeFetchReply)
		if !ok {
			cb(errors.Wrapf(api.ErrScopeFetchFailed, "unexpected reply %s", reply.GetType()))
			return
		}
		if fetchReply.Error != nil {
			cb(fetchReply.Error)
			return
		}
		if fetchReply.ScopeIndex == nil {
			cb(errors.Wrap(api.ErrScopeFetchFailed, "undefined scope index"))
			return
		}
		if s.closed {
			cb(api.ErrSessionBecameClosed)
			return
		}
		s.ScopeAttach(sc, *fetchReply.ScopeIndex, params)
		cb(nil)
	})
}

// ScopeAttach binds the scope to the session-local <index>: incoming
// messages for the index are applied to the scope and change sets of
// the scope are sent to the server.
func (s *Session) ScopeAttach(sc *scope.Scope, index uint64, params map[string]interface{}) {
	if previous, attached := s.scopes[index]; attached {
		previous.scope.RemoveObserver(previous.observer)
	}
	as := &attachedScope{
		scope:  sc,
		index:  index,
		params: params,
	}
	as.observer = sc.OnChanges(func(changeSet *scope.ChangeSet) {
		s.scopeChanges(as, changeSet)
	})
	s.scopes[index] = as
	s.log.WithFields(logging.Fields{"scope": sc.Name(), "scopeIndex": index}).Info("Scope attached")
}

func (s *Session) scopeChanges(as *attachedScope, changeSet *scope.ChangeSet) {
	defer trackSessionMethod("scopeChanges")()

	if s.closed {
		changeSet.RevertOnScope(as.scope)
		return
	}
	s.queue.Add(changeSet)

	fragments := make([]map[string]interface{}, 0, len(changeSet.Fragments()))
	for _, fragment := range changeSet.Fragments() {
		fragments = append(fragments, fragment.Serialize())
	}
	msg := api.NewScopeSync(s.nextIndex(), as.index, fragments)
	msg.Atomic = changeSet.IsAtomic()
	msg.Procedure = changeSet.Procedure()

	record := s.recorder.preRecordChangeSet(changeSet, as.index, msg.Index)
	start := time.Now()
	changeSet.ObserveCompletion(func(error) {
		reportChangeSet(changeSet.State(), time.Since(start).Seconds())
		countChangeSet(changeSet.State())
		if record != nil {
			s.recorder.recordChangeSet(record, changeSet)
		}
	})

	log := s.log.WithFields(logging.Fields{"changeSet": changeSet.ID(), "index": msg.Index})
	s.transport.SendWithReply(msg, func(reply api.ReplyMessage, err error) {
		if err != nil {
			log.Warnf("Change set not confirmed: %v", err)
			changeSet.RevertOnScope(as.scope)
			return
		}
		syncReply, ok := reply.(*api.ScopeSyncReply)
		if !ok {
			log.Errorf("Unexpected reply %s to change set", reply.GetType())
			changeSet.RevertOnScope(as.scope)
			return
		}
		changeSet.ProcessFragmentReplies(fragmentReplies(syncReply.FragmentReplies), as.scope)
	})
}

func fragmentReplies(replies []api.FragmentReply) []scope.FragmentReply {
	converted := make([]scope.FragmentReply, 0, len(replies))
	for _, reply := range replies {
		fr := scope.FragmentReply{
			Accepted:      reply.Accepted(),
			Modifications: reply.Modifications,
		}
		if reply.Error != nil {
			fr.Err = reply.Error
		}
		converted = append(converted, fr)
	}
	return converted
}

// ReceivedMessage processes a message received from the server.
// Messages with index 0 are outside of the ordering. A message with an index
// already seen is dropped, a message skipping an index makes the transport
// reconnect so that the server resends the missing messages. Replies reach
// their continuations only once they passed the ordering.
func (s *Session) ReceivedMessage(msg api.Message) {
	defer trackSessionMethod("receivedMessage")()

	if s.closed {
		return
	}
	index := msg.GetIndex()
	ephemeral := index == 0
	serverIndex := s.serverIndex.Load()
	log := s.log.WithFields(logging.Fields{"index": index, "type": msg.GetType()})

	if !ephemeral && index <= serverIndex {
		// likely a resend triggered by a ping with an older ack
		log.Warn("Server resent seen message")
		reportDuplicate()
		updateStats(func(st *Stats) { st.DuplicatesDropped++ })
		return
	}
	if !ephemeral && index != serverIndex+1 {
		log.Errorf("Received out of order message, expected index %d", serverIndex+1)
		reportGap()
		updateStats(func(st *Stats) { st.Gaps++ })
		s.transport.Reconnect()
		return
	}
	if !ephemeral {
		s.serverIndex.Store(index)
	}

	switch m := msg.(type) {
	case api.ReplyMessage:
		s.transport.messageReceived(m)
	case *api.ScopeState:
		s.scopeState(m, log)
	case *api.ScopeSync:
		s.scopeSync(m, log)
	}
}

func (s *Session) scopeState(msg *api.ScopeState, log logging.LogWithLevel) {
	as, attached := s.scopes[msg.ScopeIndex]
	if !attached {
		log.Errorf("Received state message without having local scope %d", msg.ScopeIndex)
		return
	}
	if as.scope.Root() == nil {
		log.Error("Received state message without having a root model")
		return
	}
	root, err := scope.UnserializeFragment(msg.RootFragment)
	if err != nil || root.Type != scope.Root {
		log.Errorf("Received state message with invalid root fragment: %v", err)
		return
	}
	fragments := unserializeFragments(msg.Fragments, log)
	sc := as.scope
	sc.StartApplyingRemote(func() {
		sc.ApplyFullState(root, fragments)
	})
}

func (s *Session) scopeSync(msg *api.ScopeSync, log logging.LogWithLevel) {
	as, attached := s.scopes[msg.ScopeIndex]
	if !attached || as.scope.Root() == nil {
		log.Warnf("Received sync message for unknown scope %d", msg.ScopeIndex)
		return
	}
	fragments := unserializeFragments(msg.Fragments, log)
	if len(fragments) == 0 {
		log.Error("Received sync message without fragments")
		return
	}
	sc := as.scope
	sc.StartApplyingRemote(func() {
		sc.ApplySyncFragments(fragments, false)
	})
}

func unserializeFragments(raw []map[string]interface{}, log logging.LogWithLevel) []*scope.SyncFragment {
	fragments := make([]*scope.SyncFragment, 0, len(raw))
	for _, data := range raw {
		fragment, err := scope.UnserializeFragment(data)
		if err != nil {
			log.Warnf("Dropping fragment: %v", err)
			continue
		}
		fragments = append(fragments, fragment)
	}
	return fragments
}

// Close detaches all scopes and fails messages still waiting for a reply,
// which reverts change sets the server did not confirm.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, as := range s.scopes {
		as.scope.RemoveObserver(as.observer)
	}
	s.scopes = make(map[uint64]*attachedScope)
	s.transport.FailWaiting(api.ErrSessionBecameClosed)
	s.log.WithField("token", s.token).Info("Session closed")
}
