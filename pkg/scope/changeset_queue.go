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
	"fmt"
)

// ChangeSetQueue keeps change sets in flight in the order they were sent.
// A change set leaves the queue when it reaches a terminal state. When
// a change set is reverted, the change set queued right after it is rebased
// onto the head of the queue first, so that reverting that one restores
// the state from before both.
type ChangeSetQueue struct {
	changeSets []*ChangeSet

	addedObservers   []func(*ChangeSet)
	removedObservers []func(*ChangeSet)
	stateObservers   []StateObserver
}

// NewChangeSetQueue returns an empty queue.
func NewChangeSetQueue() *ChangeSetQueue {
	return &ChangeSetQueue{}
}

// Add appends change set to the queue.
// Adding a change set that is already queued is a programming error.
func (q *ChangeSetQueue) Add(changeSet *ChangeSet) {
	if changeSet.queue != nil {
		panic(fmt.Sprintf("change set %s is already queued", changeSet.ID()))
	}
	changeSet.queue = q
	q.changeSets = append(q.changeSets, changeSet)
	for _, o := range q.addedObservers {
		o(changeSet)
	}

	if changeSet.State().IsTerminal() {
		q.changeSetStateChanged(changeSet, changeSet.State())
		return
	}
	changeSet.ObserveState(q.changeSetStateChanged)
}

// Count returns number of change sets in the queue.
func (q *ChangeSetQueue) Count() int {
	return len(q.changeSets)
}

// ChangeSets returns queued change sets, the oldest first.
func (q *ChangeSetQueue) ChangeSets() []*ChangeSet {
	return append([]*ChangeSet(nil), q.changeSets...)
}

// ObserveAdded registers callback for change sets added to the queue.
func (q *ChangeSetQueue) ObserveAdded(cb func(*ChangeSet)) {
	q.addedObservers = append(q.addedObservers, cb)
}

// ObserveRemoved registers callback for change sets leaving the queue.
func (q *ChangeSetQueue) ObserveRemoved(cb func(*ChangeSet)) {
	q.removedObservers = append(q.removedObservers, cb)
}

// ObserveStateChanged registers callback for state transitions of queued
// change sets.
func (q *ChangeSetQueue) ObserveStateChanged(cb StateObserver) {
	q.stateObservers = append(q.stateObservers, cb)
}

// after returns change sets queued after <changeSet>.
func (q *ChangeSetQueue) after(changeSet *ChangeSet) []*ChangeSet {
	idx := q.indexOf(changeSet)
	if idx < 0 {
		return nil
	}
	return q.changeSets[idx+1:]
}

func (q *ChangeSetQueue) indexOf(changeSet *ChangeSet) int {
	for i, c := range q.changeSets {
		if c == changeSet {
			return i
		}
	}
	return -1
}

func (q *ChangeSetQueue) changeSetStateChanged(changeSet *ChangeSet, state State) {
	for _, o := range q.stateObservers {
		o(changeSet, state)
	}
	idx := q.indexOf(changeSet)
	if idx < 0 {
		return
	}
	switch state {
	case Reverted, PartiallyReverted:
		if idx+1 < len(q.changeSets) {
			q.changeSets[idx+1].RebaseOnChangeSet(q.changeSets[0])
		}
	case Completed:
	default:
		return
	}
	q.changeSets = append(q.changeSets[:idx], q.changeSets[idx+1:]...)
	changeSet.queue = nil
	for _, o := range q.removedObservers {
		o(changeSet)
	}
}
