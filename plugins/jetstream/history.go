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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ligato/jetstream/pkg/scope"
)

// RecordedChangeSet is used to record a change set sent to the server.
type RecordedChangeSet struct {
	PreRecord bool // not yet answered by the server

	// timestamps
	Start time.Time
	Stop  time.Time

	// arguments
	SeqNum       uint
	ID           string
	Scope        string
	ScopeIndex   uint64
	MessageIndex uint64
	Description  string
	Atomic       bool
	Procedure    string
	Fragments    []RecordedFragment

	// result
	Outcome string
	Error   string
}

// RecordedFragment is used to record one fragment of a change set.
type RecordedFragment struct {
	Type       scope.FragmentType
	UUID       string
	Class      string `json:",omitempty"`
	Properties []string
}

// RecordedChangeSets is a list of recorded change sets.
type RecordedChangeSets []*RecordedChangeSet

// StringWithOpts allows to format string representation of recorded change set.
func (r *RecordedChangeSet) StringWithOpts(resultOnly bool, indent int) string {
	var str string
	indent1 := strings.Repeat(" ", indent)
	indent2 := strings.Repeat(" ", indent+4)
	indent3 := strings.Repeat(" ", indent+8)

	if !resultOnly {
		str += indent1 + "* change set arguments:\n"
		str += indent2 + fmt.Sprintf("- seq-num: %d\n", r.SeqNum)
		str += indent2 + fmt.Sprintf("- id: %s\n", r.ID)
		str += indent2 + fmt.Sprintf("- scope: %s (index %d, message %d)\n", r.Scope, r.ScopeIndex, r.MessageIndex)
		if r.Procedure != "" {
			str += indent2 + fmt.Sprintf("- procedure: %s\n", r.Procedure)
		} else if r.Atomic {
			str += indent2 + "- atomic: true\n"
		}
		if r.Description != "" {
			for idx, line := range strings.Split(r.Description, "\n") {
				if idx == 0 {
					str += indent2 + fmt.Sprintf("- description: %s\n", line)
				} else {
					str += indent3 + fmt.Sprintf("%s\n", line)
				}
			}
		}
		if len(r.Fragments) == 0 {
			str += indent2 + "- fragments: NONE\n"
		} else {
			str += indent2 + "- fragments:\n"
		}
		for idx, fragment := range r.Fragments {
			str += indent3 + fmt.Sprintf("%d. %s %s", idx+1, fragment.Type, fragment.UUID)
			if fragment.Class != "" {
				str += fmt.Sprintf(" (%s)", fragment.Class)
			}
			str += "\n"
			for _, property := range fragment.Properties {
				str += indent3 + fmt.Sprintf("   %s\n", property)
			}
		}
	}

	if !r.PreRecord {
		str += indent1 + fmt.Sprintf("* outcome: %s (%s - %s, duration = %s)\n",
			r.Outcome, r.Start.Format(time.StampMilli), r.Stop.Format(time.StampMilli), r.Stop.Sub(r.Start))
		if r.Error != "" {
			str += indent2 + fmt.Sprintf("- error: %s\n", r.Error)
		}
	}
	return str
}

// StringWithOpts allows to format string representation of a change set list.
func (rs RecordedChangeSets) StringWithOpts(resultOnly bool, indent int) string {
	if len(rs) == 0 {
		return strings.Repeat(" ", indent) + "<NONE>\n"
	}

	var str string
	for idx, r := range rs {
		str += strings.Repeat(" ", indent) + fmt.Sprintf("Change set #%d:\n", r.SeqNum)
		str += r.StringWithOpts(resultOnly, indent+4)
		if idx < len(rs)-1 {
			str += "\n"
		}
	}
	return str
}

func recordFragments(fragments []*scope.SyncFragment) []RecordedFragment {
	recorded := make([]RecordedFragment, 0, len(fragments))
	for _, fragment := range fragments {
		rf := RecordedFragment{
			Type:  fragment.Type,
			UUID:  fragment.ObjectUUID.String(),
			Class: fragment.ClassName,
		}
		for key, value := range fragment.Properties {
			rf.Properties = append(rf.Properties, fmt.Sprintf("%s: %v", key, value))
		}
		sort.Strings(rf.Properties)
		recorded = append(recorded, rf)
	}
	return recorded
}

// preRecordChangeSet records arguments of a change set just before it is sent.
// Returns nil if neither recording nor printing is enabled.
func (c *Client) preRecordChangeSet(changeSet *scope.ChangeSet, scopeIndex, msgIndex uint64) *RecordedChangeSet {
	if !c.config.RecordChangeSetHistory && !c.config.PrintChangeSetSummary {
		return nil
	}
	c.historyLock.Lock()
	c.changeSetSeqNum++
	seqNum := c.changeSetSeqNum
	c.historyLock.Unlock()

	record := &RecordedChangeSet{
		PreRecord:    true,
		Start:        time.Now(),
		SeqNum:       seqNum,
		ID:           changeSet.ID().String(),
		Scope:        changeSet.Scope().Name(),
		ScopeIndex:   scopeIndex,
		MessageIndex: msgIndex,
		Description:  changeSet.Description(),
		Atomic:       changeSet.IsAtomic(),
		Procedure:    changeSet.Procedure(),
		Fragments:    recordFragments(changeSet.Fragments()),
	}

	if c.config.PrintChangeSetSummary {
		var buf strings.Builder
		buf.WriteString("+======================================================================================================================+\n")
		msg := fmt.Sprintf("Change set #%d", record.SeqNum)
		n := 115 - len(msg)
		buf.WriteString(fmt.Sprintf("| %s %"+fmt.Sprint(n)+"s |\n", msg, record.Scope))
		buf.WriteString("+======================================================================================================================+\n")
		buf.WriteString(record.StringWithOpts(false, 2))
		fmt.Println(buf.String())
	}
	return record
}

// recordChangeSet finalizes the record once the change set reached
// a terminal state (log + in-memory).
func (c *Client) recordChangeSet(record *RecordedChangeSet, changeSet *scope.ChangeSet) {
	record.PreRecord = false
	record.Stop = time.Now()
	record.Outcome = changeSet.State().String()
	if err := changeSet.Err(); err != nil {
		record.Error = err.Error()
	}

	if c.config.PrintChangeSetSummary {
		var buf strings.Builder
		buf.WriteString("o----------------------------------------------------------------------------------------------------------------------o\n")
		buf.WriteString(record.StringWithOpts(true, 2))
		buf.WriteString("x----------------------------------------------------------------------------------------------------------------------x\n")
		msg := fmt.Sprintf("#%d", record.SeqNum)
		msg2 := fmt.Sprintf("took %v", record.Stop.Sub(record.Start).Round(time.Millisecond))
		buf.WriteString(fmt.Sprintf("x %s %"+fmt.Sprint(115-len(msg))+"s x\n", msg, msg2))
		buf.WriteString("x----------------------------------------------------------------------------------------------------------------------x\n")
		fmt.Println(buf.String())
	}
	if !c.config.RecordChangeSetHistory {
		return
	}

	c.historyLock.Lock()
	c.changeSetHistory = append(c.changeSetHistory, record)
	if limit := c.config.ChangeSetHistoryLimit; limit > 0 && len(c.changeSetHistory) > limit {
		c.changeSetHistory = append(RecordedChangeSets(nil), c.changeSetHistory[len(c.changeSetHistory)-limit:]...)
	}
	c.historyLock.Unlock()
}

// getChangeSetHistory returns history of change sets started within the specified
// time window, or the full recorded history if the timestamps are zero values.
func (c *Client) getChangeSetHistory(since, until time.Time) (history RecordedChangeSets) {
	c.historyLock.Lock()
	defer c.historyLock.Unlock()

	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		// invalid time window
		return
	}

	lastBefore := -1
	firstAfter := len(c.changeSetHistory)

	if !since.IsZero() {
		for ; lastBefore+1 < len(c.changeSetHistory); lastBefore++ {
			if !c.changeSetHistory[lastBefore+1].Start.Before(since) {
				break
			}
		}
	}

	if !until.IsZero() {
		for ; firstAfter > 0; firstAfter-- {
			if !c.changeSetHistory[firstAfter-1].Start.After(until) {
				break
			}
		}
	}

	return append(RecordedChangeSets(nil), c.changeSetHistory[lastBefore+1:firstAfter]...)
}

// getRecordedChangeSet returns record of the change set with the given sequence
// number.
func (c *Client) getRecordedChangeSet(seqNum uint) *RecordedChangeSet {
	c.historyLock.Lock()
	defer c.historyLock.Unlock()

	for _, record := range c.changeSetHistory {
		if record.SeqNum == seqNum {
			return record
		}
	}
	return nil
}
