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
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/ligato/jetstream/pkg/scope"
)

func recordCompleted(c *Client, s *scope.Scope, change func()) *RecordedChangeSet {
	changeSet := s.Modify(scope.WithDescription(context.Background(), "test"), change)
	record := c.preRecordChangeSet(changeSet, 1, 1)
	changeSet.Completed()
	c.recordChangeSet(record, changeSet)
	return record
}

func TestChangeSetHistoryLimit(t *testing.T) {
	RegisterTestingT(t)
	cfg := DefaultConfig()
	cfg.ChangeSetHistoryLimit = 2
	c := &Client{config: cfg}
	s, root := newTestScope()

	for i := 1; i <= 3; i++ {
		v := int64(i)
		recordCompleted(c, s, func() { root.MustSetProperty("int", v) })
	}
	history := c.getChangeSetHistory(time.Time{}, time.Time{})
	Expect(history).To(HaveLen(2))
	Expect(history[0].SeqNum).To(Equal(uint(2)))
	Expect(history[1].SeqNum).To(Equal(uint(3)))
	Expect(history[1].Description).To(Equal("test"))
	Expect(history[1].Fragments[0].Properties).To(ConsistOf("int: 3"))
	Expect(c.getRecordedChangeSet(1)).To(BeNil())
}

func TestChangeSetHistoryDisabled(t *testing.T) {
	RegisterTestingT(t)
	cfg := DefaultConfig()
	cfg.RecordChangeSetHistory = false
	c := &Client{config: cfg}
	s, root := newTestScope()

	changeSet := s.Modify(context.Background(), func() { root.MustSetProperty("bool", true) })
	Expect(c.preRecordChangeSet(changeSet, 1, 1)).To(BeNil())
	Expect(c.getChangeSetHistory(time.Time{}, time.Time{})).To(BeEmpty())
}

func TestChangeSetHistoryWindow(t *testing.T) {
	RegisterTestingT(t)
	base := time.Date(2018, 9, 1, 12, 0, 0, 0, time.UTC)
	c := &Client{config: DefaultConfig()}
	for i := 0; i < 5; i++ {
		c.changeSetHistory = append(c.changeSetHistory, &RecordedChangeSet{
			SeqNum: uint(i + 1),
			Start:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	seqNums := func(history RecordedChangeSets) (nums []uint) {
		for _, record := range history {
			nums = append(nums, record.SeqNum)
		}
		return nums
	}

	Expect(seqNums(c.getChangeSetHistory(time.Time{}, time.Time{}))).To(Equal([]uint{1, 2, 3, 4, 5}))
	Expect(seqNums(c.getChangeSetHistory(base.Add(2*time.Minute), time.Time{}))).To(Equal([]uint{3, 4, 5}))
	Expect(seqNums(c.getChangeSetHistory(time.Time{}, base.Add(90*time.Second)))).To(Equal([]uint{1, 2}))
	Expect(seqNums(c.getChangeSetHistory(base.Add(time.Minute), base.Add(3*time.Minute)))).To(Equal([]uint{2, 3, 4}))
	Expect(c.getChangeSetHistory(base.Add(time.Hour), time.Time{})).To(BeEmpty())
	Expect(c.getChangeSetHistory(base.Add(3*time.Minute), base)).To(BeEmpty())
}

func TestChangeSetHistoryText(t *testing.T) {
	RegisterTestingT(t)
	Expect(RecordedChangeSets{}.StringWithOpts(false, 2)).To(Equal("  <NONE>\n"))

	c := &Client{config: DefaultConfig()}
	s, root := newTestScope()
	record := recordCompleted(c, s, func() { root.MustSetProperty("string", "x") })
	text := RecordedChangeSets{record}.StringWithOpts(false, 0)
	Expect(text).To(HavePrefix("Change set #1:\n"))
	Expect(text).To(ContainSubstring("- description: test"))
	Expect(text).To(ContainSubstring("1. change " + root.UUID().String()))
	Expect(text).To(ContainSubstring("* outcome: completed"))
}
