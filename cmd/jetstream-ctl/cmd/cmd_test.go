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

package cmd

import (
	"bytes"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/pkg/value"
)

const testClasses = `
classes:
- name: Room
  properties:
  - key: title
    kind: string
    default: lobby
  - key: capacity
    kind: int32
    default: 10
  - key: members
    kind: ref-list
  - key: typing
    kind: bool
    min-sync-interval: 250ms
- name: Member
  properties:
  - key: nick
    kind: string
  - key: draft
    kind: string
    dont-sync: true
`

func TestRegisterClasses(t *testing.T) {
	RegisterTestingT(t)
	registry := model.NewRegistry()
	Expect(registerClasses([]byte(testClasses), registry)).To(Succeed())
	Expect(registry.ClassNames()).To(ConsistOf("Room", "Member"))

	room, found := registry.Lookup("Room")
	Expect(found).To(BeTrue())
	title, _ := room.Property("title")
	Expect(title.Kind).To(Equal(value.String))
	capacity, _ := room.Property("capacity")
	Expect(capacity.Default).To(Equal(int32(10)))
	members, _ := room.Property("members")
	Expect(members.Kind).To(Equal(value.RefList))
	typing, _ := room.Property("typing")
	Expect(typing.MinSyncInterval).To(Equal(250 * time.Millisecond))

	node := room.New()
	Expect(node.Get("title")).To(Equal("lobby"))

	member, _ := registry.Lookup("Member")
	draft, _ := member.Property("draft")
	Expect(draft.IsSynced()).To(BeFalse())

	// classes cannot be registered twice
	Expect(registerClasses([]byte(testClasses), registry)).ToNot(Succeed())
}

func TestRegisterInvalidClasses(t *testing.T) {
	RegisterTestingT(t)
	for _, def := range []string{
		"classes: [{name: A, properties: [{key: x, kind: list}]}]",
		"classes: [{name: A, properties: [{key: x, kind: composite}]}]",
		"classes: [{name: A, properties: [{key: x, kind: bool, min-sync-interval: often}]}]",
		"classes: [{name: '', properties: []}]",
		"classes: {name: A}",
	} {
		Expect(registerClasses([]byte(def), model.NewRegistry())).ToNot(Succeed(), def)
	}
}

func TestApplyLogLevel(t *testing.T) {
	RegisterTestingT(t)
	defer func(level string) { globalFlags.LogLevel = level }(globalFlags.LogLevel)

	globalFlags.LogLevel = "loud"
	Expect(applyLogLevel()).ToNot(Succeed())
	globalFlags.LogLevel = "INFO"
	Expect(applyLogLevel()).To(Succeed())
}

func TestParseParams(t *testing.T) {
	RegisterTestingT(t)
	params, err := parseParams([]string{"user=tester", "filter=a=b"})
	Expect(err).ToNot(HaveOccurred())
	Expect(params).To(Equal(map[string]interface{}{"user": "tester", "filter": "a=b"}))

	_, err = parseParams([]string{"user"})
	Expect(err).To(HaveOccurred())
	_, err = parseParams([]string{"=x"})
	Expect(err).To(HaveOccurred())
}

func TestPrintNodes(t *testing.T) {
	RegisterTestingT(t)
	nodes := []scope.NodeDump{{
		UUID:       "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Class:      "Room",
		Root:       true,
		Properties: map[string]interface{}{"title": "lobby"},
	}}

	var buf bytes.Buffer
	Expect(printNodes(&buf, nodes, "yaml")).To(Succeed())
	Expect(buf.String()).To(ContainSubstring("Class: Room"))
	Expect(buf.String()).To(ContainSubstring("title: lobby"))

	buf.Reset()
	Expect(printNodes(&buf, nodes, "json")).To(Succeed())
	Expect(buf.String()).To(ContainSubstring(`"UUID": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"`))

	buf.Reset()
	Expect(printNodes(&buf, nodes, "go")).To(Succeed())
	Expect(buf.String()).To(ContainSubstring(`Class: "Room"`))

	Expect(printNodes(&buf, nodes, "xml")).ToNot(Succeed())
}
