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

package snapshot_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/ligato/jetstream/plugins/jetstream/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Scope:  "Testing",
		Params: map[string]interface{}{"room": "lobby"},
		Root: map[string]interface{}{
			"type":       "root",
			"uuid":       "2a1cf5f8-4c1a-4e8c-9b7f-9ac1d2f0b5a1",
			"clsName":    "TestModel",
			"properties": map[string]interface{}{"integer": 10},
		},
		Fragments: []map[string]interface{}{},
		Taken:     time.Date(2018, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	defer store.Close()

	_, err := store.Load(ctx, "Testing")
	Expect(err).To(Equal(snapshot.ErrNotFound))

	Expect(store.Save(ctx, testSnapshot())).To(Succeed())
	loaded, err := store.Load(ctx, "Testing")
	Expect(err).ToNot(HaveOccurred())
	Expect(loaded.Scope).To(Equal("Testing"))
	Expect(loaded.Params).To(HaveKeyWithValue("room", "lobby"))
	Expect(loaded.Root["properties"]).To(HaveKeyWithValue("integer", json.Number("10")))
	Expect(loaded.Taken.Equal(testSnapshot().Taken)).To(BeTrue())

	// loaded copies are independent
	loaded.Root["clsName"] = "Other"
	again, err := store.Load(ctx, "Testing")
	Expect(err).ToNot(HaveOccurred())
	Expect(again.Root["clsName"]).To(Equal("TestModel"))

	Expect(store.Delete(ctx, "Testing")).To(Succeed())
	Expect(store.Delete(ctx, "Testing")).To(Succeed())
	_, err = store.Load(ctx, "Testing")
	Expect(err).To(Equal(snapshot.ErrNotFound))
}

func TestEncodeRejectsIncomplete(t *testing.T) {
	RegisterTestingT(t)

	_, err := snapshot.Encode(&snapshot.Snapshot{Root: map[string]interface{}{}})
	Expect(err).To(HaveOccurred())
	_, err = snapshot.Encode(&snapshot.Snapshot{Scope: "Testing"})
	Expect(err).To(HaveOccurred())

	_, err = snapshot.Decode([]byte(`{"scope":"Testing"}`))
	Expect(err).To(HaveOccurred())
	_, err = snapshot.Decode([]byte(`{"scope":`))
	Expect(err).To(HaveOccurred())
}
