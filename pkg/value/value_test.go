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

package value

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
	"github.com/pkg/errors"
)

type testObject struct {
	id uuid.UUID
}

func (o *testObject) UUID() uuid.UUID {
	return o.id
}

func newTestObject() *testObject {
	return &testObject{id: uuid.New()}
}

func resolverFor(objects ...*testObject) Resolver {
	return func(id uuid.UUID) Object {
		for _, o := range objects {
			if o.id == id {
				return o
			}
		}
		return nil
	}
}

func TestEqual(t *testing.T) {
	gomega.RegisterTestingT(t)

	a, b := newTestObject(), newTestObject()

	gomega.Expect(Equal(nil, nil)).To(gomega.BeTrue())
	gomega.Expect(Equal(int64(1), int64(1))).To(gomega.BeTrue())
	gomega.Expect(Equal(int64(1), int32(1))).To(gomega.BeFalse())
	gomega.Expect(Equal("x", nil)).To(gomega.BeFalse())
	gomega.Expect(Equal([]byte("abc"), []byte("abc"))).To(gomega.BeTrue())
	gomega.Expect(Equal(a, a)).To(gomega.BeTrue())
	gomega.Expect(Equal(a, b)).To(gomega.BeFalse())
	gomega.Expect(Equal(a, &testObject{id: a.id})).To(gomega.BeFalse())

	// lists compare by identity and order
	gomega.Expect(Equal([]Object{a, b}, []Object{a, b})).To(gomega.BeTrue())
	gomega.Expect(Equal([]Object{a, b}, []Object{b, a})).To(gomega.BeFalse())
	gomega.Expect(Equal([]Object{}, nil)).To(gomega.BeTrue())
	gomega.Expect(Equal([]Object{a}, nil)).To(gomega.BeFalse())

	now := time.Now()
	gomega.Expect(Equal(now, now.UTC())).To(gomega.BeTrue())
}

func TestConvert(t *testing.T) {
	gomega.RegisterTestingT(t)

	v, err := Convert(Int64, 2)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(int64(2)))

	v, err = Convert(Uint8, json.Number("255"))
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(uint8(255)))

	_, err = Convert(Uint8, 256)
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))

	_, err = Convert(Uint32, -1)
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))

	_, err = Convert(Int32, 1.5)
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))

	v, err = Convert(Float32, json.Number("2.5"))
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(float32(2.5)))

	_, err = Convert(Int64, nil)
	gomega.Expect(err).To(gomega.Equal(ErrNilNotAccepted))

	v, err = Convert(String, nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.BeNil())

	_, err = Convert(String, 10)
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))
}

func TestSerializeReferences(t *testing.T) {
	gomega.RegisterTestingT(t)

	a, b := newTestObject(), newTestObject()

	gomega.Expect(Serialize(Ref, a)).To(gomega.Equal(a.id.String()))
	gomega.Expect(Serialize(Ref, nil)).To(gomega.BeNil())
	gomega.Expect(Serialize(RefList, []Object{a, b})).To(gomega.Equal([]interface{}{a.id.String(), b.id.String()}))
	gomega.Expect(Serialize(RefList, nil)).To(gomega.Equal([]interface{}{}))

	v, err := Unserialize(Ref, a.id.String(), resolverFor(a, b))
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.BeIdenticalTo(a))

	v, err = Unserialize(RefList, []interface{}{b.id.String(), a.id.String()}, resolverFor(a, b))
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal([]Object{b, a}))
}

func TestUnresolvedReferencesDegrade(t *testing.T) {
	gomega.RegisterTestingT(t)

	a, missing := newTestObject(), newTestObject()

	v, err := Unserialize(Ref, missing.id.String(), resolverFor(a))
	gomega.Expect(err).To(gomega.Equal(ErrUnresolvedReference))
	gomega.Expect(v).To(gomega.BeNil())

	v, err = Unserialize(RefList, []interface{}{missing.id.String(), a.id.String()}, resolverFor(a))
	gomega.Expect(err).To(gomega.Equal(ErrUnresolvedReference))
	gomega.Expect(v).To(gomega.Equal([]Object{a}))

	_, err = Unserialize(Ref, "not-a-uuid", resolverFor(a))
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))
}

func TestSerializeScalars(t *testing.T) {
	gomega.RegisterTestingT(t)

	date := time.Unix(1500000000, 500000000)
	raw := Serialize(Date, date)
	gomega.Expect(raw).To(gomega.Equal(1500000000.5))
	v, err := Unserialize(Date, raw, nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(Equal(v, date)).To(gomega.BeTrue())

	raw = Serialize(Bytes, []byte{1, 2, 3})
	gomega.Expect(raw).To(gomega.Equal("AQID"))
	v, err = Unserialize(Bytes, raw, nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal([]byte{1, 2, 3}))

	color := NewColor(0xff, 0x80, 0x00, 0xff)
	gomega.Expect(Serialize(Color, color)).To(gomega.Equal(uint32(0xff8000ff)))
	v, err = Unserialize(Color, json.Number("4286578943"), nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(color))
	r, g, b, a := color.RGBA()
	gomega.Expect([]uint8{r, g, b, a}).To(gomega.Equal([]uint8{0xff, 0x80, 0x00, 0xff}))
}

func TestKinds(t *testing.T) {
	gomega.RegisterTestingT(t)

	gomega.Expect(String.IsNillable()).To(gomega.BeTrue())
	gomega.Expect(Ref.IsNillable()).To(gomega.BeTrue())
	gomega.Expect(Int64.IsNillable()).To(gomega.BeFalse())
	gomega.Expect(RefList.IsNillable()).To(gomega.BeFalse())
	gomega.Expect(RefList.IsReference()).To(gomega.BeTrue())
	gomega.Expect(Composite.IsSynced()).To(gomega.BeFalse())
	gomega.Expect(Uint16.String()).To(gomega.Equal("uint16"))
	gomega.Expect(Zero(Float32)).To(gomega.Equal(float32(0)))
	gomega.Expect(Zero(Date)).To(gomega.BeNil())
}

func TestUnserializeTruncatesFractions(t *testing.T) {
	gomega.RegisterTestingT(t)

	v, err := Unserialize(Int32, 5.5, nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(int32(5)))

	v, err = Unserialize(Uint8, json.Number("7.9"), nil)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	gomega.Expect(v).To(gomega.Equal(uint8(7)))

	_, err = Unserialize(Int64, "5", nil)
	gomega.Expect(errors.Cause(err)).To(gomega.Equal(ErrInvalidValue))
}

func TestParseKind(t *testing.T) {
	gomega.RegisterTestingT(t)

	for kind := Int8; kind < Composite; kind++ {
		parsed, err := ParseKind(kind.String())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(parsed).To(gomega.Equal(kind))
	}
	_, err := ParseKind("composite")
	gomega.Expect(err).To(gomega.HaveOccurred())
	_, err = ParseKind("invalid")
	gomega.Expect(err).To(gomega.HaveOccurred())
	_, err = ParseKind("list")
	gomega.Expect(err).To(gomega.HaveOccurred())
}
