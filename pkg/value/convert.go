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
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidValue is returned when a value cannot be represented
	// by the requested kind.
	ErrInvalidValue = errors.New("value does not match the property kind")

	// ErrNilNotAccepted is returned when nil is used with non-nillable kind.
	ErrNilNotAccepted = errors.New("nil is not accepted by the property kind")

	// ErrUnresolvedReference is returned by Unserialize together with
	// a degraded value (nil or a shortened list) when some referenced
	// object is not known to the resolver.
	ErrUnresolvedReference = errors.New("referenced object not found")
)

// Convert coerces a Go value into the canonical representation of the given
// kind (e.g. int(2) into int64(2) for Int64). Numeric conversions fail
// if the value does not fit into the kind.
func Convert(kind Kind, v interface{}) (interface{}, error) {
	if v == nil {
		if kind.IsNillable() {
			return nil, nil
		}
		if kind == RefList {
			return []Object(nil), nil
		}
		return nil, ErrNilNotAccepted
	}
	switch kind {
	case Int8, Int16, Int32, Int64:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return fitInt(kind, i)
	case Uint8, Uint16, Uint32, Uint64:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		return fitUint(kind, u)
	case Float32:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case Float64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return f, nil
	case Bool:
		switch b := v.(type) {
		case bool:
			return b, nil
		default:
			f, err := toFloat64(v)
			if err != nil {
				return nil, err
			}
			return f != 0, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case Date:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case Color:
		switch c := v.(type) {
		case RGBA:
			return c, nil
		default:
			u, err := toUint64(v)
			if err != nil || u > math.MaxUint32 {
				return nil, ErrInvalidValue
			}
			return RGBA(u), nil
		}
	case Ref:
		if o, ok := v.(Object); ok {
			return o, nil
		}
	case RefList:
		if l, ok := v.([]Object); ok {
			return l, nil
		}
	case Composite:
		return v, nil
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%T is not %s", v, kind)
}

// Serialize returns wire representation of the value.
func Serialize(kind Kind, v interface{}) interface{} {
	if v == nil {
		if kind == RefList {
			return []interface{}{}
		}
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case time.Time:
		return float64(val.UnixNano()) / float64(time.Second)
	case RGBA:
		return uint32(val)
	case Object:
		return val.UUID().String()
	case []Object:
		ids := make([]interface{}, 0, len(val))
		for _, o := range val {
			ids = append(ids, o.UUID().String())
		}
		return ids
	}
	return v
}

// Unserialize converts wire representation of a value into the given kind.
// References are resolved with <resolve>; unresolved references degrade
// to nil (Ref) or are left out (RefList) and ErrUnresolvedReference is
// returned together with the degraded value.
func Unserialize(kind Kind, raw interface{}, resolve Resolver) (interface{}, error) {
	if raw == nil {
		return Convert(kind, nil)
	}
	switch kind {
	case Bytes:
		s, ok := raw.(string)
		if !ok {
			return nil, ErrInvalidValue
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidValue, err.Error())
		}
		return b, nil
	case Date:
		secs, err := toFloat64(raw)
		if err != nil {
			return nil, err
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*float64(time.Second))), nil
	case Ref:
		id, err := parseUUID(raw)
		if err != nil {
			return nil, err
		}
		if obj := lookup(resolve, id); obj != nil {
			return obj, nil
		}
		return nil, ErrUnresolvedReference
	case RefList:
		items, ok := raw.([]interface{})
		if !ok {
			return nil, ErrInvalidValue
		}
		var (
			list       = make([]Object, 0, len(items))
			unresolved bool
		)
		for _, item := range items {
			id, err := parseUUID(item)
			if err != nil {
				return nil, err
			}
			obj := lookup(resolve, id)
			if obj == nil {
				unresolved = true
				continue
			}
			list = append(list, obj)
		}
		if unresolved {
			return list, ErrUnresolvedReference
		}
		return list, nil
	case Composite:
		return nil, ErrInvalidValue
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		// fractional numbers are truncated towards zero
		if f, isFraction := fraction(raw); isFraction {
			raw = math.Trunc(f)
		}
	}
	return Convert(kind, raw)
}

func fraction(raw interface{}) (float64, bool) {
	var f float64
	switch n := raw.(type) {
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if _, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return 0, false
		}
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	return f, f != math.Trunc(f)
}

func lookup(resolve Resolver, id uuid.UUID) Object {
	if resolve == nil {
		return nil
	}
	return resolve(id)
}

func parseUUID(raw interface{}) (uuid.UUID, error) {
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, ErrInvalidValue
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrap(ErrInvalidValue, err.Error())
	}
	return id, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, ErrInvalidValue
		}
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, ErrInvalidValue
		}
		return int64(n), nil
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, ErrInvalidValue
			}
			return floatToInt64(f)
		}
		return i, nil
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	}
	return 0, errors.Wrapf(ErrInvalidValue, "%T is not a number", v)
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case json.Number:
		u, err := strconv.ParseUint(string(n), 10, 64)
		if err == nil {
			return u, nil
		}
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, errors.Wrapf(ErrInvalidValue, "negative value %d", i)
	}
	return uint64(i), nil
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, ErrInvalidValue
		}
		return f, nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return float64(i), nil
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Wrapf(ErrInvalidValue, "%v is not an integer", f)
	}
	return int64(f), nil
}

func fitInt(kind Kind, i int64) (interface{}, error) {
	switch kind {
	case Int8:
		if i >= math.MinInt8 && i <= math.MaxInt8 {
			return int8(i), nil
		}
	case Int16:
		if i >= math.MinInt16 && i <= math.MaxInt16 {
			return int16(i), nil
		}
	case Int32:
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), nil
		}
	case Int64:
		return i, nil
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%d overflows %s", i, kind)
}

func fitUint(kind Kind, u uint64) (interface{}, error) {
	switch kind {
	case Uint8:
		if u <= math.MaxUint8 {
			return uint8(u), nil
		}
	case Uint16:
		if u <= math.MaxUint16 {
			return uint16(u), nil
		}
	case Uint32:
		if u <= math.MaxUint32 {
			return uint32(u), nil
		}
	case Uint64:
		return u, nil
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%d overflows %s", u, kind)
}
