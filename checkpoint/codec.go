// Copyright 2021 The callgraph Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"
)

// A Codec converts values of one registered type to and from JSON.
//
// Implementations of Codec must be safe for concurrent use by multiple
// goroutines.
type Codec interface {
	Encode(v interface{}) (json.RawMessage, error)
	Decode(data json.RawMessage) (interface{}, error)
}

// Built-in type tags. These names may not be registered.
const (
	tagList     = "list"
	tagMap      = "map"
	tagBytes    = "bytes"
	tagTime     = "time"
	tagDuration = "duration"
	tagInt8     = "int8"
	tagInt16    = "int16"
	tagInt32    = "int32"
	tagInt64    = "int64"
	tagUint     = "uint"
	tagUint8    = "uint8"
	tagUint16   = "uint16"
	tagUint32   = "uint32"
	tagUint64   = "uint64"
	tagFloat32  = "float32"
	tagFloat64  = "float64"
)

var reservedTags = map[string]bool{
	tagList: true, tagMap: true, tagBytes: true, tagTime: true, tagDuration: true,
	tagInt8: true, tagInt16: true, tagInt32: true, tagInt64: true,
	tagUint: true, tagUint8: true, tagUint16: true, tagUint32: true, tagUint64: true,
	tagFloat32: true, tagFloat64: true,
}

// A Registry maps stable type names to codecs for caller-defined types
// stored in a Store. A Registry is safe for concurrent use by multiple
// goroutines.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]registration
	byType map[reflect.Type]string
}

type registration struct {
	typ   reflect.Type
	codec Codec
}

// DefaultRegistry is the registry used by Stores which were not given
// their own.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]registration),
		byType: make(map[reflect.Type]string),
	}
}

// Register registers the type of prototype in DefaultRegistry under
// name, encoding values with encoding/json.
func Register(name string, prototype interface{}) {
	DefaultRegistry.Register(name, prototype)
}

// Register registers the type of prototype under name, encoding values
// with encoding/json. The prototype's value is not used, only its
// dynamic type, which may be a pointer type.
//
// Register panics if name is empty or reserved, or if either name or
// type is already registered to something else.
func (r *Registry) Register(name string, prototype interface{}) {
	typ := reflect.TypeOf(prototype)
	r.RegisterCodec(name, prototype, jsonCodec{typ: typ})
}

// RegisterCodec registers the type of prototype under name, encoding
// values with c.
func (r *Registry) RegisterCodec(name string, prototype interface{}, c Codec) {
	if name == "" {
		panic("callgraph/checkpoint: empty type name")
	}
	if reservedTags[name] {
		panic("callgraph/checkpoint: reserved type name " + name)
	}
	if prototype == nil {
		panic("callgraph/checkpoint: nil prototype")
	}
	if c == nil {
		panic("callgraph/checkpoint: nil codec")
	}
	typ := reflect.TypeOf(prototype)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing.typ != typ {
		panic(fmt.Sprintf("callgraph/checkpoint: type name %s already registered for %s", name, existing.typ))
	}
	if existing, ok := r.byType[typ]; ok && existing != name {
		panic(fmt.Sprintf("callgraph/checkpoint: type %s already registered as %s", typ, existing))
	}
	r.byName[name] = registration{typ: typ, codec: c}
	r.byType[typ] = name
}

// Name returns the name the type of v is registered under.
func (r *Registry) Name(v interface{}) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[reflect.TypeOf(v)]
	return name, ok
}

func (r *Registry) lookupType(v interface{}) (string, Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[reflect.TypeOf(v)]
	if !ok {
		return "", nil, false
	}
	return name, r.byName[name].codec, true
}

func (r *Registry) lookupName(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg.codec, ok
}

type jsonCodec struct {
	typ reflect.Type
}

func (c jsonCodec) Encode(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (c jsonCodec) Decode(data json.RawMessage) (interface{}, error) {
	if c.typ.Kind() == reflect.Ptr {
		p := reflect.New(c.typ.Elem())
		if err := json.Unmarshal(data, p.Interface()); err != nil {
			return nil, err
		}
		return p.Interface(), nil
	}
	p := reflect.New(c.typ)
	if err := json.Unmarshal(data, p.Interface()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}

// ErrUnregistered is returned, wrapped, when a Store holds a value
// whose type has no codec.
var ErrUnregistered = errors.New("callgraph/checkpoint: unregistered type")

// Encode serializes the Store.
func (s *Store) Encode() ([]byte, error) {
	return s.MarshalJSON()
}

// Decode deserializes a Store previously serialized with Encode, using
// the given registry to reconstruct caller-defined values. If r is nil,
// DefaultRegistry is used.
func Decode(data []byte, r *Registry) (*Store, error) {
	s := NewWithRegistry(r)
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalJSON encodes the Store as a JSON object whose members are in
// insertion order.
func (s *Store) MarshalJSON() ([]byte, error) {
	keys, values := s.entries()
	r := s.Registry()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encodeValue(&buf, values[i], r); err != nil {
			return nil, fmt.Errorf("callgraph/checkpoint: key %s: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the contents of the Store with the decoded
// members of a JSON object, keeping their order.
func (s *Store) UnmarshalJSON(data []byte) error {
	r := s.Registry()
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		s.replace(nil, nil)
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("callgraph/checkpoint: store is not a JSON object")
	}
	var keys []string
	values := make(map[string]interface{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		k := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		v, err := decodeValue(raw, r)
		if err != nil {
			return fmt.Errorf("callgraph/checkpoint: key %s: %w", k, err)
		}
		if _, dup := values[k]; !dup {
			keys = append(keys, k)
		}
		values[k] = v
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	s.replace(keys, values)
	return nil
}

func encodeValue(buf *bytes.Buffer, v interface{}, r *Registry) error {
	if name, c, ok := r.lookupType(v); ok {
		data, err := c.Encode(v)
		if err != nil {
			return err
		}
		return writeTagged(buf, name, data)
	}
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool, string:
		return writeJSON(buf, x)
	case int:
		buf.WriteString(strconv.Itoa(x))
		return nil
	case []interface{}:
		buf.WriteString(`["` + tagList + `"`)
		for _, elem := range x {
			buf.WriteByte(',')
			if err := encodeValue(buf, elem, r); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString(`["` + tagMap + `",{`)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, x[k], r); err != nil {
				return err
			}
		}
		buf.WriteString("}]")
		return nil
	case []byte:
		return writeTaggedJSON(buf, tagBytes, base64.StdEncoding.EncodeToString(x))
	case time.Time:
		if x.Location() == time.UTC {
			return writeTaggedJSON(buf, tagTime, x.Format(time.RFC3339Nano))
		}
		return writeTaggedJSON(buf, tagTime, zonedTime{Time: x.Format(time.RFC3339Nano), Zone: x.Location().String()})
	case time.Duration:
		return writeTaggedJSON(buf, tagDuration, int64(x))
	case int8:
		return writeTaggedJSON(buf, tagInt8, x)
	case int16:
		return writeTaggedJSON(buf, tagInt16, x)
	case int32:
		return writeTaggedJSON(buf, tagInt32, x)
	case int64:
		return writeTaggedJSON(buf, tagInt64, x)
	case uint:
		return writeTaggedJSON(buf, tagUint, x)
	case uint8:
		return writeTaggedJSON(buf, tagUint8, x)
	case uint16:
		return writeTaggedJSON(buf, tagUint16, x)
	case uint32:
		return writeTaggedJSON(buf, tagUint32, x)
	case uint64:
		return writeTaggedJSON(buf, tagUint64, x)
	case float32:
		return writeTaggedJSON(buf, tagFloat32, x)
	case float64:
		return writeTaggedJSON(buf, tagFloat64, x)
	default:
		return fmt.Errorf("%w %T", ErrUnregistered, v)
	}
}

func writeJSON(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func writeTaggedJSON(buf *bytes.Buffer, tag string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeTagged(buf, tag, b)
}

func writeTagged(buf *bytes.Buffer, tag string, data json.RawMessage) error {
	tb, err := json.Marshal(tag)
	if err != nil {
		return err
	}
	buf.WriteByte('[')
	buf.Write(tb)
	buf.WriteByte(',')
	buf.Write(data)
	buf.WriteByte(']')
	return nil
}

func decodeValue(raw json.RawMessage, r *Registry) (interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '[':
		return decodeTagged(raw, r)
	case '{':
		return nil, errors.New("untagged object")
	default:
		n, err := strconv.ParseInt(string(raw), 10, 0)
		if err == nil {
			return int(n), nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func decodeTagged(raw json.RawMessage, r *Registry) (interface{}, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.New("untagged array")
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return nil, fmt.Errorf("bad type tag: %w", err)
	}
	if tag == tagList {
		list := make([]interface{}, len(parts)-1)
		for i, p := range parts[1:] {
			v, err := decodeValue(p, r)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("type %s: expected one encoded value, got %d", tag, len(parts)-1)
	}
	data := parts[1]
	if c, ok := r.lookupName(tag); ok {
		return c.Decode(data)
	}
	switch tag {
	case tagMap:
		return decodeMap(data, r)
	case tagBytes:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case tagTime:
		return decodeTime(data)
	case tagDuration:
		var n int64
		err := json.Unmarshal(data, &n)
		return time.Duration(n), err
	case tagInt8:
		var n int8
		err := json.Unmarshal(data, &n)
		return n, err
	case tagInt16:
		var n int16
		err := json.Unmarshal(data, &n)
		return n, err
	case tagInt32:
		var n int32
		err := json.Unmarshal(data, &n)
		return n, err
	case tagInt64:
		var n int64
		err := json.Unmarshal(data, &n)
		return n, err
	case tagUint:
		var n uint
		err := json.Unmarshal(data, &n)
		return n, err
	case tagUint8:
		var n uint8
		err := json.Unmarshal(data, &n)
		return n, err
	case tagUint16:
		var n uint16
		err := json.Unmarshal(data, &n)
		return n, err
	case tagUint32:
		var n uint32
		err := json.Unmarshal(data, &n)
		return n, err
	case tagUint64:
		var n uint64
		err := json.Unmarshal(data, &n)
		return n, err
	case tagFloat32:
		var f float32
		err := json.Unmarshal(data, &f)
		return f, err
	case tagFloat64:
		var f float64
		err := json.Unmarshal(data, &f)
		return f, err
	default:
		return nil, fmt.Errorf("%w name %s", ErrUnregistered, tag)
	}
}

// zonedTime is the encoding of a time.Time outside UTC.
type zonedTime struct {
	Time string `json:"time"`
	Zone string `json:"zone"`
}

// decodeTime decodes a time, restoring its location by name when the
// location can be loaded. Otherwise the time keeps the fixed offset it
// was encoded with.
func decodeTime(data json.RawMessage) (interface{}, error) {
	var z zonedTime
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &z.Time); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, &z); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, z.Time)
	if err != nil {
		return nil, err
	}
	if z.Zone == "" {
		return t, nil
	}
	if loc, err := time.LoadLocation(z.Zone); err == nil {
		t = t.In(loc)
	}
	return t, nil
}

func decodeMap(data json.RawMessage, r *Registry) (interface{}, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	m := make(map[string]interface{}, len(members))
	for k, raw := range members {
		v, err := decodeValue(raw, r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
