// Package arena implements a fixed-capacity, bump-allocated buffer used to
// build one JSON document at a time.
//
// Every Object and Array handed out by an Arena carries the generation the
// arena had when it was created. Reset bumps the generation, so any handle
// kept across a reset reports ErrStale instead of reading reused memory.
package arena

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrStale     = errors.New("arena: reference used after reset")
	ErrExhausted = errors.New("arena: capacity exhausted")
)

// Arena is not safe for concurrent use.
type Arena struct {
	capacity int
	buf      []byte
	overhead int
	gen      uint32
}

type span struct {
	off int
	n   int
}

func New(capacity int) *Arena {
	return &Arena{capacity: capacity, gen: 1}
}

func (a *Arena) Capacity() int {
	return a.capacity
}

// Size is an upper bound of the bytes the documents built since the last
// reset take when rendered.
func (a *Arena) Size() int {
	return len(a.buf) + a.overhead
}

// Reset discards everything built so far. The backing memory is kept.
func (a *Arena) Reset() {
	a.buf = a.buf[:0]
	a.overhead = 0
	a.gen++
}

func (a *Arena) reserve(n int) error {
	if a.Size()+n > a.capacity {
		return fmt.Errorf("%w: need %d, used %d of %d", ErrExhausted, n, a.Size(), a.capacity)
	}
	return nil
}

func (a *Arena) store(data []byte) (span, error) {
	if err := a.reserve(len(data)); err != nil {
		return span{}, err
	}
	if a.buf == nil {
		a.buf = make([]byte, 0, a.capacity)
	}
	s := span{off: len(a.buf), n: len(data)}
	a.buf = append(a.buf, data...)
	return s, nil
}

func (a *Arena) bytes(s span) []byte {
	return a.buf[s.off : s.off+s.n]
}

// Object returns a new, empty object allocated from the arena.
func (a *Arena) Object() (*Object, error) {
	if err := a.reserve(2); err != nil {
		return nil, err
	}
	a.overhead += 2
	return &Object{arena: a, gen: a.gen}, nil
}

// Object is an insertion-ordered JSON object whose keys and values live in
// the arena.
type Object struct {
	arena  *Arena
	gen    uint32
	fields []field
}

type field struct {
	key   span
	value span
	obj   *Object
	arr   *Array
}

func (o *Object) valid() error {
	if o.gen != o.arena.gen {
		return ErrStale
	}
	return nil
}

func (o *Object) Len() int {
	return len(o.fields)
}

// slot returns the field for key, appending a new one when absent. The
// value bytes (extra) are reserved together with the key, so a failed
// insert leaves the object untouched. A replaced value keeps its old bytes
// in the arena until the next reset.
func (o *Object) slot(key string, extra int) (*field, error) {
	if err := o.valid(); err != nil {
		return nil, err
	}
	quoted := quote(key)
	for i := range o.fields {
		if string(o.arena.bytes(o.fields[i].key)) == quoted {
			if err := o.arena.reserve(extra); err != nil {
				return nil, err
			}
			o.fields[i].obj, o.fields[i].arr = nil, nil
			return &o.fields[i], nil
		}
	}
	// ':' and ','
	if err := o.arena.reserve(len(quoted) + 2 + extra); err != nil {
		return nil, err
	}
	k, err := o.arena.store([]byte(quoted))
	if err != nil {
		return nil, err
	}
	o.arena.overhead += 2
	o.fields = append(o.fields, field{key: k})
	return &o.fields[len(o.fields)-1], nil
}

// Set stores value encoded as JSON under key.
func (o *Object) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("arena: encode %q, %w", key, err)
	}
	return o.SetRaw(key, data)
}

// SetRaw stores an already encoded JSON value under key.
func (o *Object) SetRaw(key string, raw []byte) error {
	f, err := o.slot(key, len(raw))
	if err != nil {
		return err
	}
	v, err := o.arena.store(raw)
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

// Object creates a nested object under key.
func (o *Object) Object(key string) (*Object, error) {
	f, err := o.slot(key, 2)
	if err != nil {
		return nil, err
	}
	child, err := o.arena.Object()
	if err != nil {
		return nil, err
	}
	f.obj = child
	return child, nil
}

// Array creates a nested array under key.
func (o *Object) Array(key string) (*Array, error) {
	f, err := o.slot(key, 2)
	if err != nil {
		return nil, err
	}
	o.arena.overhead += 2
	f.arr = &Array{arena: o.arena, gen: o.gen}
	return f.arr, nil
}

// String renders the object. The result is an ordinary Go string and stays
// valid after the arena is reset.
func (o *Object) String() (string, error) {
	var buf bytes.Buffer
	if err := o.render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (o *Object) render(buf *bytes.Buffer) error {
	if err := o.valid(); err != nil {
		return err
	}
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(o.arena.bytes(f.key))
		buf.WriteByte(':')
		switch {
		case f.obj != nil:
			if err := f.obj.render(buf); err != nil {
				return err
			}
		case f.arr != nil:
			if err := f.arr.render(buf); err != nil {
				return err
			}
		default:
			buf.Write(o.arena.bytes(f.value))
		}
	}
	buf.WriteByte('}')
	return nil
}

// Array is a JSON array whose elements live in the arena.
type Array struct {
	arena *Arena
	gen   uint32
	items []span
}

func (a *Array) Len() int {
	return len(a.items)
}

func (a *Array) Add(value any) error {
	if a.gen != a.arena.gen {
		return ErrStale
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("arena: encode array item, %w", err)
	}
	sep := 0
	if len(a.items) > 0 {
		sep = 1
	}
	if err = a.arena.reserve(len(data) + sep); err != nil {
		return err
	}
	s, err := a.arena.store(data)
	if err != nil {
		return err
	}
	a.arena.overhead += sep
	a.items = append(a.items, s)
	return nil
}

func (a *Array) render(buf *bytes.Buffer) error {
	if a.gen != a.arena.gen {
		return ErrStale
	}
	buf.WriteByte('[')
	for i, s := range a.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(a.arena.bytes(s))
	}
	buf.WriteByte(']')
	return nil
}

func quote(key string) string {
	data, _ := json.Marshal(key)
	return string(data)
}
