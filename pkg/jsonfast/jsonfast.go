/*
Package jsonfast offers a minimal JSON builder for the bus event payloads,
which have a small fixed schema and are encoded on every fault.
*/
package jsonfast

import (
	"sort"
	"time"
)

// Builder appends JSON members into a reusable byte slice. Field names are
// written verbatim and must not need escaping; values are escaped.
type Builder struct {
	buf    []byte
	opened bool
	first  bool
}

// New creates a new builder with initial capacity.
func New(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Builder{
		buf:   make([]byte, 0, capacity),
		first: true,
	}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.opened = false
	b.first = true
}

// Bytes returns the underlying buffer (do not modify after use).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Copy returns the encoded bytes detached from the builder.
func (b *Builder) Copy() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// BeginObject starts a JSON object.
func (b *Builder) BeginObject() {
	b.buf = append(b.buf, '{')
	b.opened = true
	b.first = true
}

// EndObject ends a JSON object, opening it first when no field was added.
func (b *Builder) EndObject() {
	if !b.opened {
		b.BeginObject()
	}
	b.buf = append(b.buf, '}')
	b.opened = false
}

// AddStringField adds a "name":"value" string field with escaping.
func (b *Builder) AddStringField(name, value string) {
	b.key(name)
	b.quoted(value)
}

// AddRawJSONField adds a "name":<raw json> field without escaping.
// The value must be valid JSON; an empty value is written as null.
func (b *Builder) AddRawJSONField(name string, rawJSON []byte) {
	b.key(name)
	if len(rawJSON) == 0 {
		b.buf = append(b.buf, "null"...)
		return
	}
	b.buf = append(b.buf, rawJSON...)
}

// AddIntField adds a "name":int field.
func (b *Builder) AddIntField(name string, v int) {
	b.key(name)
	b.buf = append(b.buf, itoa(v)...)
}

// AddBoolField adds a "name":true|false field.
func (b *Builder) AddBoolField(name string, v bool) {
	b.key(name)
	if v {
		b.buf = append(b.buf, "true"...)
	} else {
		b.buf = append(b.buf, "false"...)
	}
}

// AddStringMapField adds a "name":{"k":"v",...} field with keys in sorted
// order so the output is deterministic. Empty maps are skipped.
func (b *Builder) AddStringMapField(name string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.key(name)
	b.buf = append(b.buf, '{')
	for i, k := range keys {
		if i > 0 {
			b.buf = append(b.buf, ',')
		}
		b.quoted(k)
		b.buf = append(b.buf, ':')
		b.quoted(m[k])
	}
	b.buf = append(b.buf, '}')
}

// AddStringArrayField adds a "name":["a","b"] field.
func (b *Builder) AddStringArrayField(name string, values []string) {
	b.key(name)
	b.buf = append(b.buf, '[')
	for i, v := range values {
		if i > 0 {
			b.buf = append(b.buf, ',')
		}
		b.quoted(v)
	}
	b.buf = append(b.buf, ']')
}

// AddTimeRFC3339Field adds a "name":"RFC3339" field without using time.Format.
func (b *Builder) AddTimeRFC3339Field(name string, t time.Time) {
	b.key(name)
	b.buf = append(b.buf, '"')
	// Use UTC for deterministic formatting
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	b.append4(year)
	b.buf = append(b.buf, '-')
	b.append2(int(month))
	b.buf = append(b.buf, '-')
	b.append2(day)
	b.buf = append(b.buf, 'T')
	b.append2(hour)
	b.buf = append(b.buf, ':')
	b.append2(minute)
	b.buf = append(b.buf, ':')
	b.append2(sec)
	b.buf = append(b.buf, 'Z', '"')
}

func (b *Builder) key(name string) {
	b.sep()
	b.buf = append(b.buf, '"')
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, '"', ':')
}

func (b *Builder) quoted(s string) {
	b.buf = append(b.buf, '"')
	b.escapeString(s)
	b.buf = append(b.buf, '"')
}

func (b *Builder) sep() {
	if !b.opened {
		// First field of an implicitly opened object.
		b.BeginObject()
		b.first = false
		return
	}
	if b.first {
		b.first = false
		return
	}
	b.buf = append(b.buf, ',')
}

// escapeString escapes JSON special characters.
func (b *Builder) escapeString(s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\b':
			b.buf = append(b.buf, '\\', 'b')
		case '\f':
			b.buf = append(b.buf, '\\', 'f')
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0x0f])
			} else {
				b.buf = append(b.buf, c)
			}
		}
	}
}

func (b *Builder) append2(v int) {
	b.buf = append(b.buf, byte('0'+(v/10)%10), byte('0'+v%10))
}

func (b *Builder) append4(v int) {
	b.buf = append(b.buf,
		byte('0'+(v/1000)%10),
		byte('0'+(v/100)%10),
		byte('0'+(v/10)%10),
		byte('0'+v%10),
	)
}

// itoa converts a small int to ascii without allocation.
func itoa(x int) []byte {
	if x == 0 {
		return []byte{'0'}
	}
	var tmp [20]byte
	i := len(tmp)
	neg := x < 0
	u := uint64(x)
	if neg {
		u = uint64(-x)
	}
	for u > 0 {
		i--
		tmp[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		tmp[i] = '-'
	}
	return tmp[i:]
}

const hex = "0123456789abcdef"
