// Package pyjson writes JSON byte-for-byte the way Python's
// json.dumps(obj, indent=2) does with its default ensure_ascii=True:
// two-space indentation, ": " between key and value, "{}" for empty
// objects, every character outside printable ASCII escaped as lower-case
// \uXXXX (surrogate pairs above the BMP), and no HTML escaping.
//
// Mapping files written by earlier tooling use this layout, so documents
// produced here compare equal byte for byte.
package pyjson

import (
	"bytes"
	"strings"
)

const hex = "0123456789abcdef"

// Member is one key of an Object. Value is either a string or an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object whose keys are emitted in slice order.
type Object []Member

// MarshalIndent renders obj with the given per-level indent. There is no
// trailing newline.
func MarshalIndent(obj Object, indent string) []byte {
	var b bytes.Buffer
	writeObject(&b, obj, indent, 0)
	return b.Bytes()
}

func writeObject(b *bytes.Buffer, obj Object, indent string, level int) {
	if len(obj) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{\n")
	for i, m := range obj {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(strings.Repeat(indent, level+1))
		writeString(b, m.Key)
		b.WriteString(": ")
		switch v := m.Value.(type) {
		case Object:
			writeObject(b, v, indent, level+1)
		case string:
			writeString(b, v)
		default:
			b.WriteString("null")
		}
	}
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(indent, level))
	b.WriteByte('}')
}

func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteByte(byte(r))
			case r < 0x10000:
				writeEscape(b, r)
			default:
				r -= 0x10000
				writeEscape(b, 0xd800|((r>>10)&0x3ff))
				writeEscape(b, 0xdc00|(r&0x3ff))
			}
		}
	}
	b.WriteByte('"')
}

func writeEscape(b *bytes.Buffer, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hex[(r>>12)&0xf])
	b.WriteByte(hex[(r>>8)&0xf])
	b.WriteByte(hex[(r>>4)&0xf])
	b.WriteByte(hex[r&0xf])
}
