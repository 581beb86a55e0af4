// Package placeholder defines the canonical token substituted for a
// detected value: <ENTITY_TYPE_index>.
package placeholder

import (
	"strconv"
	"strings"
)

// Placeholder identifies one allocated token.
type Placeholder struct {
	EntityType string
	Index      int
}

// String renders the canonical textual form <EntityType_Index>.
func (p Placeholder) String() string {
	var b strings.Builder
	b.Grow(len(p.EntityType) + 4 + 3)
	b.WriteByte('<')
	b.WriteString(p.EntityType)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(p.Index))
	b.WriteByte('>')
	return b.String()
}

// Parse recognises a canonical token. The entity type is everything between
// '<' and the last '_'; the index must be unsigned decimal digits.
func Parse(token string) (Placeholder, bool) {
	if len(token) < 4 || token[0] != '<' || token[len(token)-1] != '>' {
		return Placeholder{}, false
	}
	body := token[1 : len(token)-1]
	sep := strings.LastIndexByte(body, '_')
	if sep <= 0 || sep == len(body)-1 {
		return Placeholder{}, false
	}
	digits := body[sep+1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Placeholder{}, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return Placeholder{}, false
	}
	return Placeholder{EntityType: body[:sep], Index: n}, true
}

// Scan returns the byte ranges of every placeholder-shaped token in text,
// in order. Tokens do not nest: a '<' inside a candidate restarts the scan.
func Scan(text string) [][2]int {
	var out [][2]int
	for i := 0; i < len(text); {
		open := strings.IndexByte(text[i:], '<')
		if open < 0 {
			break
		}
		start := i + open
		end := strings.IndexAny(text[start+1:], "<>")
		if end < 0 {
			break
		}
		end += start + 1
		if text[end] == '<' {
			i = end
			continue
		}
		if _, ok := Parse(text[start : end+1]); ok {
			out = append(out, [2]int{start, end + 1})
		}
		i = end + 1
	}
	return out
}
