package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind tells scalar and structured values apart.
type Kind int

const (
	KindScalar Kind = iota
	KindStructured
)

func (k Kind) String() string {
	if k == KindStructured {
		return "structured"
	}
	return "scalar"
}

// Value is an expected DID value. Scalars keep their rendered string, structured
// values keep the decoded JSON tree (objects, arrays, json.Number leaves).
type Value struct {
	kind   Kind
	scalar string
	tree   any
}

// Scalar builds a scalar value from its rendered form.
func Scalar(s string) Value { return Value{kind: KindScalar, scalar: s} }

// Structured builds a structured value from a decoded JSON tree.
func Structured(tree any) Value { return Value{kind: KindStructured, tree: tree} }

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// Tree returns the decoded tree of a structured value, nil for scalars.
func (v Value) Tree() any { return v.tree }

// Canonical returns the canonical string of v.
func (v Value) Canonical() string { return Canonicalize(v) }

func (v Value) String() string { return v.Canonical() }

// Field returns the value nested at path inside a structured value. An empty
// path returns v itself.
func (v Value) Field(path ...string) (Value, bool) {
	if len(path) == 0 {
		return v, true
	}
	node := v.tree
	for _, p := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return Value{}, false
		}
		if node, ok = m[p]; !ok {
			return Value{}, false
		}
	}
	out, err := fromTree(node)
	return out, err == nil
}

// Leaf is a scalar found at Path inside a value.
type Leaf struct {
	Path  []string
	Value string
}

// Leaves flattens v into its scalar fields, keys sorted. A scalar value is a
// single leaf with an empty path; arrays are not descended into.
func (v Value) Leaves() []Leaf {
	if v.kind == KindScalar {
		return []Leaf{{Value: v.scalar}}
	}
	var out []Leaf
	collectLeaves(&out, nil, v.tree)
	return out
}

func collectLeaves(out *[]Leaf, path []string, node any) {
	m, ok := node.(map[string]any)
	if !ok {
		leaf, _ := fromTree(node)
		*out = append(*out, Leaf{Path: append([]string(nil), path...), Value: leaf.Canonical()})
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		collectLeaves(out, append(path, k), m[k])
	}
}

// Canonicalize renders v in canonical form. Scalars render as the tool prints
// them; structured values render with sorted keys, ", " and ": " separators and
// non-ASCII characters escaped, so equal structures always give equal bytes.
func Canonicalize(v Value) string {
	if v.kind == KindScalar {
		return v.scalar
	}
	var b strings.Builder
	writeCanonical(&b, v.tree)
	return b.String()
}

// CanonicalizeOutput normalizes a value printed by the tool or published by
// the bridge. JSON objects and arrays are re-rendered in canonical form, any
// other output is only trimmed.
func CanonicalizeOutput(out string) string {
	out = strings.TrimSpace(out)
	if out == "" || (out[0] != '{' && out[0] != '[') || !json.Valid([]byte(out)) {
		return out
	}
	tree, err := decodeTree([]byte(out))
	if err != nil {
		return out
	}
	var b strings.Builder
	writeCanonical(&b, tree)
	return b.String()
}

// decodeValue classifies a raw fixture value.
func decodeValue(raw json.RawMessage) (Value, error) {
	tree, err := decodeTree(raw)
	if err != nil {
		return Value{}, err
	}
	return fromTree(tree)
}

func fromTree(tree any) (Value, error) {
	switch t := tree.(type) {
	case map[string]any, []any:
		return Structured(t), nil
	case string:
		return Scalar(t), nil
	case json.Number:
		return Scalar(t.String()), nil
	case bool:
		if t {
			return Scalar("True"), nil
		}
		return Scalar("False"), nil
	case nil:
		return Scalar("None"), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", tree)
	}
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func writeCanonical(b *strings.Builder, node any) {
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, k)
			b.WriteString(": ")
			writeCanonical(b, n[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range n {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case string:
		writeString(b, n)
	case json.Number:
		b.WriteString(n.String())
	case bool:
		if n {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", n)
	}
}

const hexDigits = "0123456789abcdef"

// writeString quotes s with ASCII-only output.
func writeString(b *strings.Builder, s string) {
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
			case r < 0x20 || (r > 0x7f && r <= 0xffff):
				writeEscape(b, r)
			case r > 0xffff:
				r -= 0x10000
				writeEscape(b, 0xd800+(r>>10))
				writeEscape(b, 0xdc00+(r&0x3ff))
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func writeEscape(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	for shift := 12; shift >= 0; shift -= 4 {
		b.WriteByte(hexDigits[(r>>uint(shift))&0xf])
	}
}
