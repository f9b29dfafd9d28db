package model

import (
	"strconv"
	"strings"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
)

// SegmentKind discriminates a propex path segment.
type SegmentKind int

const (
	SegString SegmentKind = iota
	SegIndex
	SegNested
)

// Segment is one step of a propex path: a string property name, a non-negative
// integer array index, or a nested sub-expression (e.g. the `msg.b[0]` inside
// `a[msg.b[0]]`). A nested segment's own first segment must be a bare identifier —
// it names a variable in the evaluation Environment, not a field of the current root.
type Segment struct {
	Kind   SegmentKind
	Str    string
	Index  int
	Nested []Segment
}

// Expression is a parsed propex path: an ordered list of segments.
type Expression struct {
	Segments []Segment
}

// Environment resolves free identifiers referenced by nested sub-expressions
// (e.g. "msg" in `a[msg.b[0]]`) to a root Variant to navigate.
type Environment map[string]Variant

func identChar(c byte, first bool) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '$' {
		return true
	}
	if !first && c >= '0' && c <= '9' {
		return true
	}
	return false
}

// Parse parses a propex path string into an Expression.
func Parse(s string) (Expression, error) {
	p := &propexParser{s: s}
	segs, err := p.parsePath()
	if err != nil {
		return Expression{}, err
	}
	if p.i != len(p.s) {
		return Expression{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "trailing garbage in propex %q at %d", s, p.i)
	}
	return Expression{Segments: segs}, nil
}

type propexParser struct {
	s string
	i int
}

func (p *propexParser) parsePath() ([]Segment, error) {
	if p.i >= len(p.s) {
		return nil, edgelinkerr.New(edgelinkerr.BadArguments, "empty propex expression")
	}
	// First segment must be a bare identifier: no leading '.' or '['.
	first, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	segs := []Segment{{Kind: SegString, Str: first}}

	for p.i < len(p.s) {
		c := p.s[p.i]
		switch c {
		case '.':
			p.i++
			id, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			segs = append(segs, Segment{Kind: SegString, Str: id})
		case '[':
			seg, err := p.parseBracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			return nil, edgelinkerr.Newf(edgelinkerr.BadArguments, "unexpected character %q in propex %q at %d", c, p.s, p.i)
		}
	}
	return segs, nil
}

func (p *propexParser) parseIdentifier() (string, error) {
	start := p.i
	if p.i >= len(p.s) || !identChar(p.s[p.i], true) {
		return "", edgelinkerr.Newf(edgelinkerr.BadArguments, "expected identifier in propex %q at %d", p.s, p.i)
	}
	p.i++
	for p.i < len(p.s) && identChar(p.s[p.i], false) {
		p.i++
	}
	return p.s[start:p.i], nil
}

func (p *propexParser) parseBracket() (Segment, error) {
	// p.s[p.i] == '['
	p.i++
	if p.i >= len(p.s) {
		return Segment{}, edgelinkerr.New(edgelinkerr.BadArguments, "unterminated '[' in propex expression")
	}
	c := p.s[p.i]
	switch {
	case c == '\'' || c == '"':
		quote := c
		p.i++
		start := p.i
		for p.i < len(p.s) && p.s[p.i] != quote {
			p.i++
		}
		if p.i >= len(p.s) {
			return Segment{}, edgelinkerr.New(edgelinkerr.BadArguments, "unterminated quoted propex segment")
		}
		str := p.s[start:p.i]
		p.i++ // consume closing quote
		if err := p.expect(']'); err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegString, Str: str}, nil
	case c >= '0' && c <= '9':
		start := p.i
		for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
			p.i++
		}
		numStr := p.s[start:p.i]
		if err := p.expect(']'); err != nil {
			return Segment{}, err
		}
		idx, err := strconv.Atoi(numStr)
		if err != nil || idx < 0 {
			return Segment{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "invalid array index %q", numStr)
		}
		return Segment{Kind: SegIndex, Index: idx}, nil
	default:
		// Nested expression. Its own first segment must be a bare identifier.
		start := p.i
		depth := 1
		for p.i < len(p.s) && depth > 0 {
			switch p.s[p.i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					goto done
				}
			}
			p.i++
		}
	done:
		if depth != 0 {
			return Segment{}, edgelinkerr.New(edgelinkerr.BadArguments, "unterminated nested propex expression")
		}
		inner := p.s[start:p.i]
		p.i++ // consume the final ']'
		nested, err := Parse(inner)
		if err != nil {
			return Segment{}, err
		}
		if len(nested.Segments) == 0 || nested.Segments[0].Kind != SegString {
			return Segment{}, edgelinkerr.New(edgelinkerr.BadArguments, "nested propex expression must start with an identifier")
		}
		return Segment{Kind: SegNested, Nested: nested.Segments}, nil
	}
}

func (p *propexParser) expect(c byte) error {
	if p.i >= len(p.s) || p.s[p.i] != c {
		return edgelinkerr.Newf(edgelinkerr.BadArguments, "expected %q in propex %q at %d", c, p.s, p.i)
	}
	p.i++
	return nil
}

// resolveKey turns a Segment into a concrete string-or-index accessor, resolving any
// nested sub-expression against env.
func resolveKey(seg Segment, env Environment) (str string, idx int, isIndex bool, err error) {
	switch seg.Kind {
	case SegString:
		return seg.Str, 0, false, nil
	case SegIndex:
		return "", seg.Index, true, nil
	case SegNested:
		root, ok := env[seg.Nested[0].Str]
		if !ok {
			return "", 0, false, edgelinkerr.Newf(edgelinkerr.InvalidOperation, "unknown identifier %q in nested propex expression", seg.Nested[0].Str)
		}
		v, ok := getPath(root, seg.Nested[1:], env)
		if !ok {
			return "", 0, false, edgelinkerr.New(edgelinkerr.InvalidOperation, "nested propex expression did not resolve to a value")
		}
		if s, ok := v.AsString(); ok {
			return s, 0, false, nil
		}
		if n, ok := v.AsF64(); ok {
			return "", int(n), true, nil
		}
		return "", 0, false, edgelinkerr.New(edgelinkerr.InvalidOperation, "nested propex expression must resolve to a string or number")
	}
	return "", 0, false, edgelinkerr.New(edgelinkerr.InvalidOperation, "malformed propex segment")
}

// Get navigates root along expr's segments and returns the resolved Variant.
func Get(root Variant, expr Expression, env Environment) (Variant, bool) {
	return getPath(root, expr.Segments, env)
}

func getPath(root Variant, segs []Segment, env Environment) (Variant, bool) {
	cur := root
	for _, seg := range segs {
		key, idx, isIndex, err := resolveKey(seg, env)
		if err != nil {
			return Variant{}, false
		}
		if isIndex {
			arr, ok := cur.AsArray()
			if !ok || idx < 0 || idx >= len(arr) {
				return Variant{}, false
			}
			cur = arr[idx]
		} else {
			next, ok := cur.ObjectGet(key)
			if !ok {
				return Variant{}, false
			}
			cur = next
		}
	}
	return cur, true
}

// Set navigates root along expr's segments and assigns value at the terminal segment,
// creating intermediate Objects/Arrays as needed.
func Set(root *Variant, expr Expression, value Variant, env Environment) error {
	if len(expr.Segments) == 0 {
		return edgelinkerr.New(edgelinkerr.BadArguments, "empty propex expression")
	}
	return setPath(root, expr.Segments, value, env)
}

func setPath(cur *Variant, segs []Segment, value Variant, env Environment) error {
	seg := segs[0]
	key, idx, isIndex, err := resolveKey(seg, env)
	if err != nil {
		return err
	}
	last := len(segs) == 1

	if isIndex {
		if cur.Kind() != KindArray {
			*cur = NewEmptyArray()
		}
		arr, _ := cur.AsArray()
		for len(arr) <= idx {
			arr = append(arr, Null())
		}
		if last {
			arr[idx] = value
		} else {
			if err := setPath(&arr[idx], segs[1:], value, env); err != nil {
				return err
			}
		}
		*cur = NewArray(arr)
		return nil
	}

	if cur.Kind() != KindObject {
		*cur = NewEmptyObject()
	}
	if last {
		cur.ObjectSet(key, value)
		return nil
	}
	child, ok := cur.ObjectGet(key)
	if !ok {
		child = Null()
	}
	if err := setPath(&child, segs[1:], value, env); err != nil {
		return err
	}
	cur.ObjectSet(key, child)
	return nil
}

// Remove deletes the value addressed by expr from root, returning whether it existed.
func Remove(root *Variant, expr Expression, env Environment) bool {
	if len(expr.Segments) == 0 {
		return false
	}
	return removePath(root, expr.Segments, env)
}

func removePath(cur *Variant, segs []Segment, env Environment) bool {
	seg := segs[0]
	key, idx, isIndex, err := resolveKey(seg, env)
	if err != nil {
		return false
	}
	last := len(segs) == 1

	if isIndex {
		arr, ok := cur.AsArray()
		if !ok || idx < 0 || idx >= len(arr) {
			return false
		}
		if last {
			arr = append(arr[:idx], arr[idx+1:]...)
			*cur = NewArray(arr)
			return true
		}
		return removePath(&arr[idx], segs[1:], env)
	}

	child, ok := cur.ObjectGet(key)
	if !ok {
		return false
	}
	if last {
		return cur.ObjectDelete(key)
	}
	if removePath(&child, segs[1:], env) {
		cur.ObjectSet(key, child)
		return true
	}
	return false
}

// String renders the expression back to its canonical textual form.
func (e Expression) String() string {
	var b strings.Builder
	for i, seg := range e.Segments {
		switch seg.Kind {
		case SegString:
			if i == 0 {
				b.WriteString(seg.Str)
			} else {
				b.WriteByte('.')
				b.WriteString(seg.Str)
			}
		case SegIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		case SegNested:
			b.WriteByte('[')
			b.WriteString(Expression{Segments: seg.Nested}.String())
			b.WriteByte(']')
		}
	}
	return b.String()
}
