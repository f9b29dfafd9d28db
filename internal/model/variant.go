package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
)

// Kind discriminates the tagged union a Variant holds, per spec §3.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindDate
	KindRegex
	KindBytes
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindRegex:
		return "regex"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Number preserves the exact JSON numeric representation: an integer literal keeps
// its int64 (or uint64, for values beyond int64 range) identity rather than being
// forced through float64, per spec §3's "preserves i64/u64/f64 distinction" invariant.
type Number struct {
	isInt  bool
	isUint bool
	i      int64
	u      uint64
	f      float64
}

func NumberFromInt64(v int64) Number   { return Number{isInt: true, i: v, f: float64(v)} }
func NumberFromUint64(v uint64) Number { return Number{isUint: true, u: v, f: float64(v)} }
func NumberFromFloat64(v float64) Number {
	return Number{f: v}
}

func (n Number) AsF64() float64 {
	if n.isInt {
		return float64(n.i)
	}
	if n.isUint {
		return float64(n.u)
	}
	return n.f
}

func (n Number) AsI64() (int64, bool) {
	if n.isInt {
		return n.i, true
	}
	if n.isUint && n.u <= 1<<63-1 {
		return int64(n.u), true
	}
	if !n.isInt && !n.isUint && n.f == float64(int64(n.f)) {
		return int64(n.f), true
	}
	return 0, false
}

func (n Number) String() string {
	if n.isInt {
		return strconv.FormatInt(n.i, 10)
	}
	if n.isUint {
		return strconv.FormatUint(n.u, 10)
	}
	return strconv.FormatFloat(n.f, 'g', -1, 64)
}

func (n Number) Equal(o Number) bool {
	return n.AsF64() == o.AsF64()
}

// Variant is the tagged-union value model shared by Msg bodies, context stores, and
// propex navigation.
type Variant struct {
	kind Kind
	num  Number
	str  string
	b    bool
	t    time.Time
	re   *regexp.Regexp
	rePattern string
	bytes []byte
	arr  []Variant
	obj  *orderedMap
}

func Null() Variant { return Variant{kind: KindNull} }

func NewNumber(n Number) Variant { return Variant{kind: KindNumber, num: n} }
func NewInt(v int64) Variant     { return Variant{kind: KindNumber, num: NumberFromInt64(v)} }
func NewFloat(v float64) Variant { return Variant{kind: KindNumber, num: NumberFromFloat64(v)} }

func NewString(s string) Variant { return Variant{kind: KindString, str: s} }
func NewBool(b bool) Variant     { return Variant{kind: KindBool, b: b} }
func NewDate(t time.Time) Variant { return Variant{kind: KindDate, t: t} }

// NewRegex compiles pattern, returning an error if it fails to compile — per spec §3's
// invariant "Regex compiles successfully at construction".
func NewRegex(pattern string) (Variant, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Variant{}, edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "invalid regex pattern: "+pattern)
	}
	return Variant{kind: KindRegex, re: re, rePattern: pattern}, nil
}

// NewBytesFromInts validates that every element is in 0..255, per spec §3's Bytes invariant.
// Go's []byte is already uint8-constrained, so this constructor exists mainly to
// accept a []int and range-check it (used when decoding a JSON array of numbers).
func NewBytesFromInts(vals []int) (Variant, error) {
	b := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return Variant{}, edgelinkerr.Newf(edgelinkerr.OutOfRange, "byte value %d out of range 0..255", v)
		}
		b[i] = byte(v)
	}
	return Variant{kind: KindBytes, bytes: b}, nil
}

func NewBytes(b []byte) Variant {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Variant{kind: KindBytes, bytes: cp}
}

func NewArray(items []Variant) Variant {
	cp := make([]Variant, len(items))
	copy(cp, items)
	return Variant{kind: KindArray, arr: cp}
}

func NewEmptyArray() Variant { return Variant{kind: KindArray, arr: []Variant{}} }

func NewEmptyObject() Variant { return Variant{kind: KindObject, obj: newOrderedMap()} }

func (v Variant) Kind() Kind { return v.kind }

func (v Variant) IsNull() bool   { return v.kind == KindNull }
func (v Variant) IsNumber() bool { return v.kind == KindNumber }
func (v Variant) IsString() bool { return v.kind == KindString }
func (v Variant) IsBool() bool   { return v.kind == KindBool }
func (v Variant) IsArray() bool  { return v.kind == KindArray }
func (v Variant) IsObject() bool { return v.kind == KindObject }

func (v Variant) AsNumber() (Number, bool) {
	if v.kind != KindNumber {
		return Number{}, false
	}
	return v.num, true
}

func (v Variant) AsF64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num.AsF64(), true
}

func (v Variant) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Variant) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Variant) AsDate() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Variant) AsRegex() (*regexp.Regexp, bool) {
	if v.kind != KindRegex {
		return nil, false
	}
	return v.re, true
}

func (v Variant) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Variant) AsArray() ([]Variant, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// ObjectKeys returns the object's keys in insertion order. Returns nil if not an Object.
func (v Variant) ObjectKeys() []string {
	if v.kind != KindObject || v.obj == nil {
		return nil
	}
	out := make([]string, len(v.obj.keys))
	copy(out, v.obj.keys)
	return out
}

func (v Variant) ObjectGet(key string) (Variant, bool) {
	if v.kind != KindObject || v.obj == nil {
		return Variant{}, false
	}
	return v.obj.get(key)
}

// ObjectSet mutates v in place (Variant's Object kind carries a pointer-backed map).
func (v *Variant) ObjectSet(key string, val Variant) {
	if v.kind != KindObject || v.obj == nil {
		*v = NewEmptyObject()
	}
	v.obj.set(key, val)
}

func (v *Variant) ObjectDelete(key string) bool {
	if v.kind != KindObject || v.obj == nil {
		return false
	}
	return v.obj.delete(key)
}

func (v Variant) ObjectLen() int {
	if v.kind != KindObject || v.obj == nil {
		return 0
	}
	return v.obj.len()
}

func (v Variant) ObjectEach(fn func(key string, val Variant)) {
	if v.kind != KindObject || v.obj == nil {
		return
	}
	v.obj.each(fn)
}

// Clone performs a deep copy. Regex and primitive kinds are immutable/value types and
// are returned as-is; Array/Object/Bytes get fresh backing storage.
func (v Variant) Clone() Variant {
	switch v.kind {
	case KindArray:
		cp := make([]Variant, len(v.arr))
		for i, e := range v.arr {
			cp[i] = e.Clone()
		}
		return Variant{kind: KindArray, arr: cp}
	case KindObject:
		if v.obj == nil {
			return Variant{kind: KindObject, obj: newOrderedMap()}
		}
		return Variant{kind: KindObject, obj: v.obj.clone()}
	case KindBytes:
		cp := make([]byte, len(v.bytes))
		copy(cp, v.bytes)
		return Variant{kind: KindBytes, bytes: cp}
	default:
		return v
	}
}

// Equal performs a structural (deep) comparison.
func (v Variant) Equal(o Variant) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num.Equal(o.num)
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindRegex:
		return v.rePattern == o.rePattern
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.ObjectLen() != o.ObjectLen() {
			return false
		}
		eq := true
		v.ObjectEach(func(k string, val Variant) {
			ov, ok := o.ObjectGet(k)
			if !ok || !val.Equal(ov) {
				eq = false
			}
		})
		return eq
	default:
		return false
	}
}

// ToString renders a human/debug representation, not necessarily valid JSON for all kinds.
func (v Variant) ToString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindNumber:
		return v.num.String()
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindDate:
		return v.t.Format(time.RFC3339)
	case KindRegex:
		return v.rePattern
	case KindBytes:
		return string(v.bytes)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v.kind)
		}
		return string(b)
	}
}

// FromJSONValue converts a decoded encoding/json value (via json.Number-aware decoding)
// into a Variant tree.
func FromJSONValue(v any) Variant {
	switch x := v.(type) {
	case nil:
		return Null()
	case json.Number:
		return numberFromJSONNumber(x)
	case float64:
		return NewFloat(x)
	case string:
		return NewString(x)
	case bool:
		return NewBool(x)
	case []any:
		items := make([]Variant, len(x))
		for i, e := range x {
			items[i] = FromJSONValue(e)
		}
		return NewArray(items)
	case map[string]any:
		out := NewEmptyObject()
		// map[string]any has no defined order; Variant.UnmarshalJSON decodes with
		// key order kept.
		for k, e := range x {
			out.ObjectSet(k, FromJSONValue(e))
		}
		return out
	default:
		return Null()
	}
}

func numberFromJSONNumber(n json.Number) Variant {
	if i, err := n.Int64(); err == nil {
		return NewNumber(NumberFromInt64(i))
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return NewNumber(NumberFromUint64(u))
	}
	f, _ := n.Float64()
	return NewNumber(NumberFromFloat64(f))
}

// MarshalJSON renders the Variant as JSON.
func (v Variant) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.t.UnixMilli())
	case KindRegex:
		return json.Marshal(v.rePattern)
	case KindBytes:
		ints := make([]int, len(v.bytes))
		for i, b := range v.bytes {
			ints[i] = int(b)
		}
		return json.Marshal(ints)
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		first := true
		var err error
		v.ObjectEach(func(k string, val Variant) {
			if err != nil {
				return
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			kb, e := json.Marshal(k)
			if e != nil {
				err = e
				return
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, e := val.MarshalJSON()
			if e != nil {
				err = e
				return
			}
			buf.Write(vb)
		})
		if err != nil {
			return nil, err
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes arbitrary JSON into a Variant, preserving object key order and
// exact numeric representation via json.Number.
func (v *Variant) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeVariantValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeVariantValue(dec *json.Decoder) (Variant, error) {
	tok, err := dec.Token()
	if err != nil {
		return Variant{}, err
	}
	return decodeVariantToken(dec, tok)
}

func decodeVariantToken(dec *json.Decoder, tok json.Token) (Variant, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := NewEmptyObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Variant{}, err
				}
				key, _ := keyTok.(string)
				val, err := decodeVariantValue(dec)
				if err != nil {
					return Variant{}, err
				}
				out.ObjectSet(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Variant{}, err
			}
			return out, nil
		case '[':
			items := []Variant{}
			for dec.More() {
				val, err := decodeVariantValue(dec)
				if err != nil {
					return Variant{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Variant{}, err
			}
			return NewArray(items), nil
		}
	case json.Number:
		return numberFromJSONNumber(t), nil
	case string:
		return NewString(t), nil
	case bool:
		return NewBool(t), nil
	case nil:
		return Null(), nil
	}
	return Null(), fmt.Errorf("unexpected json token: %v", tok)
}
