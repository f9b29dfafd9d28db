package model

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
)

// ElementId is an opaque 64-bit identifier. Its canonical text form is 16 lowercase
// hex digits. It is XOR-composable, which subflow cloning (jsonloader) relies on to
// derive per-instance child ids without a lookup table.
type ElementId uint64

// EmptyElementId is the sentinel "none" value.
const EmptyElementId ElementId = 0

// NewElementId mints a fresh id by XOR-ing a high-resolution monotonic timestamp with
// a strong-PRNG-drawn 64-bit value, per spec §9: "Combine high-resolution monotonic
// time with a strong PRNG-drawn 64-bit value via XOR."
func NewElementId() ElementId {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real platform;
		// fall back to a time-derived value rather than panicking.
		binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
	}
	r := binary.BigEndian.Uint64(buf[:])
	t := uint64(time.Now().UnixNano())
	return ElementId(t ^ r)
}

// IsEmpty reports whether this is the sentinel "none" value.
func (id ElementId) IsEmpty() bool { return id == EmptyElementId }

// String renders the canonical 16-hex-digit form.
func (id ElementId) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseElementId parses a canonical (or bare) hex string into an ElementId.
func ParseElementId(s string) (ElementId, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyElementId, edgelinkerr.New(edgelinkerr.BadArguments, "empty element id string")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return EmptyElementId, edgelinkerr.Wrap(edgelinkerr.BadArguments, err, "invalid element id: "+s)
	}
	return ElementId(v), nil
}

// Combine XORs lhs and rhs. It is an error if either operand is the empty sentinel,
// matching the Rust source's `combine()` validation.
func Combine(lhs, rhs ElementId) (ElementId, error) {
	if lhs.IsEmpty() || rhs.IsEmpty() {
		return EmptyElementId, edgelinkerr.New(edgelinkerr.BadArguments, "cannot combine an empty element id")
	}
	return lhs ^ rhs, nil
}

// MarshalJSON renders the id as its canonical hex string.
func (id ElementId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses the id from its canonical hex string.
func (id *ElementId) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseElementId(s)
	if err != nil {
		return err
	}
	*id = v
	return nil
}
