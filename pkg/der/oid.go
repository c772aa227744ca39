package der

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidOID is returned when an OID string or encoding cannot be parsed.
var ErrInvalidOID = errors.New("der: invalid object identifier")

// OID is a dotted object identifier, e.g. 1.2.840.113549.
type OID []int64

// String renders the OID in dotted notation.
func (o OID) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two OIDs name the same identifier.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// oidTokenizer walks a dotted OID string one component at a time, mirroring
// the lazy index-based tokenizer this package is grounded on: index == -1
// signals the terminal state, reached the moment the trailing component has
// been returned.
type oidTokenizer struct {
	oid   string
	index int
}

func newOIDTokenizer(oid string) *oidTokenizer {
	return &oidTokenizer{oid: oid, index: 0}
}

func (t *oidTokenizer) hasMoreTokens() bool {
	return t.index != -1
}

func (t *oidTokenizer) nextToken() string {
	end := strings.IndexByte(t.oid[t.index:], '.')
	if end == -1 {
		part := t.oid[t.index:]
		t.index = -1
		return part
	}
	end += t.index
	part := t.oid[t.index:end]
	t.index = end + 1
	return part
}

// ParseOID parses a dotted OID string such as "1.2.840.113549".
func ParseOID(s string) (OID, error) {
	if s == "" {
		return nil, ErrInvalidOID
	}
	var out OID
	tok := newOIDTokenizer(s)
	for tok.hasMoreTokens() {
		part := tok.nextToken()
		if part == "" {
			return nil, ErrInvalidOID
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return nil, ErrInvalidOID
		}
		out = append(out, v)
	}
	if len(out) < 2 {
		return nil, ErrInvalidOID
	}
	if out[0] < 0 || out[0] > 2 {
		return nil, ErrInvalidOID
	}
	if out[0] < 2 && out[1] >= 40 {
		return nil, ErrInvalidOID
	}
	return out, nil
}

// Encode returns the DER content octets for the OID: the first two
// components collapsed into a single subidentifier via 40*X1+X2, each
// subidentifier then base-128 encoded with the continuation bit set on all
// but the final byte of each group.
func (o OID) Encode() []byte {
	if len(o) < 2 {
		return nil
	}
	subIDs := make([]int64, 0, len(o)-1)
	subIDs = append(subIDs, 40*o[0]+o[1])
	subIDs = append(subIDs, o[2:]...)

	var out []byte
	for _, id := range subIDs {
		out = append(out, encodeBase128(id)...)
	}
	return out
}

func encodeBase128(v int64) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var groups []byte
	for v > 0 {
		groups = append(groups, byte(v&0x7f))
		v >>= 7
	}
	// groups is least-significant-first; reverse and set continuation bits
	// on every octet but the last.
	out := make([]byte, len(groups))
	for i, g := range groups {
		out[len(groups)-1-i] = g
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	return out
}

// DecodeOID parses the content octets of a DER OID, the reverse of Encode.
func DecodeOID(content []byte) (OID, error) {
	if len(content) == 0 {
		return nil, ErrInvalidOID
	}

	var subIDs []int64
	var current int64
	haveByte := false
	for _, b := range content {
		current = current<<7 | int64(b&0x7f)
		haveByte = true
		if b&0x80 == 0 {
			subIDs = append(subIDs, current)
			current = 0
			haveByte = false
		}
	}
	if haveByte {
		return nil, ErrInvalidOID
	}
	if len(subIDs) == 0 {
		return nil, ErrInvalidOID
	}

	first := subIDs[0]
	var x1, x2 int64
	switch {
	case first < 80:
		x1 = first / 40
		x2 = first % 40
	default:
		x1 = 2
		x2 = first - 80
	}

	out := OID{x1, x2}
	out = append(out, subIDs[1:]...)
	return out, nil
}
