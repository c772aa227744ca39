// Package der implements a minimal ASN.1 DER codec: enough to walk and
// rebuild the tag/length/value tree that PKCS#12, PKCS#8 and X.509
// structures are built from, without adopting a generic ASN.1 schema
// framework. Decode reads off a golang.org/x/crypto/cryptobyte.String byte
// cursor directly, tolerating a non-minimal long-form length on input;
// Encode always emits canonical DER through cryptobyte.Builder.AddASN1,
// which enforces the minimal form. The Object tree, canonical SET
// ordering, and OID arithmetic above that are this package's own.
package der

import (
	"errors"
	"sort"

	"golang.org/x/crypto/cryptobyte"
)

// ErrTruncated is returned when the input ends before a complete TLV could
// be read.
var ErrTruncated = errors.New("der: truncated encoding")

// ErrTrailingData is returned by Decode when bytes remain after the single
// top-level object has been consumed.
var ErrTrailingData = errors.New("der: trailing data after top-level object")

// Object is one node of a decoded DER tree. Constructed objects (SEQUENCE,
// SET, and explicitly/implicitly tagged constructions) carry Children;
// primitive objects carry Content only.
type Object struct {
	Tag      Tag
	Length   int
	Content  []byte
	Children []*Object
}

// Decode parses data as a single top-level DER-encoded TLV, recursively
// decoding constructed children. It is strict: any trailing bytes after the
// top-level object are reported as an error, matching DER (as opposed to
// BER) framing discipline.
func Decode(data []byte) (*Object, error) {
	s := cryptobyte.String(data)
	obj, err := decodeOne(&s)
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, ErrTrailingData
	}
	return obj, nil
}

// DecodeAll parses data as a sequence of zero or more concatenated
// top-level DER TLVs, such as the SafeBag elements inside a SafeContents.
func DecodeAll(data []byte) ([]*Object, error) {
	s := cryptobyte.String(data)
	var objs []*Object
	for !s.Empty() {
		obj, err := decodeOne(&s)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// decodeOne reads one identifier octet, a length (short or long form), and
// that many content bytes off s. Unlike cryptobyte's own ReadAnyASN1, which
// enforces DER's minimal-length-encoding rule, this accepts a non-minimal
// long form on input — Encode always emits the minimal form regardless of
// how an Object was decoded, so leniency here never produces non-canonical
// output.
func decodeOne(s *cryptobyte.String) (*Object, error) {
	var idOctet uint8
	if !s.ReadUint8(&idOctet) {
		return nil, ErrTruncated
	}
	tag := Tag{
		Class:       TagClass(idOctet >> 6),
		Constructed: idOctet&0x20 != 0,
		Number:      uint32(idOctet & 0x1f),
	}

	length, err := readLength(s)
	if err != nil {
		return nil, err
	}

	var content []byte
	if !s.ReadBytes(&content, length) {
		return nil, ErrTruncated
	}

	obj := &Object{
		Tag:     tag,
		Content: content,
		Length:  length,
	}

	if obj.Tag.Constructed {
		rest := cryptobyte.String(content)
		for !rest.Empty() {
			child, err := decodeOne(&rest)
			if err != nil {
				return nil, err
			}
			obj.Children = append(obj.Children, child)
		}
	}

	return obj, nil
}

// readLength parses a length octet sequence. Short form (high bit clear)
// is the length itself; long form (high bit set) encodes, in the low 7
// bits, a count of following big-endian length octets. Indefinite length
// (long form with a zero count) is BER-only and not accepted.
func readLength(s *cryptobyte.String) (int, error) {
	var first uint8
	if !s.ReadUint8(&first) {
		return 0, ErrTruncated
	}
	if first&0x80 == 0 {
		return int(first), nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > 4 {
		return 0, ErrTruncated
	}
	length := 0
	for i := 0; i < n; i++ {
		var b uint8
		if !s.ReadUint8(&b) {
			return 0, ErrTruncated
		}
		length = length<<8 | int(b)
	}
	return length, nil
}

// Encode serializes the Object tree back to canonical DER.
func (o *Object) Encode() []byte {
	var b cryptobyte.Builder
	o.build(&b)
	return b.BytesOrPanic()
}

func (o *Object) build(b *cryptobyte.Builder) {
	tag := o.Tag.cryptobyteTag()
	if len(o.Children) == 0 {
		b.AddASN1(tag, func(child *cryptobyte.Builder) {
			child.AddBytes(o.Content)
		})
		return
	}

	children := o.Children
	if o.Tag.Universal(TagSet) {
		children = sortedSET(children)
	}

	b.AddASN1(tag, func(child *cryptobyte.Builder) {
		for _, c := range children {
			c.build(child)
		}
	})
}

// sortedSET returns children ordered by their encoded DER bytes, the
// canonical SET-OF ordering rule: a SET's members have no inherent order,
// so DER fixes one by sorting the encodings lexicographically.
func sortedSET(children []*Object) []*Object {
	out := make([]*Object, len(children))
	copy(out, children)
	encoded := make([][]byte, len(out))
	for i, c := range out {
		encoded[i] = c.Encode()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareBytes(encoded[i], encoded[j]) < 0
	})
	return out
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
