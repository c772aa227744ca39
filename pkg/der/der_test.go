package der

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDRoundTrip(t *testing.T) {
	oid, err := ParseOID("1.2.840.113549")
	require.NoError(t, err)
	assert.Equal(t, "1.2.840.113549", oid.String())

	encoded := oid.Encode()
	decoded, err := DecodeOID(encoded)
	require.NoError(t, err)
	assert.True(t, oid.Equal(decoded))
}

func TestParseOIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1", "1..2", "1.2.", "x.y", "3.5"} {
		_, err := ParseOID(s)
		assert.Error(t, err, "expected error for %q", s)
	}
}

func TestBooleanRoundTrip(t *testing.T) {
	assert.Equal(t, []byte{0xff}, EncodeBoolean(true))
	assert.Equal(t, []byte{0x00}, EncodeBoolean(false))

	v, err := DecodeBoolean([]byte{0xff})
	require.NoError(t, err)
	assert.True(t, v)

	v, err = DecodeBoolean([]byte{0x00})
	require.NoError(t, err)
	assert.False(t, v)

	_, err = DecodeBoolean([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestObjectRoundTrip(t *testing.T) {
	seq := &Object{
		Tag: Tag{Class: ClassUniversal, Constructed: true, Number: TagSequence},
		Children: []*Object{
			{Tag: Tag{Class: ClassUniversal, Number: TagInteger}, Content: []byte{0x03}},
			{Tag: Tag{Class: ClassUniversal, Number: TagOctetString}, Content: []byte("hello")},
		},
	}

	encoded := seq.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.True(t, decoded.Tag.Universal(TagSequence))
	require.Len(t, decoded.Children, 2)
	assert.Equal(t, []byte{0x03}, decoded.Children[0].Content)
	assert.Equal(t, []byte("hello"), decoded.Children[1].Content)
}

func TestDecodeTrailingData(t *testing.T) {
	one := (&Object{Tag: Tag{Number: TagInteger}, Content: []byte{0x01}}).Encode()
	_, err := Decode(append(one, one...))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x30, 0x05, 0x01})
	assert.Error(t, err)
}

func TestDecodeAcceptsNonMinimalLongFormLength(t *testing.T) {
	// OCTET STRING "hi" with a long-form length (0x81 0x02) where the
	// short form (0x02) would have sufficed.
	nonMinimal := []byte{0x04, 0x81, 0x02, 'h', 'i'}
	obj, err := Decode(nonMinimal)
	require.NoError(t, err)
	assert.True(t, obj.Tag.Universal(TagOctetString))
	assert.Equal(t, []byte("hi"), obj.Content)

	// Re-encoding always emits the minimal short form.
	assert.Equal(t, []byte{0x04, 0x02, 'h', 'i'}, obj.Encode())
}

func TestSETCanonicalOrdering(t *testing.T) {
	a := &Object{Tag: Tag{Number: TagInteger}, Content: []byte{0x02}}
	b := &Object{Tag: Tag{Number: TagInteger}, Content: []byte{0x01}}
	set := &Object{
		Tag:      Tag{Constructed: true, Number: TagSet},
		Children: []*Object{a, b},
	}

	encoded := set.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Children, 2)
	// b (content 0x01) sorts before a (content 0x02).
	assert.Equal(t, []byte{0x01}, decoded.Children[0].Content)
	assert.Equal(t, []byte{0x02}, decoded.Children[1].Content)
}
