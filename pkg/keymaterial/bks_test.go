package keymaterial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBKSLikeDetectsSmallVersionPrefix(t *testing.T) {
	assert.True(t, isBKSLike([]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00}))
	assert.True(t, isBKSLike([]byte{0x00, 0x00, 0x00, 0x02, 0xaa}))
}

func TestIsBKSLikeRejectsLargeVersion(t *testing.T) {
	assert.False(t, isBKSLike([]byte{0xfe, 0xed, 0xfe, 0xed}))
}

func TestIsBKSLikeRejectsDER(t *testing.T) {
	// A real SEQUENCE's leading tag byte (0x30) makes the first four bytes
	// read as a version number far outside the plausible BKS range.
	assert.False(t, isBKSLike([]byte{0x30, 0x03, 0x02, 0x01, 0x01}))
}

func TestLoadBKSLikeReturnsUnsupported(t *testing.T) {
	_, err := Load([]byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}, mustPassword(t, "x"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedContainer)
}
