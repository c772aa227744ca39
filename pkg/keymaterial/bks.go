package keymaterial

import "encoding/binary"

// isBKSLike recognizes the shape of a Bouncy Castle keystore (BKS or
// UBER-BKS) closely enough to refuse it explicitly instead of falling
// through to ErrMalformedContainer. BKS carries no distinguishing magic the
// way JKS and JCEKS do — it opens directly with a small version number
// (0, 1, or 2) — so the only thing distinguishing it from, say, a
// four-byte-aligned coincidence is that it is not also valid DER.
func isBKSLike(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	version := binary.BigEndian.Uint32(data[:4])
	if version > 2 {
		return false
	}
	if looksLikePKCS12(data) {
		return false
	}
	return true
}
