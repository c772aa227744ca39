package der

// DER BOOLEAN content octets. DER requires a BOOLEAN's single content
// octet to be exactly 0x00 (FALSE) or 0xFF (TRUE); BER's "any non-zero
// value means TRUE" looseness does not apply here.
var (
	BooleanTrue  = []byte{0xff}
	BooleanFalse = []byte{0x00}
)

// EncodeBoolean returns the DER content octet for v.
func EncodeBoolean(v bool) []byte {
	if v {
		return append([]byte(nil), BooleanTrue...)
	}
	return append([]byte(nil), BooleanFalse...)
}

// DecodeBoolean interprets a BOOLEAN's content octets. It returns an error
// if the content is not exactly one octet.
func DecodeBoolean(content []byte) (bool, error) {
	if len(content) != 1 {
		return false, errInvalidBoolean
	}
	return content[0] == 0xff, nil
}

var errInvalidBoolean = &codecError{"der: BOOLEAN content must be exactly one octet"}

type codecError struct{ msg string }

func (e *codecError) Error() string { return e.msg }
