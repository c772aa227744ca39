// Package password provides secure in-memory password handling for the
// store-password / key-password pairs used when opening key material
// containers.
package password

import (
	"crypto/subtle"
	"errors"
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordZeroed is returned when the password has already been cleared.
	ErrPasswordZeroed = errors.New("password has been zeroed")
)

// Password abstracts a secret value so callers are not forced to hold it as
// a plain string any longer than necessary.
type Password interface {
	String() (string, error)
	Bytes() []byte
	Clear()
}

// ClearPassword stores a password in memory as cleartext, protected only by
// being zeroed on demand. It is the default implementation; a KMS-backed or
// hardware-wrapped Password can satisfy the same interface.
type ClearPassword struct {
	password []byte
}

// NewClearPassword copies password into a new ClearPassword.
func NewClearPassword(password []byte) (Password, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	p := make([]byte, len(password))
	copy(p, password)
	return &ClearPassword{password: p}, nil
}

// NewClearPasswordFromString is a convenience wrapper around NewClearPassword.
func NewClearPasswordFromString(password string) (Password, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	return NewClearPassword([]byte(password))
}

// String returns the password as a string.
func (p *ClearPassword) String() (string, error) {
	if p.password == nil {
		return "", ErrPasswordZeroed
	}
	return string(p.password), nil
}

// Bytes returns a copy of the password bytes, or nil if the password has
// been cleared.
func (p *ClearPassword) Bytes() []byte {
	if p.password == nil {
		return nil
	}
	result := make([]byte, len(p.password))
	copy(result, p.password)
	return result
}

// Clear overwrites the password in memory. Subsequent calls to String or
// Bytes observe a cleared password.
func (p *ClearPassword) Clear() {
	if p.password == nil {
		return
	}
	subtle.ConstantTimeCopy(1, p.password, make([]byte, len(p.password)))
	p.password = nil
}

// Equal compares two passwords in constant time.
func Equal(a, b Password) (bool, error) {
	aBytes := a.Bytes()
	if aBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer zero(aBytes)

	bBytes := b.Bytes()
	if bBytes == nil {
		return false, ErrPasswordZeroed
	}
	defer zero(bBytes)

	if len(aBytes) != len(bBytes) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(aBytes, bBytes) == 1, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ Password = (*ClearPassword)(nil)
