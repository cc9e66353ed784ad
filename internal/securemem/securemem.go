package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// String holds a secret in an encrypted memguard enclave. The plaintext is
// only decrypted for the duration of WithBytes.
type String struct {
	enclave *memguard.Enclave
	size    int
}

// NewString seals plaintext. The intermediate copy is wiped.
func NewString(plaintext string) *String {
	b := []byte(plaintext)
	return NewStringFromBytes(b)
}

// NewStringFromBytes seals data. data is wiped by memguard.
func NewStringFromBytes(data []byte) *String {
	s := &String{size: len(data)}
	if len(data) > 0 {
		s.enclave = memguard.NewEnclave(data)
	}
	return s
}

// Len returns the length of the secret in bytes.
func (s *String) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// IsEmpty reports whether the secret is empty or destroyed.
func (s *String) IsEmpty() bool {
	return s.Len() == 0
}

// WithBytes decrypts the secret into a locked buffer, passes its bytes to fn
// and destroys the buffer afterwards. fn must not retain the slice.
func (s *String) WithBytes(fn func([]byte)) error {
	if s.IsEmpty() || s.enclave == nil {
		fn(nil)
		return nil
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	fn(buf.Bytes())
	return nil
}

// Equal compares the secret with other in constant time.
func (s *String) Equal(other string) bool {
	equal := false
	err := s.WithBytes(func(b []byte) {
		equal = subtle.ConstantTimeCompare(b, []byte(other)) == 1
	})
	return err == nil && equal
}

// Destroy drops the enclave. The secret reads as empty afterwards.
func (s *String) Destroy() {
	if s == nil {
		return
	}
	s.enclave = nil
	s.size = 0
}
