// Package securemem keeps credentials such as the upstream API key in
// memguard-protected memory and out of log lines and config dumps.
package securemem

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

const redacted = "[REDACTED]"

// String is a secret held in an encrypted memguard buffer.
// Its String method never reveals the plaintext; use Reveal or WithValue.
type String struct {
	buf     *memguard.LockedBuffer
	invalid bool
}

// NewString stores plaintext in protected memory.
func NewString(plaintext string) *String {
	if plaintext == "" {
		return &String{}
	}
	return &String{
		buf: memguard.NewBufferFromBytes([]byte(plaintext)),
	}
}

// Reveal returns a plaintext copy in regular memory.
func (s *String) Reveal() string {
	if s.IsEmpty() {
		return ""
	}
	return string(s.buf.Bytes())
}

// WithValue calls fn with the plaintext value.
// fn must not retain the string.
func (s *String) WithValue(fn func(string)) {
	if s.IsEmpty() {
		return
	}
	fn(string(s.buf.Bytes()))
}

// IsEmpty reports whether the secret is unset or destroyed.
func (s *String) IsEmpty() bool {
	if s == nil || s.invalid || s.buf == nil {
		return true
	}
	return s.buf.Size() == 0
}

// Equal compares against plaintext in constant time.
func (s *String) Equal(other string) bool {
	if s.IsEmpty() {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// Destroy wipes the secret. The value is unusable afterwards.
func (s *String) Destroy() {
	if s == nil || s.invalid {
		return
	}
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
	s.invalid = true
}

// String implements fmt.Stringer without leaking the secret.
func (s *String) String() string {
	if s.IsEmpty() {
		return ""
	}
	return redacted
}

// GoString keeps %#v from printing buffer internals.
func (s *String) GoString() string {
	return s.String()
}

// MarshalJSON writes the redacted form so secrets never round-trip to disk.
func (s *String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a plaintext JSON string into protected memory.
func (s *String) UnmarshalJSON(data []byte) error {
	var plaintext string
	if err := json.Unmarshal(data, &plaintext); err != nil {
		return err
	}
	s.Destroy()
	*s = *NewString(plaintext)
	return nil
}

// UnmarshalYAML reads a plaintext YAML scalar into protected memory.
func (s *String) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var plaintext string
	if err := unmarshal(&plaintext); err != nil {
		return err
	}
	s.Destroy()
	*s = *NewString(plaintext)
	return nil
}

// Init makes the given signals purge protected memory and exit the
// process. Signals that trigger a graceful shutdown must not be passed;
// that path calls Purge itself.
func Init(signals ...os.Signal) {
	if len(signals) == 0 {
		return
	}
	memguard.CatchSignal(func(sig os.Signal) {
		fmt.Fprintf(os.Stderr, "received %v, purging secrets\n", sig)
	}, signals...)
}

// Purge destroys every memguard buffer. Call once on shutdown.
func Purge() {
	memguard.Purge()
}
