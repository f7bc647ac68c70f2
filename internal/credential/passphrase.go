package credential

import (
	"strings"

	"github.com/google/uuid"
)

const redacted = "[REDACTED]"

// Passphrase protects a container. Its formatted forms never reveal the
// value; call Reveal to get the actual string.
type Passphrase string

// NewPassphrase returns a random 32 character hex passphrase.
func NewPassphrase() Passphrase {
	return Passphrase(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// Reveal returns the secret value.
func (p Passphrase) Reveal() string {
	return string(p)
}

// IsZero reports whether no passphrase was supplied.
func (p Passphrase) IsZero() bool {
	return p == ""
}

func (p Passphrase) String() string {
	return redacted
}

func (p Passphrase) GoString() string {
	return redacted
}

func (p Passphrase) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
