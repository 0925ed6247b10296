package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// ShortSHA returns a truncated, hex encoded SHA256 of the input, optionally
// salted.
func ShortSHA(salt, input string) string {
	if salt != "" {
		input = fmt.Sprintf("%s:%s", salt, input)
	}
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)[0:54]
}

// NewToken returns a hex encoded string of byteLength random bytes.
func NewToken(byteLength int) (string, error) {
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "error reading random bytes")
	}
	return hex.EncodeToString(b), nil
}
