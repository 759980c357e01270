package runtime

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns a 12-hex-character container/pod id, per §3's data
// model ("a 12-hex-character id").
func newID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
