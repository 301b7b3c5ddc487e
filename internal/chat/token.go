package chat

import (
	"crypto/rand"
	"encoding/base64"
)

// newResumeToken returns a cryptographically random url-safe token.
// 32 bytes of entropy, matching the resume links sent in email.
func newResumeToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
