package trojan

import "crypto/subtle"

// constantTimeEqual compares two hex digests without leaking timing
// information about where they first differ, the same precaution the
// retrieved SOCKS5 username/password comparison example takes with
// crypto/subtle.ConstantTimeCompare.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
