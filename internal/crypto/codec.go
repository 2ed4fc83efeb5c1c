package crypto

import "encoding/base64"

// EncodeBytes transcodes binary crypto artifacts (salts, nonces,
// ciphertexts) to text for the document store.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes. Round-trip is lossless.
func DecodeBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
