// Package totp implements RFC 6238 time-based one-time passwords for the
// login re-verification step.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultStep   = 30 * time.Second
	DefaultDigits = 6
	secretSize    = 20 // 160-bit secret
)

func GenerateSecret() (string, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// Verify accepts the current code plus one step of clock skew either way.
func Verify(code, secret string, when time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != DefaultDigits {
		return false
	}
	secretBytes, err := decodeSecret(secret)
	if err != nil {
		return false
	}
	defer zero(secretBytes)

	step := int64(DefaultStep / time.Second)
	counter := when.Unix() / step
	for i := int64(-1); i <= 1; i++ {
		cur := counter + i
		if cur < 0 {
			continue
		}
		if computeCode(secretBytes, uint64(cur)) == code {
			return true
		}
	}
	return false
}

// Code returns the code for secret at the given time. Used by enrollment
// flows that confirm the first code server-side.
func Code(secret string, when time.Time) (string, error) {
	secretBytes, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	defer zero(secretBytes)
	step := int64(DefaultStep / time.Second)
	return computeCode(secretBytes, uint64(when.Unix()/step)), nil
}

// ProvisionURI builds the otpauth:// URI authenticator apps enroll from.
func ProvisionURI(account, issuer, secret string) string {
	account = strings.ReplaceAll(account, " ", "")
	issuer = strings.ReplaceAll(issuer, " ", "")
	period := int(DefaultStep / time.Second)
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		urlEscape(issuer), urlEscape(account), secret, urlEscape(issuer), DefaultDigits, period)
}

func computeCode(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%0*d", DefaultDigits, trunc%1000000)
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func urlEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		for _, bt := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", bt)
		}
	}
	return b.String()
}
