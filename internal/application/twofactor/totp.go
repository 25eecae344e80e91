package twofactorservice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// TOTPVerifier implements RFC 6238 with a 30-second step and one step of
// clock skew in each direction.
type TOTPVerifier struct {
	step time.Duration
	skew int
	now  func() time.Time
}

func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{
		step: 30 * time.Second,
		skew: 1,
		now:  time.Now,
	}
}

func (v *TOTPVerifier) Verify(code, secret string) bool {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return false
	}

	counter := v.now().Unix() / int64(v.step.Seconds())
	for offset := -v.skew; offset <= v.skew; offset++ {
		if hotp(key, uint64(counter+int64(offset))) == strings.TrimSpace(code) {
			return true
		}
	}
	return false
}

func hotp(key []byte, counter uint64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(message[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1000000)
}
