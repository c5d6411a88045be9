// Package randstr generates random strings from a fixed alphabet using crypto/rand.
package randstr

import (
	"crypto/rand"
	"math"
)

// PasswordChars is the 70 character alphabet used for one-time credentials.
var PasswordChars = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*")

// Digits is the alphabet for numeric codes.
var Digits = []byte("0123456789")

const (
	// maxBufLen caps the temporary buffer of random bytes.
	maxBufLen = 2048

	// minRegenBufLen is the smallest refill request after a partial read.
	minRegenBufLen = 16

	maxByteValue = 255
	byteRange    = 256
)

// estimatedBufLen returns how many random bytes to request given that
// values above maxByte are rejected.
func estimatedBufLen(need, maxByte int) int {
	return int(math.Ceil(float64(need) * (maxByteValue / float64(maxByte))))
}

// Password returns a random password of the given length drawn from PasswordChars.
func Password(length int) string {
	return string(Bytes(length, PasswordChars))
}

// Numeric returns a random string of decimal digits, e.g. an OTP.
func Numeric(length int) string {
	return string(Bytes(length, Digits))
}

// Bytes returns length random characters from chars (2 to 256 characters).
// Bytes above the largest multiple of len(chars) are skipped so every
// character is equally likely.
func Bytes(length int, chars []byte) []byte {
	if length <= 0 {
		return nil
	}

	clen := len(chars)
	if clen < 2 || clen > byteRange {
		panic("randstr: wrong charset length")
	}

	maxRb := maxByteValue - (byteRange % clen)
	bufLen := estimatedBufLen(length, maxRb)
	if bufLen < length {
		bufLen = length
	}
	if bufLen > maxBufLen {
		bufLen = maxBufLen
	}

	buf := make([]byte, bufLen)
	out := make([]byte, length)

	var i int
	for {
		if _, err := rand.Read(buf[:bufLen]); err != nil {
			panic("randstr: error reading random bytes: " + err.Error())
		}

		for _, rb := range buf[:bufLen] {
			c := int(rb)
			if c > maxRb {
				continue
			}
			out[i] = chars[c%clen]
			i++
			if i == length {
				return out
			}
		}

		bufLen = estimatedBufLen(length-i, maxRb)
		if bufLen < minRegenBufLen && minRegenBufLen < cap(buf) {
			bufLen = minRegenBufLen
		}
		if bufLen > maxBufLen {
			bufLen = maxBufLen
		}
	}
}
