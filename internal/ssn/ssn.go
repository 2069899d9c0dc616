// Package ssn normalizes, validates and pseudonymizes Social Security numbers.
package ssn

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Normalize removes dashes and whitespace from an SSN.
// Leading zeros are preserved.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// Valid reports whether a normalized SSN could have been issued under SSA rules.
// See https://www.ssa.gov/employer/stateweb.htm
func Valid(digits string) bool {
	if len(digits) != 9 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}

	area, group, serial := digits[:3], digits[3:5], digits[5:]
	switch {
	case area == "000" || group == "00" || serial == "0000":
		return false
	case area == "666":
		return false
	case digits[0] == '9':
		return false
	case digits == "219099999": // SSA advertisement
		return false
	case digits == "078051120": // Woolworth wallet card
		return false
	}
	return true
}

// Hasher replaces SSNs with a keyed digest so identical SSNs still match
// without the number itself being stored.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with salt. Salts longer than a BLAKE2b key
// are hashed down to one.
func NewHasher(salt string) (*Hasher, error) {
	if salt == "" {
		return nil, fmt.Errorf("ssn hasher: empty salt")
	}
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Hasher{key: key}, nil
}

// Hash returns the hex BLAKE2b-256 digest of digits under the hasher's key.
func (h *Hasher) Hash(digits string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Key length is bounded in NewHasher.
		panic(err)
	}
	mac.Write([]byte(digits))
	return hex.EncodeToString(mac.Sum(nil))
}
