package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// SaleCodeAlphabet drops 0/O, 1/I/L and U so codes survive being read aloud
const SaleCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	saleCodePrefix = "TS-"
	saleCodeLength = 12
)

// NewSaleCode returns a random code such as TS-7KQ2M9XWPA4D. The body has
// 12 symbols from a 30-letter alphabet, about 58 bits of entropy.
func NewSaleCode() (string, error) {
	buf := make([]byte, saleCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	n := byte(len(SaleCodeAlphabet))
	// largest multiple of n that fits in a byte, to avoid modulo bias
	limit := 256 - 256%int(n)

	var sb strings.Builder
	sb.WriteString(saleCodePrefix)
	for i := 0; i < saleCodeLength; i++ {
		b := buf[i]
		for int(b) >= limit {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				return "", fmt.Errorf("failed to read random bytes: %w", err)
			}
			b = one[0]
		}
		sb.WriteByte(SaleCodeAlphabet[b%n])
	}
	return sb.String(), nil
}

// SaleCodeBody strips the TS- prefix
func SaleCodeBody(code string) string {
	return strings.TrimPrefix(code, saleCodePrefix)
}

// IsSaleCode reports whether s has the shape produced by NewSaleCode
func IsSaleCode(s string) bool {
	body := strings.TrimPrefix(s, saleCodePrefix)
	if len(body) != saleCodeLength || len(body) == len(s) {
		return false
	}
	for i := 0; i < len(body); i++ {
		if strings.IndexByte(SaleCodeAlphabet, body[i]) < 0 {
			return false
		}
	}
	return true
}
