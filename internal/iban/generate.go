package iban

import (
	"math/rand/v2"
	"strings"

	"bank-ledger/internal/domain"
)

// ValidCountryCode reports whether cc is two ASCII upper-case letters.
func ValidCountryCode(cc string) bool {
	if len(cc) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if cc[i] < 'A' || cc[i] > 'Z' {
			return false
		}
	}
	return true
}

// Generate builds a fresh account number for countryCode with a random
// BBAN of the given number of digits and a correct checksum.
// A nil rnd uses the global source.
func Generate(countryCode string, digits int, rnd *rand.Rand) (Number, error) {
	if !ValidCountryCode(countryCode) {
		return Number{}, domain.InvalidArgument("countryCode")
	}
	if digits <= 0 || digits > MaxLength-4 {
		return Number{}, domain.InvalidArgument("digits")
	}
	intN := rand.IntN
	if rnd != nil {
		intN = rnd.IntN
	}

	var b strings.Builder
	b.Grow(4 + digits)
	b.WriteString(countryCode)
	b.WriteString("00")
	for i := 0; i < digits; i++ {
		b.WriteByte(byte('0' + intN(10)))
	}
	return Number{s: b.String()}.WithChecksum(), nil
}
