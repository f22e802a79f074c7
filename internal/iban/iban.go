// Package iban parses and checksums IBAN-style account numbers:
// a two-letter country code, a two-digit checksum and up to 26
// alphanumeric BBAN characters.
package iban

import (
	"math/big"
	"strings"
	"unicode"

	"bank-ledger/internal/domain"
)

const (
	MaxLength = 30

	// BBANDigits is the length of generated account numbers' BBAN part.
	BBANDigits = 26
)

var ninetySeven = big.NewInt(97)

// Number is a whitespace-free account number. The zero value is not valid.
type Number struct {
	s string
}

// Parse strips whitespace and checks the length bounds.
// It does not verify the checksum; see IsValid.
func Parse(s string) (Number, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if len(s) < 4 || len(s) > MaxLength {
		return Number{}, domain.InvalidArgument("accountNumber")
	}
	return Number{s: strings.ToUpper(s)}, nil
}

// MustParse is Parse for literals known to be well formed.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Number) String() string { return n.s }

// CountryCode, Checksum and BBAN return "" for the zero Number.
func (n Number) CountryCode() string {
	if len(n.s) < 4 {
		return ""
	}
	return n.s[:2]
}

func (n Number) Checksum() string {
	if len(n.s) < 4 {
		return ""
	}
	return n.s[2:4]
}

func (n Number) BBAN() string {
	if len(n.s) < 4 {
		return ""
	}
	return n.s[4:]
}

// IsValid reports whether the mod-97 remainder of the rearranged number is 1.
func (n Number) IsValid() bool {
	if len(n.s) < 4 {
		return false
	}
	for _, c := range n.Checksum() {
		if c < '0' || c > '9' {
			return false
		}
	}
	v, ok := numeric(n.BBAN() + n.s[:4])
	if !ok {
		return false
	}
	return new(big.Int).Mod(v, ninetySeven).Int64() == 1
}

// WithChecksum returns a copy of n whose checksum field has been recomputed.
// An n that contains characters outside [0-9A-Z] is returned unchanged.
func (n Number) WithChecksum() Number {
	if len(n.s) < 4 {
		return n
	}
	v, ok := numeric(n.BBAN() + n.CountryCode() + "00")
	if !ok {
		return n
	}
	rem := new(big.Int).Mod(v, ninetySeven).Int64()
	sum := 98 - rem
	return Number{s: n.CountryCode() + string([]byte{byte('0' + sum/10), byte('0' + sum%10)}) + n.BBAN()}
}

// numeric maps letters to 10..35 and reads the resulting digit string as an integer.
func numeric(s string) (*big.Int, bool) {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			b.WriteByte(byte('0' + v/10))
			b.WriteByte(byte('0' + v%10))
		default:
			return nil, false
		}
	}
	return new(big.Int).SetString(b.String(), 10)
}
