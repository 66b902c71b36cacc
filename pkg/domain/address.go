package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in a ledger address.
const AddressLength = 20

// Address is the identity of a ledger participant.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It never holds code.
var ZeroAddress Address

// ParseAddress decodes a hex address, with or without the "0x" prefix.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return addr, fmt.Errorf("%w: %q has %d hex digits, want %d", ErrInvalidAddress, s, len(raw), AddressLength*2)
	}
	if _, err := hex.Decode(addr[:], []byte(raw)); err != nil {
		return addr, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the lower-case "0x" hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for logs and reports.
func (a Address) Short() string {
	s := hex.EncodeToString(a[:])
	return "0x" + s[:4] + "…" + s[len(s)-4:]
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
