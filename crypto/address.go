package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// ErrAddressFormat is returned for any address that cannot be decoded into the
// canonical 21-byte form, regardless of which textual encoding was supplied.
var ErrAddressFormat = errors.New("crypto: malformed address")

const (
	// AddressVersion is the chain version byte prefixed to every canonical address.
	AddressVersion byte = 0x41
	// AddressLength is the canonical length including the version byte.
	AddressLength = 21
	// AddressBodyLength is the identity payload length without the version byte.
	AddressBodyLength = 20
)

// Address represents a 21-byte versioned account address. The zero value is
// not a valid address; construct one through NewAddress or DecodeAddress.
type Address struct {
	bytes [AddressLength]byte
}

// NewAddress wraps a canonical 21-byte address. A bare 20-byte body is also
// accepted and gets the version byte prefixed.
func NewAddress(b []byte) (Address, error) {
	var a Address
	switch len(b) {
	case AddressLength:
		if b[0] != AddressVersion {
			return Address{}, fmt.Errorf("%w: version byte 0x%02x", ErrAddressFormat, b[0])
		}
		copy(a.bytes[:], b)
	case AddressBodyLength:
		a.bytes[0] = AddressVersion
		copy(a.bytes[1:], b)
	default:
		return Address{}, fmt.Errorf("%w: length %d", ErrAddressFormat, len(b))
	}
	return a, nil
}

// String renders the display form: base58 with a 4-byte double-sha256 checksum.
func (a Address) String() string {
	return base58.CheckEncode(a.bytes[1:], AddressVersion)
}

// Hex renders the canonical hex form including the version byte.
func (a Address) Hex() string {
	return hex.EncodeToString(a.bytes[:])
}

// Bytes returns the canonical 21-byte form.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Body returns the 20-byte identity payload without the version byte.
func (a Address) Body() []byte {
	out := make([]byte, AddressBodyLength)
	copy(out, a.bytes[1:])
	return out
}

// BodyHex returns the 40-character hex body, the form embedded in bytecode.
func (a Address) BodyHex() string {
	return hex.EncodeToString(a.bytes[1:])
}

// Equal reports whether two addresses refer to the same account.
func (a Address) Equal(b Address) bool {
	return bytes.Equal(a.bytes[:], b.bytes[:])
}

// IsZero reports whether the address is the uninitialised zero value.
func (a Address) IsZero() bool {
	return a.bytes == [AddressLength]byte{}
}

// DecodeAddress parses any of the three accepted encodings: the base58check
// display form, 42-character canonical hex, or a bare 40-character hex body.
func DecodeAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return Address{}, fmt.Errorf("%w: empty input", ErrAddressFormat)
	case len(trimmed) == 2*AddressLength || len(trimmed) == 2*AddressBodyLength:
		raw, err := hex.DecodeString(trimmed)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %v", ErrAddressFormat, err)
		}
		return NewAddress(raw)
	default:
		body, version, err := base58.CheckDecode(trimmed)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %v", ErrAddressFormat, err)
		}
		if version != AddressVersion {
			return Address{}, fmt.Errorf("%w: version byte 0x%02x", ErrAddressFormat, version)
		}
		return NewAddress(body)
	}
}

// Normalize decodes an address in any accepted encoding and returns the
// lower-case 40-character hex body.
func Normalize(s string) (string, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return "", err
	}
	return addr.BodyHex(), nil
}

// RoundTrip decodes the input and re-encodes it in the same textual form,
// reporting whether the result matches the original. It is used as a
// defensive pre-submission check against mixed or mangled encodings.
func RoundTrip(s string) bool {
	trimmed := strings.TrimSpace(s)
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return false
	}
	switch len(trimmed) {
	case 2 * AddressLength:
		return strings.EqualFold(addr.Hex(), trimmed)
	case 2 * AddressBodyLength:
		return strings.EqualFold(addr.BodyHex(), trimmed)
	default:
		return addr.String() == trimmed
	}
}
