package ledger

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressSize is the size of an address in bytes.
const AddressSize = 32

// Address identifies a principal or a storage slot.
type Address [AddressSize]byte

// RecordSeed is the fixed seed every stake record address is derived from.
var RecordSeed = []byte("client1")

const derivationMarker = "ProgramDerivedAddress"

// DefaultProgramID is the program identity used when none is configured.
var DefaultProgramID = Address(sha256.Sum256([]byte("stakeberry")))

// String returns the base58 form of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// MustParseAddress parses a base58 address, panicking if invalid.
// Use only for trusted constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// DeriveAddress computes the storage address of owner's stake record
// for the given bump. The result is only usable if it is not a valid
// ed25519 point, so that no private key can ever sign for it.
func DeriveAddress(program, owner Address, bump uint8) (Address, error) {
	h := sha256.New()
	h.Write(RecordSeed)
	h.Write(owner[:])
	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write([]byte(derivationMarker))

	var a Address
	copy(a[:], h.Sum(nil))
	if onCurve(a) {
		return Address{}, ErrAddressOnCurve
	}
	return a, nil
}

// FindAddress searches bumps from 255 downwards and returns the first
// viable derived address together with its (canonical) bump.
func FindAddress(program, owner Address) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		a, err := DeriveAddress(program, owner, uint8(bump))
		if err == nil {
			return a, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

func onCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
