package types

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"tronforge/crypto"
)

// PermissionKind distinguishes the single owner permission from the
// account's active permissions.
type PermissionKind string

const (
	PermissionOwner  PermissionKind = "Owner"
	PermissionActive PermissionKind = "Active"
)

// Operation bit positions within the 256-bit capability vector. Each bit
// permits one category of transaction.
const (
	OpCreateSmartContract  = 30
	OpTriggerSmartContract = 31
)

// OwnerPermissionID is the well-known id of the owner permission.
const OwnerPermissionID int32 = 0

// Operations is the 256-bit capability flag vector attached to a permission.
// The vector exceeds machine-word width, so bit tests go through a real
// 256-bit AND and never native integer arithmetic or substring comparison.
type Operations struct {
	bits uint256.Int
}

// ParseOperations decodes the hex form of the capability vector. The empty
// string is a valid all-zero vector (owner permissions omit the field).
func ParseOperations(s string) (Operations, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return Operations{}, nil
	}
	if len(trimmed) > 64 {
		return Operations{}, fmt.Errorf("types: operations vector too wide: %d hex chars", len(trimmed))
	}
	// FromHex rejects redundant leading zeroes, which the node emits freely.
	compact := strings.TrimLeft(trimmed, "0")
	if compact == "" {
		compact = "0"
	}
	bits, err := uint256.FromHex("0x" + compact)
	if err != nil {
		return Operations{}, fmt.Errorf("types: parse operations %q: %w", s, err)
	}
	return Operations{bits: *bits}, nil
}

// OperationsWith builds a vector with the given bit positions set.
func OperationsWith(bits ...uint) Operations {
	var o Operations
	for _, bit := range bits {
		if bit > 255 {
			continue
		}
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), bit)
		o.bits.Or(&o.bits, mask)
	}
	return o
}

// Has reports whether the capability bit at the given position is set.
func (o Operations) Has(bit uint) bool {
	if bit > 255 {
		return false
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bit)
	return !new(uint256.Int).And(&o.bits, mask).IsZero()
}

// Hex renders the vector as minimal hex, matching the node's account output.
func (o Operations) Hex() string {
	return o.bits.Hex()
}

// PermissionKey pairs an authorised address with its signing weight.
type PermissionKey struct {
	Address crypto.Address
	Weight  int64
}

// Permission is a read-only snapshot of one account permission.
type Permission struct {
	ID         int32
	Kind       PermissionKind
	Name       string
	Threshold  int64
	Keys       []PermissionKey
	Operations Operations
}

// HasKey reports whether the canonical address appears in the key set.
func (p Permission) HasKey(addr crypto.Address) bool {
	for _, key := range p.Keys {
		if key.Address.Equal(addr) {
			return true
		}
	}
	return false
}

// Unilateral reports whether a single signature satisfies the threshold.
func (p Permission) Unilateral() bool {
	return p.Threshold == 1
}

// Account is a point-in-time snapshot of on-chain permission state. It is
// never mutated locally; callers refetch before every resolution decision.
type Account struct {
	Address crypto.Address
	Owner   Permission
	Actives []Permission
}

// Permissions returns the owner permission followed by the active
// permissions in their on-chain order.
func (a Account) Permissions() []Permission {
	out := make([]Permission, 0, 1+len(a.Actives))
	out = append(out, a.Owner)
	out = append(out, a.Actives...)
	return out
}

// PermissionByID looks up a permission by id; the owner permission is id 0.
func (a Account) PermissionByID(id int32) (Permission, bool) {
	for _, p := range a.Permissions() {
		if p.ID == id {
			return p, true
		}
	}
	return Permission{}, false
}

// AccountResources is the metered resource snapshot reported alongside an
// account: remaining energy and bandwidth allowances.
type AccountResources struct {
	EnergyLimit  int64
	EnergyUsed   int64
	NetLimit     int64
	NetUsed      int64
	FreeNetLimit int64
	FreeNetUsed  int64
}

// EnergyAvailable returns the remaining prepaid energy.
func (r AccountResources) EnergyAvailable() int64 {
	if r.EnergyLimit <= r.EnergyUsed {
		return 0
	}
	return r.EnergyLimit - r.EnergyUsed
}

// BandwidthAvailable returns the remaining bandwidth, staked and free
// allowances combined.
func (r AccountResources) BandwidthAvailable() int64 {
	var total int64
	if r.NetLimit > r.NetUsed {
		total += r.NetLimit - r.NetUsed
	}
	if r.FreeNetLimit > r.FreeNetUsed {
		total += r.FreeNetLimit - r.FreeNetUsed
	}
	return total
}
