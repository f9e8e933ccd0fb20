package deploy

import (
	"fmt"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
)

// RiskLevel annotates a resolution with how likely the resolved permission is
// to authorise the transaction without further coordination.
type RiskLevel string

const (
	// RiskNone: the signer alone satisfies the permission and the capability
	// bit is set. Fully automatable.
	RiskNone RiskLevel = "none"
	// RiskMultisigRequired: the capability bit is set but the threshold
	// needs additional co-signers.
	RiskMultisigRequired RiskLevel = "multisig-required"
	// RiskLikelyToFail: the signer key is present but the permission lacks
	// the required capability bit; the node will reject the transaction.
	RiskLikelyToFail RiskLevel = "likely-to-fail"
)

// Candidate records how one permission scored during resolution. The full
// candidate list travels with the resolution so diagnostics can replay the
// decision later.
type Candidate struct {
	PermissionID  int32
	Kind          types.PermissionKind
	Name          string
	Threshold     int64
	KeyPresent    bool
	HasCapability bool
	Unilateral    bool
}

// Resolution is the outcome of mapping a signer onto an account permission.
type Resolution struct {
	PermissionID int32
	Kind         types.PermissionKind
	Risk         RiskLevel
	Trace        []Candidate
}

// ResolvePermission selects which account permission should authorise a
// transaction needing the given capability bit, signed by the given key.
//
// Candidates are scored owner first, then actives in on-chain order, and the
// first tier with a match wins:
//
//  1. key present, capability set, threshold 1 — automatable; the owner
//     permission outranks an equally qualified active permission
//  2. key present, capability set — true multi-signature required
//  3. key present only — annotated likely to fail
//
// Accounts where the signer key appears in no permission at all resolve to
// ErrPermissionNotFound. The function is pure; callers are expected to pass
// a freshly fetched account snapshot so threshold or key rotations are
// observed immediately.
func ResolvePermission(account *types.Account, signerAddr crypto.Address, opBit uint) (*Resolution, error) {
	if account == nil {
		return nil, fmt.Errorf("deploy: nil account snapshot")
	}
	if signerAddr.IsZero() {
		return nil, fmt.Errorf("deploy: zero signer address")
	}

	permissions := account.Permissions()
	trace := make([]Candidate, 0, len(permissions))
	for _, p := range permissions {
		trace = append(trace, Candidate{
			PermissionID:  p.ID,
			Kind:          p.Kind,
			Name:          p.Name,
			Threshold:     p.Threshold,
			KeyPresent:    p.HasKey(signerAddr),
			HasCapability: p.Operations.Has(opBit),
			Unilateral:    p.Unilateral(),
		})
	}

	pick := func(match func(Candidate) bool, risk RiskLevel) *Resolution {
		for _, c := range trace {
			if match(c) {
				return &Resolution{PermissionID: c.PermissionID, Kind: c.Kind, Risk: risk, Trace: trace}
			}
		}
		return nil
	}

	if res := pick(func(c Candidate) bool { return c.KeyPresent && c.HasCapability && c.Unilateral }, RiskNone); res != nil {
		return res, nil
	}
	if res := pick(func(c Candidate) bool { return c.KeyPresent && c.HasCapability }, RiskMultisigRequired); res != nil {
		return res, nil
	}
	if res := pick(func(c Candidate) bool { return c.KeyPresent }, RiskLikelyToFail); res != nil {
		return res, nil
	}
	return nil, fmt.Errorf("%w: signer %s, account %s", cerrors.ErrPermissionNotFound, signerAddr.String(), account.Address.String())
}
