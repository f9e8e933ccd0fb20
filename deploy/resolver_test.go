package deploy

import (
	"errors"
	"testing"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
)

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func testAddr(t *testing.T) crypto.Address {
	t.Helper()
	return testKey(t).PubKey().Address()
}

func deployOps() types.Operations {
	return types.OperationsWith(types.OpCreateSmartContract, types.OpTriggerSmartContract)
}

func ownerPermission(keys ...types.PermissionKey) types.Permission {
	return types.Permission{
		ID:         types.OwnerPermissionID,
		Kind:       types.PermissionOwner,
		Name:       "owner",
		Threshold:  1,
		Keys:       keys,
		Operations: deployOps(),
	}
}

func TestResolveUniqueQualifiedPermission(t *testing.T) {
	signerAddr := testAddr(t)
	account := &types.Account{
		Address: testAddr(t),
		Owner:   ownerPermission(types.PermissionKey{Address: testAddr(t), Weight: 1}),
		Actives: []types.Permission{{
			ID:         2,
			Kind:       types.PermissionActive,
			Name:       "deployer",
			Threshold:  1,
			Keys:       []types.PermissionKey{{Address: signerAddr, Weight: 1}},
			Operations: deployOps(),
		}},
	}

	res, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PermissionID != 2 {
		t.Fatalf("expected permission 2, got %d", res.PermissionID)
	}
	if res.Risk != RiskNone {
		t.Fatalf("unilateral match should carry no risk, got %s", res.Risk)
	}
	if len(res.Trace) != 2 {
		t.Fatalf("trace should cover every permission, got %d entries", len(res.Trace))
	}
}

func TestResolvePrefersUnilateralActiveOverMultisigOwner(t *testing.T) {
	signerAddr := testAddr(t)
	owner := ownerPermission(
		types.PermissionKey{Address: signerAddr, Weight: 1},
		types.PermissionKey{Address: testAddr(t), Weight: 1},
	)
	owner.Threshold = 2

	account := &types.Account{
		Address: testAddr(t),
		Owner:   owner,
		Actives: []types.Permission{{
			ID:         2,
			Kind:       types.PermissionActive,
			Name:       "ops",
			Threshold:  1,
			Keys:       []types.PermissionKey{{Address: signerAddr, Weight: 1}},
			Operations: deployOps(),
		}},
	}

	res, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PermissionID != 2 {
		t.Fatalf("single-signature active must beat multisig owner, got permission %d", res.PermissionID)
	}
	if res.Risk != RiskNone {
		t.Fatalf("unexpected risk %s", res.Risk)
	}
}

func TestResolveOwnerWinsTies(t *testing.T) {
	signerAddr := testAddr(t)
	account := &types.Account{
		Address: testAddr(t),
		Owner:   ownerPermission(types.PermissionKey{Address: signerAddr, Weight: 1}),
		Actives: []types.Permission{{
			ID:         2,
			Kind:       types.PermissionActive,
			Name:       "ops",
			Threshold:  1,
			Keys:       []types.PermissionKey{{Address: signerAddr, Weight: 1}},
			Operations: deployOps(),
		}},
	}

	res, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PermissionID != types.OwnerPermissionID {
		t.Fatalf("owner should win a tie at the same tier, got permission %d", res.PermissionID)
	}
}

func TestResolveMultisigRequired(t *testing.T) {
	signerAddr := testAddr(t)
	owner := ownerPermission(
		types.PermissionKey{Address: signerAddr, Weight: 1},
		types.PermissionKey{Address: testAddr(t), Weight: 1},
	)
	owner.Threshold = 2

	account := &types.Account{Address: testAddr(t), Owner: owner}

	res, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PermissionID != types.OwnerPermissionID {
		t.Fatalf("expected owner permission, got %d", res.PermissionID)
	}
	if res.Risk != RiskMultisigRequired {
		t.Fatalf("expected multisig risk, got %s", res.Risk)
	}
}

func TestResolveLikelyToFail(t *testing.T) {
	signerAddr := testAddr(t)
	account := &types.Account{
		Address: testAddr(t),
		Owner:   ownerPermission(types.PermissionKey{Address: testAddr(t), Weight: 1}),
		Actives: []types.Permission{{
			ID:        2,
			Kind:      types.PermissionActive,
			Name:      "transfers-only",
			Threshold: 1,
			Keys:      []types.PermissionKey{{Address: signerAddr, Weight: 1}},
			// Capability bit 30 deliberately absent.
			Operations: types.OperationsWith(0, 1),
		}},
	}

	res, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PermissionID != 2 {
		t.Fatalf("expected permission 2, got %d", res.PermissionID)
	}
	if res.Risk != RiskLikelyToFail {
		t.Fatalf("expected likely-to-fail risk, got %s", res.Risk)
	}
}

func TestResolveNoMatchingPermission(t *testing.T) {
	signerAddr := testAddr(t)
	account := &types.Account{
		Address: testAddr(t),
		Owner:   ownerPermission(types.PermissionKey{Address: testAddr(t), Weight: 1}),
	}

	_, err := ResolvePermission(account, signerAddr, types.OpCreateSmartContract)
	if !errors.Is(err, cerrors.ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	if _, err := ResolvePermission(nil, testAddr(t), types.OpCreateSmartContract); err == nil {
		t.Fatalf("nil account should error")
	}
	if _, err := ResolvePermission(&types.Account{}, crypto.Address{}, types.OpCreateSmartContract); err == nil {
		t.Fatalf("zero signer should error")
	}
}
