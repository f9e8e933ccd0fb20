package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
	"tronforge/rpc"
)

func engineAccount(signerAddr crypto.Address) *types.Account {
	return &types.Account{
		Address: signerAddr,
		Owner:   ownerPermission(types.PermissionKey{Address: signerAddr, Weight: 1}),
	}
}

func newTestEngine(t *testing.T, ledger Ledger, provider *fakeProvider) *Engine {
	t.Helper()
	engine, err := NewEngine(ledger, provider,
		WithPolling(time.Millisecond, 2))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func deployTemplate() Template {
	return Template{
		Name:     "token-vault",
		Bytecode: "6080604052" + patchSentinel + "60005260206000f3",
		Sentinel: patchSentinel,
		ABI:      ABIDescriptor{{Kind: "constructor"}, {Name: "sweep", Kind: "function"}},
	}
}

func TestDeployContractEndToEnd(t *testing.T) {
	signerAddr := testAddr(t)
	contract := testAddr(t)
	var builtBytecode string
	var builtFeeLimit int64
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
		buildDeploy: func(req rpc.DeployContractRequest) (*types.Transaction, error) {
			builtBytecode = req.Bytecode
			builtFeeLimit = req.FeeLimit
			return builtEnvelope(signerAddr), nil
		},
		broadcast: func(*types.Transaction) (string, error) { return "abc123", nil },
		txInfo: func(string) (*types.TransactionInfo, error) {
			return confirmedInfo(contract.Hex()), nil
		},
	}
	provider := &fakeProvider{addr: signerAddr}
	engine := newTestEngine(t, ledger, provider)

	outcome, err := engine.DeployContract(context.Background(), DeployRequest{
		Template:          deployTemplate(),
		TokenAddress:      patchTarget,
		ConstructorParams: "0xDEADBEEF",
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ContractAddress != contract.String() {
		t.Fatalf("contract address missing: %s", outcome.ContractAddress)
	}
	if strings.Contains(builtBytecode, patchSentinel) {
		t.Fatalf("sentinel leaked into submitted bytecode")
	}
	if !strings.Contains(builtBytecode, patchTargetBody) {
		t.Fatalf("target address missing from submitted bytecode")
	}
	if !strings.HasSuffix(builtBytecode, "deadbeef") {
		t.Fatalf("constructor params not appended: %s", builtBytecode)
	}
	if builtFeeLimit <= 0 {
		t.Fatalf("fee limit not stamped")
	}
}

func TestDeployContractInputValidation(t *testing.T) {
	signerAddr := testAddr(t)
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
	}
	engine := newTestEngine(t, ledger, &fakeProvider{addr: signerAddr})

	if _, err := engine.DeployContract(context.Background(), DeployRequest{
		Template: Template{}, TokenAddress: patchTarget,
	}); err == nil {
		t.Fatalf("empty template should error")
	}

	if _, err := engine.DeployContract(context.Background(), DeployRequest{
		Template: deployTemplate(),
	}); err == nil {
		t.Fatalf("missing token address should error")
	}

	if _, err := engine.DeployContract(context.Background(), DeployRequest{
		Template:          deployTemplate(),
		TokenAddress:      patchTarget,
		ConstructorParams: "xyz",
	}); err == nil {
		t.Fatalf("non-hex constructor params should error")
	}
}

func TestDeployContractResolutionFailureReturnsError(t *testing.T) {
	signerAddr := testAddr(t)
	stranger := testAddr(t)
	ledger := &fakeLedger{
		// The signer key appears nowhere on the account.
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(stranger), nil },
	}
	engine := newTestEngine(t, ledger, &fakeProvider{addr: signerAddr})

	_, err := engine.DeployContract(context.Background(), DeployRequest{
		Template:     deployTemplate(),
		TokenAddress: patchTarget,
	})
	if !errors.Is(err, cerrors.ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
	if ledger.buildDeployCalls != 0 {
		t.Fatalf("nothing should be built when resolution fails")
	}
}

func TestDeployContractAmbiguousGetsExplorerHint(t *testing.T) {
	signerAddr := testAddr(t)
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
		buildDeploy: func(rpc.DeployContractRequest) (*types.Transaction, error) {
			return builtEnvelope(signerAddr), nil
		},
		broadcast: func(*types.Transaction) (string, error) { return "abc123", nil },
		txInfo:    func(string) (*types.TransactionInfo, error) { return nil, nil },
	}
	engine, err := NewEngine(ledger, &fakeProvider{addr: signerAddr},
		WithPolling(time.Millisecond, 2),
		WithExplorerURL("https://explorer.test/tx/"))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	outcome, err := engine.DeployContract(context.Background(), DeployRequest{
		Template:     deployTemplate(),
		TokenAddress: patchTarget,
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !outcome.Ambiguous {
		t.Fatalf("expected ambiguous outcome, got %+v", outcome)
	}
	if outcome.ExplorerHint != "https://explorer.test/tx/abc123" {
		t.Fatalf("explorer hint wrong: %s", outcome.ExplorerHint)
	}
	if outcome.Diagnostics != nil {
		t.Fatalf("ambiguous outcomes are not failures and need no diagnosis")
	}
}

func TestDeployContractFailureAttachesDiagnostics(t *testing.T) {
	signerAddr := testAddr(t)
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
		buildDeploy: func(rpc.DeployContractRequest) (*types.Transaction, error) {
			return builtEnvelope(signerAddr), nil
		},
		broadcast: func(*types.Transaction) (string, error) {
			return "", &rpc.BroadcastError{Code: "SIGERROR", Message: "validate signature error"}
		},
		nowBlock: func() (*types.BlockRef, error) { return nil, errors.New("node down") },
	}
	engine := newTestEngine(t, ledger, &fakeProvider{addr: signerAddr})

	outcome, err := engine.DeployContract(context.Background(), DeployRequest{
		Template:     deployTemplate(),
		TokenAddress: patchTarget,
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if outcome.Success || outcome.Ambiguous {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if outcome.Diagnostics == nil {
		t.Fatalf("failed outcomes must carry a diagnostic report")
	}
	if outcome.Diagnostics.SignerAddress != signerAddr.String() {
		t.Fatalf("report signer wrong: %s", outcome.Diagnostics.SignerAddress)
	}
}

func TestInvokeContract(t *testing.T) {
	signerAddr := testAddr(t)
	contract := testAddr(t)
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
		buildTrigger: func(req rpc.TriggerContractRequest) (*types.Transaction, error) {
			if req.ContractAddress != contract.Hex() {
				t.Errorf("contract address not canonicalised: %s", req.ContractAddress)
			}
			if req.Data != "a9059cbb" {
				t.Errorf("call data not normalised: %s", req.Data)
			}
			tx := builtEnvelope(signerAddr)
			tx.RawData.Contract[0].Type = types.ContractTriggerSmart
			return tx, nil
		},
		broadcast: func(*types.Transaction) (string, error) { return "def456", nil },
		txInfo: func(string) (*types.TransactionInfo, error) {
			return &types.TransactionInfo{BlockNumber: 11}, nil
		},
	}
	engine := newTestEngine(t, ledger, &fakeProvider{addr: signerAddr})

	outcome, err := engine.InvokeContract(context.Background(), InvokeRequest{
		ContractAddress: contract.String(),
		Data:            "0xA9059CBB",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}

	if _, err := engine.InvokeContract(context.Background(), InvokeRequest{Data: "a9"}); err == nil {
		t.Fatalf("missing contract address should error")
	}
	if _, err := engine.InvokeContract(context.Background(), InvokeRequest{
		ContractAddress: "garbage", Data: "a9",
	}); !errors.Is(err, crypto.ErrAddressFormat) {
		t.Fatalf("expected ErrAddressFormat, got %v", err)
	}
}

func TestEngineEstimateDeploy(t *testing.T) {
	signerAddr := testAddr(t)
	engine := newTestEngine(t, &fakeLedger{}, &fakeProvider{addr: signerAddr})

	est := engine.EstimateDeploy(deployTemplate())
	if est.Fallback {
		t.Fatalf("valid template should be analysable")
	}
	if est.StorageUnits == 0 || est.RecommendedFeeLimitSun == 0 {
		t.Fatalf("estimate incomplete: %+v", est)
	}
}

func TestEngineFeeLimit(t *testing.T) {
	signerAddr := testAddr(t)
	ledger := &fakeLedger{
		account: func(crypto.Address) (*types.Account, error) { return engineAccount(signerAddr), nil },
	}
	engine, err := NewEngine(ledger, &fakeProvider{addr: signerAddr}, WithFeeCeiling(10_000))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	est := Estimate{RecommendedFeeLimitSun: 5_000}
	if got := engine.feeLimit(est, 0); got != 5_000 {
		t.Fatalf("estimate should pass through: %d", got)
	}
	if got := engine.feeLimit(est, 8_000); got != 8_000 {
		t.Fatalf("override should win: %d", got)
	}
	if got := engine.feeLimit(est, 50_000); got != 10_000 {
		t.Fatalf("ceiling should cap the override: %d", got)
	}
}

func TestEngineRequestIDsAreUnique(t *testing.T) {
	signerAddr := testAddr(t)
	ledger := &fakeLedger{}
	engine, err := NewEngine(ledger, &fakeProvider{addr: signerAddr})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	a := engine.nextRequestID(ModeDeploy)
	b := engine.nextRequestID(ModeDeploy)
	if a == b {
		t.Fatalf("request ids must be unique: %s", a)
	}
	if !strings.HasPrefix(a, "deploy-") {
		t.Fatalf("request id missing mode prefix: %s", a)
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	if _, err := NewEngine(nil, &fakeProvider{}); err == nil {
		t.Fatalf("nil ledger should error")
	}
	if _, err := NewEngine(&fakeLedger{}, nil); err == nil {
		t.Fatalf("nil provider should error")
	}
}
