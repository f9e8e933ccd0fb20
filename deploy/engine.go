// Package deploy implements the contract deployment and invocation engine:
// permission resolution, resource-cost estimation, bytecode patching, and
// multi-strategy transaction submission against a permission-based,
// resource-metered ledger.
package deploy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"tronforge/core/types"
	"tronforge/crypto"
	"tronforge/observability/metrics"
	"tronforge/signer"
)

const defaultExplorerURL = "https://tronscan.org/#/transaction/"

// Engine orchestrates one sequential workflow per call: fetch a fresh
// permission snapshot, resolve, estimate, patch, submit, and on failure
// diagnose. Instances hold no shared mutable state beyond the request-id
// counter and are safe for concurrent calls.
type Engine struct {
	ledger   Ledger
	provider signer.Provider
	log      *slog.Logger

	estimator  *Estimator
	submitter  *Submitter
	feeCeiling int64
	explorer   string

	requestSeq atomic.Uint64
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	log          *slog.Logger
	params       EstimatorParams
	pollInterval time.Duration
	pollAttempts int
	feeCeiling   int64
	explorerURL  string
}

// WithLogger sets the structured logger; the default logger is used otherwise.
func WithLogger(log *slog.Logger) EngineOption {
	return func(c *engineConfig) { c.log = log }
}

// WithEstimatorParams overrides the resource pricing knobs.
func WithEstimatorParams(params EstimatorParams) EngineOption {
	return func(c *engineConfig) { c.params = params }
}

// WithPolling overrides the confirmation poll interval and attempt budget.
func WithPolling(interval time.Duration, attempts int) EngineOption {
	return func(c *engineConfig) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

// WithFeeCeiling caps every fee limit the engine stamps on a transaction.
func WithFeeCeiling(sun int64) EngineOption {
	return func(c *engineConfig) {
		if sun > 0 {
			c.feeCeiling = sun
		}
	}
}

// WithExplorerURL sets the explorer prefix used in manual-verification hints.
func WithExplorerURL(url string) EngineOption {
	return func(c *engineConfig) {
		if strings.TrimSpace(url) != "" {
			c.explorerURL = url
		}
	}
}

// NewEngine wires an engine around a ledger client and a signing provider.
func NewEngine(ledger Ledger, provider signer.Provider, opts ...EngineOption) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("deploy: ledger client required")
	}
	if provider == nil {
		return nil, fmt.Errorf("deploy: signing provider required")
	}
	cfg := engineConfig{
		log:         slog.Default(),
		feeCeiling:  defaultHardFeeCeilingSun,
		explorerURL: defaultExplorerURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.params.HardFeeCeilingSun == 0 {
		cfg.params.HardFeeCeilingSun = cfg.feeCeiling
	}
	return &Engine{
		ledger:     ledger,
		provider:   provider,
		log:        cfg.log,
		estimator:  NewEstimator(cfg.params, cfg.log),
		submitter:  NewSubmitter(ledger, provider, cfg.log, cfg.pollInterval, cfg.pollAttempts),
		feeCeiling: cfg.feeCeiling,
		explorer:   cfg.explorerURL,
		now:        time.Now,
	}, nil
}

// DeployRequest describes one contract deployment.
type DeployRequest struct {
	Template Template
	// TokenAddress is the runtime constant substituted over the template's
	// sentinel, in either textual encoding.
	TokenAddress string
	// ConstructorParams is optional ABI-encoded hex appended to the patched
	// bytecode.
	ConstructorParams string
	ContractName      string
	CallValue         int64
	// FeeLimit optionally overrides the estimated limit; the engine ceiling
	// still applies.
	FeeLimit int64
}

// InvokeRequest describes one state-changing contract invocation.
type InvokeRequest struct {
	ContractAddress string
	// Data is the ABI-encoded call payload (selector plus arguments).
	Data      string
	CallValue int64
	FeeLimit  int64
}

// DeployContract resolves, prices, patches, and submits a deployment. Input
// and resolution failures return an error; everything past that point lands
// in the returned Outcome.
func (e *Engine) DeployContract(ctx context.Context, req DeployRequest) (*Outcome, error) {
	if err := req.Template.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TokenAddress) == "" {
		return nil, fmt.Errorf("deploy: token address required")
	}

	plan, err := e.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, plan, types.OpCreateSmartContract), nil
}

// InvokeContract resolves, prices, and submits an invocation.
func (e *Engine) InvokeContract(ctx context.Context, req InvokeRequest) (*Outcome, error) {
	if strings.TrimSpace(req.ContractAddress) == "" {
		return nil, fmt.Errorf("deploy: contract address required")
	}
	contractAddr, err := normalizeHexInput(req.ContractAddress)
	if err != nil {
		return nil, err
	}

	signerAddr := e.provider.Address()
	res, err := e.resolve(ctx, types.OpTriggerSmartContract)
	if err != nil {
		return nil, err
	}

	est := e.estimate(req.Data, nil, ModeInvoke)
	plan := &Plan{
		Mode:            ModeInvoke,
		Owner:           signerAddr,
		Resolution:      res,
		Estimate:        est,
		FeeLimit:        e.feeLimit(est, req.FeeLimit),
		RequestID:       e.nextRequestID(ModeInvoke),
		ContractAddress: contractAddr,
		CallData:        strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Data), "0x")),
		CallValue:       req.CallValue,
	}
	return e.run(ctx, plan, types.OpTriggerSmartContract), nil
}

// ResolveSigner resolves which permission the configured signing key should
// use for the given capability bit, against a fresh account snapshot.
func (e *Engine) ResolveSigner(ctx context.Context, opBit uint) (*Resolution, error) {
	return e.resolve(ctx, opBit)
}

// EstimateDeploy prices a template without submitting anything.
func (e *Engine) EstimateDeploy(t Template) Estimate {
	return e.estimate(t.Bytecode, t.ABI, ModeDeploy)
}

func (e *Engine) plan(ctx context.Context, req DeployRequest) (*Plan, error) {
	signerAddr := e.provider.Address()
	res, err := e.resolve(ctx, types.OpCreateSmartContract)
	if err != nil {
		return nil, err
	}

	patched, err := PatchBytecode(req.Template.Bytecode, req.Template.Sentinel, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	if params := strings.TrimPrefix(strings.TrimSpace(req.ConstructorParams), "0x"); params != "" {
		if _, err := hex.DecodeString(params); err != nil {
			return nil, fmt.Errorf("deploy: constructor params are not hex: %w", err)
		}
		patched += strings.ToLower(params)
	}

	est := e.estimate(patched, req.Template.ABI, ModeDeploy)

	abiJSON, err := json.Marshal(req.Template.ABI)
	if err != nil {
		return nil, fmt.Errorf("deploy: encode abi: %w", err)
	}

	name := req.ContractName
	if name == "" {
		name = req.Template.Name
	}

	return &Plan{
		Mode:         ModeDeploy,
		Owner:        signerAddr,
		Resolution:   res,
		Estimate:     est,
		FeeLimit:     e.feeLimit(est, req.FeeLimit),
		RequestID:    e.nextRequestID(ModeDeploy),
		Bytecode:     patched,
		ABIJSON:      abiJSON,
		ContractName: name,
		CallValue:    req.CallValue,
	}, nil
}

func (e *Engine) run(ctx context.Context, plan *Plan, opBit uint) *Outcome {
	outcome := e.submitter.Submit(ctx, plan)
	if outcome.Ambiguous && outcome.TxID != "" {
		outcome.ExplorerHint = e.explorer + outcome.TxID
	}
	if !outcome.Success && !outcome.Ambiguous {
		outcome.Diagnostics = Diagnose(ctx, e.ledger, plan.Owner, plan.Resolution.PermissionID, opBit, outcome.Err)
	}
	return outcome
}

// resolve always works from a freshly fetched snapshot so on-chain
// permission or threshold changes are observed immediately.
func (e *Engine) resolve(ctx context.Context, opBit uint) (*Resolution, error) {
	addr := e.provider.Address()
	account, err := e.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("deploy: fetch account: %w", err)
	}
	res, err := ResolvePermission(account, addr, opBit)
	if err != nil {
		return nil, err
	}
	if res.Risk != RiskNone {
		e.log.Warn("resolved permission carries risk",
			"signer", addr.String(), "permission_id", res.PermissionID, "risk", string(res.Risk))
	}
	return res, nil
}

func (e *Engine) estimate(bytecodeHex string, abi ABIDescriptor, mode Mode) Estimate {
	est := e.estimator.Estimate(bytecodeHex, abi, mode)
	if est.Fallback {
		metrics.Engine().FallbackEstimates.Inc()
	}
	return est
}

func (e *Engine) feeLimit(est Estimate, override int64) int64 {
	limit := est.RecommendedFeeLimitSun
	if override > 0 {
		limit = override
	}
	if limit > e.feeCeiling {
		limit = e.feeCeiling
	}
	return limit
}

// nextRequestID builds a collision-resistant identifier from the wall clock
// and an atomically incremented sequence.
func (e *Engine) nextRequestID(mode Mode) string {
	return fmt.Sprintf("%s-%d-%d", mode, e.now().UnixMilli(), e.requestSeq.Add(1))
}

// normalizeHexInput accepts an address in any encoding and returns the
// canonical hex the wire format expects.
func normalizeHexInput(s string) (string, error) {
	addr, err := crypto.DecodeAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
