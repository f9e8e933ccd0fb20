package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
	"tronforge/observability/metrics"
	"tronforge/rpc"
	"tronforge/signer"
)

// Ledger is the node surface the engine consumes.
type Ledger interface {
	GetAccount(ctx context.Context, addr crypto.Address) (*types.Account, error)
	GetAccountResources(ctx context.Context, addr crypto.Address) (*types.AccountResources, error)
	BuildDeploy(ctx context.Context, req rpc.DeployContractRequest) (*types.Transaction, error)
	BuildTrigger(ctx context.Context, req rpc.TriggerContractRequest) (*types.Transaction, error)
	Broadcast(ctx context.Context, tx *types.Transaction) (string, error)
	GetTransactionInfo(ctx context.Context, txID string) (*types.TransactionInfo, error)
	GetNowBlock(ctx context.Context) (*types.BlockRef, error)
}

// Plan is the fully resolved input for one submission. It is built once per
// call and never reused across calls with different inputs.
type Plan struct {
	Mode       Mode
	Owner      crypto.Address
	Resolution *Resolution
	Estimate   Estimate
	FeeLimit   int64
	RequestID  string

	// Deployment fields.
	Bytecode     string
	ABIJSON      json.RawMessage
	ContractName string

	// Invocation fields.
	ContractAddress string
	CallData        string
	CallValue       int64
}

// Outcome is the single discriminated result every submission terminates in.
// Ambiguous outcomes mean the confirmation budget ran out with no definitive
// ledger-side result: the transaction may still confirm, so the caller gets
// the transaction id to verify independently rather than a false failure.
type Outcome struct {
	Success         bool
	Ambiguous       bool
	TxID            string
	ContractAddress string
	Strategy        string
	Risk            RiskLevel
	Category        cerrors.Category
	Message         string
	ExplorerHint    string
	Diagnostics     *Report

	// Err preserves the terminal error for diagnosis; nil on success and on
	// ambiguous outcomes.
	Err error
}

// Submitter drives the BUILD, VALIDATE, SIGN, BROADCAST, POLL_CONFIRM
// sequence across an ordered list of construction strategies.
type Submitter struct {
	ledger       Ledger
	provider     signer.Provider
	log          *slog.Logger
	pollInterval time.Duration
	pollAttempts int
	now          func() time.Time
}

// NewSubmitter wires a submitter; zero poll settings get the defaults of
// 3s × 40 attempts.
func NewSubmitter(ledger Ledger, provider signer.Provider, log *slog.Logger, pollInterval time.Duration, pollAttempts int) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if pollAttempts <= 0 {
		pollAttempts = 40
	}
	return &Submitter{
		ledger:       ledger,
		provider:     provider,
		log:          log,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		now:          time.Now,
	}
}

// strategy is one named way of constructing the unsigned envelope. The
// surrounding pipeline (validate, sign, broadcast, poll) is shared; only the
// construction differs.
type strategy interface {
	Name() string
	Build(ctx context.Context, plan *Plan) (*types.Transaction, error)
}

// Submit runs the strategies in priority order. A strategy error before a
// successful broadcast advances to the next strategy; signature rejection,
// signature timeout, and validation mismatches stop the whole submission.
// Once a broadcast succeeded the outcome is terminal regardless of what
// polling observes, because a second strategy could double-spend.
func (s *Submitter) Submit(ctx context.Context, plan *Plan) *Outcome {
	strategies := []strategy{
		&builderStrategy{ledger: s.ledger},
		&manualStrategy{ledger: s.ledger, now: s.now},
	}

	var (
		failures     []string
		strategyErrs []error
	)
	for _, strat := range strategies {
		metrics.Engine().Attempts.WithLabelValues(strat.Name(), string(plan.Mode)).Inc()
		s.log.Info("submission attempt",
			"request_id", plan.RequestID, "strategy", strat.Name(),
			"mode", string(plan.Mode), "permission_id", plan.Resolution.PermissionID)

		outcome, err := s.attempt(ctx, strat, plan)
		if outcome != nil {
			s.record(outcome)
			return outcome
		}
		s.log.Warn("strategy failed",
			"request_id", plan.RequestID, "strategy", strat.Name(), "error", err.Error())
		failures = append(failures, fmt.Sprintf("%s: %v", strat.Name(), err))
		strategyErrs = append(strategyErrs, err)
		if terminalSubmitError(err) {
			out := s.failure(plan, strat.Name(), err, strings.Join(failures, "; "))
			s.record(out)
			return out
		}
	}

	// Join keeps each strategy's typed error reachable for classification; a
	// node SIGERROR rejection must not flatten into an unknown category. The
	// outcome message stays the single-line aggregate.
	err := errors.Join(append([]error{cerrors.ErrAllStrategiesFailed}, strategyErrs...)...)
	out := s.failure(plan, "", err, fmt.Sprintf("%v: %s", cerrors.ErrAllStrategiesFailed, strings.Join(failures, "; ")))
	s.record(out)
	return out
}

// attempt runs the full state sequence for one strategy. A non-nil outcome
// is terminal; a non-nil error aborts only this strategy unless it is a
// terminal class.
func (s *Submitter) attempt(ctx context.Context, strat strategy, plan *Plan) (*Outcome, error) {
	// BUILD
	tx, err := strat.Build(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	// Node-side construction silently drops a non-default permission id, so
	// it is re-applied to the raw envelope before anything inspects it.
	tx.ForcePermissionID(plan.Resolution.PermissionID)

	// VALIDATE
	if err := s.validate(plan, tx); err != nil {
		return nil, err
	}

	// SIGN
	signed, err := s.provider.Sign(ctx, tx, plan.Resolution.PermissionID)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	// BROADCAST
	txID, err := s.ledger.Broadcast(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	s.log.Info("transaction broadcast",
		"request_id", plan.RequestID, "strategy", strat.Name(), "tx_id", txID)

	// POLL_CONFIRM
	return s.poll(ctx, plan, strat.Name(), txID), nil
}

// validate is the mandatory gate before SIGN: the unsigned envelope must
// carry exactly the owner and permission id the resolver decided on. The
// construction call defaulting either field differently is a known external
// pitfall, and signing an inconsistent envelope produces on-chain signature
// mismatches that are expensive to debug after the fact.
func (s *Submitter) validate(plan *Plan, tx *types.Transaction) error {
	owner, err := tx.OwnerAddress()
	if err != nil {
		return fmt.Errorf("%w: %v", cerrors.ErrValidateMismatch, err)
	}
	want := strings.ToLower(plan.Owner.Hex())
	if owner != want {
		return fmt.Errorf("%w: envelope owner %s, resolved signer %s", cerrors.ErrValidateMismatch, owner, want)
	}
	if !crypto.RoundTrip(owner) {
		return fmt.Errorf("%w: owner address %q does not round-trip", cerrors.ErrValidateMismatch, owner)
	}
	id, err := tx.PermissionID()
	if err != nil {
		return fmt.Errorf("%w: %v", cerrors.ErrValidateMismatch, err)
	}
	if id != plan.Resolution.PermissionID {
		return fmt.Errorf("%w: envelope permission id %d, resolved %d", cerrors.ErrValidateMismatch, id, plan.Resolution.PermissionID)
	}
	return nil
}

// poll watches transaction info until confirmation, revert, cancellation, or
// budget exhaustion. Transient poll errors degrade to the next round; they
// never fail a transaction that is already on the wire.
func (s *Submitter) poll(ctx context.Context, plan *Plan, strategyName, txID string) *Outcome {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			// The transaction may already be irreversibly broadcast; a
			// false "failed" here could make the caller retry and pay twice.
			return s.ambiguous(plan, strategyName, txID,
				fmt.Sprintf("confirmation polling cancelled after %d rounds: %v", attempt, ctx.Err()))
		case <-ticker.C:
		}
		metrics.Engine().PollRounds.Inc()

		info, err := s.ledger.GetTransactionInfo(ctx, txID)
		if err != nil {
			s.log.Warn("poll round failed", "request_id", plan.RequestID, "tx_id", txID, "error", err.Error())
			continue
		}
		if info == nil {
			continue
		}
		if info.Reverted() {
			msg := info.ResMessage
			if msg == "" {
				msg = info.Receipt.Result
			}
			revertErr := fmt.Errorf("%w: %s", cerrors.ErrContractReverted, msg)
			return &Outcome{
				Strategy: strategyName,
				TxID:     txID,
				Risk:     plan.Resolution.Risk,
				Category: cerrors.CategoryContractReverted,
				Message:  revertErr.Error(),
				Err:      revertErr,
			}
		}
		if info.Confirmed() {
			return &Outcome{
				Success:         true,
				Strategy:        strategyName,
				TxID:            txID,
				ContractAddress: contractAddressDisplay(info.ContractAddress),
				Risk:            plan.Resolution.Risk,
			}
		}
	}

	return s.ambiguous(plan, strategyName, txID,
		fmt.Sprintf("no confirmation after %d polls at %s", s.pollAttempts, s.pollInterval))
}

func (s *Submitter) ambiguous(plan *Plan, strategyName, txID, msg string) *Outcome {
	return &Outcome{
		Ambiguous: true,
		Strategy:  strategyName,
		TxID:      txID,
		Risk:      plan.Resolution.Risk,
		Category:  cerrors.CategoryConfirmationTimeout,
		Message:   msg,
	}
}

func (s *Submitter) failure(plan *Plan, strategyName string, err error, msg string) *Outcome {
	return &Outcome{
		Strategy: strategyName,
		Risk:     plan.Resolution.Risk,
		Category: classifyError(err),
		Message:  msg,
		Err:      err,
	}
}

func (s *Submitter) record(o *Outcome) {
	switch {
	case o.Success:
		metrics.Engine().Outcomes.WithLabelValues("success").Inc()
	case o.Ambiguous:
		metrics.Engine().Outcomes.WithLabelValues("ambiguous").Inc()
	default:
		metrics.Engine().Outcomes.WithLabelValues("failed").Inc()
	}
}

// terminalSubmitError reports whether an error must stop the whole
// submission instead of advancing to the next strategy.
func terminalSubmitError(err error) bool {
	return errors.Is(err, signer.ErrRejected) ||
		errors.Is(err, signer.ErrTimeout) ||
		errors.Is(err, cerrors.ErrValidateMismatch)
}

// contractAddressDisplay converts a canonical hex contract address to the
// display form when possible; the raw value passes through otherwise.
func contractAddressDisplay(hexAddr string) string {
	if hexAddr == "" {
		return ""
	}
	addr, err := crypto.DecodeAddress(hexAddr)
	if err != nil {
		return hexAddr
	}
	return addr.String()
}

// --- strategies ---

// builderStrategy delegates envelope construction to the node's high-level
// build endpoints.
type builderStrategy struct {
	ledger Ledger
}

func (b *builderStrategy) Name() string { return "node-builder" }

func (b *builderStrategy) Build(ctx context.Context, plan *Plan) (*types.Transaction, error) {
	switch plan.Mode {
	case ModeDeploy:
		return b.ledger.BuildDeploy(ctx, rpc.DeployContractRequest{
			OwnerAddress:               plan.Owner.Hex(),
			ABI:                        plan.ABIJSON,
			Bytecode:                   plan.Bytecode,
			Name:                       plan.ContractName,
			FeeLimit:                   plan.FeeLimit,
			CallValue:                  plan.CallValue,
			ConsumeUserResourcePercent: 100,
			OriginEnergyLimit:          plan.Estimate.TotalUnits,
			PermissionID:               plan.Resolution.PermissionID,
		})
	case ModeInvoke:
		return b.ledger.BuildTrigger(ctx, rpc.TriggerContractRequest{
			OwnerAddress:    plan.Owner.Hex(),
			ContractAddress: plan.ContractAddress,
			Data:            plan.CallData,
			FeeLimit:        plan.FeeLimit,
			CallValue:       plan.CallValue,
			PermissionID:    plan.Resolution.PermissionID,
		})
	default:
		return nil, fmt.Errorf("unknown mode %q", plan.Mode)
	}
}

// manualStrategy assembles the raw envelope locally from a fresh reference
// block, signs and broadcasts without the node builder. It exists as the
// fallback for nodes whose build endpoints are unavailable or mangle
// non-default fields.
type manualStrategy struct {
	ledger Ledger
	now    func() time.Time
}

func (m *manualStrategy) Name() string { return "manual-envelope" }

const manualEnvelopeTTL = 60 * time.Second

func (m *manualStrategy) Build(ctx context.Context, plan *Plan) (*types.Transaction, error) {
	ref, err := m.ledger.GetNowBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch reference block: %w", err)
	}
	refHash, err := ref.RefBlockHash()
	if err != nil {
		return nil, err
	}

	contract, err := m.contract(plan)
	if err != nil {
		return nil, err
	}

	nowMs := m.now().UnixMilli()
	tx := &types.Transaction{
		RawData: types.RawData{
			Contract:      []types.Contract{contract},
			RefBlockBytes: ref.RefBlockBytes(),
			RefBlockHash:  refHash,
			Timestamp:     nowMs,
			Expiration:    nowMs + manualEnvelopeTTL.Milliseconds(),
			FeeLimit:      plan.FeeLimit,
		},
	}
	if err := tx.Seal(); err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	return tx, nil
}

func (m *manualStrategy) contract(plan *Plan) (types.Contract, error) {
	switch plan.Mode {
	case ModeDeploy:
		return types.Contract{
			Type:         types.ContractCreateSmart,
			PermissionID: plan.Resolution.PermissionID,
			Parameter: types.Parameter{
				TypeURL: "type.googleapis.com/protocol.CreateSmartContract",
				Value: types.ContractValue{
					OwnerAddress: plan.Owner.Hex(),
					NewContract: &types.NewContract{
						Bytecode:                   plan.Bytecode,
						ABI:                        plan.ABIJSON,
						OriginAddress:              plan.Owner.Hex(),
						Name:                       plan.ContractName,
						ConsumeUserResourcePercent: 100,
						OriginEnergyLimit:          plan.Estimate.TotalUnits,
					},
				},
			},
		}, nil
	case ModeInvoke:
		return types.Contract{
			Type:         types.ContractTriggerSmart,
			PermissionID: plan.Resolution.PermissionID,
			Parameter: types.Parameter{
				TypeURL: "type.googleapis.com/protocol.TriggerSmartContract",
				Value: types.ContractValue{
					OwnerAddress:    plan.Owner.Hex(),
					ContractAddress: plan.ContractAddress,
					Data:            plan.CallData,
					CallValue:       plan.CallValue,
				},
			},
		}, nil
	default:
		return types.Contract{}, fmt.Errorf("unknown mode %q", plan.Mode)
	}
}
