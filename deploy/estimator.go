package deploy

import (
	"encoding/hex"
	"log/slog"
	"strings"
)

// Mode distinguishes a deployment from an invocation.
type Mode string

const (
	ModeDeploy Mode = "deploy"
	ModeInvoke Mode = "invoke"
)

// EstimatorParams holds the pricing knobs. Zero fields fall back to the
// package defaults, which follow published chain pricing orders of
// magnitude; operators override them through configuration when the chain
// committee changes rates.
type EstimatorParams struct {
	// EnergyPerCodeByte prices permanent code storage per bytecode byte.
	EnergyPerCodeByte int64
	// EnergyPerNewSlot prices initialising one fresh storage slot.
	EnergyPerNewSlot int64
	// BaseExecution is the floor for constructor/dispatch execution.
	BaseExecution int64
	// PerFunction scales execution with ABI surface.
	PerFunction int64
	// BaseStateVariables is the assumed minimum slot count of any contract.
	BaseStateVariables int64
	// OpsPerSlot is the heuristic divisor from storage-write opcodes to
	// distinct slots (several writes typically hit the same slot).
	OpsPerSlot int64
	// EnergyPriceSun converts energy units to native currency.
	EnergyPriceSun int64
	// HardFeeCeilingSun caps the recommended fee limit so a mispriced
	// estimate cannot burn more than a bounded up-front charge.
	HardFeeCeilingSun int64
}

const (
	defaultEnergyPerCodeByte  = 200
	defaultEnergyPerNewSlot   = 20_000
	defaultBaseExecution      = 65_000
	defaultPerFunction        = 4_000
	defaultBaseStateVariables = 2
	defaultOpsPerSlot         = 3
	defaultEnergyPriceSun     = 420
	defaultHardFeeCeilingSun  = 2_000_000_000 // 2000 TRX

	// storageWriteOpcode is the byte value scanned for in the slot
	// heuristic (SSTORE).
	storageWriteOpcode = 0x55

	safetyMarginPct  = 15
	limitHeadroomPct = 25
	fallbackEnergy   = 1_500_000
)

func (p EstimatorParams) withDefaults() EstimatorParams {
	def := EstimatorParams{
		EnergyPerCodeByte:  defaultEnergyPerCodeByte,
		EnergyPerNewSlot:   defaultEnergyPerNewSlot,
		BaseExecution:      defaultBaseExecution,
		PerFunction:        defaultPerFunction,
		BaseStateVariables: defaultBaseStateVariables,
		OpsPerSlot:         defaultOpsPerSlot,
		EnergyPriceSun:     defaultEnergyPriceSun,
		HardFeeCeilingSun:  defaultHardFeeCeilingSun,
	}
	if p.EnergyPerCodeByte > 0 {
		def.EnergyPerCodeByte = p.EnergyPerCodeByte
	}
	if p.EnergyPerNewSlot > 0 {
		def.EnergyPerNewSlot = p.EnergyPerNewSlot
	}
	if p.BaseExecution > 0 {
		def.BaseExecution = p.BaseExecution
	}
	if p.PerFunction > 0 {
		def.PerFunction = p.PerFunction
	}
	if p.BaseStateVariables > 0 {
		def.BaseStateVariables = p.BaseStateVariables
	}
	if p.OpsPerSlot > 0 {
		def.OpsPerSlot = p.OpsPerSlot
	}
	if p.EnergyPriceSun > 0 {
		def.EnergyPriceSun = p.EnergyPriceSun
	}
	if p.HardFeeCeilingSun > 0 {
		def.HardFeeCeilingSun = p.HardFeeCeilingSun
	}
	return def
}

// Estimate is the resource-cost ceiling computed ahead of submission.
type Estimate struct {
	TotalUnits     int64
	StorageUnits   int64
	ExecutionUnits int64
	CostSun        int64
	// RecommendedFeeLimitSun is the fee limit to stamp on the transaction:
	// cost plus headroom, capped by the hard ceiling.
	RecommendedFeeLimitSun int64
	// Fallback marks a conservative default produced because the bytecode
	// could not be analysed. Estimation failure never blocks a submission.
	Fallback bool
}

// Estimator prices deployments and invocations from bytecode shape and ABI
// surface. The estimate deliberately overshoots: an insufficient fee limit
// wastes the whole attempt, a generous one only locks headroom briefly.
type Estimator struct {
	params EstimatorParams
	log    *slog.Logger
}

// NewEstimator builds an estimator; a nil logger falls back to the default.
func NewEstimator(params EstimatorParams, log *slog.Logger) *Estimator {
	if log == nil {
		log = slog.Default()
	}
	return &Estimator{params: params.withDefaults(), log: log}
}

// Estimate computes the metered-unit and native-cost ceiling for the given
// bytecode and ABI. It never fails: unparseable input degrades to a fixed
// conservative fallback so a broken analysis cannot block a deployment.
func (e *Estimator) Estimate(bytecodeHex string, abi ABIDescriptor, mode Mode) Estimate {
	code, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(bytecodeHex), "0x"))
	if err != nil || len(code) == 0 {
		e.log.Warn("bytecode not analysable, using conservative fallback estimate",
			"mode", string(mode), "error", errString(err))
		return e.fallback()
	}

	p := e.params

	var storageUnits int64
	if mode == ModeDeploy {
		storageUnits = int64(len(code)) * p.EnergyPerCodeByte
	}

	writeOps := int64(0)
	for _, b := range code {
		if b == storageWriteOpcode {
			writeOps++
		}
	}
	estimatedSlots := p.BaseStateVariables + (writeOps+p.OpsPerSlot-1)/p.OpsPerSlot
	storeUnits := estimatedSlots * p.EnergyPerNewSlot

	executionUnits := p.BaseExecution
	if fn := int64(abi.FunctionCount()) * p.PerFunction; fn > executionUnits {
		executionUnits = fn
	}
	executionUnits += storeUnits

	total := storageUnits + executionUnits
	totalWithMargin := total + total*safetyMarginPct/100

	cost := totalWithMargin * p.EnergyPriceSun
	limit := cost + cost*limitHeadroomPct/100
	if limit > p.HardFeeCeilingSun {
		limit = p.HardFeeCeilingSun
	}

	return Estimate{
		TotalUnits:             totalWithMargin,
		StorageUnits:           storageUnits,
		ExecutionUnits:         executionUnits,
		CostSun:                cost,
		RecommendedFeeLimitSun: limit,
	}
}

func (e *Estimator) fallback() Estimate {
	p := e.params
	total := int64(fallbackEnergy)
	cost := total * p.EnergyPriceSun
	limit := cost + cost*limitHeadroomPct/100
	if limit > p.HardFeeCeilingSun {
		limit = p.HardFeeCeilingSun
	}
	return Estimate{
		TotalUnits:             total,
		StorageUnits:           0,
		ExecutionUnits:         total,
		CostSun:                cost,
		RecommendedFeeLimitSun: limit,
		Fallback:               true,
	}
}

func errString(err error) string {
	if err == nil {
		return "empty bytecode"
	}
	return err.Error()
}

// ABIEntry is one item of the contract's ABI descriptor.
type ABIEntry struct {
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind            string `json:"type" yaml:"type"`
	StateMutability string `json:"stateMutability,omitempty" yaml:"stateMutability,omitempty"`
}

// ABIDescriptor is the ordered ABI entry list supplied with a template.
type ABIDescriptor []ABIEntry

// FunctionCount returns the number of callable functions, exclusive of
// events and the constructor.
func (d ABIDescriptor) FunctionCount() int {
	n := 0
	for _, entry := range d {
		if strings.EqualFold(entry.Kind, "function") {
			n++
		}
	}
	return n
}
