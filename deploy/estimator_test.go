package deploy

import (
	"strings"
	"testing"
)

func TestEstimateGrowsWithBytecode(t *testing.T) {
	est := NewEstimator(EstimatorParams{}, nil)
	abi := ABIDescriptor{{Kind: "constructor"}, {Name: "transfer", Kind: "function"}}

	small := est.Estimate(strings.Repeat("60", 100), abi, ModeDeploy)
	large := est.Estimate(strings.Repeat("60", 5000), abi, ModeDeploy)

	if small.Fallback || large.Fallback {
		t.Fatalf("analysable bytecode must not fall back")
	}
	if large.StorageUnits <= small.StorageUnits {
		t.Fatalf("storage units must grow with code size: %d vs %d", small.StorageUnits, large.StorageUnits)
	}
	if large.TotalUnits <= small.TotalUnits {
		t.Fatalf("total units must grow with code size: %d vs %d", small.TotalUnits, large.TotalUnits)
	}
	if large.RecommendedFeeLimitSun < large.CostSun {
		t.Fatalf("fee limit %d below cost %d", large.RecommendedFeeLimitSun, large.CostSun)
	}
}

func TestEstimateInvokeSkipsCodeStorage(t *testing.T) {
	est := NewEstimator(EstimatorParams{}, nil)
	out := est.Estimate(strings.Repeat("60", 500), nil, ModeInvoke)
	if out.StorageUnits != 0 {
		t.Fatalf("invocation must not price code storage, got %d", out.StorageUnits)
	}
	if out.ExecutionUnits == 0 {
		t.Fatalf("execution units missing")
	}
}

func TestEstimateCountsStorageWrites(t *testing.T) {
	est := NewEstimator(EstimatorParams{}, nil)
	abi := ABIDescriptor{{Name: "set", Kind: "function"}}

	// Same length, different SSTORE density.
	plain := est.Estimate(strings.Repeat("60", 64), abi, ModeDeploy)
	writeHeavy := est.Estimate(strings.Repeat("55", 64), abi, ModeDeploy)

	if writeHeavy.ExecutionUnits <= plain.ExecutionUnits {
		t.Fatalf("storage-write density ignored: %d vs %d", plain.ExecutionUnits, writeHeavy.ExecutionUnits)
	}
	if writeHeavy.StorageUnits != plain.StorageUnits {
		t.Fatalf("code storage should depend on length only")
	}
}

func TestEstimateFallbackOnBadBytecode(t *testing.T) {
	est := NewEstimator(EstimatorParams{}, nil)
	for _, input := range []string{"", "zz", "0x"} {
		out := est.Estimate(input, nil, ModeDeploy)
		if !out.Fallback {
			t.Fatalf("input %q should degrade to fallback", input)
		}
		if out.TotalUnits == 0 || out.RecommendedFeeLimitSun == 0 {
			t.Fatalf("fallback must still carry a usable estimate")
		}
	}
}

func TestEstimateFeeLimitCeiling(t *testing.T) {
	est := NewEstimator(EstimatorParams{HardFeeCeilingSun: 1000}, nil)
	out := est.Estimate(strings.Repeat("60", 5000), nil, ModeDeploy)
	if out.RecommendedFeeLimitSun != 1000 {
		t.Fatalf("ceiling not applied, got %d", out.RecommendedFeeLimitSun)
	}
	if out.CostSun <= 1000 {
		t.Fatalf("test premise broken: cost %d should exceed the ceiling", out.CostSun)
	}
}

func TestEstimateParamOverrides(t *testing.T) {
	cheap := NewEstimator(EstimatorParams{EnergyPriceSun: 1}, nil)
	pricey := NewEstimator(EstimatorParams{EnergyPriceSun: 1000}, nil)

	code := strings.Repeat("60", 200)
	a := cheap.Estimate(code, nil, ModeDeploy)
	b := pricey.Estimate(code, nil, ModeDeploy)
	if a.TotalUnits != b.TotalUnits {
		t.Fatalf("price must not change metered units")
	}
	if b.CostSun != a.CostSun*1000 {
		t.Fatalf("cost must scale linearly with price: %d vs %d", a.CostSun, b.CostSun)
	}
}

func TestFunctionCount(t *testing.T) {
	abi := ABIDescriptor{
		{Kind: "constructor"},
		{Name: "transfer", Kind: "function"},
		{Name: "Transfer", Kind: "event"},
		{Name: "approve", Kind: "Function"},
	}
	if got := abi.FunctionCount(); got != 2 {
		t.Fatalf("expected 2 functions, got %d", got)
	}
}
