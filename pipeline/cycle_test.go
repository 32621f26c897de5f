// SPDX-License-Identifier: MIT
package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

// linearChainConfig builds the Source->Processor->Destination chain of
// spec.md §8 Scenario A.
func linearChainConfig() pipeline.Config {
	return pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source":      {"S1": {100, 100}},
			"Processor":   {"S1": {100, 100}},
			"Destination": {"S1": {80, 80}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source":      {"S1": {0, 100}},
			"Processor":   {"S1": {0, 80}},
			"Destination": {"S1": {0, 80}},
		},
		Graph: map[string][]string{
			"Source":    {"Processor"},
			"Processor": {"Destination"},
		},
		SchemaPriorities: map[string]int{"S1": 1},
	}
}

// TestScenarioA_LinearOverload verifies spec.md §8 Scenario A: Processor is
// flagged OVERLOADED with overload ratio 0.2, Source receives >= 20%
// reduction, and Destination ends NORMAL.
func TestScenarioA_LinearOverload(t *testing.T) {
	p, err := pipeline.NewPipeline(linearChainConfig())
	require.NoError(t, err)

	paths := p.ReportOverloadPaths()
	require.Len(t, paths, 1)
	require.Equal(t, "Processor", paths[0].Service)
	require.InDelta(t, 0.2, paths[0].Ratio, 1e-9)
	require.Contains(t, paths[0].Chain, "Source")

	iterations, hitCap := p.ResolveOverloads()
	require.Greater(t, iterations, 0)
	require.False(t, hitCap)

	source := p.Service("Source")
	require.LessOrEqual(t, source.Incoming("S1"), 80.0+1e-9)

	p.AssessServiceStatus()
	require.Equal(t, pipeline.StatusNormal, p.Service("Destination").Status())
	require.Equal(t, pipeline.ActionNone, p.Service("Destination").Action())
}

// TestScenarioB_DualPathFunnel verifies spec.md §8 Scenario B: Dest's
// overload ratio is ~0.2308, and both upstream processors are reduced by
// at least that ratio, transitively reducing both sources so that Dest's
// total incoming after resolution is <= its capacity.
func TestScenarioB_DualPathFunnel(t *testing.T) {
	cfg := pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source1": {"S1": {60, 60}},
			"ProcA":   {"S1": {60, 60}},
			"Source2": {"S1": {70, 70}},
			"ProcB":   {"S1": {70, 70}},
			"Dest":    {"S1": {130, 130}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source1": {"S1": {0, 60}},
			"ProcA":   {"S1": {0, 60}},
			"Source2": {"S1": {0, 70}},
			"ProcB":   {"S1": {0, 70}},
			"Dest":    {"S1": {0, 100}},
		},
		Graph: map[string][]string{
			"Source1": {"ProcA"},
			"ProcA":   {"Dest"},
			"Source2": {"ProcB"},
			"ProcB":   {"Dest"},
		},
		SchemaPriorities: map[string]int{"S1": 1},
	}

	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	paths := p.ReportOverloadPaths()
	require.Len(t, paths, 1)
	require.InDelta(t, 30.0/130.0, paths[0].Ratio, 1e-4)

	_, hitCap := p.ResolveOverloads()
	require.False(t, hitCap)

	ratio := 30.0 / 130.0
	require.LessOrEqual(t, p.Service("ProcA").Incoming("S1"), 60*(1-ratio)+1e-6)
	require.LessOrEqual(t, p.Service("ProcB").Incoming("S1"), 70*(1-ratio)+1e-6)
	require.LessOrEqual(t, p.Service("Source1").Incoming("S1"), 60*(1-ratio)+1e-6)
	require.LessOrEqual(t, p.Service("Source2").Incoming("S1"), 70*(1-ratio)+1e-6)

	dest := p.Service("Dest")
	dest.ReallocateCapacityAcrossSchemas()
	require.LessOrEqual(t, dest.Incoming("S1"), 100.0+1e-9)
}

// TestScenarioC_PriorityCoexistence verifies spec.md §8 Scenario C: only
// the overloaded schema (S2) triggers upstream reduction; S1, already at
// capacity but not over it, is left untouched.
func TestScenarioC_PriorityCoexistence(t *testing.T) {
	cfg := pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source":    {"S1": {70, 70}, "S2": {50, 50}},
			"Processor": {"S1": {70, 70}, "S2": {50, 50}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source":    {"S1": {0, 70}, "S2": {0, 50}},
			"Processor": {"S1": {0, 70}, "S2": {0, 30}},
		},
		Graph: map[string][]string{
			"Source": {"Processor"},
		},
		SchemaPriorities: map[string]int{"S1": 2, "S2": 1},
	}

	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	sourceBefore := p.Service("Source").Incoming("S1")

	_, hitCap := p.ResolveOverloads()
	require.False(t, hitCap)

	require.InDelta(t, sourceBefore, p.Service("Source").Incoming("S1"), 1e-9)
	require.Less(t, p.Service("Source").Incoming("S2"), 50.0-1e-9)
}

// TestScenarioD_DiamondMerge verifies spec.md §8 Scenario D: a 12.5% cut at
// Merger propagates through both ProcA and ProcB to Split and Source, and
// the max-rule caps the upstream cut at 12.5% rather than accumulating to 25%.
func TestScenarioD_DiamondMerge(t *testing.T) {
	cfg := pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source": {"S1": {80, 80}},
			"Split":  {"S1": {80, 80}},
			"ProcA":  {"S1": {80, 80}},
			"ProcB":  {"S1": {80, 80}},
			"Merger": {"S1": {80, 80}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source": {"S1": {0, 80}},
			"Split":  {"S1": {0, 80}},
			"ProcA":  {"S1": {0, 80}},
			"ProcB":  {"S1": {0, 80}},
			"Merger": {"S1": {0, 70}},
		},
		Graph: map[string][]string{
			"Source": {"Split"},
			"Split":  {"ProcA", "ProcB"},
			"ProcA":  {"Merger"},
			"ProcB":  {"Merger"},
		},
		SchemaPriorities: map[string]int{"S1": 1},
	}

	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	paths := p.ReportOverloadPaths()
	require.Len(t, paths, 1)
	require.InDelta(t, 0.125, paths[0].Ratio, 1e-9)

	_, hitCap := p.ResolveOverloads()
	require.False(t, hitCap)

	// max-rule: Split receives the 12.5% cut once, not twice (25%).
	require.InDelta(t, 80*(1-0.125), p.Service("Split").Incoming("S1"), 1e-6)
	require.InDelta(t, 80*(1-0.125), p.Service("Source").Incoming("S1"), 1e-6)
}

// TestScenarioE_CycleTolerance verifies spec.md §8 Scenario E: adding
// Merger->Split to the diamond creates an SCC {Split, ProcA, ProcB, Merger};
// the resolver still terminates within the iteration cap.
func TestScenarioE_CycleTolerance(t *testing.T) {
	cfg := pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source": {"S1": {80, 80}},
			"Split":  {"S1": {80, 80}},
			"ProcA":  {"S1": {80, 80}},
			"ProcB":  {"S1": {80, 80}},
			"Merger": {"S1": {80, 80}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source": {"S1": {0, 80}},
			"Split":  {"S1": {0, 80}},
			"ProcA":  {"S1": {0, 80}},
			"ProcB":  {"S1": {0, 80}},
			"Merger": {"S1": {0, 70}},
		},
		Graph: map[string][]string{
			"Source": {"Split"},
			"Split":  {"ProcA", "ProcB"},
			"ProcA":  {"Merger"},
			"ProcB":  {"Merger"},
			"Merger": {"Split"},
		},
		SchemaPriorities: map[string]int{"S1": 1},
	}

	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	sccs := p.Graph().SCCs()
	found := false
	for _, comp := range sccs {
		if len(comp) == 4 {
			found = true
		}
	}
	require.True(t, found, "expected a 4-member SCC {Split, ProcA, ProcB, Merger}")

	iterations, hitCap := p.ResolveOverloads()
	require.False(t, hitCap)
	require.LessOrEqual(t, iterations, 2*len(cfg.ServiceFlows))
}

// TestScenarioF_ZeroCapacityPin verifies spec.md §8 Scenario F: a schema
// pinned to zero capacity propagates a full (1.0) reduction upstream and
// the service remains OVERLOADED with allocated == 0.
func TestScenarioF_ZeroCapacityPin(t *testing.T) {
	cfg := pipeline.Config{
		ServiceFlows: map[string]map[string][2]float64{
			"Source":    {"S1": {50, 50}},
			"Processor": {"S1": {50, 50}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source":    {"S1": {0, 50}},
			"Processor": {"S1": {0, 0}},
		},
		Graph: map[string][]string{
			"Source": {"Processor"},
		},
		SchemaPriorities: map[string]int{"S1": 1},
	}

	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	result, err := p.RunCycle(map[string]map[string][2]float64{
		"Source":    {"S1": {50, 50}},
		"Processor": {"S1": {50, 50}},
	})
	require.NoError(t, err)
	require.Len(t, result.ZeroCapacitySlots, 1)
	require.Equal(t, "Processor", result.ZeroCapacitySlots[0].Service)

	require.InDelta(t, 0.0, p.Service("Source").Incoming("S1"), 1e-9)
	require.Equal(t, pipeline.StatusOverloaded, p.Service("Processor").Status())
	require.InDelta(t, 0.0, p.Service("Processor").Allocated("S1"), 1e-9)
}

// TestRunCycle_ZeroFlowIsNormalOrUnderutilized checks spec.md §8's round-trip
// property: zero-flow input yields NORMAL or UNDERUTILIZED (never
// OVERLOADED) with outgoing == 0 everywhere. Every service here has
// current_capacity > 0, so spec.md §4.5's is_underutilized(v) (zero
// incoming is always < half of a positive current_capacity) must hold,
// not merely "not overloaded".
func TestRunCycle_ZeroFlowIsNormalOrUnderutilized(t *testing.T) {
	p, err := pipeline.NewPipeline(linearChainConfig())
	require.NoError(t, err)

	zeroFlows := map[string]map[string][2]float64{
		"Source":      {"S1": {0, 0}},
		"Processor":   {"S1": {0, 0}},
		"Destination": {"S1": {0, 0}},
	}

	result, err := p.RunCycle(zeroFlows)
	require.NoError(t, err)

	for _, ss := range result.PostSnapshot.Services {
		require.Equal(t, pipeline.StatusUnderutilized, ss.Status)
		require.Equal(t, pipeline.ActionSpeedup, ss.Action)
		require.InDelta(t, 0.0, ss.Incoming["S1"], 1e-9)
	}
}

// TestRunCycle_IdempotentOnResolvedFixpoint checks spec.md §8's idempotence
// property: feeding the crystallized incoming back in as the next cycle's
// input reproduces the same post-cycle snapshot.
func TestRunCycle_IdempotentOnResolvedFixpoint(t *testing.T) {
	p, err := pipeline.NewPipeline(linearChainConfig())
	require.NoError(t, err)

	first, err := p.RunCycle(map[string]map[string][2]float64{
		"Source":      {"S1": {100, 100}},
		"Processor":   {"S1": {100, 100}},
		"Destination": {"S1": {80, 80}},
	})
	require.NoError(t, err)

	nextFlows := make(map[string]map[string][2]float64)
	for _, ss := range first.PostSnapshot.Services {
		nextFlows[ss.Name] = map[string][2]float64{"S1": {ss.Incoming["S1"], ss.Incoming["S1"]}}
	}

	second, err := p.RunCycle(nextFlows)
	require.NoError(t, err)

	for i := range first.PostSnapshot.Services {
		require.Equal(t, first.PostSnapshot.Services[i].Status, second.PostSnapshot.Services[i].Status)
		require.InDelta(t, first.PostSnapshot.Services[i].Incoming["S1"], second.PostSnapshot.Services[i].Incoming["S1"], 1e-6)
	}
}

// TestAllocateCapacity_RoundingLeftover checks that capacity beyond demand
// stays unallocated: every schema's demand is below its capacity, so the
// proportional leftover pass has no unmet demand to serve, the total stays
// within [0, total capacity], and A stays within its current_capacity.
func TestAllocateCapacity_RoundingLeftover(t *testing.T) {
	svc, err := pipeline.NewService("svc", map[string][2]float64{
		"A": {0, 10},
		"B": {0, 10},
		"C": {0, 10},
	})
	require.NoError(t, err)

	svc.SetIncoming("A", 5)
	svc.SetIncoming("B", 1)
	svc.SetIncoming("C", 1)

	allocated := svc.AllocateCapacity()

	var total float64
	for _, v := range allocated {
		total += v
	}
	require.LessOrEqual(t, total, 30.0)
	require.GreaterOrEqual(t, total, 0.0)
	require.LessOrEqual(t, allocated["A"], svc.CurrentCapacity("A"))
}
