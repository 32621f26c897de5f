package scenario

// Preset returns one of the three named scenarios documented in
// SPEC_FULL.md §10, or the "linear" default for an unknown name. Presets
// exist so the CLI's -scenario=preset:<name> flag and the test suite share
// one source of truth for spec.md §8's example topologies.
func Preset(name string) Scenario {
	switch name {
	case "dual-funnel":
		return dualFunnelPreset()
	case "diamond-cycle":
		return diamondCyclePreset()
	default:
		return linearPreset()
	}
}

// linearPreset is the three-node admission->processor->sink chain of
// spec.md §8 Scenario A: a single schema, no cycles, no overload.
func linearPreset() Scenario {
	return Scenario{
		ServiceFlows: map[string]map[string][2]float64{
			"Ingress":   {"events": {100, 100}},
			"Processor": {"events": {100, 80}},
			"Sink":      {"events": {80, 80}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Ingress":   {"events": {0, 150}},
			"Processor": {"events": {0, 100}},
			"Sink":      {"events": {0, 200}},
		},
		Graph: map[string][]string{
			"Ingress":   {"Processor"},
			"Processor": {"Sink"},
		},
		SchemaPriorities: map[string]int{"events": 1},
		AdmissionPoints:  []string{"Ingress"},
		Sinks:            []string{"Sink"},
	}
}

// dualFunnelPreset exercises spec.md §8 Scenario B: two independent
// admission points feeding one shared downstream processor across two
// schemas with different priorities. Aggregator's clicks demand (120)
// exceeds its clicks capacity (100), so that slot starts overloaded even
// though events leaves spare capacity at the same service.
func dualFunnelPreset() Scenario {
	return Scenario{
		ServiceFlows: map[string]map[string][2]float64{
			"WebIngress":  {"clicks": {120, 100}},
			"APIIngress":  {"events": {90, 80}},
			"Aggregator":  {"clicks": {120, 100}, "events": {90, 70}},
			"Sink":        {"clicks": {100, 100}, "events": {70, 70}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"WebIngress": {"clicks": {0, 150}},
			"APIIngress": {"events": {0, 120}},
			"Aggregator": {"clicks": {0, 100}, "events": {0, 100}},
			"Sink":       {"clicks": {0, 200}, "events": {0, 200}},
		},
		Graph: map[string][]string{
			"WebIngress": {"Aggregator"},
			"APIIngress": {"Aggregator"},
			"Aggregator": {"Sink"},
		},
		SchemaPriorities: map[string]int{"clicks": 2, "events": 1},
		AdmissionPoints:  []string{"WebIngress", "APIIngress"},
		Sinks:            []string{"Sink"},
	}
}

// diamondCyclePreset is spec.md §8 Scenario E's cycle-tolerance graph: the
// Scenario D diamond merge (Source -> Split -> {ProcA, ProcB} -> Merger)
// plus the Merger -> Split back-edge Scenario E adds on top of it, forming
// the SCC {Split, ProcA, ProcB, Merger} the resolver must still terminate
// over within 2|V| iterations without infinite recursion.
func diamondCyclePreset() Scenario {
	return Scenario{
		ServiceFlows: map[string]map[string][2]float64{
			"Source": {"jobs": {200, 200}},
			"Split":  {"jobs": {200, 200}},
			"ProcA":  {"jobs": {100, 60}},
			"ProcB":  {"jobs": {100, 60}},
			"Merger": {"jobs": {120, 120}},
		},
		SchemaCapacities: map[string]map[string][2]float64{
			"Source": {"jobs": {0, 250}},
			"Split":  {"jobs": {0, 250}},
			"ProcA":  {"jobs": {0, 80}},
			"ProcB":  {"jobs": {0, 80}},
			"Merger": {"jobs": {0, 250}},
		},
		Graph: map[string][]string{
			"Source": {"Split"},
			"Split":  {"ProcA", "ProcB"},
			"ProcA":  {"Merger"},
			"ProcB":  {"Merger"},
			"Merger": {"Split"},
		},
		SchemaPriorities: map[string]int{"jobs": 1},
		AdmissionPoints:  []string{"Source"},
		Sinks:            []string{"Merger"},
	}
}
