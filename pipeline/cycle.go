package pipeline

import (
	"fmt"
	"math"
)

// ServiceSnapshot is the per-service slice of a Snapshot: status, action,
// current_capacity, and per-schema (incoming, allocated), per spec.md §6
// "Output snapshot". Values are rounded to two decimals, per spec.md §3.
type ServiceSnapshot struct {
	Name            string
	Status          Status
	Action          Action
	CurrentCapacity map[string]float64
	Incoming        map[string]float64
	Allocated       map[string]float64
}

// Snapshot is the structured record emitted between cycle phases and
// consumed by rendering collaborators (internal/report) and by the CLI,
// which derives telemetry values from it.
// Emitting a Snapshot never mutates Pipeline state (spec.md §5).
type Snapshot struct {
	Phase    string
	Services []ServiceSnapshot
}

// Snapshot captures the Pipeline's current state as a read-only record.
func (p *Pipeline) Snapshot(phase string) Snapshot {
	names := p.graph.Names()
	services := make([]ServiceSnapshot, 0, len(names))

	for _, name := range names {
		svc := p.services[name]
		ss := ServiceSnapshot{
			Name:            name,
			Status:          svc.status,
			Action:          svc.action,
			CurrentCapacity: make(map[string]float64, len(svc.schemaOrder)),
			Incoming:        make(map[string]float64, len(svc.schemaOrder)),
			Allocated:       make(map[string]float64, len(svc.schemaOrder)),
		}
		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			ss.CurrentCapacity[schemaName] = round2(st.currentCapacity)
			ss.Incoming[schemaName] = round2(st.incoming)
			ss.Allocated[schemaName] = round2(st.allocated)
		}
		services = append(services, ss)
	}

	return Snapshot{Phase: phase, Services: services}
}

// round2 rounds v to two decimal places, per spec.md §3 "Reported values
// are rounded to two decimals".
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// OverloadPaths reports, for every currently overloaded (service, schema)
// slot (before resolution runs), the chain of upstream services that feed
// it — the dependency-path report named in spec.md §4.7 step (iii) and
// grounded in original_source/crystal.py's propagate_slowdown /
// print_overload_dependencies_dfs_way / find_all_paths_to_service_dfs
// (SPEC_FULL.md §10). There is one OverloadPath per overloaded slot; its
// Chain lists every distinct upstream service found by walking upstream
// breadth-first from the slot's service, capped at the iteration bound in
// hops.
type OverloadPath struct {
	Service string
	Schema  string
	Ratio   float64
	Chain   []string // upstream services contributing to this slot, nearest first
}

// ReportOverloadPaths computes OverloadPaths for the Pipeline's current
// (pre-resolution) state. It leaves flows, status and action untouched, but
// detecting overloads reallocates every service's capacity, so each
// schema's allocated value is rewritten.
func (p *Pipeline) ReportOverloadPaths() []OverloadPath {
	overloaded := p.calculateOverloads()

	paths := make([]OverloadPath, 0, len(overloaded))
	for _, slot := range overloaded {
		chain := p.upstreamChain(slot.service, p.maxIterations)
		paths = append(paths, OverloadPath{
			Service: slot.service,
			Schema:  slot.schema,
			Ratio:   slot.ratio,
			Chain:   chain,
		})
	}
	return paths
}

// upstreamChain walks upstream from v breadth-first up to limit hops,
// returning every distinct ancestor in discovery order. It never revisits
// a service, so it terminates even on cyclic graphs.
func (p *Pipeline) upstreamChain(v string, limit int) []string {
	visited := map[string]bool{v: true}
	queue := []string{v}
	var chain []string

	for hop := 0; hop < limit && len(queue) > 0; hop++ {
		var next []string
		for _, cur := range queue {
			for _, u := range p.graph.Upstream(cur) {
				if visited[u] {
					continue
				}
				visited[u] = true
				chain = append(chain, u)
				next = append(next, u)
			}
		}
		queue = next
	}

	return chain
}

// checkInvariants validates the core per-schema invariants of spec.md §3
// after a pass: 0 <= allocated <= current_capacity, and
// outgoing <= min(incoming, allocated). A violation is a bug
// (ErrInvariantViolation), fatal to the cycle per spec.md §7.
func (p *Pipeline) checkInvariants() error {
	for _, name := range p.graph.Names() {
		svc := p.services[name]
		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			if st.allocated < -epsilon || st.allocated > st.currentCapacity+epsilon {
				return fmt.Errorf("%w: service %q schema %q allocated=%.6f current_capacity=%.6f",
					ErrInvariantViolation, name, schemaName, st.allocated, st.currentCapacity)
			}
			if st.outgoing > math.Min(st.incoming, st.allocated)+epsilon {
				return fmt.Errorf("%w: service %q schema %q outgoing=%.6f exceeds min(incoming,allocated)",
					ErrInvariantViolation, name, schemaName, st.outgoing)
			}
		}
	}
	return nil
}

// CycleResult is what RunCycle returns: the pre- and post-cycle snapshots,
// the overload-dependency paths observed before resolution, and whether
// either the resolver or the flow propagator hit its iteration cap without
// converging (spec.md §7 ErrNonConvergence — reported, not fatal).
type CycleResult struct {
	PreSnapshot   Snapshot
	OverloadPaths []OverloadPath
	PostSnapshot  Snapshot

	ResolverIterations   int
	ResolverHitCap       bool
	PropagatorIterations int
	PropagatorHitCap     bool

	// ZeroCapacitySlots lists (service, schema) pairs where a schema had
	// current_capacity == 0 with nonzero incoming at the start of the
	// cycle (spec.md §7 ErrZeroCapacity — reported, not fatal).
	ZeroCapacitySlots []OverloadPath
}

// RunCycle drives one full cycle, per spec.md §4.7: install the cycle's
// flows, emit a pre-cycle snapshot, report overload-dependency paths,
// resolve overloads (step iv — ResolveOverloads also runs its own
// allocated-denominator tail pass, spec.md §4.3), propagate flow, then
// classify (step v — AssessServiceStatus, the current_capacity-denominator
// pass of spec.md §4.5, authoritative and run last), and emit the
// crystallized post-cycle snapshot. It returns only on ErrInvariantViolation
// (fatal); ZeroCapacity and NonConvergence are surfaced on the returned
// CycleResult for the caller to log through its own warning channel.
func (p *Pipeline) RunCycle(flows map[string]map[string][2]float64) (*CycleResult, error) {
	p.InstallFlows(flows)

	pre := p.Snapshot("pre-cycle")
	zeroCap := p.detectZeroCapacity()
	overloadPaths := p.ReportOverloadPaths()

	resolverIterations, resolverHitCap := p.ResolveOverloads()

	propagatorIterations, propagatorHitCap := p.PropagateFlow()

	p.AssessServiceStatus()

	// spec.md §7 ErrZeroCapacity: a schema pinned at current_capacity == 0
	// with nonzero incoming at cycle start is left OVERLOADED regardless
	// of what its incoming becomes after the maximal upstream reduction —
	// the node can never serve that schema, so neither classifier's generic
	// incoming-vs-capacity comparison (current_capacity is itself 0, so
	// AssessServiceStatus's own check degenerates the same way the
	// allocated-denominator one did) catches it.
	for _, slot := range zeroCap {
		if svc := p.services[slot.Service]; svc != nil {
			svc.status = StatusOverloaded
			svc.action = ActionFor(StatusOverloaded)
		}
	}

	if err := p.checkInvariants(); err != nil {
		return nil, err
	}

	post := p.Snapshot("crystallized")

	return &CycleResult{
		PreSnapshot:          pre,
		OverloadPaths:        overloadPaths,
		PostSnapshot:         post,
		ResolverIterations:   resolverIterations,
		ResolverHitCap:       resolverHitCap,
		PropagatorIterations: propagatorIterations,
		PropagatorHitCap:     propagatorHitCap,
		ZeroCapacitySlots:    zeroCap,
	}, nil
}

// detectZeroCapacity reports every (service, schema) slot with
// current_capacity == 0 and incoming > 0, per spec.md §7 ErrZeroCapacity.
// The resolver will issue a maximal (100%) reduction upstream for these
// slots and the service remains OVERLOADED; this just surfaces them for
// the caller's warning channel ahead of time.
func (p *Pipeline) detectZeroCapacity() []OverloadPath {
	var slots []OverloadPath
	for _, name := range p.graph.Names() {
		svc := p.services[name]
		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			if st.currentCapacity <= epsilon && st.incoming > epsilon {
				slots = append(slots, OverloadPath{Service: name, Schema: schemaName, Ratio: 1.0})
			}
		}
	}
	return slots
}
