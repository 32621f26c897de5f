package pipeline

import (
	"math"
	"sort"
)

// ApplyBackpressure is the "max-seen-wins" acceptance rule of spec.md §4.2.
// If the service has not yet been visited for schema in the current
// fixpoint iteration, or the proposed reduction exceeds the stored
// reduction factor, the reduction is accepted and incoming is cut by
// reductionPercentage; otherwise nothing changes and 0 is returned. This
// guarantees the fixpoint does not oscillate from revisiting the same node
// with a smaller reduction than it already saw this iteration.
func (s *Service) ApplyBackpressure(schema string, reductionPercentage float64) float64 {
	st := s.state(schema)
	if st == nil {
		return 0
	}

	if st.visited && reductionPercentage <= st.reductionFactor+epsilon {
		return 0
	}

	st.visited = true
	st.reductionFactor = reductionPercentage

	original := st.incoming
	updated := math.Max(0, original*(1-reductionPercentage))
	st.incoming = updated

	if original <= epsilon {
		return 0
	}
	return (original - updated) / original
}

// overloadedSlot is one overloaded (service, schema) pair with its overload
// ratio, computed by calculateOverloads.
type overloadedSlot struct {
	service string
	schema  string
	ratio   float64
}

// calculateOverloads reallocates every service's capacity across its
// schemas, then reports every (service, schema) slot where incoming still
// exceeds allocated, sorted by (service name, schema name) per spec.md §5's
// reproducibility requirement.
func (p *Pipeline) calculateOverloads() []overloadedSlot {
	var slots []overloadedSlot

	for _, name := range p.graph.Names() {
		svc := p.services[name]
		allocated := svc.ReallocateCapacityAcrossSchemas()

		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			inc := st.incoming
			alloc := allocated[schemaName]
			if inc > alloc+epsilon {
				ratio := (inc - alloc) / inc
				slots = append(slots, overloadedSlot{service: name, schema: schemaName, ratio: ratio})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].service != slots[j].service {
			return slots[i].service < slots[j].service
		}
		return slots[i].schema < slots[j].schema
	})

	return slots
}

// propagateBackpressure applies reductionPercentage to schema's incoming at
// service v, then — if any reduction was actually accepted — recurses
// upstream with the actual reduction achieved, unchanged, per spec.md §4.3
// step 4. Traversal is per-schema and upstream-only; cycles are broken by
// the visited flag ApplyBackpressure consults.
func (p *Pipeline) propagateBackpressure(v, schema string, reductionPercentage float64) {
	svc, ok := p.services[v]
	if !ok {
		return
	}

	actual := svc.ApplyBackpressure(schema, reductionPercentage)
	if actual <= epsilon {
		return
	}

	for _, u := range p.graph.Upstream(v) {
		p.propagateBackpressure(u, schema, actual)
	}
}

// ResolveOverloads runs the backpressure fixpoint of spec.md §4.3: detect
// overloaded (service, schema) slots, reset visitation bookkeeping, push
// reductions upstream, and repeat until no slot is overloaded or the
// iteration cap (2 * |services|) is reached. It returns the number of
// iterations actually run and whether the cap was hit (ErrNonConvergence
// territory — reported by the caller, not returned as an error here, per
// spec.md §7's propagation policy).
func (p *Pipeline) ResolveOverloads() (iterations int, hitCap bool) {
	for iterations = 0; iterations < p.maxIterations; iterations++ {
		overloaded := p.calculateOverloads()
		if len(overloaded) == 0 {
			p.finalizeResolverTail()
			return iterations, false
		}

		for _, svc := range p.services {
			svc.resetCycleState()
		}

		for _, slot := range overloaded {
			p.propagateBackpressure(slot.service, slot.schema, slot.ratio)
		}
	}

	p.finalizeResolverTail()
	return iterations, true
}

// finalizeResolverTail is resolve_overloads' own tail pass (spec.md §4.3
// "Final pass"): reallocate once more per service, then set status/action
// from the allocated-capacity-denominator overloaded set. This verdict is
// provisional — AssessServiceStatus (classify.go, spec.md §4.5) runs
// afterward in RunCycle, compares against current_capacity instead, and is
// the authoritative classification the crystallized snapshot reports.
func (p *Pipeline) finalizeResolverTail() {
	for _, name := range p.graph.Names() {
		svc := p.services[name]
		allocated := svc.ReallocateCapacityAcrossSchemas()

		overloaded := false
		underutilized := true
		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			alloc := allocated[schemaName]
			if st.incoming > alloc+epsilon {
				overloaded = true
			}
			if st.incoming >= 0.5*alloc-epsilon {
				underutilized = false
			}
		}

		switch {
		case overloaded:
			svc.status = StatusOverloaded
		case underutilized:
			svc.status = StatusUnderutilized
		default:
			svc.status = StatusNormal
		}
		svc.action = ActionFor(svc.status)
	}
}
