package pipeline

// AssessServiceStatus is the authoritative classification pass of spec.md
// §4.5, run by RunCycle as the cycle driver's step (v) (spec.md §4.7), after
// resolve_overloads (step iv). It is a separate, later pass from the
// allocated-capacity tail resolve_overloads runs on itself (§4.3's "Final
// pass" — see ResolveOverloads' own tail in backpressure.go): this one
// compares against current_capacity, not allocated, and its verdict
// overwrites whatever resolve_overloads' tail set. The crystallized snapshot
// reports it, except for services with a zero-capacity slot, which RunCycle
// then forces to OVERLOADED.
//
// spec.md §4.5:
//   is_overloaded(v)    ⇔ ∃ s: incoming[s] > current_capacity[s]
//   is_underutilized(v) ⇔ ∀ s: incoming[s] < 0.5 × current_capacity[s]
//   otherwise NORMAL.
// Actions mirror status one-to-one (ActionFor).
func (p *Pipeline) AssessServiceStatus() {
	for _, name := range p.graph.Names() {
		svc := p.services[name]

		overloaded := false
		underutilized := true
		for _, schemaName := range svc.schemaOrder {
			st := svc.schemas[schemaName]
			cap := st.currentCapacity
			if st.incoming > cap+epsilon {
				overloaded = true
			}
			if st.incoming >= 0.5*cap-epsilon {
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
