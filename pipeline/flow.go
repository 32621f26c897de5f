package pipeline

import "math"

// ProcessFlow reallocates s's capacity and sets outgoing[s] = min(incoming,
// allocated) for every supported schema, per spec.md §4.4. It returns the
// set of schema names whose outgoing flow changed (beyond epsilon).
func (s *Service) ProcessFlow() []string {
	allocated := s.ReallocateCapacityAcrossSchemas()

	var changed []string
	for _, name := range s.schemaOrder {
		st := s.schemas[name]
		prev := st.outgoing
		next := math.Min(st.incoming, allocated[name])
		st.outgoing = next
		if math.Abs(next-prev) > epsilon {
			changed = append(changed, name)
		}
	}
	return changed
}

// hasNewInput reports whether any supported schema at s currently has
// incoming exceeding outgoing, the propagator's per-node continuation test.
func (s *Service) hasNewInput() bool {
	for _, name := range s.schemaOrder {
		st := s.schemas[name]
		if st.incoming > st.outgoing+epsilon {
			return true
		}
	}
	return false
}

// PropagateFlow walks services in condensation-topological order,
// recomputing outgoing flow under each service's allocator and pushing
// changes to downstream incoming, per spec.md §4.4. Each downstream
// service's share is outgoing / |downstream(v)|, split equally regardless
// of downstream capacity (spec.md §9 open question 2: the spec's operation
// text specifies an equal split; a capacity-weighted alternative is noted
// there but deliberately not implemented, since that would silently change
// spec.md rather than resolve an ambiguity). When a node's outgoing
// changes, its downstream neighbors are marked unprocessed again so they
// are revisited. The walk terminates when every service is processed and
// none has new input, or the iteration cap (2 * |services|) is reached.
//
// It returns the number of iterations run and whether the cap was hit.
func (p *Pipeline) PropagateFlow() (iterations int, hitCap bool) {
	order := p.graph.CondensationOrder()

	processed := make(map[string]bool, len(order))

	for iterations = 0; iterations < p.maxIterations; iterations++ {
		for _, name := range order {
			if processed[name] {
				continue
			}

			svc := p.services[name]
			changed := svc.ProcessFlow()
			processed[name] = true

			if len(changed) == 0 {
				continue
			}

			downstream := p.graph.Downstream(name)
			if len(downstream) == 0 {
				continue
			}

			for _, schemaName := range changed {
				share := svc.Outgoing(schemaName) / float64(len(downstream))
				for _, w := range downstream {
					wsvc := p.services[w]
					if wsvc == nil || !wsvc.SupportsSchema(schemaName) {
						continue
					}
					wsvc.AddIncoming(schemaName, share)
				}
			}

			for _, w := range downstream {
				processed[w] = false
			}
		}

		allDone := true
		for _, name := range order {
			svc := p.services[name]
			if !processed[name] {
				allDone = false
				continue
			}
			if svc.hasNewInput() {
				allDone = false
				processed[name] = false // still has unconsumed input: revisit
			}
		}
		if allDone {
			return iterations + 1, false
		}
	}

	return iterations, true
}
