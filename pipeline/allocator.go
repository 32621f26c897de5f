package pipeline

import (
	"math"
	"sort"
)

// epsilon is the tolerance used for flow/capacity equality comparisons,
// per spec.md §3 "Numeric semantics".
const epsilon = 1e-9

// AllocateCapacity partitions current_capacity across s's supported
// schemas: demand is met first, then leftover capacity is distributed to
// unsatisfied schemas proportionally to their unmet demand. Integer
// truncation in the proportional pass (spec.md §4.1 step 2, §9.4) is
// intentional and deterministic; small remainders may go permanently
// unallocated. Every share is capped at the schema's remaining room under
// its own current_capacity, so a schema whose demand exceeds its
// current_capacity (the only kind with unmet demand) gets no leftover.
func (s *Service) AllocateCapacity() map[string]float64 {
	allocated := make(map[string]float64, len(s.schemaOrder))
	needed := make(map[string]float64, len(s.schemaOrder))

	var totalCap, totalNeeded float64
	for _, name := range s.schemaOrder {
		st := s.schemas[name]
		totalCap += st.currentCapacity
		n := math.Min(st.incoming, st.currentCapacity)
		needed[name] = n
		totalNeeded += n
	}

	remaining := totalCap - totalNeeded

	for _, name := range s.schemaOrder {
		allocated[name] = needed[name]
	}

	if remaining > epsilon {
		var totalUnfulfilled float64
		unfulfilled := make(map[string]float64, len(s.schemaOrder))
		for _, name := range s.schemaOrder {
			st := s.schemas[name]
			u := math.Max(0, st.incoming-allocated[name])
			unfulfilled[name] = u
			totalUnfulfilled += u
		}

		if totalUnfulfilled > epsilon {
			for _, name := range s.schemaOrder {
				u := unfulfilled[name]
				if u <= 0 {
					continue
				}
				// Integer truncation is intentional (spec.md §4.1, §9.4):
				// a schema never receives more than its proportional,
				// floor-truncated share of the leftover pool, nor more
				// than its own current_capacity.
				share := math.Floor(remaining * (u / totalUnfulfilled))
				room := s.schemas[name].currentCapacity - allocated[name]
				if share > room {
					share = math.Max(0, room)
				}
				allocated[name] += share
				remaining -= share
			}
		}
	}

	for _, name := range s.schemaOrder {
		s.schemas[name].allocated = allocated[name]
	}

	return allocated
}

// ReallocateCapacityAcrossSchemas resets the baseline allocation via
// AllocateCapacity, then — if total incoming exceeds total allocated —
// redistributes spare capacity from over-served schemas to under-served
// ones, highest-incoming schema first (ties broken by ascending schema
// name for determinism), never exceeding any schema's own current_capacity.
func (s *Service) ReallocateCapacityAcrossSchemas() map[string]float64 {
	allocated := s.AllocateCapacity()

	var totalIncoming, totalAllocated float64
	for _, name := range s.schemaOrder {
		totalIncoming += s.schemas[name].incoming
		totalAllocated += allocated[name]
	}

	if totalIncoming <= totalAllocated+epsilon {
		return allocated
	}

	order := make([]string, len(s.schemaOrder))
	copy(order, s.schemaOrder)
	sort.Slice(order, func(i, j int) bool {
		si, sj := s.schemas[order[i]], s.schemas[order[j]]
		if math.Abs(si.incoming-sj.incoming) > epsilon {
			return si.incoming > sj.incoming
		}
		return order[i] < order[j]
	})

	var totalExcess float64
	for _, name := range order {
		totalExcess += math.Max(0, allocated[name]-s.schemas[name].incoming)
	}

	deficits := make(map[string]float64, len(order))
	for _, name := range order {
		st := s.schemas[name]
		deficit := st.incoming - allocated[name]
		if deficit <= 0 {
			continue
		}
		deficits[name] = deficit

		move := math.Min(deficit, totalExcess)
		if move <= 0 {
			continue
		}
		allocated[name] += move
		totalExcess -= move
		deficits[name] -= move
	}

	if totalExcess > epsilon {
		var totalRemainingDeficit float64
		for _, d := range deficits {
			if d > 0 {
				totalRemainingDeficit += d
			}
		}
		if totalRemainingDeficit > epsilon {
			for _, name := range order {
				d := deficits[name]
				if d <= 0 {
					continue
				}
				st := s.schemas[name]
				share := math.Floor(totalExcess * (d / totalRemainingDeficit))
				room := st.currentCapacity - allocated[name]
				if share > room {
					share = math.Max(0, room)
				}
				allocated[name] += share
				totalExcess -= share
			}
		}
	}

	for _, name := range s.schemaOrder {
		s.schemas[name].allocated = allocated[name]
	}

	return allocated
}
