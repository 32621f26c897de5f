package pipeline

import (
	"fmt"
	"sort"
)

// Status classifies a Service at the end of a cycle.
type Status int

const (
	// StatusNormal indicates the service is neither overloaded nor
	// underutilized.
	StatusNormal Status = iota
	// StatusOverloaded indicates at least one schema's incoming exceeds its
	// capacity: allocated capacity in ResolveOverloads' tail pass,
	// current_capacity in AssessServiceStatus.
	StatusOverloaded
	// StatusUnderutilized indicates every schema's incoming is below half
	// of its capacity (allocated or current_capacity, by the same split).
	StatusUnderutilized
)

// String renders the Status the way Snapshot fields are reported.
func (s Status) String() string {
	switch s {
	case StatusOverloaded:
		return "OVERLOADED"
	case StatusUnderutilized:
		return "UNDERUTILIZED"
	default:
		return "NORMAL"
	}
}

// Action is the remedial action paired one-to-one with Status.
type Action int

const (
	// ActionNone pairs with StatusNormal.
	ActionNone Action = iota
	// ActionSpeedup pairs with StatusUnderutilized.
	ActionSpeedup
	// ActionSlowdown pairs with StatusOverloaded.
	ActionSlowdown
)

// String renders the Action the way Snapshot fields are reported.
func (a Action) String() string {
	switch a {
	case ActionSpeedup:
		return "SPEEDUP"
	case ActionSlowdown:
		return "SLOWDOWN"
	default:
		return "NO_ACTION"
	}
}

// ActionFor derives the Action that must accompany a Status. Status and
// Action are always produced together by the classifier (see classify.go);
// this helper exists so the one-to-one coupling (spec invariant: Status/
// Action consistency) lives in exactly one place.
func ActionFor(s Status) Action {
	switch s {
	case StatusOverloaded:
		return ActionSlowdown
	case StatusUnderutilized:
		return ActionSpeedup
	default:
		return ActionNone
	}
}

// ServiceKind is a capability flag distinguishing how a service
// participates in the pipeline. It replaces any name-prefix convention for
// identifying special nodes (e.g. sinks/admission points): semantics are
// never inferred from Service.Name.
type ServiceKind int

const (
	// KindRelay is an ordinary forwarding service (the common case).
	KindRelay ServiceKind = iota
	// KindSink marks a terminal service with no outgoing edges by design.
	KindSink
	// KindAdmissionPoint marks a service that originates traffic (a source).
	KindAdmissionPoint
)

// capacityBand is the (min, max) envelope for one schema's current_capacity
// at a service. current_capacity always stays within [min, max].
type capacityBand struct {
	min, max float64
}

// schemaState holds all per-schema mutable state for one Service. Fields
// split along the persistent/per-cycle line noted in spec.md §9: band and
// membership are set at construction; the rest is rewritten every cycle.
type schemaState struct {
	band capacityBand

	currentCapacity  float64
	incoming         float64
	outgoing         float64
	allocated        float64
	visited          bool    // per-iteration backpressure visitation flag
	reductionFactor  float64 // max-seen-wins backpressure reduction in [0,1]
}

// Service is one node of the pipeline graph. It owns the per-schema
// capacity bands it supports and the per-cycle flow/allocation state for
// each. Services never reference each other directly; the Graph relates
// them by name.
type Service struct {
	name   string
	kind   ServiceKind
	schemas map[string]*schemaState

	// schemaOrder is the supported schema names, sorted by name at
	// construction, so iteration that must be deterministic but does not
	// otherwise need sorting (e.g. diagnostics) has a stable base.
	schemaOrder []string

	status Status
	action Action
}

// NewService constructs a Service supporting the given schemas, with the
// per-schema capacity band (min, max). current_capacity is initialized to
// max, per spec.md §3. Bands with min > max are rejected.
func NewService(name string, bands map[string][2]float64) (*Service, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: service name is empty", ErrConfigInvalid)
	}

	svc := &Service{
		name:    name,
		kind:    KindRelay,
		schemas: make(map[string]*schemaState, len(bands)),
	}

	schemaNames := make([]string, 0, len(bands))
	for schemaName := range bands {
		schemaNames = append(schemaNames, schemaName)
	}
	sort.Strings(schemaNames)

	for _, schemaName := range schemaNames {
		minMax := bands[schemaName]
		min, max := minMax[0], minMax[1]
		if min < 0 || max < 0 {
			return nil, fmt.Errorf("%w: service %q schema %q has negative capacity bound", ErrConfigInvalid, name, schemaName)
		}
		if min > max {
			return nil, fmt.Errorf("%w: service %q schema %q min %.4f > max %.4f", ErrConfigInvalid, name, schemaName, min, max)
		}
		svc.schemas[schemaName] = &schemaState{
			band:            capacityBand{min: min, max: max},
			currentCapacity: max,
		}
		svc.schemaOrder = append(svc.schemaOrder, schemaName)
	}

	return svc, nil
}

// Name returns the service's identifier.
func (s *Service) Name() string { return s.name }

// Kind returns the service's capability flag.
func (s *Service) Kind() ServiceKind { return s.kind }

// SetKind sets the capability flag. Construction-time only; cycles never
// change it.
func (s *Service) SetKind(k ServiceKind) { s.kind = k }

// SupportsSchema reports whether s has a declared capacity band for schema.
func (s *Service) SupportsSchema(schema string) bool {
	_, ok := s.schemas[schema]
	return ok
}

// SchemaNames returns the service's supported schema names, sorted by name.
func (s *Service) SchemaNames() []string {
	out := make([]string, len(s.schemaOrder))
	copy(out, s.schemaOrder)
	return out
}

// state looks up a schema's mutable state, or nil if unsupported.
func (s *Service) state(schema string) *schemaState { return s.schemas[schema] }

// Incoming returns the current incoming flow for schema (0 if unsupported).
func (s *Service) Incoming(schema string) float64 {
	if st := s.state(schema); st != nil {
		return st.incoming
	}
	return 0
}

// SetIncoming installs schema's incoming flow directly (used by the cycle
// driver to install a cycle's input map, and by the flow propagator).
func (s *Service) SetIncoming(schema string, v float64) {
	if st := s.state(schema); st != nil {
		st.incoming = v
	}
}

// AddIncoming adds delta to schema's incoming flow, never below zero.
func (s *Service) AddIncoming(schema string, delta float64) {
	if st := s.state(schema); st != nil {
		st.incoming = max0(st.incoming + delta)
	}
}

// Outgoing returns the current outgoing flow for schema.
func (s *Service) Outgoing(schema string) float64 {
	if st := s.state(schema); st != nil {
		return st.outgoing
	}
	return 0
}

// SetOutgoing installs schema's outgoing flow directly.
func (s *Service) SetOutgoing(schema string, v float64) {
	if st := s.state(schema); st != nil {
		st.outgoing = v
	}
}

// Allocated returns the capacity currently allocated to schema.
func (s *Service) Allocated(schema string) float64 {
	if st := s.state(schema); st != nil {
		return st.allocated
	}
	return 0
}

// CurrentCapacity returns schema's current_capacity.
func (s *Service) CurrentCapacity(schema string) float64 {
	if st := s.state(schema); st != nil {
		return st.currentCapacity
	}
	return 0
}

// SetCurrentCapacity clamps v into schema's [min, max] band and installs it.
func (s *Service) SetCurrentCapacity(schema string, v float64) {
	st := s.state(schema)
	if st == nil {
		return
	}
	if v < st.band.min {
		v = st.band.min
	}
	if v > st.band.max {
		v = st.band.max
	}
	st.currentCapacity = v
}

// Status returns the service's status from the last classification pass.
func (s *Service) Status() Status { return s.status }

// Action returns the service's action from the last classification pass.
func (s *Service) Action() Action { return s.action }

// resetCycleState clears per-cycle visited/reduction bookkeeping for every
// supported schema. Called once per fixpoint iteration by the resolver
// (spec.md §4.3 step 3), not once per cycle: the fixpoint resets it on
// every pass so max-seen-wins operates within a single iteration's scope.
func (s *Service) resetCycleState() {
	for _, st := range s.schemas {
		st.visited = false
		st.reductionFactor = 0
	}
}

// max0 clamps a float to be non-negative.
func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
