package pipeline

import (
	"fmt"
	"sort"
)

// Pipeline owns the Schema registry, the Service map, and the Graph for
// the process lifetime. It is the sole owner of Schemas and Services;
// Services hold back-references to schema names only, never to the
// registry or to each other (spec.md §3 "Ownership").
type Pipeline struct {
	schemas  *SchemaRegistry
	services map[string]*Service
	graph    *Graph

	maxIterations int
}

// Config is the input configuration for building a Pipeline, matching
// spec.md §6 "Input configuration" and SPEC_FULL.md §6's scenario.Scenario.
type Config struct {
	// ServiceFlows maps service name -> schema name -> (incoming, outgoing).
	ServiceFlows map[string]map[string][2]float64
	// SchemaCapacities maps service name -> schema name -> (min, max).
	SchemaCapacities map[string]map[string][2]float64
	// Graph maps service name -> ordered downstream service names.
	Graph map[string][]string
	// SchemaPriorities maps schema name -> positive integer priority.
	SchemaPriorities map[string]int
	// AdmissionPoints and Sinks optionally mark ServiceKind for named
	// services (spec.md §9 "Polymorphic service naming" redesign: this is
	// the only place names drive behavior, and only at construction).
	AdmissionPoints []string
	Sinks           []string
}

// NewPipeline validates cfg and constructs a Pipeline. Validation follows
// spec.md §6: every schema mentioned in a service's flows must appear in
// its capacity map and in SchemaPriorities; every downstream name must be
// a declared service. The built Pipeline starts with cfg.ServiceFlows
// installed as its incoming/outgoing flows.
func NewPipeline(cfg Config) (*Pipeline, error) {
	registry, err := NewSchemaRegistry(cfg.SchemaPriorities)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.SchemaCapacities))
	for name := range cfg.SchemaCapacities {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]*Service, len(names))
	for _, name := range names {
		svc, err := NewService(name, cfg.SchemaCapacities[name])
		if err != nil {
			return nil, err
		}
		services[name] = svc
	}

	for svcName, flows := range cfg.ServiceFlows {
		svc, ok := services[svcName]
		if !ok {
			return nil, fmt.Errorf("%w: service %q has flows but no capacity map", ErrConfigInvalid, svcName)
		}
		for schemaName, io := range flows {
			if !registry.Has(schemaName) {
				return nil, fmt.Errorf("%w: service %q schema %q missing from schema priorities", ErrConfigInvalid, svcName, schemaName)
			}
			if !svc.SupportsSchema(schemaName) {
				return nil, fmt.Errorf("%w: service %q schema %q missing from capacity map", ErrConfigInvalid, svcName, schemaName)
			}
			if io[0] < 0 || io[1] < 0 {
				return nil, fmt.Errorf("%w: service %q schema %q has negative flow", ErrConfigInvalid, svcName, schemaName)
			}
		}
	}

	for from, downstream := range cfg.Graph {
		if _, ok := services[from]; !ok {
			return nil, fmt.Errorf("%w: graph references undeclared service %q", ErrConfigInvalid, from)
		}
		for _, to := range downstream {
			if _, ok := services[to]; !ok {
				return nil, fmt.Errorf("%w: graph edge %s->%s references undeclared service %q", ErrConfigInvalid, from, to, to)
			}
		}
	}

	for _, n := range cfg.AdmissionPoints {
		if svc, ok := services[n]; ok {
			svc.SetKind(KindAdmissionPoint)
		}
	}
	for _, n := range cfg.Sinks {
		if svc, ok := services[n]; ok {
			svc.SetKind(KindSink)
		}
	}

	g := NewGraph(names, cfg.Graph)

	p := &Pipeline{
		schemas:       registry,
		services:      services,
		graph:         g,
		maxIterations: 2 * len(services),
	}
	p.InstallFlows(cfg.ServiceFlows)

	return p, nil
}

// Service returns the named service, or nil if unknown.
func (p *Pipeline) Service(name string) *Service { return p.services[name] }

// ServiceNames returns all service names in the Graph's deterministic
// insertion order.
func (p *Pipeline) ServiceNames() []string { return p.graph.Names() }

// Graph returns the Pipeline's Graph.
func (p *Pipeline) Graph() *Graph { return p.graph }

// Schemas returns the Pipeline's SchemaRegistry.
func (p *Pipeline) Schemas() *SchemaRegistry { return p.schemas }

// InstallFlows overwrites every named service's incoming/outgoing flow for
// the schemas present in flows, the first step of a cycle (spec.md §4.7
// step (i)).
func (p *Pipeline) InstallFlows(flows map[string]map[string][2]float64) {
	for svcName, bySchema := range flows {
		svc, ok := p.services[svcName]
		if !ok {
			continue
		}
		for schemaName, io := range bySchema {
			svc.SetIncoming(schemaName, io[0])
			svc.SetOutgoing(schemaName, io[1])
		}
	}
}
