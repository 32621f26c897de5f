// Package scenario loads a cycle's four input maps (spec.md §6 "Input
// configuration") from a YAML file, THROTTLEPIPE_-prefixed environment
// variables, or a built-in default/preset, layered with koanf.
//
// Grounded on Hola-to-network_logistics_problem/pkg/config/loader.go: the
// same defaults -> file -> env layering order (env wins), the same
// koanf.New(".") + providers/confmap + providers/file + providers/env +
// parsers/yaml stack, reduced to the fields this domain needs.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

const envPrefix = "THROTTLEPIPE_"

// Scenario is the YAML-tagged decode target for one cycle's input
// configuration, mirroring pipeline.Config exactly (spec.md §6).
//
// koanf tags avoid underscores within a segment name: the env layer
// converts THROTTLEPIPE_ prefixed vars by lowercasing and turning every
// remaining "_" into a ".", so a segment containing its own underscore
// (e.g. "service_flows") would be indistinguishable from a nested path
// (e.g. "service.flows") — grounded on
// Hola-to-network_logistics_problem/pkg/config/loader.go's loadEnv, which
// has the same constraint and avoids it the same way.
type Scenario struct {
	ServiceFlows     map[string]map[string][2]float64 `koanf:"serviceflows"`
	SchemaCapacities map[string]map[string][2]float64 `koanf:"schemacapacities"`
	Graph            map[string][]string              `koanf:"graph"`
	SchemaPriorities map[string]int                    `koanf:"schemapriorities"`
	AdmissionPoints  []string                          `koanf:"admissionpoints"`
	Sinks            []string                          `koanf:"sinks"`
}

// ToConfig converts a decoded Scenario into a pipeline.Config.
func (sc Scenario) ToConfig() pipeline.Config {
	return pipeline.Config{
		ServiceFlows:     sc.ServiceFlows,
		SchemaCapacities: sc.SchemaCapacities,
		Graph:            sc.Graph,
		SchemaPriorities: sc.SchemaPriorities,
		AdmissionPoints:  sc.AdmissionPoints,
		Sinks:            sc.Sinks,
	}
}

// Loader layers a default Scenario, an optional YAML file, and environment
// variables, in that priority order (env wins), per spec.md §6 "empty
// input selects sensible defaults".
type Loader struct {
	k          *koanf.Koanf
	configPath string
	defaults   Scenario
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPath sets the YAML file to read, if present. A missing file is
// not an error: the loader falls back to defaults and environment overrides.
func WithConfigPath(path string) LoaderOption {
	return func(l *Loader) { l.configPath = path }
}

// WithDefaults overrides the built-in default scenario (Preset("linear")).
func WithDefaults(s Scenario) LoaderOption {
	return func(l *Loader) { l.defaults = s }
}

// NewLoader builds a Loader defaulting to the "linear" preset.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:        koanf.New("."),
		defaults: Preset("linear"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load produces a Scenario by layering defaults, the optional config file,
// and environment variables (highest priority), then validates it against
// the Pipeline constructor's rules by attempting a trial build.
func (l *Loader) Load() (Scenario, error) {
	defaultsMap := map[string]any{
		"serviceflows":     l.defaults.ServiceFlows,
		"schemacapacities": l.defaults.SchemaCapacities,
		"graph":            l.defaults.Graph,
		"schemapriorities": l.defaults.SchemaPriorities,
		"admissionpoints":  l.defaults.AdmissionPoints,
		"sinks":            l.defaults.Sinks,
	}
	if err := l.k.Load(confmap.Provider(defaultsMap, "."), nil); err != nil {
		return Scenario{}, fmt.Errorf("scenario: load defaults: %w", err)
	}

	if l.configPath != "" {
		if _, statErr := os.Stat(l.configPath); statErr == nil {
			if err := l.k.Load(file.Provider(l.configPath), yaml.Parser()); err != nil {
				return Scenario{}, fmt.Errorf("scenario: load file %q: %w", l.configPath, err)
			}
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return Scenario{}, fmt.Errorf("scenario: stat file %q: %w", l.configPath, statErr)
		}
	}

	// THROTTLEPIPE_SCHEMAPRIORITIES_JOBS -> schemapriorities.jobs
	envTransform := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}
	if err := l.k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return Scenario{}, fmt.Errorf("scenario: load env: %w", err)
	}

	var sc Scenario
	if err := l.k.Unmarshal("", &sc); err != nil {
		return Scenario{}, fmt.Errorf("scenario: unmarshal: %w", err)
	}

	if _, err := pipeline.NewPipeline(sc.ToConfig()); err != nil {
		return Scenario{}, err
	}

	return sc, nil
}
