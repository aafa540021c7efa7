package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"seqopt/internal/optimization/space"
)

// ParameterSpec is the wire form of a single search-space parameter,
// shared by YAML presets and the HTTP API.
type ParameterSpec struct {
	Name       string    `yaml:"name" json:"name"`
	Type       string    `yaml:"type" json:"type"`
	Min        float64   `yaml:"min,omitempty" json:"min,omitempty"`
	Max        float64   `yaml:"max,omitempty" json:"max,omitempty"`
	Values     []float64 `yaml:"values,omitempty" json:"values,omitempty"`
	Categories []string  `yaml:"categories,omitempty" json:"categories,omitempty"`
	Encoding   string    `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// Preset is a named, ready-to-run problem definition. Zero fields fall
// back to the service's optimization defaults at submission time.
type Preset struct {
	Name          string                 `yaml:"name"`
	Objective     string                 `yaml:"objective"`
	Space         []ParameterSpec        `yaml:"space,omitempty"`
	Iterations    int                    `yaml:"iterations,omitempty"`
	BatchSize     int                    `yaml:"batch_size,omitempty"`
	InitialPoints int                    `yaml:"initial_points,omitempty"`
	Acquisition   string                 `yaml:"acquisition,omitempty"`
	Kernel        string                 `yaml:"kernel,omitempty"`
	Seed          int64                  `yaml:"seed,omitempty"`
	Context       map[string]interface{} `yaml:"context,omitempty"`
}

// LoadPresets reads a YAML preset file of the form:
//
//	presets:
//	  - name: branin-quick
//	    objective: branin
//	    iterations: 25
func LoadPresets(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing presets file %s: %w", path, err)
	}

	presets := make(map[string]Preset, len(doc.Presets))
	for _, p := range doc.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("presets file %s: preset without a name", path)
		}
		if _, dup := presets[p.Name]; dup {
			return nil, fmt.Errorf("presets file %s: duplicate preset %q", path, p.Name)
		}
		if p.Objective == "" {
			return nil, fmt.Errorf("presets file %s: preset %q has no objective", path, p.Name)
		}
		presets[p.Name] = p
	}
	return presets, nil
}

// BuildSpace turns wire parameter specs into a concrete space.
func BuildSpace(specs []ParameterSpec) (*space.Space, error) {
	params := make([]space.Parameter, 0, len(specs))
	for _, sp := range specs {
		p, err := buildParameter(sp)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return space.New(params...)
}

func buildParameter(sp ParameterSpec) (space.Parameter, error) {
	switch strings.ToLower(sp.Type) {
	case "continuous":
		return space.NewContinuous(sp.Name, sp.Min, sp.Max)
	case "discrete":
		return space.NewDiscrete(sp.Name, sp.Values...)
	case "categorical":
		enc, err := buildEncoding(sp.Encoding)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", sp.Name, err)
		}
		return space.NewCategorical(sp.Name, sp.Categories, enc)
	default:
		return nil, fmt.Errorf("parameter %q: unknown type %q", sp.Name, sp.Type)
	}
}

func buildEncoding(name string) (space.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "onehot", "one-hot":
		return space.OneHot{}, nil
	case "ordinal":
		return space.Ordinal{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}
