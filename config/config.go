// Package config defines the gsecret broker's on-disk configuration
// schema: a list of named chains, each built for one API out of an
// ordered list of stage steps.
package config

// RootConfig is the top-level shape of a broker config file.
type RootConfig struct {
	Chains []ChainConfig `json:"chains" yaml:"chains"`
}

// ChainConfig describes one named, built chain: which API it serves and
// which stage kinds, in order, make it up.
type ChainConfig struct {
	API   string       `json:"api" yaml:"api"`
	Name  string       `json:"name" yaml:"name"`
	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// StepConfig is one stage within a chain: the registered stage kind name
// and the raw config block passed to its builder.
type StepConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}
