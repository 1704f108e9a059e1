// Package broker wires together configured chains and the HTTP surface
// that serves them. It knows nothing about any one API's domain types —
// that lives in packages like secretapi — only the shape every API
// plugin this broker can host must expose.
package broker

import (
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/gsecret/config"
)

// APIPlugin is one API this broker can serve: something that can build a
// chain from config and mount its own HTTP routes onto a shared mux. A
// plugin typically owns a chain.Controller[T] for its own stage type
// internally; broker never needs to know what T is.
type APIPlugin interface {
	// Name identifies the API this plugin serves, matched against a
	// ChainConfig's API field.
	Name() string

	// AddChain builds and registers one configured chain.
	AddChain(cfg config.ChainConfig) error

	// MountRoutes attaches this plugin's HTTP handlers to mux. Called once,
	// after every configured chain for this plugin has been added.
	MountRoutes(mux *http.ServeMux)
}

// Registry is the explicit, main-constructed set of API plugins this
// broker process can build chains for. It replaces the ambient,
// dynamically-imported module table the original implementation used —
// every plugin a deployment can use is registered here, in Go source,
// before any configured chain is built.
type Registry struct {
	plugins map[string]APIPlugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]APIPlugin)}
}

// Register adds a plugin under its own name. It is an error to register
// two plugins with the same name.
func (r *Registry) Register(p APIPlugin) error {
	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("broker: api %q already registered", p.Name())
	}
	r.plugins[p.Name()] = p
	return nil
}

// Get returns the plugin registered under name, if any.
func (r *Registry) Get(name string) (APIPlugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// All returns every registered plugin, in no particular order.
func (r *Registry) All() []APIPlugin {
	out := make([]APIPlugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}
