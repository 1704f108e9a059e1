package broker

import (
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/gsecret/config"
)

// Builder walks a RootConfig and builds each configured chain against the
// matching registered API plugin.
type Builder struct {
	registry *Registry
}

// NewBuilder returns a Builder that resolves chains against registry.
func NewBuilder(registry *Registry) *Builder {
	return &Builder{registry: registry}
}

// Build constructs every chain in cfg and mounts every registered
// plugin's routes onto mux. It is an error for a ChainConfig to name an
// API with no registered plugin.
func (b *Builder) Build(cfg *config.RootConfig, mux *http.ServeMux) error {
	for _, chainCfg := range cfg.Chains {
		plugin, ok := b.registry.Get(chainCfg.API)
		if !ok {
			return fmt.Errorf("broker: chain %q: no plugin registered for api %q", chainCfg.Name, chainCfg.API)
		}
		if err := plugin.AddChain(chainCfg); err != nil {
			return fmt.Errorf("broker: chain %q: %w", chainCfg.Name, err)
		}
	}

	for _, plugin := range b.registry.All() {
		plugin.MountRoutes(mux)
	}
	return nil
}
