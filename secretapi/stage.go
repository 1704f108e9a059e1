package secretapi

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/gsecret/chain"
)

// ForwardExec is the handle a stage receives to forward a request it
// cannot answer itself to the next stage in the chain.
type ForwardExec = *chain.ForwardExecutor[Stage]

// ReverseExec is the handle a stage receives to propagate an update it
// does not own back towards the stages before it in the chain.
type ReverseExec = *chain.ReverseExecutor[Stage]

// Stage is the contract every gsecret pipeline stage implements: three
// forward (client-initiated) operations and one reverse (upstream-initiated)
// operation. A stage that cannot answer an operation locally calls
// next.Next() and, if ok, delegates to the returned stage.
type Stage interface {
	// Name identifies the stage kind for logging and error messages.
	Name() string

	// GetSecretID resolves a secret by the identifier the upstream store
	// assigned to it.
	GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result

	// GetSecretKey resolves a secret by its upstream-facing key.
	GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result

	// WriteSecret creates or updates a secret's value.
	WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result

	// SecretUpdated is called when a batch of secrets changes upstream for
	// a single principal, so that stages earlier in the chain (caches,
	// etc.) can invalidate or refresh their own view of them. The batch is
	// scoped to tokenID: a stage reconciling per-principal state must never
	// let one principal's update touch another's. It has no return value,
	// so nothing that goes wrong in the reverse chain is surfaced to the
	// originating caller.
	SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec)
}

// ChainAware is implemented by stages that need to know their own position
// within a built chain — typically so a background process they own can
// originate reverse propagation towards the stages before them. The
// builder calls AttachChain once, immediately after appending the stage,
// giving it a borrowed, non-owning handle back into the chain rather than
// a reference-counted cycle.
type ChainAware interface {
	AttachChain(c *Chain, index int)
}

// Chain, Controller and Interface are this package's instantiations of the
// generic chain runtime over Stage.
type (
	Chain      = chain.Chain[Stage]
	Controller = chain.Controller[Stage]
	Interface  = chain.Interface[Stage]
)

// NewBuiltinInterface returns an Interface with every stage kind this
// broker ships registered under its config-file name. It is built fresh
// (not held as a package-level global) so the set of buildable stage
// kinds is always an explicit value owned by whoever built it (NewPlugin),
// never ambient state.
func NewBuiltinInterface() (*Interface, error) {
	iface := chain.NewInterface[Stage]("gsecret")

	builders := map[string]chain.StageBuilder[Stage]{
		"cache":        newCacheStageFromConfig,
		"rate_limiter": newRateLimiterStageFromConfig,
		"generator":    newGeneratorStageFromConfig,
		"parse_secret": newParseSecretStageFromConfig,
		"bws_read":     newUpstreamReadStageFromConfig,
		"bws_write":    newUpstreamWriteStageFromConfig,
	}
	for kind, builder := range builders {
		if err := iface.Register(kind, builder); err != nil {
			return nil, fmt.Errorf("building gsecret interface: %w", err)
		}
	}
	return iface, nil
}
