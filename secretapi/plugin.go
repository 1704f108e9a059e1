package secretapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gsecretchain "github.com/GoCodeAlone/gsecret/chain"
	"github.com/GoCodeAlone/gsecret/config"
)

// Plugin is the gsecret API's broker.APIPlugin: it owns a Controller of
// built chains and the three HTTP handlers that dispatch requests into
// them. It satisfies broker.APIPlugin structurally — this package never
// imports broker, so there is no cycle between "the thing that hosts
// plugins" and "a plugin".
type Plugin struct {
	iface      *Interface
	controller *Controller
	logger     *slog.Logger
}

// NewPlugin returns a Plugin with every built-in stage kind registered
// and ready to build chains from config.
func NewPlugin(logger *slog.Logger) (*Plugin, error) {
	iface, err := NewBuiltinInterface()
	if err != nil {
		return nil, fmt.Errorf("secretapi: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		iface:      iface,
		controller: gsecretchain.NewController[Stage](),
		logger:     logger.With("api", "gsecret"),
	}, nil
}

// Name identifies this plugin to the broker's registry.
func (p *Plugin) Name() string { return "gsecret" }

// AddChain builds cfg's steps against the built-in stage registry and
// registers the resulting chain under cfg.Name.
func (p *Plugin) AddChain(cfg config.ChainConfig) error {
	c := gsecretchain.New[Stage](cfg.Name)
	for i, step := range cfg.Steps {
		stage, err := p.iface.Build(step.Name, step.Config)
		if err != nil {
			return fmt.Errorf("chain %q: step %d (%s): %w", cfg.Name, i, step.Name, err)
		}
		c.Append(stage)
		if aware, ok := stage.(ChainAware); ok {
			aware.AttachChain(c, i)
		}
	}
	if err := p.controller.Register(c); err != nil {
		return fmt.Errorf("chain %q: %w", cfg.Name, err)
	}
	p.logger.Info("chain built", "chain", cfg.Name, "stages", len(cfg.Steps))
	return nil
}

// MountRoutes attaches the gsecret HTTP surface to mux:
//
//	GET  /gsecret/{chain}/key/{key}
//	GET  /gsecret/{chain}/id/{key_id}
//	POST /gsecret/{chain}/write
func (p *Plugin) MountRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /gsecret/{chain}/key/{key}", p.handleGetByKey)
	mux.HandleFunc("GET /gsecret/{chain}/id/{key_id}", p.handleGetByID)
	mux.HandleFunc("POST /gsecret/{chain}/write", p.handleWrite)
}

func (p *Plugin) authenticate(r *http.Request) (Token, bool) {
	return TokenFromHeader(r.Header.Get("Authorization"))
}

func (p *Plugin) executorFor(w http.ResponseWriter, r *http.Request) (ForwardExec, bool) {
	chainName := r.PathValue("chain")
	exec, err := p.controller.Executor(chainName)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("chain %q not found", chainName))
		return nil, false
	}
	return exec, true
}

func (p *Plugin) handleGetByKey(w http.ResponseWriter, r *http.Request) {
	token, ok := p.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	exec, ok := p.executorFor(w, r)
	if !ok {
		return
	}
	stage, ok := exec.Next()
	if !ok {
		writeError(w, http.StatusNotFound, "chain has no stages")
		return
	}
	result := stage.GetSecretKey(r.Context(), r.PathValue("key"), token, exec)
	writeResult(w, result)
}

func (p *Plugin) handleGetByID(w http.ResponseWriter, r *http.Request) {
	token, ok := p.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	exec, ok := p.executorFor(w, r)
	if !ok {
		return
	}
	stage, ok := exec.Next()
	if !ok {
		writeError(w, http.StatusNotFound, "chain has no stages")
		return
	}
	result := stage.GetSecretID(r.Context(), r.PathValue("key_id"), token, exec)
	writeResult(w, result)
}

func (p *Plugin) handleWrite(w http.ResponseWriter, r *http.Request) {
	token, ok := p.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	exec, ok := p.executorFor(w, r)
	if !ok {
		return
	}

	var ws WriteSecret
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request body: %v", err))
		return
	}

	stage, ok := exec.Next()
	if !ok {
		writeError(w, http.StatusNotFound, "chain has no stages")
		return
	}
	result := stage.WriteSecret(r.Context(), ws, token, exec)
	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result Result) {
	if result.IsFailure() {
		writeError(w, result.Failure.Code, result.Failure.Reason)
		return
	}
	writeJSON(w, http.StatusOK, result.Secret)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
