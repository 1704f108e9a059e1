package secretapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gsecretchain "github.com/GoCodeAlone/gsecret/chain"
	"github.com/GoCodeAlone/gsecret/upstream"
)

const defaultSyncInterval = 30 * time.Second

// bwsClient is one upstream session, scoped to a single principal: its own
// upstream.Client (built from that principal's own bearer token, so two
// callers never share one upstream identity), a kv_translater mapping the
// upstream-facing key to the upstream's own id as syncs observe it, and the
// region this session was opened against.
type bwsClient struct {
	client upstream.Client
	region string

	mu           sync.RWMutex
	kvTranslater map[string]string // key -> id

	stop chan struct{}
}

func newBwsClient(client upstream.Client, region string) *bwsClient {
	return &bwsClient{
		client:       client,
		region:       region,
		kvTranslater: make(map[string]string),
		stop:         make(chan struct{}),
	}
}

func (c *bwsClient) translateKeyToID(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.kvTranslater[key]
	return id, ok
}

func (c *bwsClient) learn(secrets []upstream.Secret) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range secrets {
		c.kvTranslater[s.Key] = s.ID
	}
}

// bwsClientController maps each principal (by TokenID) to its own
// bwsClient, and remembers which region it was opened against. Each
// upstream stage instance builds its own controller for its one region,
// so every client it holds carries that same region and the region check
// in get never fails. A token used through two stage instances gets a
// separate client from each; using one token against two regions is not
// detected.
type bwsClientController struct {
	region  string
	factory func(token Token) (upstream.Client, error)

	mu      sync.Mutex
	clients map[TokenID]*bwsClient
}

func newBwsClientController(region string, factory func(token Token) (upstream.Client, error)) *bwsClientController {
	return &bwsClientController{
		region:  region,
		factory: factory,
		clients: make(map[TokenID]*bwsClient),
	}
}

// get returns the bwsClient for token, building one on first use. onNew, if
// non-nil, is called exactly once per newly built client — the caller uses
// it to start that client's background sync loop.
func (bc *bwsClientController) get(token Token, onNew func(*bwsClient)) (*bwsClient, error) {
	id := token.Derive()

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if c, ok := bc.clients[id]; ok {
		if c.region != bc.region {
			return nil, fmt.Errorf("upstream: token already bound to region %q, this stage serves %q", c.region, bc.region)
		}
		return c, nil
	}

	upstreamClient, err := bc.factory(token)
	if err != nil {
		return nil, fmt.Errorf("upstream: building client: %w", err)
	}
	c := newBwsClient(upstreamClient, bc.region)
	bc.clients[id] = c
	if onNew != nil {
		onNew(c)
	}
	return c, nil
}

// upstreamReadStage resolves secrets against a per-principal upstream
// session, keeping each one's locally synced view fresh via its own
// background loop and fanning out any change it observes as a reverse
// SecretUpdated call scoped to that principal's TokenID.
type upstreamReadStage struct {
	controller   *bwsClientController
	pollInterval time.Duration
	logger       *slog.Logger

	attachOnce sync.Once
	chainRef   *Chain
	index      int
}

func newUpstreamReadStageFromConfig(rawConfig map[string]any) (Stage, error) {
	region, _ := rawConfig["region"].(string)
	if region == "" {
		region = "default"
	}

	interval := defaultSyncInterval
	if v, ok := rawConfig["poll_interval_seconds"]; ok {
		seconds, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("bws_read stage: poll_interval_seconds: %w", err)
		}
		interval = time.Duration(seconds) * time.Second
	}

	factory := func(token Token) (upstream.Client, error) {
		return buildUpstreamClient(rawConfig, token)
	}

	return &upstreamReadStage{
		controller:   newBwsClientController(region, factory),
		pollInterval: interval,
		logger:       slog.Default().With("stage", "bws_read"),
	}, nil
}

// buildUpstreamClient constructs the concrete upstream.Client a config
// block asks for, authenticated as token. "memory: true" selects the
// in-process double used by tests and local development; anything else
// builds a VaultClient using token as the vault token, since each principal
// gets its own upstream session rather than one shared behind the stage.
func buildUpstreamClient(rawConfig map[string]any, token Token) (upstream.Client, error) {
	if memory, _ := rawConfig["memory"].(bool); memory {
		return upstream.NewMemoryClient(), nil
	}

	cfg := upstream.VaultConfig{Token: token.Raw}
	if v, ok := rawConfig["address"].(string); ok {
		cfg.Address = v
	}
	if v, ok := rawConfig["namespace"].(string); ok {
		cfg.Namespace = v
	}
	if v, ok := rawConfig["mount_path"].(string); ok {
		cfg.MountPath = v
	}
	return upstream.NewVaultClient(cfg)
}

func (s *upstreamReadStage) Name() string { return "bws_read" }

// AttachChain records this stage's position in its chain. It is called once
// by the builder immediately after the stage is appended, giving the stage
// a non-owning handle back into the chain each principal's sync loop uses
// to originate reverse propagation — in place of the reference-counted
// stage<->chain cycle a GC-less host language would need.
func (s *upstreamReadStage) AttachChain(c *Chain, index int) {
	s.attachOnce.Do(func() {
		s.chainRef = c
		s.index = index
	})
}

// acquireClient returns token's bwsClient, starting its background sync
// loop the first time this principal is seen.
func (s *upstreamReadStage) acquireClient(token Token) (*bwsClient, error) {
	tokenID := token.Derive()
	return s.controller.get(token, func(c *bwsClient) {
		go s.syncLoop(tokenID, c)
	})
}

func (s *upstreamReadStage) syncLoop(tokenID TokenID, c *bwsClient) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			s.syncOnce(tokenID, c)
		}
	}
}

func (s *upstreamReadStage) syncOnce(tokenID TokenID, c *bwsClient) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	secrets, err := c.client.Sync(ctx)
	if err != nil {
		s.logger.Warn("sync failed", "error", err, "token_id", tokenID)
		return
	}
	if len(secrets) == 0 {
		return
	}
	c.learn(secrets)

	batch := make([]UpdatedSecret, 0, len(secrets))
	for _, u := range secrets {
		converted := convertUpstreamSecret(u)
		idRelation := fmt.Sprintf("%s:id:%s", s.Name(), u.ID)
		keyRelation := fmt.Sprintf("%s:key:%s", s.Name(), u.ID)
		batch = append(batch, UpdatedSecret{
			Secret:         converted,
			APIIDRelation:  &idRelation,
			APIKeyRelation: &keyRelation,
		})
	}
	s.propagateUpdate(ctx, tokenID, batch)
}

func (s *upstreamReadStage) propagateUpdate(ctx context.Context, tokenID TokenID, batch []UpdatedSecret) {
	if s.chainRef == nil || len(batch) == 0 {
		return
	}
	prevExec := gsecretchain.NewReverseExecutor(s.chainRef, s.index)
	stage, ok := prevExec.Next()
	if !ok {
		return
	}
	stage.SecretUpdated(ctx, tokenID, batch, prevExec)
}

func (s *upstreamReadStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	client, err := s.acquireClient(token)
	if err != nil {
		return Err(NewFailure(CodeUpstreamFailure, err.Error()))
	}

	fetched, err := client.client.GetByID(ctx, keyID)
	if err != nil {
		return mapUpstreamError(err)
	}
	if fetched != nil {
		client.learn([]upstream.Secret{*fetched})
		converted := convertUpstreamSecretWithRelation(*fetched, s.Name())
		return Ok(&converted)
	}

	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotFound, fmt.Sprintf("secret %q not found", keyID)))
	}
	return stage.GetSecretID(ctx, keyID, token, next)
}

// GetSecretKey translates key to an upstream id via this principal's
// kv_translater (built up by past syncs and lookups) and, if known, fetches
// it live from upstream rather than only trusting whatever the background
// sync loop has already seen. A key the translater has no mapping for yet
// is forwarded, not treated as a failure.
func (s *upstreamReadStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	client, err := s.acquireClient(token)
	if err != nil {
		return Err(NewFailure(CodeUpstreamFailure, err.Error()))
	}

	if id, ok := client.translateKeyToID(key); ok {
		fetched, err := client.client.GetByID(ctx, id)
		if err != nil {
			return mapUpstreamError(err)
		}
		if fetched != nil {
			converted := convertUpstreamSecretWithRelation(*fetched, s.Name())
			return Ok(&converted)
		}
	}

	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotFound, fmt.Sprintf("secret %q not found", key)))
	}
	return stage.GetSecretKey(ctx, key, token, next)
}

func (s *upstreamReadStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "bws_read stage does not support writes"))
	}
	return stage.WriteSecret(ctx, ws, token, next)
}

func (s *upstreamReadStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, updated, prev)
	}
}

// mapUpstreamError maps an upstream.Client failure to the broker's HTTP
// status taxonomy: unauthorized/rate-limit/transport get their own codes,
// anything else (including a plain, unclassified error) is an internal
// upstream failure.
func mapUpstreamError(err error) Result {
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case upstream.ErrKindUnauthorized:
			return Err(NewFailure(CodeUnauthorized, err.Error()))
		case upstream.ErrKindRateLimit:
			return Err(NewFailure(CodeRateLimitExceeded, err.Error()))
		case upstream.ErrKindTransport:
			return Err(NewFailure(CodeUpstreamUnreachable, err.Error()))
		}
	}
	return Err(NewFailure(CodeUpstreamFailure, err.Error()))
}

// convertUpstreamSecret maps the opaque upstream SDK's Secret into the
// broker's own domain type, for the sync path where no single request
// relation applies.
func convertUpstreamSecret(u upstream.Secret) Secret {
	var rl *RateLimit
	if u.RateLimit != nil {
		rl = &RateLimit{
			Limit:     u.RateLimit.Limit,
			Remaining: u.RateLimit.Remaining,
			Reset:     u.RateLimit.Reset,
		}
	}
	return Secret{KeyID: u.ID, Key: u.Key, Value: u.Value, RateLimit: rl}
}

// convertUpstreamSecretWithRelation is convertUpstreamSecret for the
// request path, where the returned Secret's RateLimit (if any) is stamped
// with the stage+id relation a rate-limiter stage learns buckets from.
func convertUpstreamSecretWithRelation(u upstream.Secret, stageName string) Secret {
	secret := convertUpstreamSecret(u)
	if secret.RateLimit != nil {
		secret.RateLimit.APIRelation = fmt.Sprintf("%s:id:%s", stageName, u.ID)
	}
	return secret
}
