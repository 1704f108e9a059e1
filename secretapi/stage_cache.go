package secretapi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// cacheEntry is a single cached view of a secret, expiring after ttl.
type cacheEntry struct {
	secret    Secret
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// tokenCache holds both lookup directions for a single principal. Every
// successful resolution populates BOTH byKeyID and byKey so a lookup by
// either axis always sees the other's writes — the two maps describe one
// fact (this secret, as last seen for this token) indexed two ways, and
// must never be allowed to disagree about it.
type tokenCache struct {
	mu        sync.Mutex
	byKeyID   map[string]*cacheEntry
	byKey     map[string]*cacheEntry
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		byKeyID: make(map[string]*cacheEntry),
		byKey:   make(map[string]*cacheEntry),
	}
}

// put records s under both indices, keeping the bi-consistency invariant:
// any successful cache write updates both maps, regardless of which axis
// the request that produced it came in on.
func (tc *tokenCache) put(s Secret, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	entry := &cacheEntry{secret: s, expiresAt: expiresAt}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.byKeyID[s.KeyID] = entry
	tc.byKey[s.Key] = entry
}

func (tc *tokenCache) getByKeyID(keyID string) (Secret, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	entry, ok := tc.byKeyID[keyID]
	if !ok {
		return Secret{}, false
	}
	if entry.expired(time.Now()) {
		delete(tc.byKeyID, keyID)
		delete(tc.byKey, entry.secret.Key)
		return Secret{}, false
	}
	return entry.secret, true
}

func (tc *tokenCache) getByKey(key string) (Secret, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	entry, ok := tc.byKey[key]
	if !ok {
		return Secret{}, false
	}
	if entry.expired(time.Now()) {
		delete(tc.byKey, key)
		delete(tc.byKeyID, entry.secret.KeyID)
		return Secret{}, false
	}
	return entry.secret, true
}

// reconcile upserts every secret in batch, then evicts whatever this cache
// held that batch did not mention: cached_ids - incoming_ids and
// cached_keys - incoming_keys. A secret_updated batch is a complete
// snapshot of what its principal's upstream view now contains, so anything
// missing from it is stale.
func (tc *tokenCache) reconcile(batch []UpdatedSecret, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	incomingIDs := make(map[string]bool, len(batch))
	incomingKeys := make(map[string]bool, len(batch))
	for _, u := range batch {
		incomingIDs[u.KeyID] = true
		incomingKeys[u.Key] = true
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	for _, u := range batch {
		entry := &cacheEntry{secret: u.Secret, expiresAt: expiresAt}
		tc.byKeyID[u.KeyID] = entry
		tc.byKey[u.Key] = entry
	}
	for id := range tc.byKeyID {
		if !incomingIDs[id] {
			delete(tc.byKeyID, id)
		}
	}
	for key := range tc.byKey {
		if !incomingKeys[key] {
			delete(tc.byKey, key)
		}
	}
}

// cacheController owns one tokenCache per principal.
type cacheController struct {
	mu     sync.Mutex
	byID   map[TokenID]*tokenCache
	ttl    time.Duration
}

func newCacheController(ttl time.Duration) *cacheController {
	return &cacheController{byID: make(map[TokenID]*tokenCache), ttl: ttl}
}

func (cc *cacheController) cacheFor(id TokenID) *tokenCache {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	tc, ok := cc.byID[id]
	if !ok {
		tc = newTokenCache()
		cc.byID[id] = tc
	}
	return tc
}

// cacheStage is the broker's per-chain read cache. It answers lookups it
// already holds without consulting later stages, and records every
// successful downstream answer so later requests for the same secret (by
// either identifier) hit the cache.
type cacheStage struct {
	controller *cacheController
}

func newCacheStageFromConfig(rawConfig map[string]any) (Stage, error) {
	ttl := 5 * time.Minute
	if v, ok := rawConfig["ttl_seconds"]; ok {
		seconds, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("cache stage: ttl_seconds: %w", err)
		}
		ttl = time.Duration(seconds) * time.Second
	}
	return &cacheStage{controller: newCacheController(ttl)}, nil
}

func (s *cacheStage) Name() string { return "cache" }

func (s *cacheStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	tc := s.controller.cacheFor(token.Derive())
	if secret, ok := tc.getByKeyID(keyID); ok {
		return Ok(&secret)
	}
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by id"))
	}
	result := stage.GetSecretID(ctx, keyID, token, next)
	if !result.IsFailure() && result.Secret != nil {
		tc.put(*result.Secret, s.controller.ttl)
	}
	return result
}

func (s *cacheStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	tc := s.controller.cacheFor(token.Derive())
	if secret, ok := tc.getByKey(key); ok {
		return Ok(&secret)
	}
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by key"))
	}
	result := stage.GetSecretKey(ctx, key, token, next)
	if !result.IsFailure() && result.Secret != nil {
		tc.put(*result.Secret, s.controller.ttl)
	}
	return result
}

func (s *cacheStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to write secret"))
	}
	result := stage.WriteSecret(ctx, ws, token, next)
	if !result.IsFailure() && result.Secret != nil {
		tc := s.controller.cacheFor(token.Derive())
		tc.put(*result.Secret, s.controller.ttl)
	}
	return result
}

func (s *cacheStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	tc := s.controller.cacheFor(tokenID)
	tc.reconcile(updated, s.controller.ttl)

	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, updated, prev)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
