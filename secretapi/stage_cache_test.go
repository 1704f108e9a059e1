package secretapi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gsecretchain "github.com/GoCodeAlone/gsecret/chain"
	"github.com/GoCodeAlone/gsecret/secretapi"
)

// terminalStage always resolves a fixed secret, for use as the last stage
// in a test chain.
type terminalStage struct {
	secret secretapi.Secret
}

func (t *terminalStage) Name() string { return "terminal" }

func (t *terminalStage) GetSecretID(_ context.Context, _ string, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	s := t.secret
	return secretapi.Ok(&s)
}

func (t *terminalStage) GetSecretKey(_ context.Context, _ string, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	s := t.secret
	return secretapi.Ok(&s)
}

func (t *terminalStage) WriteSecret(_ context.Context, ws secretapi.WriteSecret, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	s := secretapi.Secret{KeyID: t.secret.KeyID, Key: ws.Key, Value: ws.Value}
	return secretapi.Ok(&s)
}

func (t *terminalStage) SecretUpdated(context.Context, secretapi.TokenID, []secretapi.UpdatedSecret, secretapi.ReverseExec) {
}

// mapStage answers GetSecretID/GetSecretKey out of a mutable map keyed by
// KeyID, for tests that need several distinct secrets behind one stage
// rather than terminalStage's single fixed one.
type mapStage struct {
	byID map[string]secretapi.Secret
}

func (m *mapStage) Name() string { return "map" }

func (m *mapStage) GetSecretID(_ context.Context, keyID string, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	s, ok := m.byID[keyID]
	if !ok {
		return secretapi.Err(secretapi.NewFailure(secretapi.CodeNotFound, "not found"))
	}
	return secretapi.Ok(&s)
}

func (m *mapStage) GetSecretKey(_ context.Context, key string, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	for _, s := range m.byID {
		if s.Key == key {
			cp := s
			return secretapi.Ok(&cp)
		}
	}
	return secretapi.Err(secretapi.NewFailure(secretapi.CodeNotFound, "not found"))
}

func (m *mapStage) WriteSecret(_ context.Context, ws secretapi.WriteSecret, _ secretapi.Token, _ secretapi.ForwardExec) secretapi.Result {
	s := secretapi.Secret{Key: ws.Key, Value: ws.Value}
	return secretapi.Ok(&s)
}

func (m *mapStage) SecretUpdated(context.Context, secretapi.TokenID, []secretapi.UpdatedSecret, secretapi.ReverseExec) {
}

func buildIDKeyChain(t *testing.T, front secretapi.Stage, back secretapi.Stage) *secretapi.Chain {
	t.Helper()
	c := gsecretchain.New[secretapi.Stage]("test")
	c.Append(front)
	c.Append(back)
	return c
}

func TestCacheStageFillsBothIndicesOnMiss(t *testing.T) {
	cacheStage, err := secretapi.NewBuiltinInterface()
	require.NoError(t, err)
	built, err := cacheStage.Build("cache", map[string]any{"ttl_seconds": 60})
	require.NoError(t, err)

	term := &terminalStage{secret: secretapi.Secret{KeyID: "id-1", Key: "key-1", Value: "value-1"}}
	c := buildIDKeyChain(t, built, term)

	exec := gsecretchain.NewForwardExecutor(c)
	stage, ok := exec.Next()
	require.True(t, ok)

	result := stage.GetSecretID(context.Background(), "id-1", secretapi.Token{Raw: "t"}, exec)
	require.False(t, result.IsFailure())
	assert.Equal(t, "value-1", result.Secret.Value)

	// A fresh executor + a lookup by KEY should now be served from cache
	// (the bi-consistency fix), without reaching the terminal stage again.
	exec2 := gsecretchain.NewForwardExecutor(c)
	stage2, ok := exec2.Next()
	require.True(t, ok)
	result2 := stage2.GetSecretKey(context.Background(), "key-1", secretapi.Token{Raw: "t"}, exec2)
	require.False(t, result2.IsFailure())
	assert.Equal(t, "value-1", result2.Secret.Value)
	assert.Equal(t, "id-1", result2.Secret.KeyID)
}

// TestCacheStageInvalidatesOnSecretUpdated covers the cache's
// secret_updated reconciliation: primed with {a,b,c} for one principal, a
// batch update carrying [a', d] must leave that principal's cache holding
// exactly {a', d} — a and d served from the batch, b and c evicted.
func TestCacheStageInvalidatesOnSecretUpdated(t *testing.T) {
	iface, err := secretapi.NewBuiltinInterface()
	require.NoError(t, err)
	built, err := iface.Build("cache", map[string]any{"ttl_seconds": 60})
	require.NoError(t, err)

	backing := &mapStage{byID: map[string]secretapi.Secret{
		"a": {KeyID: "a", Key: "key-a", Value: "value-a"},
		"b": {KeyID: "b", Key: "key-b", Value: "value-b"},
		"c": {KeyID: "c", Key: "key-c", Value: "value-c"},
	}}
	c := buildIDKeyChain(t, built, backing)
	token := secretapi.Token{Raw: "t"}

	for _, id := range []string{"a", "b", "c"} {
		exec := gsecretchain.NewForwardExecutor(c)
		stage, _ := exec.Next()
		result := stage.GetSecretID(context.Background(), id, token, exec)
		require.False(t, result.IsFailure())
	}

	rev := gsecretchain.NewReverseExecutor(c, 1)
	prevStage, ok := rev.Next()
	require.True(t, ok)
	prevStage.SecretUpdated(context.Background(), token.Derive(), []secretapi.UpdatedSecret{
		{Secret: secretapi.Secret{KeyID: "a", Key: "key-a", Value: "value-a-2"}},
		{Secret: secretapi.Secret{KeyID: "d", Key: "key-d", Value: "value-d"}},
	}, rev)

	// Mutate (or remove) what the backing stage would report, so a
	// subsequent lookup can only match the values above if it was served
	// from the cache rather than reaching the backing stage again.
	backing.byID["a"] = secretapi.Secret{KeyID: "a", Key: "key-a", Value: "should-not-be-seen"}
	backing.byID["d"] = secretapi.Secret{KeyID: "d", Key: "key-d", Value: "should-not-be-seen"}
	delete(backing.byID, "b")
	delete(backing.byID, "c")

	exec := gsecretchain.NewForwardExecutor(c)
	stage, _ := exec.Next()
	resultA := stage.GetSecretID(context.Background(), "a", token, exec)
	require.False(t, resultA.IsFailure())
	assert.Equal(t, "value-a-2", resultA.Secret.Value)

	exec = gsecretchain.NewForwardExecutor(c)
	stage, _ = exec.Next()
	resultD := stage.GetSecretID(context.Background(), "d", token, exec)
	require.False(t, resultD.IsFailure())
	assert.Equal(t, "value-d", resultD.Secret.Value)

	exec = gsecretchain.NewForwardExecutor(c)
	stage, _ = exec.Next()
	resultB := stage.GetSecretID(context.Background(), "b", token, exec)
	require.True(t, resultB.IsFailure())
	assert.Equal(t, secretapi.CodeNotFound, resultB.Failure.Code)

	exec = gsecretchain.NewForwardExecutor(c)
	stage, _ = exec.Next()
	resultC := stage.GetSecretID(context.Background(), "c", token, exec)
	require.True(t, resultC.IsFailure())
	assert.Equal(t, secretapi.CodeNotFound, resultC.Failure.Code)
}
