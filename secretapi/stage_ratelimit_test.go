package secretapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gsecretchain "github.com/GoCodeAlone/gsecret/chain"
	"github.com/GoCodeAlone/gsecret/secretapi"
)

func TestRateLimiterStageAllowsWithinQuota(t *testing.T) {
	iface, err := secretapi.NewBuiltinInterface()
	require.NoError(t, err)
	built, err := iface.Build("rate_limiter", map[string]any{"default_bucket": "bucket-a"})
	require.NoError(t, err)

	term := &terminalStage{secret: secretapi.Secret{
		KeyID: "id-1",
		Key:   "key-1",
		Value: "value-1",
		RateLimit: &secretapi.RateLimit{
			Limit:       10,
			Remaining:   10,
			Reset:       time.Now().Add(time.Minute),
			APIRelation: "bucket-a",
		},
	}}
	c := buildIDKeyChain(t, built, term)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	exec := gsecretchain.NewForwardExecutor(c)
	stage, ok := exec.Next()
	require.True(t, ok)

	result := stage.GetSecretID(ctx, "id-1", secretapi.Token{Raw: "t"}, exec)
	require.False(t, result.IsFailure())
	assert.Equal(t, "value-1", result.Secret.Value)
}

func TestRateLimiterStageBlocksWhenBucketExhausted(t *testing.T) {
	iface, err := secretapi.NewBuiltinInterface()
	require.NoError(t, err)
	built, err := iface.Build("rate_limiter", map[string]any{"default_bucket": "bucket-b"})
	require.NoError(t, err)

	term := &terminalStage{secret: secretapi.Secret{
		KeyID: "id-2",
		Key:   "key-2",
		Value: "value-2",
		RateLimit: &secretapi.RateLimit{
			Limit:       1,
			Remaining:   0,
			Reset:       time.Now().Add(time.Hour),
			APIRelation: "bucket-b",
		},
	}}
	c := buildIDKeyChain(t, built, term)

	exec := gsecretchain.NewForwardExecutor(c)
	stage, _ := exec.Next()
	_ = stage.GetSecretID(context.Background(), "id-2", secretapi.Token{Raw: "t"}, exec)

	// A fresh executor now knows (via the learned bucket map) that id-2
	// maps to bucket-b, which the stage has just recorded as exhausted
	// for the next hour. A short-deadline context must therefore fail
	// with a rate-limit error rather than block forever.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	exec2 := gsecretchain.NewForwardExecutor(c)
	stage2, _ := exec2.Next()
	result := stage2.GetSecretID(ctx, "id-2", secretapi.Token{Raw: "t"}, exec2)
	require.True(t, result.IsFailure())
	assert.Equal(t, secretapi.CodeRateLimitExceeded, result.Failure.Code)
}

// TestRateLimiterStageWritesArePassThrough covers spec's explicit carve-out
// for writes: a bucket exhausted enough to block every read must still let
// a write through, since WriteSecret never consults the buffer controller.
func TestRateLimiterStageWritesArePassThrough(t *testing.T) {
	iface, err := secretapi.NewBuiltinInterface()
	require.NoError(t, err)
	built, err := iface.Build("rate_limiter", map[string]any{"default_bucket": "bucket-c"})
	require.NoError(t, err)

	term := &terminalStage{secret: secretapi.Secret{
		KeyID: "id-3",
		Key:   "key-3",
		Value: "value-3",
		RateLimit: &secretapi.RateLimit{
			Limit:       1,
			Remaining:   0,
			Reset:       time.Now().Add(time.Hour),
			APIRelation: "bucket-c",
		},
	}}
	c := buildIDKeyChain(t, built, term)

	exec := gsecretchain.NewForwardExecutor(c)
	stage, _ := exec.Next()
	_ = stage.GetSecretID(context.Background(), "id-3", secretapi.Token{Raw: "t"}, exec)

	// bucket-c is now recorded as exhausted for the next hour — a read
	// would block/fail on a short deadline, but a write must go through
	// unthrottled.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	exec2 := gsecretchain.NewForwardExecutor(c)
	stage2, _ := exec2.Next()
	result := stage2.WriteSecret(ctx, secretapi.WriteSecret{Key: "key-3", Value: "new-value"}, secretapi.Token{Raw: "t"}, exec2)
	require.False(t, result.IsFailure())
}
