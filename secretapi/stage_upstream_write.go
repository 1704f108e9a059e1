package secretapi

import (
	"context"
	"fmt"
	"sync"

	gsecretchain "github.com/GoCodeAlone/gsecret/chain"
	"github.com/GoCodeAlone/gsecret/upstream"
)

// upstreamWriteStage is the simpler write-only sibling of upstreamReadStage:
// no cache, no background sync loop, but the same per-principal client
// controller — each caller's writes go through their own upstream session.
// On success it originates exactly one reverse SecretUpdated call towards
// the stages before it; it never originates propagation on its own
// initiative the way the read stage's sync loop does.
type upstreamWriteStage struct {
	controller *bwsClientController

	attachOnce sync.Once
	chainRef   *Chain
	index      int
}

func newUpstreamWriteStageFromConfig(rawConfig map[string]any) (Stage, error) {
	region, _ := rawConfig["region"].(string)
	if region == "" {
		region = "default"
	}
	factory := func(token Token) (upstream.Client, error) {
		return buildUpstreamClient(rawConfig, token)
	}
	return &upstreamWriteStage{controller: newBwsClientController(region, factory)}, nil
}

func (s *upstreamWriteStage) Name() string { return "bws_write" }

func (s *upstreamWriteStage) AttachChain(c *Chain, index int) {
	s.attachOnce.Do(func() {
		s.chainRef = c
		s.index = index
	})
}

func (s *upstreamWriteStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotFound, fmt.Sprintf("secret %q not found", keyID)))
	}
	return stage.GetSecretID(ctx, keyID, token, next)
}

func (s *upstreamWriteStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotFound, fmt.Sprintf("secret %q not found", key)))
	}
	return stage.GetSecretKey(ctx, key, token, next)
}

func (s *upstreamWriteStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	client, err := s.controller.get(token, nil)
	if err != nil {
		return Err(NewFailure(CodeUpstreamFailure, err.Error()))
	}

	value, ok := ws.Value.(string)
	if !ok {
		value = fmt.Sprintf("%v", ws.Value)
	}

	stored, err := client.client.Create(ctx, ws.Key, value)
	if err != nil {
		return mapUpstreamError(err)
	}

	client.learn([]upstream.Secret{*stored})
	secret := convertUpstreamSecretWithRelation(*stored, s.Name())
	s.propagateUpdate(ctx, token.Derive(), secret)
	return Ok(&secret)
}

func (s *upstreamWriteStage) propagateUpdate(ctx context.Context, tokenID TokenID, secret Secret) {
	if s.chainRef == nil {
		return
	}
	prevExec := gsecretchain.NewReverseExecutor(s.chainRef, s.index)
	stage, ok := prevExec.Next()
	if !ok {
		return
	}
	keyID := secret.KeyID
	key := secret.Key
	stage.SecretUpdated(ctx, tokenID, []UpdatedSecret{{
		Secret:         secret,
		APIIDRelation:  &keyID,
		APIKeyRelation: &key,
	}}, prevExec)
}

func (s *upstreamWriteStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, updated, prev)
	}
}
