package secretapi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// bufferWaiter is a single pending admission request for a bucket.
type bufferWaiter struct {
	done chan struct{}
}

// bucketState tracks one upstream rate-limit bucket's last observed quota
// and the FIFO of callers waiting for capacity in it.
type bucketState struct {
	limit     int
	remaining int
	reset     time.Time
	queue     []*bufferWaiter
}

// bufferDelay estimates how long to wait before a bucket next has spare
// capacity, smoothing admission across the remaining window rather than
// bursting everything through right at reset.
func bufferDelay(b *bucketState) time.Duration {
	untilReset := time.Until(b.reset)
	if untilReset <= 0 {
		return 0
	}
	remaining := b.remaining
	if remaining < 0 {
		remaining = 0
	}
	denom := float64(remaining) * 0.95
	if denom < 1 {
		denom = 1
	}
	seconds := untilReset.Seconds() / denom
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// releaseHead admits the longest-waiting caller in b, rolling its quota
// over if the bucket's reset time has already passed.
func releaseHead(b *bucketState) {
	if len(b.queue) == 0 {
		return
	}
	if !b.reset.IsZero() && time.Now().After(b.reset) {
		b.remaining = b.limit
	}
	if b.remaining <= 0 {
		b.remaining = 1
	}
	w := b.queue[0]
	b.queue = b.queue[1:]
	b.remaining--
	close(w.done)
}

// bufferController is the per-bucket scheduler behind a rate-limiter
// stage. Every rate-limiter stage instance builds its own controller, so
// bucket quotas and queues are not shared between stage instances. Each
// pass finds the bucket with a non-empty queue and the smallest positive
// delay until it has capacity, waits exactly that long, then admits its
// head waiter. A bucket whose delay is already zero has its head waiter
// admitted in the same pass without waiting; the rest of its queue waits
// for later passes.
type bufferController struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
}

func newBufferController() *bufferController {
	bc := &bufferController{
		buckets: make(map[string]*bucketState),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go bc.run()
	return bc
}

func (bc *bufferController) signal() {
	select {
	case bc.wake <- struct{}{}:
	default:
	}
}

// updateQuota records the most recently observed quota for bucket.
func (bc *bufferController) updateQuota(bucket string, rl RateLimit) {
	bc.mu.Lock()
	b, ok := bc.buckets[bucket]
	if !ok {
		b = &bucketState{}
		bc.buckets[bucket] = b
	}
	b.limit = rl.Limit
	b.remaining = rl.Remaining
	b.reset = rl.Reset
	bc.mu.Unlock()
	bc.signal()
}

// await blocks until bucket has spare capacity, consuming one unit of it,
// or until ctx is done.
func (bc *bufferController) await(ctx context.Context, bucket string) error {
	bc.mu.Lock()
	b, ok := bc.buckets[bucket]
	if !ok {
		b = &bucketState{limit: 1, remaining: 1}
		bc.buckets[bucket] = b
	}
	if b.remaining > 0 {
		b.remaining--
		bc.mu.Unlock()
		return nil
	}
	w := &bufferWaiter{done: make(chan struct{})}
	b.queue = append(b.queue, w)
	bc.mu.Unlock()
	bc.signal()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bc *bufferController) run() {
	const idlePoll = 500 * time.Millisecond
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-bc.stop:
			return
		case <-bc.wake:
		case <-ticker.C:
		}
		bc.pass()
	}
}

func (bc *bufferController) pass() {
	bc.mu.Lock()
	var targetName string
	var minDelay time.Duration = -1
	for name, b := range bc.buckets {
		if len(b.queue) == 0 {
			continue
		}
		d := bufferDelay(b)
		if d <= 0 {
			releaseHead(b)
			continue
		}
		if minDelay < 0 || d < minDelay {
			minDelay = d
			targetName = name
		}
	}
	bc.mu.Unlock()

	if targetName == "" {
		return
	}

	select {
	case <-time.After(minDelay):
	case <-bc.stop:
		return
	}

	bc.mu.Lock()
	if b, ok := bc.buckets[targetName]; ok {
		releaseHead(b)
	}
	bc.mu.Unlock()
}

func (bc *bufferController) Stop() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.stopped {
		return
	}
	bc.stopped = true
	close(bc.stop)
}

// rateLimiterStage enforces upstream quota before a request is allowed to
// reach the stages after it. It does not own quota state itself — it
// learns, per secret id and key, which upstream bucket governs that
// secret from the RateLimit relation stamped on past responses, and
// defers the actual scheduling to its own bufferController.
type rateLimiterStage struct {
	controller    *bufferController
	defaultBucket string

	mu          sync.RWMutex
	bucketByID  map[string]string
	bucketByKey map[string]string
}

func newRateLimiterStageFromConfig(rawConfig map[string]any) (Stage, error) {
	defaultBucket := "default"
	if v, ok := rawConfig["default_bucket"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("rate_limiter stage: default_bucket must be a string")
		}
		defaultBucket = s
	}
	return &rateLimiterStage{
		controller:    newBufferController(),
		defaultBucket: defaultBucket,
		bucketByID:    make(map[string]string),
		bucketByKey:   make(map[string]string),
	}, nil
}

func (s *rateLimiterStage) Name() string { return "rate_limiter" }

func (s *rateLimiterStage) bucketForID(keyID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.bucketByID[keyID]; ok {
		return b
	}
	return s.defaultBucket
}

func (s *rateLimiterStage) bucketForKey(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.bucketByKey[key]; ok {
		return b
	}
	return s.defaultBucket
}

func (s *rateLimiterStage) learn(secret *Secret) {
	if secret == nil || secret.RateLimit == nil {
		return
	}
	bucket := secret.RateLimit.APIRelation
	s.mu.Lock()
	if secret.KeyID != "" {
		s.bucketByID[secret.KeyID] = bucket
	}
	if secret.Key != "" {
		s.bucketByKey[secret.Key] = bucket
	}
	s.mu.Unlock()
	s.controller.updateQuota(bucket, *secret.RateLimit)
}

func (s *rateLimiterStage) GetSecretID(ctx context.Context, keyID string, token Token, next ForwardExec) Result {
	bucket := s.bucketForID(keyID)
	if err := s.controller.await(ctx, bucket); err != nil {
		return Err(NewFailure(CodeRateLimitExceeded, fmt.Sprintf("rate limit exceeded for bucket %q: %v", bucket, err)))
	}
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by id"))
	}
	result := stage.GetSecretID(ctx, keyID, token, next)
	s.learn(result.Secret)
	return result
}

func (s *rateLimiterStage) GetSecretKey(ctx context.Context, key string, token Token, next ForwardExec) Result {
	bucket := s.bucketForKey(key)
	if err := s.controller.await(ctx, bucket); err != nil {
		return Err(NewFailure(CodeRateLimitExceeded, fmt.Sprintf("rate limit exceeded for bucket %q: %v", bucket, err)))
	}
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to resolve secret by key"))
	}
	result := stage.GetSecretKey(ctx, key, token, next)
	s.learn(result.Secret)
	return result
}

// WriteSecret is a pass-through: writes are never throttled, only reads.
func (s *rateLimiterStage) WriteSecret(ctx context.Context, ws WriteSecret, token Token, next ForwardExec) Result {
	stage, ok := next.Next()
	if !ok {
		return Err(NewFailure(CodeNotSupportedByAPI, "no further stage to write secret"))
	}
	result := stage.WriteSecret(ctx, ws, token, next)
	s.learn(result.Secret)
	return result
}

// registerRelation records the id/key -> bucket association an UpdatedSecret
// carries, and folds in its RateLimit if it has one, without waiting on any
// quota itself.
func (s *rateLimiterStage) registerRelation(u *UpdatedSecret) {
	var bucket string
	s.mu.Lock()
	if u.APIIDRelation != nil && *u.APIIDRelation != "" {
		s.bucketByID[u.KeyID] = *u.APIIDRelation
		bucket = *u.APIIDRelation
	}
	if u.APIKeyRelation != nil && *u.APIKeyRelation != "" {
		s.bucketByKey[u.Key] = *u.APIKeyRelation
		if bucket == "" {
			bucket = *u.APIKeyRelation
		}
	}
	s.mu.Unlock()

	if u.RateLimit == nil {
		return
	}
	if u.RateLimit.APIRelation != "" {
		bucket = u.RateLimit.APIRelation
	}
	if bucket != "" {
		s.controller.updateQuota(bucket, *u.RateLimit)
	}
}

func (s *rateLimiterStage) SecretUpdated(ctx context.Context, tokenID TokenID, updated []UpdatedSecret, prev ReverseExec) {
	for i := range updated {
		s.registerRelation(&updated[i])
	}
	if stage, ok := prev.Next(); ok {
		stage.SecretUpdated(ctx, tokenID, updated, prev)
	}
}
