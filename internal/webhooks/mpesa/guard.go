package mpesawebhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stkpush-backend/pkg/redis"
)

const replayScope = "mpesa-callback"

// ReplayGuard remembers callback bodies already handled so byte-identical
// re-deliveries are acknowledged without touching the database. It is a fast
// path only; the intent state machine stays the source of truth.
type ReplayGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewReplayGuard(store redis.IdempotencyStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark marks payload as seen and reports whether it had been seen before.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, payload []byte) (bool, error) {
	if len(payload) == 0 {
		return false, errors.New("payload is required")
	}
	set, err := g.store.SetNX(ctx, g.key(payload), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Forget clears the mark so a later delivery of payload is processed again.
func (g *ReplayGuard) Forget(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return errors.New("payload is required")
	}
	return g.store.Del(ctx, g.key(payload))
}

func (g *ReplayGuard) key(payload []byte) string {
	sum := sha256.Sum256(payload)
	return g.store.IdempotencyKey(replayScope, hex.EncodeToString(sum[:]))
}
