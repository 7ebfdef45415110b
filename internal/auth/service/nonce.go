package service

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/walletgate/walletgate/internal/auth/domain"
	"github.com/walletgate/walletgate/pkg/cryptox"
)

const (
	// DefaultNonceTTL bounds how long an issued nonce stays redeemable.
	DefaultNonceTTL = 5 * time.Minute

	nonceBytes = 16
)

// NonceService issues single-use login nonces and consumes them during
// verification. Expired entries are evicted by the cache janitor; Consume
// additionally rejects anything past its deadline so a nonce can never be
// redeemed late even between janitor sweeps.
type NonceService struct {
	cache *ttlcache.Cache[string, time.Time]
	ttl   time.Duration
}

func NewNonceService(cache *ttlcache.Cache[string, time.Time], ttl time.Duration) *NonceService {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceService{cache: cache, ttl: ttl}
}

// Issue mints a fresh nonce and registers it for one-time redemption.
func (s *NonceService) Issue(_ context.Context) (domain.Nonce, error) {
	value, err := cryptox.GenerateNonce(nonceBytes)
	if err != nil {
		return domain.Nonce{}, err
	}

	now := time.Now()
	s.cache.Set(value, now, s.ttl)

	return domain.Nonce{
		Value:    value,
		IssuedAt: now,
		ExpireAt: now.Add(s.ttl),
	}, nil
}

// Consume atomically redeems a nonce. It reports false when the nonce was
// never issued, already redeemed, or expired. A second Consume with the same
// value always fails.
func (s *NonceService) Consume(_ context.Context, value string) bool {
	item, ok := s.cache.GetAndDelete(value)
	if !ok || item == nil {
		return false
	}
	return !item.IsExpired()
}
