package envelope

import (
	"strconv"
	"time"

	"lovefi/agent-client/pkg/models"

	"github.com/jellydator/ttlcache/v3"
)

// SeenSet is a ReplayGuard keyed by (sender, session, nonce). Entries live
// until the envelope's own expiry, after which the expiry check rejects it.
type SeenSet struct {
	cache *ttlcache.Cache[string, struct{}]
}

func NewSeenSet(capacity uint64) *SeenSet {
	opts := []ttlcache.Option[string, struct{}]{ttlcache.WithDisableTouchOnHit[string, struct{}]()}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, struct{}](capacity))
	}
	return &SeenSet{cache: ttlcache.New[string, struct{}](opts...)}
}

func (s *SeenSet) Remember(env models.Envelope, now time.Time) bool {
	ttl := time.Unix(env.Expires, 0).Sub(now) + time.Second
	if ttl <= 0 {
		ttl = time.Second
	}
	_, found := s.cache.GetOrSet(seenKey(env), struct{}{}, ttlcache.WithTTL[string, struct{}](ttl))
	return !found
}

func (s *SeenSet) Forget(env models.Envelope) {
	s.cache.Delete(seenKey(env))
}

func seenKey(env models.Envelope) string {
	return env.Sender + "|" + env.Session + "|" + strconv.FormatUint(uint64(env.Nonce), 10)
}

// Start runs background eviction until Stop.
func (s *SeenSet) Start() { go s.cache.Start() }

func (s *SeenSet) Stop() { s.cache.Stop() }

func (s *SeenSet) Len() int { return s.cache.Len() }
