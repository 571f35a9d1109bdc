package mailsift

import (
	"crypto/sha256"
	"fmt"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// Scorer wraps a fitted pipeline with a cache of recent scores. Scoring is
// deterministic, so a hit is always as good as a recompute.
type Scorer struct {
	pipeline *Pipeline
	cache    cache.Cache[string, float64]
}

// NewScorer makes a caching scorer on top of the pipeline. maxKeys limits the
// cache size, ttl bounds entry lifetime.
func NewScorer(p *Pipeline, maxKeys int, ttl time.Duration) *Scorer {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Scorer{
		pipeline: p,
		cache:    cache.NewCache[string, float64]().WithMaxKeys(maxKeys).WithTTL(ttl),
	}
}

// Score returns the spam probability for the text, served from cache when the
// same text was scored recently.
func (s *Scorer) Score(text string) float64 {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
	if prob, ok := s.cache.Get(key); ok {
		return prob
	}
	prob := s.pipeline.Score(text)
	s.cache.Set(key, prob, 0) // 0 ttl means cache default
	return prob
}
