package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// nearestScanner is implemented by stores that can pre-order candidates by
// L2 distance (the postgres backend when pgvector is installed). The bool
// result reports whether the fast path was actually available.
type nearestScanner interface {
	NearestCandidates(ctx context.Context, query []float64, limit int) ([]storage.VectorCandidate, bool, error)
}

// MatchEngine identifies enrolled identities by Euclidean distance over
// their feature vectors. All store reads pass through a circuit breaker.
type MatchEngine struct {
	store          storage.IdentityStore
	breaker        *storeBreaker
	threshold      float64
	timeout        time.Duration
	maxPopulation  int
	populationWarn sync.Once
}

// NewMatchEngine creates a match engine over the given store.
func NewMatchEngine(store storage.IdentityStore, cfg Config) *MatchEngine {
	return &MatchEngine{
		store:         store,
		breaker:       newStoreBreaker(),
		threshold:     cfg.MatchThreshold,
		timeout:       cfg.IdentifyTimeout,
		maxPopulation: cfg.MaxPopulation,
	}
}

// Identify scans enrolled identities for the one nearest to query and
// returns it when the distance is strictly below the threshold. Ties on
// distance resolve to the earliest-enrolled identity. Returns ErrNoMatch
// when nothing qualifies, ErrMatchTimeout when the deadline expires
// mid-scan, and storage.ErrUnavailable when the breaker is open.
func (m *MatchEngine) Identify(ctx context.Context, query []float64) (*Match, error) {
	if len(query) != types.VectorDim {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVectorShape, len(query))
	}

	if _, ok := ctx.Deadline(); !ok && m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	candidates, err := m.loadCandidates(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrMatchTimeout
		}
		return nil, err
	}

	if m.maxPopulation > 0 && len(candidates) > m.maxPopulation {
		m.populationWarn.Do(func() {
			log.Printf("WARNING: %d enrolled identities exceed the linear scan boundary (%d); consider the postgres backend with pgvector",
				len(candidates), m.maxPopulation)
		})
	}

	best := Match{Distance: math.Inf(1)}
	for i, c := range candidates {
		// Check the deadline periodically so a large population cannot
		// hold a verification request past its budget.
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, ErrMatchTimeout
				}
				return nil, err
			}
		}
		d := euclideanDistance(query, c.Vector)
		if d < best.Distance {
			best = Match{IdentityID: c.IdentityID, Distance: d}
		}
	}

	if best.IdentityID == "" || best.Distance >= m.threshold {
		return nil, ErrNoMatch
	}
	best.Confidence = 1 - best.Distance
	return &best, nil
}

// EnsureUnenrolled verifies that the candidate vector does not already
// match an enrolled identity. Returns ErrDuplicateIdentity when it does.
func (m *MatchEngine) EnsureUnenrolled(ctx context.Context, vector []float64) error {
	match, err := m.Identify(ctx, vector)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: matches %s", ErrDuplicateIdentity, match.IdentityID)
}

// loadCandidates fetches enrollment vectors through the breaker. When the
// store offers pgvector ordering only the nearest candidate is needed; the
// acceptance decision still happens here in Go.
func (m *MatchEngine) loadCandidates(ctx context.Context, query []float64) ([]storage.VectorCandidate, error) {
	out, err := m.breaker.execute(func() (interface{}, error) {
		if ns, ok := m.store.(nearestScanner); ok {
			candidates, accelerated, err := ns.NearestCandidates(ctx, query, 1)
			if err != nil {
				return nil, err
			}
			if accelerated {
				return candidates, nil
			}
		}
		return m.store.VectorCandidates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]storage.VectorCandidate), nil
}

// euclideanDistance returns the L2 distance between two vectors, or +Inf
// when their lengths differ.
func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
