package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/internal/storage/sqlite"
	"github.com/scrypster/visage/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.IdentityStore {
	t.Helper()
	store, err := sqlite.NewIdentityStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// baseVector returns a valid 128-component vector with every component 0.5.
func baseVector() []float64 {
	v := make([]float64, types.VectorDim)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

// offsetVector returns baseVector with its first component shifted by
// delta, so its Euclidean distance from baseVector is exactly |delta|.
func offsetVector(delta float64) []float64 {
	v := baseVector()
	v[0] += delta
	return v
}

func enrollIdentity(t *testing.T, store storage.IdentityStore, id, handle string, vector []float64, createdAt time.Time) {
	t.Helper()
	identity := &types.Identity{
		ID:            id,
		DisplayName:   "Test " + id,
		ContactHandle: handle,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Vector:        vector,
		Preferences:   types.DefaultPreferences(),
	}
	if err := store.CreateIdentity(context.Background(), identity); err != nil {
		t.Fatalf("failed to enroll %s: %v", id, err)
	}
}

func TestIdentifyExactMatch(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())

	m := NewMatchEngine(store, DefaultConfig())
	match, err := m.Identify(context.Background(), baseVector())
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if match.IdentityID != "idt:aaaa0001" {
		t.Errorf("expected idt:aaaa0001, got %s", match.IdentityID)
	}
	if match.Distance != 0 {
		t.Errorf("expected zero distance, got %v", match.Distance)
	}
	if match.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", match.Confidence)
	}
}

func TestIdentifyThresholdIsStrict(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())
	m := NewMatchEngine(store, DefaultConfig())

	// Distance exactly at the threshold must not match.
	if _, err := m.Identify(context.Background(), offsetVector(0.6)); !errors.Is(err, ErrNoMatch) {
		t.Errorf("distance == threshold: expected ErrNoMatch, got %v", err)
	}

	// Just under the threshold matches.
	match, err := m.Identify(context.Background(), offsetVector(0.59))
	if err != nil {
		t.Fatalf("distance just under threshold: %v", err)
	}
	if got, want := match.Confidence, 1-0.59; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected confidence %v, got %v", want, got)
	}
}

func TestIdentifyBeyondThreshold(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())
	m := NewMatchEngine(store, DefaultConfig())

	if _, err := m.Identify(context.Background(), offsetVector(0.7)); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestIdentifyEmptyStore(t *testing.T) {
	store := newTestStore(t)
	m := NewMatchEngine(store, DefaultConfig())

	if _, err := m.Identify(context.Background(), baseVector()); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}

func TestIdentifyInvalidShape(t *testing.T) {
	store := newTestStore(t)
	m := NewMatchEngine(store, DefaultConfig())

	for _, n := range []int{0, 1, 127, 129} {
		if _, err := m.Identify(context.Background(), make([]float64, n)); !errors.Is(err, ErrInvalidVectorShape) {
			t.Errorf("len %d: expected ErrInvalidVectorShape, got %v", n, err)
		}
	}
}

func TestIdentifyTieBreaksToEarliestEnrolled(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Two identities with identical vectors: the query is equidistant from
	// both, and the earlier enrollment must win.
	enrollIdentity(t, store, "idt:bbbb0002", "second@example.com", baseVector(), base.Add(time.Hour))
	enrollIdentity(t, store, "idt:aaaa0001", "first@example.com", baseVector(), base)

	m := NewMatchEngine(store, DefaultConfig())
	match, err := m.Identify(context.Background(), baseVector())
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if match.IdentityID != "idt:aaaa0001" {
		t.Errorf("expected earliest enrollment idt:aaaa0001, got %s", match.IdentityID)
	}
}

func TestIdentifyReturnsNearestNotFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enrollIdentity(t, store, "idt:aaaa0001", "far@example.com", offsetVector(0.5), base)
	enrollIdentity(t, store, "idt:bbbb0002", "near@example.com", offsetVector(0.1), base.Add(time.Minute))

	m := NewMatchEngine(store, DefaultConfig())
	match, err := m.Identify(context.Background(), baseVector())
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if match.IdentityID != "idt:bbbb0002" {
		t.Errorf("expected nearest candidate idt:bbbb0002, got %s", match.IdentityID)
	}
}

func TestIdentifyConfidenceIsRaw(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())

	// A widened threshold admits matches whose distance exceeds 1; the
	// confidence then goes negative and must be reported as-is.
	cfg := DefaultConfig()
	cfg.MatchThreshold = 2.0
	m := NewMatchEngine(store, cfg)

	match, err := m.Identify(context.Background(), offsetVector(1.5))
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if got, want := match.Confidence, 1-1.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected raw confidence %v, got %v", want, got)
	}
}

func TestIdentifyTimeout(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())
	m := NewMatchEngine(store, DefaultConfig())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := m.Identify(ctx, baseVector()); !errors.Is(err, ErrMatchTimeout) {
		t.Errorf("expected ErrMatchTimeout, got %v", err)
	}
}

func TestEnsureUnenrolled(t *testing.T) {
	store := newTestStore(t)
	enrollIdentity(t, store, "idt:aaaa0001", "alice@example.com", baseVector(), time.Now())
	m := NewMatchEngine(store, DefaultConfig())

	if err := m.EnsureUnenrolled(context.Background(), offsetVector(0.3)); !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("near-duplicate vector: expected ErrDuplicateIdentity, got %v", err)
	}
	if err := m.EnsureUnenrolled(context.Background(), offsetVector(0.9)); err != nil {
		t.Errorf("distinct vector: expected nil, got %v", err)
	}
}

func TestEuclideanDistance(t *testing.T) {
	if d := euclideanDistance([]float64{0, 0}, []float64{3, 4}); d != 5 {
		t.Errorf("expected 5, got %v", d)
	}
	if d := euclideanDistance([]float64{1}, []float64{1, 2}); !math.IsInf(d, 1) {
		t.Errorf("length mismatch: expected +Inf, got %v", d)
	}
}
