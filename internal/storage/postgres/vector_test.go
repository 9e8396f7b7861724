package postgres

import (
	"math"
	"testing"

	"github.com/scrypster/visage/pkg/types"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := make([]float64, types.VectorDim)
	for i := range vec {
		vec[i] = math.Sin(float64(i)) * 0.5
	}

	decoded, err := deserializeVector(serializeVector(vec), len(vec))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("component %d mismatch: %v != %v", i, decoded[i], vec[i])
		}
	}
}

func TestDeserializeVectorRejectsTruncatedBuffer(t *testing.T) {
	buf := serializeVector([]float64{1, 2, 3})
	if _, err := deserializeVector(buf[:20], 3); err == nil {
		t.Error("expected error for truncated buffer")
	}
	if _, err := deserializeVector(buf, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestToPgvectorNarrowsToFloat32(t *testing.T) {
	vec := []float64{0.25, -1.5, 0.0009765625}
	pv := toPgvector(vec)

	slice := pv.Slice()
	if len(slice) != len(vec) {
		t.Fatalf("length mismatch: %d", len(slice))
	}
	for i, v := range vec {
		if slice[i] != float32(v) {
			t.Errorf("component %d: expected %v, got %v", i, float32(v), slice[i])
		}
	}
}
