package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeVector converts a float64 slice to a binary representation.
// Uses little-endian byte order for consistency.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector converts a binary representation back to a float64
// slice. dim is used to validate the buffer size.
func deserializeVector(buf []byte, dim int) ([]float64, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dim)
	}

	expectedSize := dim * 8
	if len(buf) != expectedSize {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", expectedSize, len(buf))
	}

	vector := make([]float64, dim)
	for i := 0; i < dim; i++ {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}

	return vector, nil
}
