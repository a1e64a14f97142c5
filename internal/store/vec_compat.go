package store

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// distanceFuncs maps a database/sql driver name to the SQL cosine distance
// function it can evaluate. Drivers without an entry are ranked in Go.
var distanceFuncs = map[string]string{
	"sqlite": "vector_distance_cos",
}

func init() {
	// Deterministic: same input blobs produce the same distance.
	if err := sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vecDistanceCos); err != nil {
		delete(distanceFuncs, "sqlite")
	}
}

// vecDistanceCos returns 1 - cosine similarity of two float32 blobs.
func vecDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}
	return float64(1 - cosine(a, b)), nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// encodeFloat32 packs v as little-endian float32s, the layout sqlite-vec reads.
func encodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// decodeFloat32 converts supported driver.Value types into a float32 slice.
func decodeFloat32(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		return decodeFloat32([]byte(x))
	default:
		return nil, fmt.Errorf("unsupported vector type %T", v)
	}
}
