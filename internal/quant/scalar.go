package quant

import (
	"fmt"
	"math"
)

// ScalarQuantizer implements online scalar quantization.
// Per-dimension min/max bounds are widened as vectors are observed and never
// shrink. Codes already produced are not re-encoded when the bounds move.
//
// A ScalarQuantizer does no locking of its own; the owning index serializes
// Observe against readers.
type ScalarQuantizer struct {
	dimension int
	bits      int

	// Quantization levels
	maxLevel uint32 // 2^bits - 1
	codeSize int    // bytes per encoded vector

	// Observed range per dimension
	minValues []float32
	maxValues []float32
}

// NewScalarQuantizer creates a quantizer with empty bounds.
func NewScalarQuantizer(dimension, bits int) (*ScalarQuantizer, error) {
	if dimension <= 0 {
		return nil, NewQuantizationError(ErrQuantConfigInvalid, "new",
			"dimension must be positive").WithMetadata("dimension", dimension)
	}
	if bits != 4 && bits != 8 {
		return nil, NewQuantizationError(ErrQuantConfigInvalid, "new",
			fmt.Sprintf("unsupported bit width %d", bits)).WithMetadata("bits", bits)
	}

	sq := &ScalarQuantizer{
		dimension: dimension,
		bits:      bits,
		maxLevel:  (1 << bits) - 1,
		codeSize:  CodeSize(dimension, bits),
		minValues: make([]float32, dimension),
		maxValues: make([]float32, dimension),
	}
	sq.Reset()
	return sq, nil
}

// CodeSize returns the number of bytes one encoded vector occupies.
func CodeSize(dimension, bits int) int {
	return (dimension*bits + 7) / 8
}

// Reset returns every dimension to the empty range.
func (sq *ScalarQuantizer) Reset() {
	for i := range sq.minValues {
		sq.minValues[i] = math.MaxFloat32
		sq.maxValues[i] = -math.MaxFloat32
	}
}

func (sq *ScalarQuantizer) Dimension() int   { return sq.dimension }
func (sq *ScalarQuantizer) Bits() int        { return sq.bits }
func (sq *ScalarQuantizer) CodeSize() int    { return sq.codeSize }
func (sq *ScalarQuantizer) MaxLevel() uint32 { return sq.maxLevel }

// MinValues returns the per-dimension lower bounds. The slice is shared.
func (sq *ScalarQuantizer) MinValues() []float32 { return sq.minValues }

// MaxValues returns the per-dimension upper bounds. The slice is shared.
func (sq *ScalarQuantizer) MaxValues() []float32 { return sq.maxValues }

// Observe widens the bounds to cover vec.
func (sq *ScalarQuantizer) Observe(vec []float32) error {
	if len(vec) != sq.dimension {
		return dimensionMismatch("observe", sq.dimension, len(vec))
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return NewQuantizationError(ErrQuantRangeInvalid, "observe",
				"component is not finite").WithMetadata("dimension", i)
		}
	}
	for i, v := range vec {
		if v < sq.minValues[i] {
			sq.minValues[i] = v
		}
		if v > sq.maxValues[i] {
			sq.maxValues[i] = v
		}
	}
	return nil
}

// SetRange replaces the bounds, typically with values read from disk.
func (sq *ScalarQuantizer) SetRange(minValues, maxValues []float32) error {
	if len(minValues) != sq.dimension {
		return dimensionMismatch("set_range", sq.dimension, len(minValues))
	}
	if len(maxValues) != sq.dimension {
		return dimensionMismatch("set_range", sq.dimension, len(maxValues))
	}
	for i := range minValues {
		if math.IsNaN(float64(minValues[i])) || math.IsNaN(float64(maxValues[i])) {
			return NewQuantizationError(ErrQuantRangeInvalid, "set_range",
				"bounds contain NaN").WithMetadata("dimension", i)
		}
	}
	copy(sq.minValues, minValues)
	copy(sq.maxValues, maxValues)
	return nil
}

// Encode writes the code for vec into dst using the current bounds.
// A dimension whose range is empty encodes to level 0.
func (sq *ScalarQuantizer) Encode(vec []float32, dst []byte) error {
	if len(vec) != sq.dimension {
		return dimensionMismatch("encode", sq.dimension, len(vec))
	}
	if len(dst) != sq.codeSize {
		return NewQuantizationError(ErrQuantCodeSizeMismatch, "encode",
			fmt.Sprintf("expected %d code bytes, got %d", sq.codeSize, len(dst)))
	}

	for i := range dst {
		dst[i] = 0
	}

	for i, v := range vec {
		var level uint32
		valueRange := sq.maxValues[i] - sq.minValues[i]
		if valueRange > 0 {
			normalized := (v - sq.minValues[i]) / valueRange
			if normalized < 0 {
				normalized = 0
			} else if normalized > 1 {
				normalized = 1
			}
			level = uint32(normalized*float32(sq.maxLevel) + 0.5)
			if level > sq.maxLevel {
				level = sq.maxLevel
			}
		}
		sq.setLevel(dst, i, level)
	}

	return nil
}

// Compress allocates and returns the code for vec.
func (sq *ScalarQuantizer) Compress(vec []float32) ([]byte, error) {
	code := make([]byte, sq.codeSize)
	if err := sq.Encode(vec, code); err != nil {
		return nil, err
	}
	return code, nil
}

// Decompress reconstructs an approximate vector from a code.
func (sq *ScalarQuantizer) Decompress(code []byte) ([]float32, error) {
	if len(code) != sq.codeSize {
		return nil, NewQuantizationError(ErrQuantCodeSizeMismatch, "decompress",
			fmt.Sprintf("expected %d code bytes, got %d", sq.codeSize, len(code)))
	}

	vec := make([]float32, sq.dimension)
	for i := range vec {
		vec[i] = sq.dequantize(i, sq.Level(code, i))
	}
	return vec, nil
}

// Level extracts the quantization level of dimension i.
// 4-bit codes store even dimensions in the high nibble.
func (sq *ScalarQuantizer) Level(code []byte, i int) uint32 {
	if sq.bits == 8 {
		return uint32(code[i])
	}
	b := code[i>>1]
	if i&1 == 0 {
		return uint32(b >> 4)
	}
	return uint32(b & 0x0F)
}

func (sq *ScalarQuantizer) setLevel(code []byte, i int, level uint32) {
	if sq.bits == 8 {
		code[i] = byte(level)
		return
	}
	if i&1 == 0 {
		code[i>>1] = code[i>>1]&0x0F | byte(level<<4)
	} else {
		code[i>>1] = code[i>>1]&0xF0 | byte(level&0x0F)
	}
}

func (sq *ScalarQuantizer) dequantize(i int, level uint32) float32 {
	minv := sq.minValues[i]
	return minv + (float32(level)/float32(sq.maxLevel))*(sq.maxValues[i]-minv)
}

// DistanceToQuery computes squared L2 distance between a full-precision query
// and a code, dequantizing on the fly. Both arguments must match the
// quantizer's dimension and code size.
func (sq *ScalarQuantizer) DistanceToQuery(query []float32, code []byte) float32 {
	var sum float32
	scale := 1 / float32(sq.maxLevel)

	if sq.bits == 8 {
		for i, q := range query {
			minv := sq.minValues[i]
			d := q - (minv + float32(code[i])*scale*(sq.maxValues[i]-minv))
			sum += d * d
		}
		return sum
	}

	for i, q := range query {
		b := code[i>>1]
		var level byte
		if i&1 == 0 {
			level = b >> 4
		} else {
			level = b & 0x0F
		}
		minv := sq.minValues[i]
		d := q - (minv + float32(level)*scale*(sq.maxValues[i]-minv))
		sum += d * d
	}
	return sum
}

// MemoryUsage returns the bytes held by the bounds.
func (sq *ScalarQuantizer) MemoryUsage() int64 {
	return int64(len(sq.minValues)+len(sq.maxValues)) * 4
}
