package hnsw

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary format constants
const (
	// MagicNumber opens every index file: "HNSW" as a little-endian u32
	MagicNumber = uint32(0x484E5357)

	// FormatVersion is the only version this package reads and writes
	FormatVersion = uint32(1)

	// noEntry is the persisted entry point of an empty index
	noEntry = math.MaxUint64

	// floatChunk bounds the floats decoded per read so a truncated file fails
	// before its declared size is allocated
	floatChunk = 16 * 1024
)

// fileHeader is the fixed-size prefix of an index file.
// encoding/binary lays the fields out back to back with no padding.
type fileHeader struct {
	Magic          uint32
	Version        uint32
	Dimension      uint64
	MaxElements    uint64
	M              uint64
	EfConstruction uint64
	QuantBits      uint32
	Count          uint64
	EntryPoint     uint64
	MaxLevel       uint64
}

// File layout (little-endian):
//
//	fileHeader
//	min_vals[dim]    f32
//	max_vals[dim]    f32
//	vectors[count*dim] f32
//	per node:
//	  level u64 | label u64 | code[codeSize]
//	  per layer 0..level: count u64 | ids[count] u64

// encoder writes little-endian values and keeps the first error
type encoder struct {
	w   io.Writer
	n   int64
	err error
	buf [8]byte
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	e.err = err
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:], v)
	e.write(e.buf[:8])
}

func (e *encoder) header(h *fileHeader) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, h)
	if e.err == nil {
		e.n += int64(binary.Size(h))
	}
}

func (e *encoder) floats(vs []float32) {
	var chunk [4 * 256]byte
	for len(vs) > 0 && e.err == nil {
		n := min(len(vs), 256)
		for i, v := range vs[:n] {
			binary.LittleEndian.PutUint32(chunk[i*4:], math.Float32bits(v))
		}
		e.write(chunk[:n*4])
		vs = vs[n:]
	}
}

// decoder reads little-endian values and keeps the first error.
// Short reads surface as ErrFormat.
type decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (d *decoder) fail(err error, what string) {
	if d.err != nil {
		return
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		d.err = fmt.Errorf("%w: truncated while reading %s", ErrFormat, what)
		return
	}
	d.err = fmt.Errorf("failed to read %s: %w", what, err)
}

func (d *decoder) read(p []byte, what string) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, p); err != nil {
		d.fail(err, what)
	}
}

func (d *decoder) u64(what string) uint64 {
	d.read(d.buf[:8], what)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(d.buf[:8])
}

func (d *decoder) header(h *fileHeader) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.LittleEndian, h); err != nil {
		d.fail(err, "header")
	}
}

// floats appends n floats to dst, growing it one chunk at a time
func (d *decoder) floats(dst []float32, n int, what string) []float32 {
	var chunk [4 * floatChunk]byte
	for n > 0 && d.err == nil {
		c := min(n, floatChunk)
		d.read(chunk[:c*4], what)
		if d.err != nil {
			break
		}
		for i := 0; i < c; i++ {
			dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*4:])))
		}
		n -= c
	}
	return dst
}
