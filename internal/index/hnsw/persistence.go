package hnsw

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix selects zstd framing in Save and Load
const CompressedSuffix = ".zst"

// WriteTo serializes the index in the binary index format
func (h *Index) WriteTo(w io.Writer) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	return h.writeLocked(w)
}

func (h *Index) writeLocked(w io.Writer) (int64, error) {
	entry := uint64(noEntry)
	if h.entryPoint != NoNode {
		entry = uint64(h.entryPoint)
	}

	enc := &encoder{w: w}
	enc.header(&fileHeader{
		Magic:          MagicNumber,
		Version:        FormatVersion,
		Dimension:      uint64(h.config.Dimension),
		MaxElements:    uint64(h.config.MaxElements),
		M:              uint64(h.config.M),
		EfConstruction: uint64(h.config.EfConstruction),
		QuantBits:      uint32(h.config.QuantBits),
		Count:          uint64(len(h.nodes)),
		EntryPoint:     entry,
		MaxLevel:       uint64(h.maxLevel),
	})

	enc.floats(h.quantizer.MinValues())
	enc.floats(h.quantizer.MaxValues())
	enc.floats(h.vectors)

	for i := range h.nodes {
		node := &h.nodes[i]
		enc.u64(uint64(node.Level))
		enc.u64(node.Label)
		enc.write(node.Code)

		for _, links := range node.Links {
			enc.u64(uint64(len(links)))
			for _, id := range links {
				enc.u64(uint64(id))
			}
		}
	}

	if enc.err != nil {
		return enc.n, fmt.Errorf("failed to write index: %w", enc.err)
	}
	return enc.n, nil
}

// Save persists the index atomically. Paths ending in ".zst" are zstd-compressed.
func (h *Index) Save(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	err := atomicWrite(path, func(file *os.File) error {
		writer := bufio.NewWriter(file)

		var out io.Writer = writer
		var zw *zstd.Encoder
		if strings.HasSuffix(path, CompressedSuffix) {
			var err error
			zw, err = zstd.NewWriter(writer, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				return fmt.Errorf("failed to create zstd writer: %w", err)
			}
			out = zw
		}

		if _, err := h.writeLocked(out); err != nil {
			if zw != nil {
				zw.Close()
			}
			return err
		}
		if zw != nil {
			if err := zw.Close(); err != nil {
				return fmt.Errorf("failed to finish zstd stream: %w", err)
			}
		}
		return writer.Flush()
	})
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("path", path).
		Int("count", len(h.nodes)).
		Msg("index saved")
	return nil
}

// atomicWrite writes to a temporary file and renames it over finalPath
func atomicWrite(finalPath string, writeFunc func(*os.File) error) error {
	tempPath := finalPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	writeErr := writeFunc(file)

	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}
	if closeErr := file.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write data: %w", writeErr)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Load reads an index written by Save.
// base supplies the settings the file does not carry: prefetch, seed,
// logger and metrics. It may be nil.
func Load(path string, base *Config) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var r io.Reader = bufio.NewReader(file)
	if strings.HasSuffix(path, CompressedSuffix) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		defer zr.Close()
		r = zr
	}

	index, err := ReadFrom(r, base)
	if err != nil {
		return nil, err
	}

	index.logger.Info().
		Str("path", path).
		Int("count", len(index.nodes)).
		Msg("index loaded")
	return index, nil
}

// ReadFrom decodes a complete index from r. The stream must end after the
// last node. No index is returned on any error.
func ReadFrom(r io.Reader, base *Config) (*Index, error) {
	dec := &decoder{r: r}

	var hdr fileHeader
	dec.header(&hdr)
	if dec.err != nil {
		return nil, dec.err
	}
	if hdr.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: invalid magic number: expected %x, got %x", ErrFormat, MagicNumber, hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version: expected %d, got %d", ErrFormat, FormatVersion, hdr.Version)
	}
	if err := checkHeader(&hdr); err != nil {
		return nil, err
	}

	cfg := Config{}
	if base != nil {
		cfg = *base
	}
	cfg.Dimension = int(hdr.Dimension)
	cfg.MaxElements = int(hdr.MaxElements)
	cfg.M = int(hdr.M)
	cfg.EfConstruction = int(hdr.EfConstruction)
	cfg.QuantBits = int(hdr.QuantBits)

	h, err := NewHNSW(&cfg)
	if err != nil {
		return nil, err
	}

	dim := h.config.Dimension
	capacity := h.config.MaxElements
	stored := int(hdr.Count)
	keep := min(stored, capacity)

	minValues := dec.floats(make([]float32, 0, dim), dim, "quantization minimums")
	maxValues := dec.floats(make([]float32, 0, dim), dim, "quantization maximums")
	if dec.err != nil {
		return nil, dec.err
	}
	_, badMin := firstNonFinite(minValues)
	_, badMax := firstNonFinite(maxValues)
	if badMin || badMax {
		return nil, fmt.Errorf("%w: non-finite quantization range", ErrFormat)
	}
	if err := h.quantizer.SetRange(minValues, maxValues); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	h.vectors = dec.floats(h.vectors[:0], keep*dim, "vectors")
	if stored > keep {
		// Vectors beyond capacity are consumed and discarded
		dec.floats(nil, (stored-keep)*dim, "vectors")
	}
	if dec.err != nil {
		return nil, dec.err
	}
	if i, bad := firstNonFinite(h.vectors); bad {
		return nil, fmt.Errorf("%w: vector %d has a non-finite component", ErrFormat, i/dim)
	}

	codeSize := h.quantizer.CodeSize()
	dropped := 0
	h.nodes = make([]Node, 0, min(keep, 1024))

	for i := 0; i < stored; i++ {
		level := dec.u64("node level")
		label := dec.u64("node label")
		if dec.err != nil {
			return nil, dec.err
		}
		if level > MaxLevel {
			return nil, fmt.Errorf("%w: node %d has level %d above %d", ErrFormat, i, level, MaxLevel)
		}

		node := newNode(label, int(level), codeSize, h.config.M, h.m0)
		dec.read(node.Code, "node code")

		for l := 0; l <= int(level); l++ {
			n := dec.u64("neighbor count")
			if dec.err != nil {
				return nil, dec.err
			}
			if n > math.MaxInt32 {
				return nil, fmt.Errorf("%w: node %d layer %d declares %d neighbors", ErrFormat, i, l, n)
			}
			capAt := h.capacityAt(l)
			for j := uint64(0); j < n; j++ {
				id := dec.u64("neighbor id")
				if dec.err != nil {
					return nil, dec.err
				}
				switch {
				case len(node.Links[l]) >= capAt:
					dropped++
				case id >= uint64(keep) || id == uint64(i):
					dropped++
				default:
					node.Links[l] = append(node.Links[l], uint32(id))
				}
			}
		}

		if i < keep {
			h.nodes = append(h.nodes, node)
		}
	}

	var trailing [1]byte
	if n, _ := io.ReadFull(r, trailing[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after last node", ErrFormat)
	}

	switch {
	case keep == 0:
		h.entryPoint = NoNode
		h.maxLevel = 0
	case stored > keep:
		// The stored entry point may have been cut off
		h.entryPoint, h.maxLevel = highestNode(h.nodes)
	default:
		if hdr.EntryPoint >= uint64(keep) {
			return nil, fmt.Errorf("%w: entry point %d out of range", ErrFormat, hdr.EntryPoint)
		}
		h.entryPoint = uint32(hdr.EntryPoint)
		h.maxLevel = h.nodes[h.entryPoint].Level
		if uint64(h.maxLevel) != hdr.MaxLevel {
			return nil, fmt.Errorf("%w: max level %d does not match entry point level %d",
				ErrFormat, hdr.MaxLevel, h.maxLevel)
		}
	}

	if stored > keep {
		h.logger.Warn().
			Int("stored", stored).
			Int("capacity", capacity).
			Msg("stored node count exceeds capacity, truncated")
	}
	if dropped > 0 {
		h.logger.Warn().
			Int("dropped", dropped).
			Msg("dropped neighbor links over capacity or out of range")
	}
	h.metrics.SetGraphShape(len(h.nodes), h.maxLevel)

	return h, nil
}

// highestNode returns the first node with the greatest level
func highestNode(nodes []Node) (uint32, int) {
	best, level := uint32(0), nodes[0].Level
	for i := range nodes {
		if nodes[i].Level > level {
			best, level = uint32(i), nodes[i].Level
		}
	}
	return best, level
}

// checkHeader rejects parameters NewHNSW would reject and sizes that cannot be allocated
func checkHeader(hdr *fileHeader) error {
	if hdr.QuantBits != 4 && hdr.QuantBits != 8 {
		return fmt.Errorf("%w: unsupported quantization bits %d", ErrFormat, hdr.QuantBits)
	}
	if hdr.Dimension == 0 || hdr.M == 0 || hdr.MaxElements == 0 {
		return fmt.Errorf("%w: zero dimension, M or max elements", ErrFormat)
	}
	if hdr.M > math.MaxInt32 || hdr.EfConstruction > math.MaxInt32 || hdr.MaxLevel > MaxLevel {
		return fmt.Errorf("%w: parameters out of range", ErrFormat)
	}
	if hdr.Dimension > math.MaxInt32 || hdr.MaxElements >= uint64(NoNode) || hdr.Count >= uint64(NoNode) {
		return fmt.Errorf("%w: dimension %d with %d elements", ErrAllocation, hdr.Dimension, hdr.MaxElements)
	}
	if hdr.Count > 0 && hdr.Count > uint64(math.MaxInt/4)/hdr.Dimension {
		return fmt.Errorf("%w: %d vectors of dimension %d", ErrAllocation, hdr.Count, hdr.Dimension)
	}
	return nil
}
