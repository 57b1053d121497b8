package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// record is one parsed line of a vector file
type record struct {
	Label  uint64
	Vector []float32
}

// parseVector reads comma or whitespace separated floats
func parseVector(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty vector")
	}

	vec := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// readVectors parses one vector per line. A line may start with "label:".
// Unlabeled vectors take their ordinal as label. Blank lines and lines
// starting with '#' are skipped. All vectors must share one dimension.
func readVectors(r io.Reader) ([]record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var records []record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		label := uint64(len(records))
		if head, tail, ok := strings.Cut(line, ":"); ok {
			l, err := strconv.ParseUint(strings.TrimSpace(head), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid label %q: %w", lineNo, head, err)
			}
			label, line = l, tail
		}

		vec, err := parseVector(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(records) > 0 && len(vec) != len(records[0].Vector) {
			return nil, fmt.Errorf("line %d: dimension %d differs from %d", lineNo, len(vec), len(records[0].Vector))
		}
		records = append(records, record{Label: label, Vector: vec})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}
	return records, nil
}
