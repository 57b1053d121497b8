package index

import (
	"fmt"

	"github.com/xDarkicex/quickhnsw/internal/index/flat"
	"github.com/xDarkicex/quickhnsw/internal/index/hnsw"
)

// Kind selects an index implementation
type Kind int

const (
	KindHNSW Kind = iota
	KindFlat
)

func (k Kind) String() string {
	switch k {
	case KindHNSW:
		return "hnsw"
	case KindFlat:
		return "flat"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps "hnsw" or "flat" to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "hnsw":
		return KindHNSW, nil
	case "flat":
		return KindFlat, nil
	default:
		return 0, fmt.Errorf("%w: unsupported index type %q", hnsw.ErrInvalidArgument, s)
	}
}

// SupportedKinds returns a list of supported index types
func SupportedKinds() []Kind {
	return []Kind{KindHNSW, KindFlat}
}

// New creates an index of the given kind. The flat index reads only
// Dimension and MaxElements from config.
func New(kind Kind, config *hnsw.Config) (Index, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", hnsw.ErrInvalidArgument)
	}

	// Typed nil pointers must not escape as non-nil interfaces
	switch kind {
	case KindHNSW:
		idx, err := hnsw.NewHNSW(config)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case KindFlat:
		idx, err := flat.NewFlat(config.Dimension, config.MaxElements)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unsupported index type %v", hnsw.ErrInvalidArgument, kind)
	}
}
