package election

import (
	"github.com/pkg/errors"
)

// EpochBoundary decides which epoch the boundary block k*epochSize belongs to.
type EpochBoundary int

const (
	// BoundaryLastBlock treats block k*epochSize as the last block of epoch k. The election for
	// epoch k+1 is applied after that block, so block k*epochSize is still signed by epoch k's set.
	BoundaryLastBlock EpochBoundary = iota
	// BoundaryFirstBlock treats block k*epochSize as the first block of epoch k.
	BoundaryFirstBlock
)

func ParseEpochBoundary(value string) (EpochBoundary, error) {
	switch value {
	case "last-block", "":
		return BoundaryLastBlock, nil
	case "first-block":
		return BoundaryFirstBlock, nil
	default:
		return 0, errors.Errorf("unknown epoch boundary [%s], expected last-block or first-block", value)
	}
}

func (b EpochBoundary) String() string {
	if b == BoundaryFirstBlock {
		return "first-block"
	}
	return "last-block"
}

// EpochNumber returns the epoch governing the given block. Block 0 is always epoch 0.
func (b EpochBoundary) EpochNumber(blockNumber, epochSize uint64) uint64 {
	if b == BoundaryFirstBlock {
		return blockNumber / epochSize
	}
	epoch := blockNumber / epochSize
	if blockNumber%epochSize != 0 {
		epoch++
	}
	return epoch
}
