package compression

import (
	"fmt"

	"github.com/ruteri/compressed-tree-registry/interfaces"
)

const (
	// MaxDepth is the deepest supported tree.
	MaxDepth = 30

	// MaxCanopyDepth bounds the number of cached upper levels.
	MaxCanopyDepth = 17
)

// supportedBufferSizes maps each supported depth to its accepted changelog buffer sizes.
var supportedBufferSizes = map[uint32][]uint32{
	3:  {8},
	5:  {8},
	6:  {16},
	7:  {16},
	8:  {16},
	9:  {16},
	10: {32},
	11: {32},
	12: {32},
	13: {32},
	14: {64, 256, 1024, 2048},
	15: {64},
	16: {64},
	17: {64},
	18: {64},
	19: {64},
	20: {64, 256, 1024, 2048},
	24: {64, 256, 512, 1024, 2048},
	26: {512, 1024, 2048},
	30: {512, 1024, 2048},
}

// ValidateParams checks that (depth, buffer size) is a supported pair and that the canopy fits.
func ValidateParams(params interfaces.TreeParams) error {
	supported := false
	for _, size := range supportedBufferSizes[params.MaxDepth] {
		if size == params.MaxBufferSize {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: depth %d with buffer size %d", interfaces.ErrInvalidTreeParameters, params.MaxDepth, params.MaxBufferSize)
	}
	if params.CanopyDepth > params.MaxDepth || params.CanopyDepth > MaxCanopyDepth {
		return fmt.Errorf("%w: canopy depth %d for depth %d", interfaces.ErrInvalidTreeParameters, params.CanopyDepth, params.MaxDepth)
	}
	return nil
}

// Capacity returns the number of leaves a tree of the given depth holds.
func Capacity(depth uint32) uint64 {
	return 1 << depth
}
