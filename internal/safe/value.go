// Package safe holds clamped integer conversions and guarded file helpers.
package safe

import (
	"math"
)

// IntToUint64 converts a non-negative int to uint64, clamping negatives to zero.
func IntToUint64(val int) (uint64, bool) {
	if val < 0 {
		return 0, true
	}
	return uint64(val), false
}

// Int32ToUint32 converts a non-negative int32 to uint32, clamping negatives to zero.
func Int32ToUint32(val int32) (uint32, bool) {
	if val < 0 {
		return 0, true
	}
	return uint32(val), false
}

// IntToInt32 converts an int to int32, clamping to the int32 range.
func IntToInt32(val int) (int32, bool) {
	if val > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if val < math.MinInt32 {
		return math.MinInt32, true
	}
	return int32(val), false
}
