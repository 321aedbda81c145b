package common

import (
	"cmp"
	"math"
)

// / Returns the square of the value.
// / @param[in]		a	The value.
// / @return The square of the value.
func Sqr[T IT](a T) T {
	return a * a
}

// / Returns the absolute value.
// / @param[in]		a	The value.
// / @return The absolute value of the specified value.
func Abs[T IT](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// / Clamps the value to the specified range.
func Clamp[T cmp.Ordered](value, minInclusive, maxInclusive T) T {
	if value < minInclusive {
		return minInclusive
	}
	if value > maxInclusive {
		return maxInclusive
	}
	return value
}

// / Selects the minimum value of each element from the specified vectors.
// / @param[in,out]	mn	A vector.  (Will be updated with the result.) [(x, y, z)]
// / @param[in]		v	A vector. [(x, y, z)]
func Vmin[T float64 | float32](mn, v []T) {
	mn[0] = min(mn[0], v[0])
	mn[1] = min(mn[1], v[1])
	mn[2] = min(mn[2], v[2])
}

// / Selects the maximum value of each element from the specified vectors.
// / @param[in,out]	mx	A vector.  (Will be updated with the result.) [(x, y, z)]
// / @param[in]		v	A vector. [(x, y, z)]
func Vmax[T float64 | float32](mx, v []T) {
	mx[0] = max(mx[0], v[0])
	mx[1] = max(mx[1], v[1])
	mx[2] = max(mx[2], v[2])
}

// NextPow2 rounds v up to the next power of two. Zero stays zero.
func NextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

// Ilog2 returns floor(log2(v)), and 0 for v == 0.
func Ilog2(v uint32) uint32 {
	getBool := func(b bool) uint32 {
		if b {
			return 1
		}
		return 0
	}
	var r uint32
	var shift uint32
	r = getBool(v > 0xffff) << 4
	v >>= r
	shift = getBool(v > 0xff) << 3
	v >>= shift
	r |= shift
	shift = getBool(v > 0xf) << 2
	v >>= shift
	r |= shift
	shift = getBool(v > 0x3) << 1
	v >>= shift
	r |= shift
	r |= v >> 1
	return r
}

// IsPow2 reports whether v is a non-zero power of two.
func IsPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// CeilDiv divides a by b rounding up, for a >= 0 and b > 0.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
