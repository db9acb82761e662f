// SPDX-License-Identifier: MIT
/*
Package bitint holds the power-of-two helpers used when sizing transform
windows. A window length that is a power of two keeps the FFT on its fastest
radix path; any other length still works but costs more per window.

	size := bitint.NextPowerOfTwo(1000) // 1024
	fast := bitint.IsPowerOfTwo(4096)   // true

Both functions are constant time and allocation free.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// size <= 1. Taking the bit length of size-1 keeps exact powers unchanged.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0 and -1 otherwise.
func Log2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}
