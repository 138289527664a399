// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-2 helpers used to size analysis
windows. FFT window sizes are validated with IsPowerOfTwo and, when a
configured size is rejected, NextPowerOfTwo is used to suggest the
closest valid size.

Usage:

	// Suggest a valid analysis window for a rejected size
	suggestion := bitint.NextPowerOfTwo(4000) // Returns 4096

	// Verify the window size before building the FFT plan
	isValid := bitint.IsPowerOfTwo(windowSize)

----------------------------------------------------------------------

NextPowerOfTwo subtracts 1 before finding the highest set bit so that
exact powers of 2 map to themselves:

	- For input 4096:
	  size-1 = 4095 (twelve bits set)
	  bits.Len(4095) = 12
	  1 << 12 = 4096

	- Without the subtraction bits.Len(4096) = 13 and the result
	  would double to 8192.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
// Examples:
//
//	Input  Output
//	4096   4096
//	4000   4096
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// (n & (n-1)) clears the lowest set bit, so it is zero only when
// exactly one bit is set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
