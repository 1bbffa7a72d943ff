package security

import (
	"math"

	"github.com/forensiccore/diskvault/internal/coreerr"
)

// CheckedMulU64 multiplies a and b, failing with InvalidFormat on overflow
// rather than wrapping silently.
func CheckedMulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	result := a * b
	if result/a != b {
		return 0, coreerr.InvalidFormatf("arithmetic overflow: %d * %d", a, b)
	}
	return result, nil
}

// CheckedAddU64 adds a and b, failing with InvalidFormat on overflow.
func CheckedAddU64(a, b uint64) (uint64, error) {
	result := a + b
	if result < a {
		return 0, coreerr.InvalidFormatf("arithmetic overflow: %d + %d", a, b)
	}
	return result, nil
}

// CheckedSubU64 subtracts b from a, failing with InvalidFormat on underflow.
func CheckedSubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, coreerr.InvalidFormatf("arithmetic underflow: %d - %d", a, b)
	}
	return a - b, nil
}

// U64ToUsize converts a uint64 to an int, failing on hosts where the value
// would not fit (relevant on 32-bit platforms).
func U64ToUsize(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, coreerr.LimitExceededf("value %d exceeds platform int range", v)
	}
	return int(v), nil
}

// ValidateAllocation returns size as an int if it is within limit, else a
// LimitExceeded error naming context. Callers should treat the returned
// int as a safe argument to make([]byte, n) — the check has already
// happened, so no separate try-reserve step is needed in Go.
func ValidateAllocation(size uint64, limit uint64, context string) (int, error) {
	if size > limit {
		return 0, coreerr.LimitExceededf("%s: %d > %d", context, size, limit)
	}
	return U64ToUsize(size)
}

// IsPowerOfTwo reports whether v is a nonzero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
