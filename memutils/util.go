package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

// CheckPow2 returns PowerOfTwoError, wrapped with the provided name, if number is not a power of two.
// Zero passes this check; callers that care about zero must reject it themselves.
func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignDown rounds value down to the previous multiple of alignment. alignment does not need
// to be a power of two, but must not be 0.
func AlignDown(value uint64, alignment uint64) uint64 {
	return (value / alignment) * alignment
}
