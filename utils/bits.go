package utils

import "math/big"

// KeyBits decomposes key into n little-endian bits: bit 0 is the least
// significant. Bits beyond the key's width are false.
func KeyBits(key *big.Int, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = key.Bit(i) == 1
	}
	return bits
}
