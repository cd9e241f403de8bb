package bn254

import (
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mdehoog/poseidon/poseidon"

	"github.com/treeproof/sparse-merkle-tree/smt"
)

// NewPoseidon returns an SMT of the given depth hashing leaves as
// Poseidon(key, value, 1) and branches as Poseidon(l, r), with the
// circomlib-compatible constants.
func NewPoseidon(levels int) (*smt.SMT, error) {
	return newField(levels,
		func(key, value *big.Int) (*big.Int, error) {
			return poseidon.Hash[*fr.Element]([]*big.Int{key, value, one})
		},
		func(l, r *big.Int) (*big.Int, error) {
			return poseidon.Hash[*fr.Element]([]*big.Int{l, r})
		})
}
