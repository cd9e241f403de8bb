// Package bn254 instantiates the proof engine over the BN254 scalar field
// with the Pedersen, Poseidon and Poseidon2 hash families.
package bn254

import (
	"math/big"

	"github.com/treeproof/sparse-merkle-tree/smt"
	"github.com/treeproof/sparse-merkle-tree/utils"
)

var one = big.NewInt(1)

func newField(levels int, leaf func(key, value *big.Int) (*big.Int, error), branch smt.BranchHashFn) (*smt.SMT, error) {
	zero := new(big.Int)
	hashLeaf := func(empty bool, key, value *big.Int) (*big.Int, error) {
		if empty {
			return zero, nil
		}
		return leaf(key, value)
	}
	toBits := func(key *big.Int) []bool {
		return utils.KeyBits(key, levels)
	}
	eq := func(a, b *big.Int) bool {
		return a.Cmp(b) == 0
	}
	return smt.New(levels, zero, hashLeaf, branch, toBits, eq, eq)
}
