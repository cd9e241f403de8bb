package bn254

import (
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/treeproof/sparse-merkle-tree/smt"
)

const (
	poseidon2FullRounds    = 8
	poseidon2PartialRounds = 56
)

// NewPoseidon2 returns an SMT of the given depth backed by the Poseidon2
// permutation: width 3 (rate 2) for branches and width 4 (rate 3) for
// leaves, with lane 0 reserved as capacity and lane 1 as output.
func NewPoseidon2(levels int) (*smt.SMT, error) {
	leafPerm := poseidon2.NewPermutation(4, poseidon2FullRounds, poseidon2PartialRounds)
	branchPerm := poseidon2.NewPermutation(3, poseidon2FullRounds, poseidon2PartialRounds)
	return newField(levels,
		func(key, value *big.Int) (*big.Int, error) {
			return permute(leafPerm, key, value, one)
		},
		func(l, r *big.Int) (*big.Int, error) {
			return permute(branchPerm, l, r)
		})
}

func permute(p *poseidon2.Permutation, inputs ...*big.Int) (*big.Int, error) {
	state := make([]fr.Element, len(inputs)+1)
	for i, in := range inputs {
		state[i+1].SetBigInt(in)
	}
	if err := p.Permutation(state); err != nil {
		return nil, err
	}
	return state[1].BigInt(new(big.Int)), nil
}
