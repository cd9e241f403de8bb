package bn254

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"

	"github.com/treeproof/sparse-merkle-tree/smt"
)

const pedersenDomain = "sparse-merkle-tree/pedersen/generator/"

// Fixed Baby Jubjub generators, derived once from the curve base point with
// domain-separated scalars.
var pedersenGenerators = sync.OnceValue(func() [3]twistededwards.PointAffine {
	curve := twistededwards.GetEdwardsCurve()
	var gens [3]twistededwards.PointAffine
	for i := range gens {
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		seed := sha256.Sum256(append([]byte(pedersenDomain), idx[:]...))
		s := new(big.Int).SetBytes(seed[:])
		s.Mod(s, &curve.Order)
		gens[i].ScalarMultiplication(&curve.Base, s)
	}
	return gens
})

// NewPedersen returns an SMT of the given depth hashing over Baby Jubjub:
// the digest is the x coordinate of the inputs' multi-scalar combination
// with the fixed generators. Leaves commit to (key, value, 1), branches to
// (l, r).
func NewPedersen(levels int) (*smt.SMT, error) {
	gens := pedersenGenerators()
	return newField(levels,
		func(key, value *big.Int) (*big.Int, error) {
			return pedersenSum(gens[:], key, value, one), nil
		},
		func(l, r *big.Int) (*big.Int, error) {
			return pedersenSum(gens[:2], l, r), nil
		})
}

func pedersenSum(gens []twistededwards.PointAffine, inputs ...*big.Int) *big.Int {
	var acc twistededwards.PointAffine
	acc.X.SetZero()
	acc.Y.SetOne()
	for i, in := range inputs {
		var term twistededwards.PointAffine
		term.ScalarMultiplication(&gens[i], in)
		acc.Add(&acc, &term)
	}
	return acc.X.BigInt(new(big.Int))
}
