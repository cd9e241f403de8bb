package smt

import (
	"math/big"

	"github.com/treeproof/sparse-merkle-tree/utils"
)

// Proof is the compact witness for one key's path. Siblings[i] is the
// sibling hash at walk depth i, combined with bit i of the key: index 0 is
// the root-level sibling, index D-1 the leaf-adjacent one. Levels whose
// subtree is empty carry the default value.
type Proof struct {
	EmptyLeaf bool
	Key       *big.Int
	Value     *big.Int
	Siblings  []*big.Int
}

// EmptyProof returns the proof of the empty tree. Its computed root is the
// default value.
func (s *SMT) EmptyProof() *Proof {
	siblings := make([]*big.Int, s.levels)
	for i := range siblings {
		siblings[i] = s.defaultValue
	}
	return &Proof{
		EmptyLeaf: true,
		Key:       new(big.Int),
		Value:     new(big.Int),
		Siblings:  siblings,
	}
}

func (s *SMT) checkProof(p *Proof) error {
	if len(p.Siblings) != s.levels {
		return ErrSiblingCount
	}
	return nil
}

// Bitmap marks the levels at which a branch hash is computed: level i is
// active iff some sibling at depth >= i is non-default. Levels below the
// deepest non-default sibling pass the running hash through unchanged, so a
// subtree holding a single leaf keeps that leaf's hash all the way up to its
// first real branch.
func (s *SMT) Bitmap(p *Proof) []bool {
	bitmap := make([]bool, len(p.Siblings))
	active := false
	for i := len(p.Siblings) - 1; i >= 0; i-- {
		active = active || !s.hashEq(p.Siblings[i], s.defaultValue)
		bitmap[i] = active
	}
	return bitmap
}

// ComputeRoot folds the proof's siblings from the leaf up and returns the
// implied root.
func (s *SMT) ComputeRoot(p *Proof) (*big.Int, error) {
	if err := s.checkProof(p); err != nil {
		return nil, err
	}
	leaf, err := s.hashLeaf(p.EmptyLeaf, p.Key, p.Value)
	if err != nil {
		return nil, err
	}
	levels := utils.Zip3(p.Siblings, s.toBits(p.Key), s.Bitmap(p))
	return utils.Foldr(func(lv utils.Triple[*big.Int, bool, bool], h *big.Int) (*big.Int, error) {
		if !lv.C {
			return h, nil
		}
		if lv.B {
			return s.hashBranch(lv.A, h)
		}
		return s.hashBranch(h, lv.A)
	}, leaf, levels)
}

// Verify checks an inclusion proof against the given root.
func (s *SMT) Verify(p *Proof, root *big.Int) (bool, error) {
	if err := s.checkProof(p); err != nil {
		return false, err
	}
	if p.EmptyLeaf {
		return false, ErrEmptyLeaf
	}
	h, err := s.ComputeRoot(p)
	if err != nil {
		return false, err
	}
	return s.hashEq(h, root), nil
}

// VerifyExclusion checks that excludedKey is absent from the tree with the
// given root. The proof either resolves the excluded key's path to an empty
// leaf (direct exclusion) or to an occupied leaf of a different key
// (indirect exclusion); either way the sibling at the first divergence must
// be the default value, so the excluded key's side of the split is empty.
func (s *SMT) VerifyExclusion(p *Proof, excludedKey, root *big.Int) (bool, error) {
	if err := s.checkProof(p); err != nil {
		return false, err
	}
	eq := true
	for i, b := range utils.Zip(s.toBits(p.Key), s.toBits(excludedKey)) {
		if !eq || b.A == b.B {
			continue
		}
		if !s.hashEq(p.Siblings[i], s.defaultValue) {
			return false, ErrSiblingNotDefault
		}
		eq = false
	}
	// Equal keys witness exclusion only through an empty leaf; an occupied
	// leaf at the excluded key's own path is an inclusion.
	if eq && !p.EmptyLeaf {
		return false, ErrKeyIncluded
	}
	h, err := s.ComputeRoot(p)
	if err != nil {
		return false, err
	}
	return s.hashEq(h, root), nil
}
