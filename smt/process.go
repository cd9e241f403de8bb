package smt

import (
	"math/big"

	"github.com/treeproof/sparse-merkle-tree/utils"
)

// Process validates a proof against root, applies the transition and
// returns the proof of the post-operation tree. The input proof is left
// untouched; ComputeRoot on the result yields the new root.
func (s *SMT) Process(p *Proof, op Op, opKey, opValue, root *big.Int) (*Proof, error) {
	switch op {
	case OpInsert:
		ok, err := s.VerifyExclusion(p, opKey, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRootMismatch
		}
	case OpUpdate:
		if !s.keyEq(p.Key, opKey) {
			return nil, ErrKeyMismatch
		}
		ok, err := s.Verify(p, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRootMismatch
		}
	case OpDelete:
		ok, err := s.Verify(p, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRootMismatch
		}
	default:
		return nil, ErrInvalidOp
	}

	next := &Proof{
		Key:      opKey,
		Value:    opValue,
		Siblings: make([]*big.Int, len(p.Siblings)),
	}
	copy(next.Siblings, p.Siblings)
	if op == OpUpdate {
		// The leaf keeps its position, so its siblings are untouched.
		return next, nil
	}

	// The walk diverges at the lowest differing bit. There the old leaf
	// becomes the new leaf's sibling (insert), or the deleted leaf is
	// removed from the remaining leaf's ladder (delete).
	done := false
	for i, b := range utils.Zip(s.toBits(p.Key), s.toBits(opKey)) {
		switch {
		case !done && b.A != b.B:
			done = true
			if op == OpInsert {
				leaf, err := s.hashLeaf(p.EmptyLeaf, p.Key, p.Value)
				if err != nil {
					return nil, err
				}
				next.Siblings[i] = leaf
			} else {
				expected, err := s.hashLeaf(false, opKey, opValue)
				if err != nil {
					return nil, err
				}
				if !s.hashEq(next.Siblings[i], expected) {
					return nil, ErrSiblingMismatch
				}
				next.Siblings[i] = s.defaultValue
			}
		case done && op == OpInsert:
			// An exclusion proof resolves at or above the divergence, so
			// nothing may occupy the levels below it.
			if !s.hashEq(next.Siblings[i], s.defaultValue) {
				return nil, ErrSiblingNotDefault
			}
		}
	}

	if op == OpDelete {
		if !done {
			// Deleting the only leaf: the proof's own leaf is the target
			// and the tree must hold nothing else.
			for _, active := range s.Bitmap(p) {
				if active {
					return nil, ErrNotSingleton
				}
			}
			return s.EmptyProof(), nil
		}
		next.Key, next.Value = p.Key, p.Value
	}
	return next, nil
}

// InsertAndComputeRoot returns the root after inserting (key, value) into
// the tree with the given root. The proof must witness key's exclusion.
func (s *SMT) InsertAndComputeRoot(p *Proof, key, value, root *big.Int) (*big.Int, error) {
	next, err := s.Process(p, OpInsert, key, value, root)
	if err != nil {
		return nil, err
	}
	return s.ComputeRoot(next)
}

// UpdateAndComputeRoot returns the root after replacing key's value. The
// proof must witness key's current inclusion.
func (s *SMT) UpdateAndComputeRoot(p *Proof, key, value, root *big.Int) (*big.Int, error) {
	next, err := s.Process(p, OpUpdate, key, value, root)
	if err != nil {
		return nil, err
	}
	return s.ComputeRoot(next)
}

// DeleteAndComputeRoot returns the root after deleting (key, value). The
// proof is an inclusion proof of a remaining leaf whose sibling ladder
// carries the deleted leaf, or of the deleted leaf itself when it is the
// tree's only entry.
func (s *SMT) DeleteAndComputeRoot(p *Proof, key, value, root *big.Int) (*big.Int, error) {
	next, err := s.Process(p, OpDelete, key, value, root)
	if err != nil {
		return nil, err
	}
	return s.ComputeRoot(next)
}

// VerifyDeletion replays a deletion as its inverse insertion: p witnesses
// key's exclusion under newRoot, and re-inserting (key, value) must restore
// oldRoot.
func (s *SMT) VerifyDeletion(p *Proof, key, value, newRoot, oldRoot *big.Int) error {
	h, err := s.InsertAndComputeRoot(p, key, value, newRoot)
	if err != nil {
		return err
	}
	if !s.hashEq(h, oldRoot) {
		return ErrRootMismatch
	}
	return nil
}
