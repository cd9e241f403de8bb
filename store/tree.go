// Package store materialises a sparse Merkle tree in a key/value database
// and produces the compact proofs the engine consumes. Nodes are addressed
// by their hash; mutations build the witness, run it through the engine's
// transition and persist the re-derived path.
package store

import (
	"errors"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/treeproof/sparse-merkle-tree/db"
	"github.com/treeproof/sparse-merkle-tree/logger"
	"github.com/treeproof/sparse-merkle-tree/smt"
)

const rootKeyPrefix = byte(0)
const nodeKeyPrefix = byte(1)

var rootKey = []byte{rootKeyPrefix}

var (
	ErrKeyNotFound     = errors.New("key not found in tree")
	ErrKeyExists       = errors.New("key already exists")
	ErrReachedMaxLevel = errors.New("reached maximum level of the tree")
)

type Tree struct {
	tx     db.Transaction
	engine *smt.SMT
	log    zerolog.Logger
}

func NewTree(tx db.Transaction, engine *smt.SMT) *Tree {
	return &Tree{
		tx:     tx,
		engine: engine,
		log:    logger.Logger(),
	}
}

// Root returns the current root hash; the empty tree's root is the default
// value.
func (t *Tree) Root() (*big.Int, error) {
	b, err := t.tx.Get(rootKey)
	if errors.Is(err, db.ErrNotFound) {
		return t.engine.DefaultValue(), nil
	} else if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func (t *Tree) setRoot(h *big.Int) error {
	return t.tx.Set(rootKey, h.Bytes())
}

// Get returns the value stored under key.
func (t *Tree) Get(key *big.Int) (*big.Int, error) {
	p, err := t.prove(key)
	if err != nil {
		return nil, err
	}
	if p.EmptyLeaf || !t.engine.KeyEq(p.Key, key) {
		return nil, ErrKeyNotFound
	}
	return p.Value, nil
}

// ProveInclusion builds the inclusion proof for a present key.
func (t *Tree) ProveInclusion(key *big.Int) (*smt.Proof, error) {
	p, err := t.prove(key)
	if err != nil {
		return nil, err
	}
	if p.EmptyLeaf || !t.engine.KeyEq(p.Key, key) {
		return nil, ErrKeyNotFound
	}
	return p, nil
}

// ProveExclusion builds the exclusion proof for an absent key: either the
// key's path ends in an empty subtree, or in the occupying leaf of a
// different key.
func (t *Tree) ProveExclusion(key *big.Int) (*smt.Proof, error) {
	p, err := t.prove(key)
	if err != nil {
		return nil, err
	}
	if !p.EmptyLeaf && t.engine.KeyEq(p.Key, key) {
		return nil, ErrKeyExists
	}
	return p, nil
}

// Insert adds a new (key, value) leaf and returns the new root.
func (t *Tree) Insert(key, value *big.Int) (*big.Int, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	p, err := t.ProveExclusion(key)
	if err != nil {
		return nil, err
	}
	next, err := t.engine.Process(p, smt.OpInsert, key, value, root)
	if err != nil {
		return nil, err
	}
	newRoot, err := t.commit(next)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Str("key", key.String()).Str("root", newRoot.String()).Msg("insert")
	return newRoot, nil
}

// Update replaces the value of an existing key and returns the new root.
func (t *Tree) Update(key, value *big.Int) (*big.Int, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	p, err := t.ProveInclusion(key)
	if err != nil {
		return nil, err
	}
	next, err := t.engine.Process(p, smt.OpUpdate, key, value, root)
	if err != nil {
		return nil, err
	}
	newRoot, err := t.commit(next)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Str("key", key.String()).Str("root", newRoot.String()).Msg("update")
	return newRoot, nil
}

// Set inserts or updates, whichever applies.
func (t *Tree) Set(key, value *big.Int) (*big.Int, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return t.Insert(key, value)
	} else if err != nil {
		return nil, err
	}
	return t.Update(key, value)
}

// Delete removes key's leaf and returns the new root. The transition runs
// on the inclusion proof of the deleted leaf's nearest remaining neighbour,
// or of the leaf itself when it is the tree's only entry.
func (t *Tree) Delete(key *big.Int) (*big.Int, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	target, err := t.ProveInclusion(key)
	if err != nil {
		return nil, err
	}

	proof := target
	for i := t.engine.Levels() - 1; i >= 0; i-- {
		if t.engine.HashEq(target.Siblings[i], t.engine.DefaultValue()) {
			continue
		}
		witnessKey, err := t.anyLeafKey(target.Siblings[i])
		if err != nil {
			return nil, err
		}
		proof, err = t.ProveInclusion(witnessKey)
		if err != nil {
			return nil, err
		}
		break
	}

	next, err := t.engine.Process(proof, smt.OpDelete, key, target.Value, root)
	if err != nil {
		return nil, err
	}
	newRoot, err := t.commit(next)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Str("key", key.String()).Str("root", newRoot.String()).Msg("delete")
	return newRoot, nil
}

// commit persists the leaf and the branch nodes implied by a transitioned
// proof and moves the root to the proof's computed root. Nodes left behind
// by previous states stay in the database unreferenced.
func (t *Tree) commit(p *smt.Proof) (*big.Int, error) {
	h, err := t.engine.HashLeaf(p.EmptyLeaf, p.Key, p.Value)
	if err != nil {
		return nil, err
	}
	if !p.EmptyLeaf {
		if err := t.tx.Set(t.nodeKey(h), leaf(p.Key, p.Value).bytes()); err != nil {
			return nil, err
		}
	}
	bits := t.engine.ToBits(p.Key)
	bitmap := t.engine.Bitmap(p)
	for i := t.engine.Levels() - 1; i >= 0; i-- {
		if !bitmap[i] {
			continue
		}
		l, r := h, p.Siblings[i]
		if bits[i] {
			l, r = p.Siblings[i], h
		}
		parent, err := t.engine.HashBranch(l, r)
		if err != nil {
			return nil, err
		}
		if err := t.tx.Set(t.nodeKey(parent), middle(l, r).bytes()); err != nil {
			return nil, err
		}
		h = parent
	}
	if err := t.setRoot(h); err != nil {
		return nil, err
	}
	return h, nil
}

// prove walks key's path from the root and collects the off-path child at
// every level. The walk stops at an empty subtree or at a leaf, which may
// belong to a different key.
func (t *Tree) prove(key *big.Int) (*smt.Proof, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	siblings := make([]*big.Int, t.engine.Levels())
	for i := range siblings {
		siblings[i] = t.engine.DefaultValue()
	}
	bits := t.engine.ToBits(key)
	h := root
	for i := 0; ; i++ {
		if t.engine.HashEq(h, t.engine.DefaultValue()) {
			return &smt.Proof{
				EmptyLeaf: true,
				Key:       key,
				Value:     new(big.Int),
				Siblings:  siblings,
			}, nil
		}
		n, err := t.node(h)
		if err != nil {
			return nil, err
		}
		if n.typ == leafNode {
			return &smt.Proof{
				Key:      n.key,
				Value:    n.value,
				Siblings: siblings,
			}, nil
		}
		if i == t.engine.Levels() {
			return nil, ErrReachedMaxLevel
		}
		if bits[i] {
			siblings[i] = n.left
			h = n.right
		} else {
			siblings[i] = n.right
			h = n.left
		}
	}
}

// anyLeafKey descends a non-empty subtree to one of its leaves.
func (t *Tree) anyLeafKey(h *big.Int) (*big.Int, error) {
	for i := 0; i <= t.engine.Levels(); i++ {
		n, err := t.node(h)
		if err != nil {
			return nil, err
		}
		if n.typ == leafNode {
			return n.key, nil
		}
		if t.engine.HashEq(n.left, t.engine.DefaultValue()) {
			h = n.right
		} else {
			h = n.left
		}
	}
	return nil, ErrReachedMaxLevel
}

func (t *Tree) node(h *big.Int) (*node, error) {
	b, err := t.tx.Get(t.nodeKey(h))
	if err != nil {
		return nil, err
	}
	return bytesToNode(b)
}

func (t *Tree) nodeKey(h *big.Int) []byte {
	return append([]byte{nodeKeyPrefix}, h.Bytes()...)
}
