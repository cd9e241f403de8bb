package store

import (
	"math/big"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/treeproof/sparse-merkle-tree/bn254"
	"github.com/treeproof/sparse-merkle-tree/db"
	"github.com/treeproof/sparse-merkle-tree/smt"
)

func testDB(t *testing.T) db.Database {
	t.Helper()
	pdb, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	d := db.NewPebble(pdb)
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func testTree(t *testing.T, levels int) (*Tree, *smt.SMT) {
	t.Helper()
	engine, err := bn254.NewPoseidon(levels)
	require.NoError(t, err)
	tx := testDB(t).NewTransaction()
	t.Cleanup(tx.Discard)
	return NewTree(tx, engine), engine
}

func TestEmptyTree(t *testing.T) {
	tree, _ := testTree(t, 8)
	root, err := tree.Root()
	require.NoError(t, err)
	require.Zero(t, root.Sign())

	_, err = tree.Get(big.NewInt(1))
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = tree.ProveInclusion(big.NewInt(1))
	require.ErrorIs(t, err, ErrKeyNotFound)

	p, err := tree.ProveExclusion(big.NewInt(1))
	require.NoError(t, err)
	require.True(t, p.EmptyLeaf)
}

func TestInsertGetProve(t *testing.T) {
	tree, engine := testTree(t, 8)

	keys := []int64{1, 2, 5, 12, 200, 77}
	for _, k := range keys {
		_, err := tree.Insert(big.NewInt(k), big.NewInt(k*10))
		require.NoError(t, err)
	}
	root, err := tree.Root()
	require.NoError(t, err)

	for _, k := range keys {
		v, err := tree.Get(big.NewInt(k))
		require.NoError(t, err)
		require.Equal(t, big.NewInt(k*10), v)

		p, err := tree.ProveInclusion(big.NewInt(k))
		require.NoError(t, err)
		ok, err := engine.Verify(p, root)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, k := range []int64{3, 42, 201} {
		p, err := tree.ProveExclusion(big.NewInt(k))
		require.NoError(t, err)
		ok, err := engine.VerifyExclusion(p, big.NewInt(k), root)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err = tree.Insert(big.NewInt(5), big.NewInt(99))
	require.ErrorIs(t, err, ErrKeyExists)
	_, err = tree.ProveExclusion(big.NewInt(5))
	require.ErrorIs(t, err, ErrKeyExists)
	_, err = tree.Update(big.NewInt(404), big.NewInt(1))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestUpdate(t *testing.T) {
	tree, engine := testTree(t, 8)

	_, err := tree.Insert(big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)
	root1, err := tree.Insert(big.NewInt(6), big.NewInt(60))
	require.NoError(t, err)

	root2, err := tree.Update(big.NewInt(6), big.NewInt(61))
	require.NoError(t, err)
	require.NotEqual(t, root1, root2)

	v, err := tree.Get(big.NewInt(6))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(61), v)

	p, err := tree.ProveInclusion(big.NewInt(6))
	require.NoError(t, err)
	ok, err := engine.Verify(p, root2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSet(t *testing.T) {
	tree, _ := testTree(t, 8)

	_, err := tree.Set(big.NewInt(9), big.NewInt(90))
	require.NoError(t, err)
	_, err = tree.Set(big.NewInt(9), big.NewInt(91))
	require.NoError(t, err)

	v, err := tree.Get(big.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(91), v)
}

func TestDeleteUnwindsRoots(t *testing.T) {
	tree, engine := testTree(t, 8)

	keys := []int64{1, 5, 2, 12, 130, 7}
	roots := make([]*big.Int, 0, len(keys)+1)
	root, err := tree.Root()
	require.NoError(t, err)
	roots = append(roots, root)
	for _, k := range keys {
		root, err = tree.Insert(big.NewInt(k), big.NewInt(k+100))
		require.NoError(t, err)
		roots = append(roots, root)
	}

	for i := len(keys) - 1; i >= 0; i-- {
		oldRoot := roots[i+1]
		newRoot, err := tree.Delete(big.NewInt(keys[i]))
		require.NoError(t, err)
		require.Equal(t, roots[i], newRoot)

		// the deletion replays as its inverse insertion
		p, err := tree.ProveExclusion(big.NewInt(keys[i]))
		require.NoError(t, err)
		require.NoError(t, engine.VerifyDeletion(p, big.NewInt(keys[i]), big.NewInt(keys[i]+100), newRoot, oldRoot))

		_, err = tree.Get(big.NewInt(keys[i]))
		require.ErrorIs(t, err, ErrKeyNotFound)
	}

	root, err = tree.Root()
	require.NoError(t, err)
	require.Zero(t, root.Sign())

	_, err = tree.Delete(big.NewInt(1))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSingletonDeleteAndReinsert(t *testing.T) {
	tree, _ := testTree(t, 8)

	_, err := tree.Insert(big.NewInt(4), big.NewInt(40))
	require.NoError(t, err)
	root, err := tree.Delete(big.NewInt(4))
	require.NoError(t, err)
	require.Zero(t, root.Sign())

	root, err = tree.Insert(big.NewInt(4), big.NewInt(41))
	require.NoError(t, err)
	require.NotZero(t, root.Sign())
	v, err := tree.Get(big.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(41), v)
}

func TestCommitPersists(t *testing.T) {
	engine, err := bn254.NewPoseidon(8)
	require.NoError(t, err)
	d := testDB(t)

	tx := d.NewTransaction()
	tree := NewTree(tx, engine)
	_, err = tree.Insert(big.NewInt(3), big.NewInt(30))
	require.NoError(t, err)
	_, err = tree.Insert(big.NewInt(8), big.NewInt(80))
	require.NoError(t, err)
	root, err := tree.Root()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tree = NewTree(d.NewTransaction(), engine)
	got, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, root, got)
	v, err := tree.Get(big.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(80), v)
}

func TestDiscardDropsChanges(t *testing.T) {
	engine, err := bn254.NewPoseidon(8)
	require.NoError(t, err)
	d := testDB(t)

	tx := d.NewTransaction()
	tree := NewTree(tx, engine)
	_, err = tree.Insert(big.NewInt(3), big.NewInt(30))
	require.NoError(t, err)
	tx.Discard()

	tree = NewTree(d.NewTransaction(), engine)
	root, err := tree.Root()
	require.NoError(t, err)
	require.Zero(t, root.Sign())
}
