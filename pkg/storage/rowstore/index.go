package rowstore

import (
	"bytes"

	"setexec/pkg/primitives"

	"github.com/google/btree"
)

const btreeDegree = 32

// uniqueItem orders rows by their canonical encoding. Equal encodings mean
// equal rows, so the tree enforces row uniqueness.
type uniqueItem struct {
	key []byte
	id  primitives.RowID
}

func (u uniqueItem) Less(than btree.Item) bool {
	return bytes.Compare(u.key, than.(uniqueItem).key) < 0
}

// hashItem is an entry of the non-unique hash index: several rows may share
// a hash, so the row id breaks ties.
type hashItem struct {
	hash primitives.HashCode
	id   primitives.RowID
}

func (h hashItem) Less(than btree.Item) bool {
	o := than.(hashItem)
	if h.hash != o.hash {
		return h.hash < o.hash
	}
	return h.id < o.id
}

// candidates calls fn with the id of every row indexed under hash, in row id
// order, until fn returns false.
func candidates(idx *btree.BTree, hash primitives.HashCode, fn func(primitives.RowID) bool) {
	idx.AscendGreaterOrEqual(hashItem{hash: hash}, func(i btree.Item) bool {
		item := i.(hashItem)
		if item.hash != hash {
			return false
		}
		return fn(item.id)
	})
}
