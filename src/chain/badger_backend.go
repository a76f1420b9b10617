package chain

import (
	"sort"

	cm "github.com/agoranet/agora/src/common"
	"github.com/dgraph-io/badger"
)

// BadgerBackend is the default durable backend, a BadgerDB database holding
// blocks and anchors under slot-indexed keys.
type BadgerBackend struct {
	db   *badger.DB
	path string
}

// NewBadgerBackend opens, or creates, a Badger database at path.
func NewBadgerBackend(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerBackend{
		db:   handle,
		path: path,
	}, nil
}

// Path returns the database directory.
func (b *BadgerBackend) Path() string {
	return b.path
}

// SetBlock ...
func (b *BadgerBackend) SetBlock(block *Block) error {
	tx := b.db.NewTransaction(true)
	defer tx.Discard()

	key := blockKey(block.Slot())
	val, err := block.Marshal()
	if err != nil {
		return err
	}

	//insert [slot] => [block bytes]
	if err := tx.Set(key, val); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBlock ...
func (b *BadgerBackend) GetBlock(slot int) (*Block, error) {
	var blockBytes []byte
	key := blockKey(slot)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		blockBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapBadgerError(err, "Block", string(key))
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}

	return block, nil
}

// GetBlocks returns the blocks with fromSlot <= slot <= toSlot in ascending
// slot order.
func (b *BadgerBackend) GetBlocks(fromSlot, toSlot int) ([]*Block, error) {
	res := []*Block{}

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockPrefix + "_")

		for it.Seek(blockKey(fromSlot)); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			block := new(Block)
			if err := block.Unmarshal(v); err != nil {
				return err
			}

			if block.Slot() > toSlot {
				break
			}

			res = append(res, block)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetLatestBlock returns the block with the maximum slot.
func (b *BadgerBackend) GetLatestBlock() (*Block, error) {
	var blockBytes []byte

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(blockPrefix + "_")

		// 0xFF sorts after every digit, so a reverse seek lands on the
		// highest block key
		seek := append([]byte{}, prefix...)
		seek = append(seek, 0xFF)

		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return cm.NewStoreErr("Block", cm.Empty, "latest")
		}

		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}

		blockBytes = v

		return nil
	})

	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}

	return block, nil
}

// SetAnchor ...
func (b *BadgerBackend) SetAnchor(anchor *Anchor) error {
	tx := b.db.NewTransaction(true)
	defer tx.Discard()

	key := anchorKey(anchor.Slot)
	val, err := anchor.Marshal()
	if err != nil {
		return err
	}

	//insert [slot] => [anchor bytes]
	if err := tx.Set(key, val); err != nil {
		return err
	}

	return tx.Commit()
}

// GetAnchor ...
func (b *BadgerBackend) GetAnchor(slot int) (*Anchor, error) {
	var anchorBytes []byte
	key := anchorKey(slot)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		anchorBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapBadgerError(err, "Anchor", string(key))
	}

	anchor := new(Anchor)
	if err := anchor.Unmarshal(anchorBytes); err != nil {
		return nil, err
	}

	return anchor, nil
}

// GetFailedAnchors returns anchors with status failed, oldest first.
func (b *BadgerBackend) GetFailedAnchors(limit int) ([]*Anchor, error) {
	failed := []*Anchor{}

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(anchorPrefix + "_")

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			anchor := new(Anchor)
			if err := anchor.Unmarshal(v); err != nil {
				return err
			}

			if anchor.Status == StatusFailed {
				failed = append(failed, anchor)
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sortFailedAnchors(failed)

	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	return failed, nil
}

// Close ...
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// sortFailedAnchors orders anchors oldest first, breaking creation-time ties
// by slot.
func sortFailedAnchors(anchors []*Anchor) {
	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].CreatedAt != anchors[j].CreatedAt {
			return anchors[i].CreatedAt < anchors[j].CreatedAt
		}
		return anchors[i].Slot < anchors[j].Slot
	})
}

func mapBadgerError(err error, name, key string) error {
	if err == badger.ErrKeyNotFound {
		return cm.NewStoreErr(name, cm.KeyNotFound, key)
	}
	return err
}
