package chain

import (
	cm "github.com/agoranet/agora/src/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelBackend is an alternative durable backend on LevelDB. It uses the
// same key scheme as BadgerBackend, so the two are interchangeable behind
// the db-backend configuration switch.
type LevelBackend struct {
	db   *leveldb.DB
	path string
}

// NewLevelBackend opens, or creates, a LevelDB database at path.
func NewLevelBackend(path string) (*LevelBackend, error) {
	handle, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelBackend{
		db:   handle,
		path: path,
	}, nil
}

// Path returns the database directory.
func (l *LevelBackend) Path() string {
	return l.path
}

// SetBlock ...
func (l *LevelBackend) SetBlock(block *Block) error {
	val, err := block.Marshal()
	if err != nil {
		return err
	}

	return l.db.Put(blockKey(block.Slot()), val, nil)
}

// GetBlock ...
func (l *LevelBackend) GetBlock(slot int) (*Block, error) {
	key := blockKey(slot)

	blockBytes, err := l.db.Get(key, nil)
	if err != nil {
		return nil, mapLevelError(err, "Block", string(key))
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}

	return block, nil
}

// GetBlocks returns the blocks with fromSlot <= slot <= toSlot in ascending
// slot order.
func (l *LevelBackend) GetBlocks(fromSlot, toSlot int) ([]*Block, error) {
	res := []*Block{}

	it := l.db.NewIterator(util.BytesPrefix([]byte(blockPrefix+"_")), nil)
	defer it.Release()

	for ok := it.Seek(blockKey(fromSlot)); ok; ok = it.Next() {
		block := new(Block)
		if err := block.Unmarshal(it.Value()); err != nil {
			return nil, err
		}

		if block.Slot() > toSlot {
			break
		}

		res = append(res, block)
	}

	if err := it.Error(); err != nil {
		return nil, err
	}

	return res, nil
}

// GetLatestBlock returns the block with the maximum slot.
func (l *LevelBackend) GetLatestBlock() (*Block, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(blockPrefix+"_")), nil)
	defer it.Release()

	if !it.Last() {
		if err := it.Error(); err != nil {
			return nil, err
		}
		return nil, cm.NewStoreErr("Block", cm.Empty, "latest")
	}

	block := new(Block)
	if err := block.Unmarshal(it.Value()); err != nil {
		return nil, err
	}

	return block, nil
}

// SetAnchor ...
func (l *LevelBackend) SetAnchor(anchor *Anchor) error {
	val, err := anchor.Marshal()
	if err != nil {
		return err
	}

	return l.db.Put(anchorKey(anchor.Slot), val, nil)
}

// GetAnchor ...
func (l *LevelBackend) GetAnchor(slot int) (*Anchor, error) {
	key := anchorKey(slot)

	anchorBytes, err := l.db.Get(key, nil)
	if err != nil {
		return nil, mapLevelError(err, "Anchor", string(key))
	}

	anchor := new(Anchor)
	if err := anchor.Unmarshal(anchorBytes); err != nil {
		return nil, err
	}

	return anchor, nil
}

// GetFailedAnchors returns anchors with status failed, oldest first.
func (l *LevelBackend) GetFailedAnchors(limit int) ([]*Anchor, error) {
	failed := []*Anchor{}

	it := l.db.NewIterator(util.BytesPrefix([]byte(anchorPrefix+"_")), nil)
	defer it.Release()

	for it.Next() {
		anchor := new(Anchor)
		if err := anchor.Unmarshal(it.Value()); err != nil {
			return nil, err
		}

		if anchor.Status == StatusFailed {
			failed = append(failed, anchor)
		}
	}

	if err := it.Error(); err != nil {
		return nil, err
	}

	sortFailedAnchors(failed)

	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	return failed, nil
}

// Close ...
func (l *LevelBackend) Close() error {
	return l.db.Close()
}

func mapLevelError(err error, name, key string) error {
	if err == leveldb.ErrNotFound {
		return cm.NewStoreErr(name, cm.KeyNotFound, key)
	}
	return err
}
