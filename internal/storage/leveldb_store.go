package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"referrald/internal/models"
)

var (
	participantPrefix = []byte("p:")
	receiptPrefix     = []byte("r:")
	countKey          = []byte("m:participants")
)

// LevelStore keeps one binary-encoded record per key in a LevelDB directory.
// The participant count lives under countKey and is written in the same
// batch as the records it counts.
type LevelStore struct {
	db *leveldb.DB

	// mu serializes Commit so the new-key check and the count stay in step.
	mu    sync.Mutex
	count uint64
}

func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	s := &LevelStore{db: db}
	if err := s.loadCount(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("leveldb participant count: %w", err)
	}
	return s, nil
}

// loadCount reads the stored counter, rebuilding it with one scan for
// directories written before the counter existed.
func (s *LevelStore) loadCount() error {
	raw, err := s.db.Get(countKey, nil)
	if err == nil {
		if len(raw) != 8 {
			return fmt.Errorf("malformed counter of %d bytes", len(raw))
		}
		s.count = binary.BigEndian.Uint64(raw)
		return nil
	}
	if !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}

	iter := s.db.NewIterator(util.BytesPrefix(participantPrefix), nil)
	var n uint64
	for iter.Next() {
		n++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	if err := s.db.Put(countKey, encodeCount(n), &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	s.count = n
	return nil
}

func encodeCount(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

func participantKey(addr common.Address) []byte {
	return append(append([]byte{}, participantPrefix...), addr[:]...)
}

func receiptKey(reference string) []byte {
	return append(append([]byte{}, receiptPrefix...), reference...)
}

func (s *LevelStore) Get(_ context.Context, addr common.Address) (models.Participant, bool, error) {
	raw, err := s.db.Get(participantKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return models.NewParticipant(addr), false, nil
	}
	if err != nil {
		return models.Participant{}, false, err
	}
	p, err := models.DecodeParticipant(raw)
	if err != nil {
		return models.Participant{}, false, err
	}
	return p, true, nil
}

func (s *LevelStore) Commit(_ context.Context, batch *models.Batch) error {
	if batch == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	added := uint64(0)
	seen := make(map[common.Address]struct{}, len(batch.Participants))
	for _, p := range batch.Participants {
		raw, err := models.EncodeParticipant(p)
		if err != nil {
			return err
		}
		key := participantKey(p.Address)
		if _, dup := seen[p.Address]; !dup {
			seen[p.Address] = struct{}{}
			exists, err := s.db.Has(key, nil)
			if err != nil {
				return err
			}
			if !exists {
				added++
			}
		}
		b.Put(key, raw)
	}
	if added > 0 {
		b.Put(countKey, encodeCount(s.count+added))
	}
	if batch.Receipt != nil {
		raw, err := models.EncodeReceipt(*batch.Receipt)
		if err != nil {
			return err
		}
		b.Put(receiptKey(batch.Receipt.Reference), raw)
	}
	if err := s.db.Write(b, &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	s.count += added
	return nil
}

func (s *LevelStore) Receipt(_ context.Context, reference string) (*models.Receipt, bool, error) {
	raw, err := s.db.Get(receiptKey(reference), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rc, err := models.DecodeReceipt(raw)
	if err != nil {
		return nil, false, err
	}
	return &rc, true, nil
}

func (s *LevelStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count), nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
