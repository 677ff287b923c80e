package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"referrald/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	data     map[common.Address]models.Participant
	receipts map[string]models.Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[common.Address]models.Participant),
		receipts: make(map[string]models.Receipt),
	}
}

func (s *MemoryStore) Get(_ context.Context, addr common.Address) (models.Participant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[addr]
	if !ok {
		return models.NewParticipant(addr), false, nil
	}
	return val.Clone(), true, nil
}

func (s *MemoryStore) Commit(_ context.Context, batch *models.Batch) error {
	if batch == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch.Participants {
		s.data[p.Address] = p.Clone()
	}
	if batch.Receipt != nil {
		s.receipts[batch.Receipt.Reference] = *batch.Receipt
	}
	return nil
}

func (s *MemoryStore) Receipt(_ context.Context, reference string) (*models.Receipt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.receipts[reference]
	if !ok {
		return nil, false, nil
	}
	return &rc, true, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Snapshot returns a deep copy ordered by address so repeated saves of the
// same state produce identical files.
func (s *MemoryStore) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]models.Participant, 0, len(s.data))
	for _, p := range s.data {
		participants = append(participants, p.Clone())
	}
	sort.Slice(participants, func(i, j int) bool {
		return bytes.Compare(participants[i].Address[:], participants[j].Address[:]) < 0
	})

	receipts := make([]models.Receipt, 0, len(s.receipts))
	for _, rc := range s.receipts {
		receipts = append(receipts, rc)
	}
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].Reference < receipts[j].Reference
	})

	return &models.Snapshot{
		Version:      models.SnapshotVersion,
		Participants: participants,
		Receipts:     receipts,
	}
}

// Restore replaces the current state with the snapshot contents.
func (s *MemoryStore) Restore(snapshot *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[common.Address]models.Participant)
	s.receipts = make(map[string]models.Receipt)
	if snapshot == nil {
		return
	}
	for _, p := range snapshot.Participants {
		s.data[p.Address] = p.Clone()
	}
	for _, rc := range snapshot.Receipts {
		s.receipts[rc.Reference] = rc
	}
}
