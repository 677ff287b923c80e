package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"referrald/internal/models"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// ParticipantStore persists ledger records. Get on an unknown address returns
// a zero participant and false. Commit applies the whole batch or nothing.
type ParticipantStore interface {
	Get(ctx context.Context, addr common.Address) (models.Participant, bool, error)
	Commit(ctx context.Context, batch *models.Batch) error
	Receipt(ctx context.Context, reference string) (*models.Receipt, bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Snapshotter is implemented by stores whose state lives in process memory
// and must be written to disk by the persistence scheduler.
type Snapshotter interface {
	Snapshot() *models.Snapshot
	Restore(snapshot *models.Snapshot)
}
