package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Participant is a single ledger record. The zero value is a valid,
// never-seen participant.
type Participant struct {
	Address       common.Address `json:"address"`
	Referrer      common.Address `json:"referrer"`
	RewardBalance *uint256.Int   `json:"reward"`
	ReferredCount uint64         `json:"referred_count"`
	LastActiveAt  int64          `json:"last_active_timestamp"`
}

func NewParticipant(addr common.Address) Participant {
	return Participant{Address: addr, RewardBalance: new(uint256.Int)}
}

func (p *Participant) HasReferrer() bool {
	return p.Referrer != (common.Address{})
}

// Balance never returns nil.
func (p *Participant) Balance() *uint256.Int {
	if p.RewardBalance == nil {
		return new(uint256.Int)
	}
	return p.RewardBalance
}

// Clone returns a copy that does not share the balance pointer.
func (p Participant) Clone() Participant {
	out := p
	out.RewardBalance = p.Balance().Clone()
	return out
}

// Receipt records a processed purchase so a repeated trigger with the same
// reference is not credited twice.
type Receipt struct {
	Reference      string         `json:"reference"`
	Subject        common.Address `json:"subject"`
	PurchaseAmount *uint256.Int   `json:"purchase_amount"`
	TotalPoints    *uint256.Int   `json:"total_points"`
	CreatedAt      int64          `json:"created_at"`
}

// Batch is the unit of atomic commit handed to a participant store.
type Batch struct {
	Participants []Participant
	Receipt      *Receipt
}

type UserInfo struct {
	Address             common.Address `json:"address"`
	Referrer            common.Address `json:"referrer"`
	Reward              *uint256.Int   `json:"reward"`
	ReferredCount       uint64         `json:"referred_count"`
	LastActiveTimestamp int64          `json:"last_active_timestamp"`
	HasReferrer         bool           `json:"has_referrer"`
	IsActive            bool           `json:"is_active"`
}

// BatchUserInfo keeps the parallel-array layout consumers of the batch query expect.
type BatchUserInfo struct {
	Referrers       []common.Address `json:"referrers"`
	Rewards         []*uint256.Int   `json:"rewards"`
	ReferredCounts  []uint64         `json:"referred_counts"`
	LastActiveTimes []int64          `json:"last_active_times"`
	ActiveStatuses  []bool           `json:"active_statuses"`
}

func NewBatchUserInfo(size int) *BatchUserInfo {
	return &BatchUserInfo{
		Referrers:       make([]common.Address, 0, size),
		Rewards:         make([]*uint256.Int, 0, size),
		ReferredCounts:  make([]uint64, 0, size),
		LastActiveTimes: make([]int64, 0, size),
		ActiveStatuses:  make([]bool, 0, size),
	}
}

type ReferralConfig struct {
	Decimals             uint64 `json:"decimals"`
	ReferralBonus        uint64 `json:"referral_bonus"`
	SecondsUntilInactive uint64 `json:"seconds_until_inactive"`
	Level1Rate           uint64 `json:"level1_rate"`
	Level2Rate           uint64 `json:"level2_rate"`
	PointsPerUnit        uint64 `json:"points_per_unit"`
	UnitDecimals         uint8  `json:"unit_decimals"`
	CycleCheckDepth      int    `json:"cycle_check_depth"`
}
