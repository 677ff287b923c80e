package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type EventName string

const (
	EventReferrerBound    EventName = "ReferrerBound"
	EventUserPurchased    EventName = "UserPurchased"
	EventRewardCalculated EventName = "RewardCalculated"
)

// Event is the notification envelope. Seq and ID are assigned by the journal.
//
//	ReferrerBound:    Subject, Referrer
//	UserPurchased:    Subject, PurchaseAmount
//	RewardCalculated: Subject (purchaser), Referrer, PurchaseAmount, PointsAmount, Level
type Event struct {
	Seq            uint64         `json:"seq"`
	ID             string         `json:"id"`
	Name           EventName      `json:"name"`
	Timestamp      int64          `json:"timestamp"`
	Subject        common.Address `json:"subject"`
	Referrer       common.Address `json:"referrer"`
	PurchaseAmount *uint256.Int   `json:"purchase_amount,omitempty"`
	PointsAmount   *uint256.Int   `json:"points_amount,omitempty"`
	Level          uint8          `json:"level,omitempty"`
}

func NewReferrerBound(subject, referrer common.Address, ts int64) Event {
	return Event{Name: EventReferrerBound, Timestamp: ts, Subject: subject, Referrer: referrer}
}

func NewUserPurchased(subject common.Address, amount *uint256.Int, ts int64) Event {
	return Event{Name: EventUserPurchased, Timestamp: ts, Subject: subject, PurchaseAmount: amount.Clone()}
}

func NewRewardCalculated(purchaser, referrer common.Address, amount, points *uint256.Int, level uint8, ts int64) Event {
	return Event{
		Name:           EventRewardCalculated,
		Timestamp:      ts,
		Subject:        purchaser,
		Referrer:       referrer,
		PurchaseAmount: amount.Clone(),
		PointsAmount:   points.Clone(),
		Level:          level,
	}
}

// Addresses lists every participant the event concerns.
func (e *Event) Addresses() []common.Address {
	if e.Referrer == (common.Address{}) {
		return []common.Address{e.Subject}
	}
	return []common.Address{e.Subject, e.Referrer}
}
