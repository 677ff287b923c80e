package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"referrald/internal/events"
	"referrald/internal/models"
	"referrald/internal/providers"
	"referrald/internal/storage"
	"referrald/internal/structures"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrReferenceConflict = errors.New("reference already used for a different purchase")
	ErrInvalidConfig     = errors.New("invalid ledger config")
)

// Bind outcomes, used as the metrics label and in debug logs.
const (
	BindBound        = "bound"
	BindSelf         = "self"
	BindZeroAddress  = "zero_address"
	BindAlreadyBound = "already_bound"
	BindCycle        = "cycle"
)

const maxUnitDecimals = 77

type ReferralLedgerInterface interface {
	BindReferrer(ctx context.Context, subject, referrer common.Address) (bool, error)
	TriggerReward(ctx context.Context, subject common.Address, amount *uint256.Int, reference string) (*uint256.Int, error)
	UpdateActivity(ctx context.Context, subject common.Address) error
	IsActive(ctx context.Context, subject common.Address) (bool, error)
	GetUserInfo(ctx context.Context, subject common.Address) (*models.UserInfo, error)
	GetReferralChain(ctx context.Context, subject common.Address) ([]common.Address, error)
	BatchGetUserInfo(ctx context.Context, subjects []common.Address) (*models.BatchUserInfo, error)
	GetReferralConfig() models.ReferralConfig
	Version() uint64
	ParticipantCount(ctx context.Context) (int, error)
}

// ReferralLedger owns the referral graph, reward balances and activity
// windows. Writers hold mu exclusively for the whole read-modify-commit-publish
// sequence, so events leave in commit order.
type ReferralLedger struct {
	mu        sync.RWMutex
	conf      structures.LedgerConfig
	unitScale *uint256.Int
	store     storage.ParticipantStore
	clock     clockwork.Clock
	publisher events.Publisher
	metrics   providers.MetricsProviderInterface
	logger    providers.Logger
	version   atomic.Uint64
}

func NewReferralLedger(conf *structures.Config, store storage.ParticipantStore, clock clockwork.Clock, publisher events.Publisher, metrics providers.MetricsProviderInterface, logger providers.Logger) (ReferralLedgerInterface, error) {
	lc := conf.Ledger
	if err := validateLedgerConfig(lc); err != nil {
		return nil, err
	}
	l := &ReferralLedger{
		conf:      lc,
		unitScale: new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(lc.UnitDecimals))),
		store:     store,
		clock:     clock,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
	logger.Infof(providers.TypeLedger, "Ledger ready: bonus=%d/%d levels=%d,%d inactiveAfter=%ds cycleDepth=%d",
		lc.ReferralBonus, lc.Decimals, lc.Level1Rate, lc.Level2Rate, lc.SecondsUntilInactive, lc.CycleCheckDepth)
	return l, nil
}

func validateLedgerConfig(c structures.LedgerConfig) error {
	switch {
	case c.Decimals == 0:
		return fmt.Errorf("%w: decimals must be positive", ErrInvalidConfig)
	case c.ReferralBonus > c.Decimals:
		return fmt.Errorf("%w: referral bonus %d exceeds decimals %d", ErrInvalidConfig, c.ReferralBonus, c.Decimals)
	case c.Level1Rate+c.Level2Rate > c.Decimals:
		return fmt.Errorf("%w: level rates exceed decimals %d", ErrInvalidConfig, c.Decimals)
	case c.CycleCheckDepth < 0 || c.CycleCheckDepth == 1:
		return fmt.Errorf("%w: cycle check depth %d", ErrInvalidConfig, c.CycleCheckDepth)
	case c.MaxChainDepth < 2:
		return fmt.Errorf("%w: max chain depth %d", ErrInvalidConfig, c.MaxChainDepth)
	case c.UnitDecimals > maxUnitDecimals:
		return fmt.Errorf("%w: unit decimals %d", ErrInvalidConfig, c.UnitDecimals)
	}
	return nil
}

func (l *ReferralLedger) now() int64 {
	return l.clock.Now().Unix()
}

func (l *ReferralLedger) isActive(p *models.Participant, now int64) bool {
	if p.LastActiveAt == 0 {
		return false
	}
	elapsed := now - p.LastActiveAt
	return elapsed < 0 || uint64(elapsed) <= l.conf.SecondsUntilInactive
}

func (l *ReferralLedger) get(ctx context.Context, addr common.Address) (models.Participant, error) {
	p, _, err := l.store.Get(ctx, addr)
	if err != nil {
		return models.Participant{}, fmt.Errorf("load participant %s: %w", addr.Hex(), err)
	}
	return p, nil
}

func (l *ReferralLedger) BindReferrer(ctx context.Context, subject, referrer common.Address) (bool, error) {
	if subject == (common.Address{}) || referrer == (common.Address{}) {
		return l.rejectBind(subject, referrer, BindZeroAddress), nil
	}
	if subject == referrer {
		return l.rejectBind(subject, referrer, BindSelf), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sub, err := l.get(ctx, subject)
	if err != nil {
		return false, err
	}
	if sub.HasReferrer() {
		return l.rejectBind(subject, referrer, BindAlreadyBound), nil
	}
	cycle, err := l.reaches(ctx, referrer, subject)
	if err != nil {
		return false, err
	}
	if cycle {
		return l.rejectBind(subject, referrer, BindCycle), nil
	}
	ref, err := l.get(ctx, referrer)
	if err != nil {
		return false, err
	}

	now := l.now()
	sub.Referrer = referrer
	sub.LastActiveAt = now
	ref.ReferredCount++
	ref.LastActiveAt = now

	batch := &models.Batch{Participants: []models.Participant{sub, ref}}
	if err := l.store.Commit(ctx, batch); err != nil {
		return false, fmt.Errorf("commit bind: %w", err)
	}
	l.version.Add(1)

	evt := models.NewReferrerBound(subject, referrer, now)
	l.publisher.Publish(&evt)
	l.metrics.IncBinds(BindBound)
	l.logger.Infof(providers.TypeLedger, "Bound %s -> %s", subject.Hex(), referrer.Hex())
	return true, nil
}

func (l *ReferralLedger) rejectBind(subject, referrer common.Address, reason string) bool {
	l.metrics.IncBinds(reason)
	l.logger.Debugf(providers.TypeLedger, "Bind %s -> %s rejected: %s", subject.Hex(), referrer.Hex(), reason)
	return false
}

// reaches walks the chain starting at from (inclusive) and reports whether
// target is met within cycleCheckDepth nodes. Depth 2 checks from and its
// referrer, which rejects direct mutual referral only; longer loops pass
// and are caught later by the chain walk. Depth 0 walks up to maxChainDepth.
func (l *ReferralLedger) reaches(ctx context.Context, from, target common.Address) (bool, error) {
	limit := l.conf.CycleCheckDepth
	if limit == 0 {
		limit = l.conf.MaxChainDepth
	}
	cur := from
	for i := 0; i < limit; i++ {
		if cur == target {
			return true, nil
		}
		if i == limit-1 {
			break
		}
		p, err := l.get(ctx, cur)
		if err != nil {
			return false, err
		}
		if !p.HasReferrer() {
			return false, nil
		}
		cur = p.Referrer
	}
	return false, nil
}

// rewardFor computes amount*bonus*rate/decimals/decimals and the points it is
// worth. Any overflow is reported as ErrInvalidAmount.
func (l *ReferralLedger) rewardFor(amount *uint256.Int, rate uint64) (reward, points *uint256.Int, err error) {
	reward, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(l.conf.ReferralBonus))
	if overflow {
		return nil, nil, fmt.Errorf("%w: reward overflow", ErrInvalidAmount)
	}
	if _, overflow = reward.MulOverflow(reward, uint256.NewInt(rate)); overflow {
		return nil, nil, fmt.Errorf("%w: reward overflow", ErrInvalidAmount)
	}
	decimals := uint256.NewInt(l.conf.Decimals)
	reward.Div(reward, decimals)
	reward.Div(reward, decimals)

	points, overflow = new(uint256.Int).MulOverflow(reward, uint256.NewInt(l.conf.PointsPerUnit))
	if overflow {
		return nil, nil, fmt.Errorf("%w: points overflow", ErrInvalidAmount)
	}
	points.Div(points, l.unitScale)
	return reward, points, nil
}

func (l *ReferralLedger) TriggerReward(ctx context.Context, subject common.Address, amount *uint256.Int, reference string) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: purchase amount must be positive", ErrInvalidAmount)
	}
	if subject == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero subject", ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if reference != "" {
		rc, ok, err := l.store.Receipt(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("load receipt %q: %w", reference, err)
		}
		if ok {
			if rc.Subject != subject || rc.PurchaseAmount == nil || !rc.PurchaseAmount.Eq(amount) {
				return nil, fmt.Errorf("%w: %q", ErrReferenceConflict, reference)
			}
			l.logger.Debugf(providers.TypeLedger, "Purchase %q already processed", reference)
			return rc.TotalPoints.Clone(), nil
		}
	}

	now := l.now()
	sub, err := l.get(ctx, subject)
	if err != nil {
		return nil, err
	}
	sub.LastActiveAt = now

	touched := []models.Participant{sub}
	index := map[common.Address]int{subject: 0}
	load := func(addr common.Address) (models.Participant, error) {
		if i, ok := index[addr]; ok {
			return touched[i], nil
		}
		return l.get(ctx, addr)
	}

	total := new(uint256.Int)
	var evts []*models.Event
	rates := [...]uint64{l.conf.Level1Rate, l.conf.Level2Rate}
	cur := sub
	for i, rate := range rates {
		level := uint8(i + 1)
		if !cur.HasReferrer() {
			break
		}
		ref, err := load(cur.Referrer)
		if err != nil {
			return nil, err
		}
		cur = ref
		if !l.isActive(&ref, now) {
			l.logger.Debugf(providers.TypeLedger, "Level %d referrer %s inactive, no reward", level, ref.Address.Hex())
			continue
		}

		reward, points, err := l.rewardFor(amount, rate)
		if err != nil {
			return nil, err
		}
		balance, overflow := new(uint256.Int).AddOverflow(ref.Balance(), reward)
		if overflow {
			return nil, fmt.Errorf("%w: balance overflow for %s", ErrInvalidAmount, ref.Address.Hex())
		}
		if _, overflow = total.AddOverflow(total, points); overflow {
			return nil, fmt.Errorf("%w: points overflow", ErrInvalidAmount)
		}
		ref.RewardBalance = balance
		ref.LastActiveAt = now
		cur = ref

		if j, ok := index[ref.Address]; ok {
			touched[j] = ref
		} else {
			index[ref.Address] = len(touched)
			touched = append(touched, ref)
		}
		evt := models.NewRewardCalculated(subject, ref.Address, amount, points, level, now)
		evts = append(evts, &evt)
	}
	purchased := models.NewUserPurchased(subject, amount, now)
	evts = append(evts, &purchased)

	batch := &models.Batch{Participants: touched}
	if reference != "" {
		batch.Receipt = &models.Receipt{
			Reference:      reference,
			Subject:        subject,
			PurchaseAmount: amount.Clone(),
			TotalPoints:    total.Clone(),
			CreatedAt:      now,
		}
	}
	if err := l.store.Commit(ctx, batch); err != nil {
		return nil, fmt.Errorf("commit reward: %w", err)
	}
	l.version.Add(1)

	l.publisher.Publish(evts...)
	l.metrics.IncPurchases()
	for _, e := range evts {
		if e.Name == models.EventRewardCalculated {
			l.metrics.IncRewards(e.Level, toFloat(e.PointsAmount))
		}
	}
	l.logger.Infof(providers.TypeLedger, "Purchase by %s amount=%s points=%s", subject.Hex(), amount.Dec(), total.Dec())
	return total, nil
}

func (l *ReferralLedger) UpdateActivity(ctx context.Context, subject common.Address) error {
	if subject == (common.Address{}) {
		return fmt.Errorf("%w: zero subject", ErrInvalidAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.get(ctx, subject)
	if err != nil {
		return err
	}
	p.LastActiveAt = l.now()
	if err := l.store.Commit(ctx, &models.Batch{Participants: []models.Participant{p}}); err != nil {
		return fmt.Errorf("commit activity: %w", err)
	}
	l.version.Add(1)
	l.logger.Debugf(providers.TypeLedger, "Activity %s at %d", subject.Hex(), p.LastActiveAt)
	return nil
}

func (l *ReferralLedger) IsActive(ctx context.Context, subject common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, err := l.get(ctx, subject)
	if err != nil {
		return false, err
	}
	return l.isActive(&p, l.now()), nil
}

func (l *ReferralLedger) GetUserInfo(ctx context.Context, subject common.Address) (*models.UserInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, err := l.get(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &models.UserInfo{
		Address:             subject,
		Referrer:            p.Referrer,
		Reward:              p.Balance().Clone(),
		ReferredCount:       p.ReferredCount,
		LastActiveTimestamp: p.LastActiveAt,
		HasReferrer:         p.HasReferrer(),
		IsActive:            l.isActive(&p, l.now()),
	}, nil
}

// GetReferralChain returns [referrer, referrer's referrer, ...]. The walk
// stops at an unbound participant, at maxChainDepth, or on a repeated
// address, which is logged because it means a loop slipped past the bind
// check.
func (l *ReferralLedger) GetReferralChain(ctx context.Context, subject common.Address) ([]common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := make([]common.Address, 0, 2)
	seen := map[common.Address]struct{}{subject: {}}
	cur, err := l.get(ctx, subject)
	if err != nil {
		return nil, err
	}
	for len(chain) < l.conf.MaxChainDepth && cur.HasReferrer() {
		next := cur.Referrer
		if _, ok := seen[next]; ok {
			l.logger.Warnf(providers.TypeLedger, "Referral cycle detected: %s reached again from %s", next.Hex(), subject.Hex())
			break
		}
		seen[next] = struct{}{}
		chain = append(chain, next)
		if cur, err = l.get(ctx, next); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func (l *ReferralLedger) BatchGetUserInfo(ctx context.Context, subjects []common.Address) (*models.BatchUserInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := models.NewBatchUserInfo(len(subjects))
	now := l.now()
	for _, addr := range subjects {
		p, err := l.get(ctx, addr)
		if err != nil {
			return nil, err
		}
		out.Referrers = append(out.Referrers, p.Referrer)
		out.Rewards = append(out.Rewards, p.Balance().Clone())
		out.ReferredCounts = append(out.ReferredCounts, p.ReferredCount)
		out.LastActiveTimes = append(out.LastActiveTimes, p.LastActiveAt)
		out.ActiveStatuses = append(out.ActiveStatuses, l.isActive(&p, now))
	}
	return out, nil
}

func (l *ReferralLedger) GetReferralConfig() models.ReferralConfig {
	return models.ReferralConfig{
		Decimals:             l.conf.Decimals,
		ReferralBonus:        l.conf.ReferralBonus,
		SecondsUntilInactive: l.conf.SecondsUntilInactive,
		Level1Rate:           l.conf.Level1Rate,
		Level2Rate:           l.conf.Level2Rate,
		PointsPerUnit:        l.conf.PointsPerUnit,
		UnitDecimals:         l.conf.UnitDecimals,
		CycleCheckDepth:      l.conf.CycleCheckDepth,
	}
}

// Version changes after every committed write.
func (l *ReferralLedger) Version() uint64 {
	return l.version.Load()
}

func (l *ReferralLedger) ParticipantCount(ctx context.Context) (int, error) {
	return l.store.Count(ctx)
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
