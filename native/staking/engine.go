package staking

import (
	"fmt"
	"math/big"

	coreerr "taobridge/core/errors"
	"taobridge/core/events"
	"taobridge/core/types"
)

// Normalizer scales the per-block reward rate. A rate of Normalizer/10 paid
// out over the configured interval corresponds to roughly 10% per year at
// 12-second blocks.
var Normalizer = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// DefaultRewardRate is 1e17 / 5_256_000 per block, approximately 10% APY.
var DefaultRewardRate = new(big.Int).Quo(
	new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil),
	big.NewInt(5_256_000),
)

// DefaultStakeInterval is the default number of blocks between flushes of the
// pooled balance to the external facility.
const DefaultStakeInterval = 7200

// Position tracks a user's staked balance and the epoch under which it was
// last flushed to the external facility.
type Position struct {
	Amount *big.Int `json:"amount"`
	// StakingEpochID is only meaningful once Flushed is true.
	StakingEpochID uint64 `json:"stakingEpochId"`
	Flushed        bool   `json:"flushed"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	return &clone
}

// Payout credits native currency released by the engine back to accounts.
// The settlement ledger's native balance book implements it.
type Payout interface {
	CreditNative(addr types.Address, amount *big.Int)
}

// Config carries the engine parameters.
type Config struct {
	Owner         types.Address
	RewardRate    *big.Int
	StakeInterval uint64
}

// Engine batches staked native currency into epochs, delegates the pooled
// balance to the external facility once per interval and distributes accrued
// rewards proportionally at unstake time.
//
// The engine performs no locking of its own; the settlement ledger serialises
// all calls under its global mutex.
type Engine struct {
	owner         types.Address
	facility      Facility
	payout        Payout
	emitter       events.Emitter
	rewardRate    *big.Int
	stakeInterval uint64

	pooled           *big.Int
	positions        map[types.Address]*Position
	pending          map[types.Address]struct{}
	participants     []types.Address
	nextEpochID      uint64
	lastStakingBlock uint64
	epochBlocks      map[uint64]uint64

	// deferred, when non-nil, accumulates facility withdrawals instead of
	// issuing them per Unstake call. The settlement ledger opens it for the
	// span of an inbound batch so the single external withdrawal happens
	// after every item has staged.
	deferred *big.Int

	heightFn func() uint64
}

// NewEngine creates a staking engine bound to the given facility and payout
// sink. A nil reward rate falls back to DefaultRewardRate and a zero interval
// to DefaultStakeInterval.
func NewEngine(cfg Config, facility Facility, payout Payout) *Engine {
	rate := cfg.RewardRate
	if rate == nil {
		rate = new(big.Int).Set(DefaultRewardRate)
	}
	interval := cfg.StakeInterval
	if interval == 0 {
		interval = DefaultStakeInterval
	}
	return &Engine{
		owner:         cfg.Owner,
		facility:      facility,
		payout:        payout,
		emitter:       events.NoopEmitter{},
		rewardRate:    new(big.Int).Set(rate),
		stakeInterval: interval,
		pooled:        big.NewInt(0),
		positions:     make(map[types.Address]*Position),
		pending:       make(map[types.Address]struct{}),
		epochBlocks:   make(map[uint64]uint64),
		heightFn:      func() uint64 { return 0 },
	}
}

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightSource overrides the block height source.
func (e *Engine) SetHeightSource(fn func() uint64) {
	if fn == nil {
		return
	}
	e.heightFn = fn
}

// Stake adds amount to the pooled balance and to the user's position. When
// the flush interval has elapsed the entire pool is delegated to the facility
// and a new epoch opens.
func (e *Engine) Stake(user types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	height := e.heightFn()
	if e.lastStakingBlock == 0 && e.nextEpochID == 0 {
		// The interval is anchored at the first observed stake.
		e.lastStakingBlock = height
	}
	snap := e.Snapshot()
	pos, ok := e.positions[user]
	if !ok {
		pos = &Position{Amount: big.NewInt(0)}
		e.positions[user] = pos
	}
	pos.Amount.Add(pos.Amount, amount)
	e.pooled.Add(e.pooled, amount)
	e.pending[user] = struct{}{}

	if height >= e.lastStakingBlock && height-e.lastStakingBlock >= e.stakeInterval {
		if err := e.flush(height); err != nil {
			e.Restore(snap)
			return err
		}
	}
	e.emitter.Emit(events.TokensStaked{User: user, Amount: new(big.Int).Set(amount)})
	return nil
}

// Flush delegates the pooled balance to the facility once the interval has
// elapsed. Anyone may trigger it; the stake path performs the same transition
// implicitly.
func (e *Engine) Flush() error {
	height := e.heightFn()
	if height < e.lastStakingBlock || height-e.lastStakingBlock < e.stakeInterval {
		return coreerr.ErrStakeIntervalNotElapsed
	}
	return e.flush(height)
}

func (e *Engine) flush(height uint64) error {
	if e.pooled.Sign() == 0 {
		return coreerr.ErrNothingStaked
	}
	amount := new(big.Int).Set(e.pooled)
	if err := e.facility.DepositStake(amount); err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrStakingFailed, err)
	}
	epochID := e.nextEpochID
	e.nextEpochID++
	e.epochBlocks[epochID] = height
	e.lastStakingBlock = height
	for user := range e.pending {
		pos := e.positions[user]
		pos.StakingEpochID = epochID
		pos.Flushed = true
	}
	e.pending = make(map[types.Address]struct{})
	e.pooled = big.NewInt(0)
	e.emitter.Emit(events.FundsFlushed{EpochID: epochID, Amount: amount, LastStakingBlock: height})
	return nil
}

// DeferWithdrawals switches Unstake into staging mode: facility withdrawals
// accumulate and are issued as a single call by SettleWithdrawals. A Restore
// cancels the accumulated total.
func (e *Engine) DeferWithdrawals() {
	e.deferred = big.NewInt(0)
}

// SettleWithdrawals issues the aggregated facility withdrawal and leaves
// staging mode. Nothing external happens when nothing was deferred.
func (e *Engine) SettleWithdrawals() error {
	total := e.deferred
	e.deferred = nil
	if total == nil || total.Sign() == 0 {
		return nil
	}
	if err := e.facility.WithdrawStake(total); err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrUnstakingFailed, err)
	}
	return nil
}

// Unstake releases amount of the user's principal plus the reward accrued on
// the externally held balance since the position's stamped epoch. Principal
// still pooled locally is paid from the pool; the remainder and the reward
// are withdrawn from the facility, immediately or at SettleWithdrawals time
// when withdrawals are deferred.
func (e *Engine) Unstake(user types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	pos, ok := e.positions[user]
	if !ok || pos.Amount.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientStakedBalance
	}

	reward := e.accruedReward(pos)

	fromPool := new(big.Int).Set(amount)
	if e.pooled.Cmp(fromPool) < 0 {
		fromPool.Set(e.pooled)
	}
	fromFacility := new(big.Int).Sub(amount, fromPool)
	fromFacility.Add(fromFacility, reward)
	if fromFacility.Sign() > 0 {
		if e.deferred != nil {
			e.deferred.Add(e.deferred, fromFacility)
		} else if err := e.facility.WithdrawStake(fromFacility); err != nil {
			return fmt.Errorf("%w: %v", coreerr.ErrUnstakingFailed, err)
		}
	}

	e.pooled.Sub(e.pooled, fromPool)
	pos.Amount.Sub(pos.Amount, amount)

	e.distribute(user, amount, reward)
	e.emitter.Emit(events.TokensUnstaked{User: user, Amount: new(big.Int).Set(amount)})
	return nil
}

// accruedReward computes facilityBalance * rewardRate * blocks / Normalizer
// where blocks counts from the stamped epoch's flush block through the
// current block inclusive. Positions never flushed accrue nothing.
func (e *Engine) accruedReward(pos *Position) *big.Int {
	if !pos.Flushed {
		return big.NewInt(0)
	}
	epochBlock, ok := e.epochBlocks[pos.StakingEpochID]
	if !ok {
		return big.NewInt(0)
	}
	height := e.heightFn()
	if height < epochBlock {
		return big.NewInt(0)
	}
	blocks := new(big.Int).SetUint64(height - epochBlock + 1)
	// copy before the in-place arithmetic; the facility may hand out its
	// internal balance pointer
	reward := new(big.Int).Set(e.facility.BalanceOf())
	reward.Mul(reward, e.rewardRate)
	reward.Mul(reward, blocks)
	return reward.Quo(reward, Normalizer)
}

// distribute splits the reward between the user and the configured
// participants. Each of N participants receives reward/(2N); the user keeps
// the full principal plus everything the participants did not take.
func (e *Engine) distribute(user types.Address, amount, reward *big.Int) {
	userShare := new(big.Int).Add(amount, reward)
	if n := int64(len(e.participants)); n > 0 && reward.Sign() > 0 {
		share := new(big.Int).Quo(reward, big.NewInt(2*n))
		for _, participant := range e.participants {
			if share.Sign() == 0 {
				break
			}
			e.payout.CreditNative(participant, new(big.Int).Set(share))
			userShare.Sub(userShare, share)
			e.emitter.Emit(events.RewardPaid{Recipient: participant, Amount: new(big.Int).Set(share)})
		}
	}
	e.payout.CreditNative(user, userShare)
}

// AddParticipant registers an address to receive a share of unstake rewards.
func (e *Engine) AddParticipant(caller, participant types.Address) error {
	if caller != e.owner {
		return coreerr.ErrUnauthorized
	}
	if participant.IsZero() {
		return coreerr.ErrInvalidParticipant
	}
	for _, existing := range e.participants {
		if existing == participant {
			return coreerr.ErrParticipantExists
		}
	}
	e.participants = append(e.participants, participant)
	return nil
}

// RemoveParticipant deregisters a reward participant.
func (e *Engine) RemoveParticipant(caller, participant types.Address) error {
	if caller != e.owner {
		return coreerr.ErrUnauthorized
	}
	for i, existing := range e.participants {
		if existing == participant {
			e.participants = append(e.participants[:i], e.participants[i+1:]...)
			return nil
		}
	}
	return coreerr.ErrParticipantNotFound
}

// Participants returns a copy of the configured reward participants.
func (e *Engine) Participants() []types.Address {
	return append([]types.Address(nil), e.participants...)
}

// PooledBalance reports the locally pooled, not yet flushed balance.
func (e *Engine) PooledBalance() *big.Int { return new(big.Int).Set(e.pooled) }

// PositionOf returns a copy of the user's stake position.
func (e *Engine) PositionOf(user types.Address) (Position, bool) {
	pos, ok := e.positions[user]
	if !ok {
		return Position{Amount: big.NewInt(0)}, false
	}
	return *pos.Clone(), true
}

// NextStakingEpochID returns the identifier the next flush will open.
func (e *Engine) NextStakingEpochID() uint64 { return e.nextEpochID }

// LastStakingBlock returns the block height of the most recent flush.
func (e *Engine) LastStakingBlock() uint64 { return e.lastStakingBlock }

// EpochLastStakingBlock returns the flush height recorded for an epoch.
func (e *Engine) EpochLastStakingBlock(epochID uint64) (uint64, bool) {
	height, ok := e.epochBlocks[epochID]
	return height, ok
}

// RewardRate returns the configured per-block reward rate.
func (e *Engine) RewardRate() *big.Int { return new(big.Int).Set(e.rewardRate) }

// StakeInterval returns the configured flush interval in blocks.
func (e *Engine) StakeInterval() uint64 { return e.stakeInterval }

// Snapshot captures a deep copy of the mutable engine state so callers can
// stage an operation and roll back if a later step fails.
func (e *Engine) Snapshot() *EngineSnapshot {
	snap := &EngineSnapshot{
		Pooled:           new(big.Int).Set(e.pooled),
		Positions:        make(map[types.Address]*Position, len(e.positions)),
		Pending:          make(map[types.Address]struct{}, len(e.pending)),
		Participants:     append([]types.Address(nil), e.participants...),
		NextEpochID:      e.nextEpochID,
		LastStakingBlock: e.lastStakingBlock,
		EpochBlocks:      make(map[uint64]uint64, len(e.epochBlocks)),
	}
	for user, pos := range e.positions {
		snap.Positions[user] = pos.Clone()
	}
	for user := range e.pending {
		snap.Pending[user] = struct{}{}
	}
	for id, height := range e.epochBlocks {
		snap.EpochBlocks[id] = height
	}
	return snap
}

// Restore replaces the mutable engine state with a snapshot.
func (e *Engine) Restore(snap *EngineSnapshot) {
	if snap == nil {
		return
	}
	e.pooled = snap.Pooled
	e.positions = snap.Positions
	e.pending = snap.Pending
	e.participants = snap.Participants
	e.nextEpochID = snap.NextEpochID
	e.lastStakingBlock = snap.LastStakingBlock
	e.epochBlocks = snap.EpochBlocks
	e.deferred = nil
}

// EngineSnapshot is the serialisable form of the engine's mutable state. The
// state database persists it between restarts.
type EngineSnapshot struct {
	Pooled           *big.Int                     `json:"pooled"`
	Positions        map[types.Address]*Position  `json:"positions"`
	Pending          map[types.Address]struct{}   `json:"pending"`
	Participants     []types.Address              `json:"participants"`
	NextEpochID      uint64                       `json:"nextEpochId"`
	LastStakingBlock uint64                       `json:"lastStakingBlock"`
	EpochBlocks      map[uint64]uint64            `json:"epochBlocks"`
}
