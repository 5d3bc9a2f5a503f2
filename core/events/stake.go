package events

import (
	"math/big"
	"strconv"

	"taobridge/core/types"
)

const (
	// TypeTokensStaked captures a deposit into the pooled staking balance.
	TypeTokensStaked = "stake.tokensStaked"
	// TypeTokensUnstaked captures a withdrawal of principal (rewards are
	// reported separately per recipient).
	TypeTokensUnstaked = "stake.tokensUnstaked"
	// TypeFundsFlushed is emitted when the pooled balance is delegated to
	// the external staking facility and a new epoch opens.
	TypeFundsFlushed = "stake.fundsStakedOnFacility"
	// TypeRewardPaid reports an individual reward payout at unstake time.
	TypeRewardPaid = "stake.rewardPaid"
)

// TokensStaked reports a user's deposit into the pool.
type TokensStaked struct {
	User   types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (TokensStaked) EventType() string { return TypeTokensStaked }

// Event converts the structured payload into a broadcastable event.
func (e TokensStaked) Event() *types.Event {
	return &types.Event{Type: TypeTokensStaked, Attributes: map[string]string{
		"user":   e.User.Hex(),
		"amount": formatAmount(e.Amount),
	}}
}

// TokensUnstaked reports the principal returned to a user.
type TokensUnstaked struct {
	User   types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (TokensUnstaked) EventType() string { return TypeTokensUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e TokensUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeTokensUnstaked, Attributes: map[string]string{
		"user":   e.User.Hex(),
		"amount": formatAmount(e.Amount),
	}}
}

// FundsFlushed records an epoch transition and the amount delegated.
type FundsFlushed struct {
	EpochID          uint64
	Amount           *big.Int
	LastStakingBlock uint64
}

// EventType satisfies the Event interface.
func (FundsFlushed) EventType() string { return TypeFundsFlushed }

// Event converts the structured payload into a broadcastable event.
func (e FundsFlushed) Event() *types.Event {
	return &types.Event{Type: TypeFundsFlushed, Attributes: map[string]string{
		"epochId":          strconv.FormatUint(e.EpochID, 10),
		"amount":           formatAmount(e.Amount),
		"lastStakingBlock": strconv.FormatUint(e.LastStakingBlock, 10),
	}}
}

// RewardPaid reports a reward share credited to a recipient.
type RewardPaid struct {
	Recipient types.Address
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeRewardPaid, Attributes: map[string]string{
		"recipient": e.Recipient.Hex(),
		"amount":    formatAmount(e.Amount),
	}}
}
