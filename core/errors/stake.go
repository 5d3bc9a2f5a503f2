package errors

import stderrors "errors"

var (
	ErrInsufficientStakedBalance = stderrors.New("stake: insufficient staked balance")
	ErrStakingFailed             = stderrors.New("stake: staking to facility failed")
	ErrUnstakingFailed           = stderrors.New("stake: unstaking from facility failed")
	ErrStakeIntervalNotElapsed   = stderrors.New("stake: staking interval not elapsed")
	ErrNothingStaked             = stderrors.New("stake: nothing staked")
	ErrParticipantExists         = stderrors.New("stake: reward participant already exists")
	ErrParticipantNotFound       = stderrors.New("stake: reward participant not found")
	ErrInvalidParticipant        = stderrors.New("stake: invalid participant address")
)
