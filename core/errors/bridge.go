package errors

import stderrors "errors"

var (
	ErrUnauthorized             = stderrors.New("bridge: unauthorized")
	ErrBridgePaused             = stderrors.New("bridge: paused")
	ErrInvalidDestinationChain  = stderrors.New("bridge: invalid destination chain")
	ErrTokenNotWhitelisted      = stderrors.New("bridge: token not whitelisted")
	ErrUnknownToken             = stderrors.New("bridge: unknown token")
	ErrInvalidRecipient         = stderrors.New("bridge: invalid recipient")
	ErrInvalidAmount            = stderrors.New("bridge: invalid amount")
	ErrInvalidInput             = stderrors.New("bridge: invalid input")
	ErrInsufficientAllowance    = stderrors.New("bridge: insufficient allowance")
	ErrInsufficientBalance      = stderrors.New("bridge: insufficient balance")
	ErrTransferAlreadyProcessed = stderrors.New("bridge: transfer already processed")
)
