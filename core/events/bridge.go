package events

import (
	"math/big"
	"strconv"

	"taobridge/core/types"
)

const (
	// TypeTransferRequested is emitted when an outbound transfer request is
	// recorded and assigned a nonce.
	TypeTransferRequested = "bridge.transferRequested"
	// TypeTransferExecuted confirms the settlement of an inbound transfer.
	TypeTransferExecuted = "bridge.transferExecuted"
	// TypeTokenWrapped signals the one-time creation of a managed token for
	// a previously unknown key.
	TypeTokenWrapped = "bridge.tokenWrapped"
	// TypeTokenWhitelisted records an administrative whitelist update.
	TypeTokenWhitelisted = "bridge.newTokenWhitelisted"
	// TypeBridgePaused and TypeBridgeUnpaused track the outbound pause flag.
	TypeBridgePaused   = "bridge.paused"
	TypeBridgeUnpaused = "bridge.unpaused"
)

// TransferRequested carries the full request tuple for the counter chain.
type TransferRequested struct {
	Nonce              uint64
	From               types.Address
	To                 types.Address
	TokenKey           types.TokenKey
	Amount             *big.Int
	SourceChainID      uint64
	DestinationChainID uint64
}

// EventType satisfies the Event interface.
func (TransferRequested) EventType() string { return TypeTransferRequested }

// Event converts the structured payload into a broadcastable event.
func (e TransferRequested) Event() *types.Event {
	return &types.Event{Type: TypeTransferRequested, Attributes: map[string]string{
		"nonce":      strconv.FormatUint(e.Nonce, 10),
		"from":       e.From.Hex(),
		"to":         e.To.Hex(),
		"tokenKey":   e.TokenKey.Hex(),
		"amount":     formatAmount(e.Amount),
		"srcChainId": strconv.FormatUint(e.SourceChainID, 10),
		"dstChainId": strconv.FormatUint(e.DestinationChainID, 10),
	}}
}

// TransferExecuted confirms that an inbound (nonce, srcChainId) pair settled.
type TransferExecuted struct {
	Nonce         uint64
	SourceChainID uint64
}

// EventType satisfies the Event interface.
func (TransferExecuted) EventType() string { return TypeTransferExecuted }

// Event converts the structured payload into a broadcastable event.
func (e TransferExecuted) Event() *types.Event {
	return &types.Event{Type: TypeTransferExecuted, Attributes: map[string]string{
		"nonce":      strconv.FormatUint(e.Nonce, 10),
		"srcChainId": strconv.FormatUint(e.SourceChainID, 10),
	}}
}

// TokenWrapped is emitted at most once per key, when the registry synthesises
// a managed token from inbound metadata.
type TokenWrapped struct {
	TokenKey    types.TokenKey
	Address     types.Address
	Whitelisted bool
	Metadata    types.TokenMetadata
}

// EventType satisfies the Event interface.
func (TokenWrapped) EventType() string { return TypeTokenWrapped }

// Event converts the structured payload into a broadcastable event.
func (e TokenWrapped) Event() *types.Event {
	attrs := map[string]string{
		"tokenKey":    e.TokenKey.Hex(),
		"address":     e.Address.Hex(),
		"whitelisted": strconv.FormatBool(e.Whitelisted),
	}
	mergeMetadata(attrs, e.Metadata)
	return &types.Event{Type: TypeTokenWrapped, Attributes: attrs}
}

// TokenWhitelisted records the upserted classification for a key.
type TokenWhitelisted struct {
	TokenKey  types.TokenKey
	Address   types.Address
	Managed   bool
	Enabled   bool
	Supported bool
	Metadata  types.TokenMetadata
}

// EventType satisfies the Event interface.
func (TokenWhitelisted) EventType() string { return TypeTokenWhitelisted }

// Event converts the structured payload into a broadcastable event.
func (e TokenWhitelisted) Event() *types.Event {
	attrs := map[string]string{
		"tokenKey":  e.TokenKey.Hex(),
		"address":   e.Address.Hex(),
		"managed":   strconv.FormatBool(e.Managed),
		"enabled":   strconv.FormatBool(e.Enabled),
		"supported": strconv.FormatBool(e.Supported),
	}
	mergeMetadata(attrs, e.Metadata)
	return &types.Event{Type: TypeTokenWhitelisted, Attributes: attrs}
}

// BridgePaused is emitted when the pauser halts outbound requests.
type BridgePaused struct{}

func (BridgePaused) EventType() string { return TypeBridgePaused }

// BridgeUnpaused is emitted when outbound requests resume.
type BridgeUnpaused struct{}

func (BridgeUnpaused) EventType() string { return TypeBridgeUnpaused }
