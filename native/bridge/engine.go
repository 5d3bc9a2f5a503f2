package bridge

import (
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerr "taobridge/core/errors"
	"taobridge/core/events"
	"taobridge/core/types"
	"taobridge/native/registry"
	"taobridge/native/staking"
)

// DefaultMaxBatch caps the number of items accepted per inbound batch. The
// bound keeps batch execution within a predictable compute budget and
// guarantees the all-or-nothing commit stays cheap.
const DefaultMaxBatch = 100

// TransferItem is one decoded inbound settlement instruction.
type TransferItem struct {
	TokenKey      types.TokenKey      `json:"tokenKey"`
	To            types.Address       `json:"to"`
	Amount        *big.Int            `json:"amount"`
	Nonce         uint64              `json:"nonce"`
	SourceChainID uint64              `json:"srcChainId"`
	Metadata      types.TokenMetadata `json:"tokenMetadata"`
}

// Config carries the ledger parameters.
type Config struct {
	LocalChainID uint64
	Admin        types.Address
	Authority    types.Address
	MaxBatch     int
}

// Engine is the settlement ledger: it orchestrates registry lookups, replay
// checks, asset movement and the optional staking policy, and assigns the
// ledger-global nonce to outbound requests.
//
// All public operations are serialised by a single mutex; nonce assignment
// and epoch transitions require a total order.
type Engine struct {
	mu sync.Mutex

	registry *registry.Registry
	staking  *staking.Engine
	accounts *Accounts
	replay   *ReplayGuard
	roles    *RoleSet

	localChainID uint64
	maxBatch     int
	vault        types.Address
	paused       bool
	nonce        uint64

	sink     events.Emitter
	recorder *events.Recorder
}

// NewEngine creates a settlement ledger. The admin receives the admin and
// pauser capabilities, the authority the batch execution capability.
func NewEngine(cfg Config, reg *registry.Registry) *Engine {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	roles := NewRoleSet()
	roles.Grant(CapabilityAdmin, cfg.Admin)
	roles.Grant(CapabilityPauser, cfg.Admin)
	roles.Grant(CapabilityAuthority, cfg.Authority)
	return &Engine{
		registry:     reg,
		accounts:     NewAccounts(),
		replay:       NewReplayGuard(),
		roles:        roles,
		localChainID: cfg.LocalChainID,
		maxBatch:     maxBatch,
		vault:        VaultAddress(),
		sink:         events.NoopEmitter{},
	}
}

// SetEmitter configures the sink that committed operations flush their events
// to. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.sink = events.NoopEmitter{}
		return
	}
	e.sink = emitter
}

// Emit satisfies events.Emitter. Events raised while an operation is staged
// are buffered and only reach the sink when the operation commits; the
// staking engine emits through here for that reason.
func (e *Engine) Emit(ev events.Event) {
	if e.recorder != nil {
		e.recorder.Emit(ev)
		return
	}
	e.sink.Emit(ev)
}

// SetStakingPolicy attaches (or detaches, with nil) the staking engine used
// for native transfers. Admin only.
func (e *Engine) SetStakingPolicy(caller types.Address, engine *staking.Engine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.roles.Require(CapabilityAdmin, caller); err != nil {
		return err
	}
	e.staking = engine
	if engine != nil {
		engine.SetEmitter(e)
	}
	return nil
}

// StakingPolicy returns the attached staking engine, if any.
func (e *Engine) StakingPolicy() *staking.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.staking
}

// Grant extends a capability to addr. Admin only.
func (e *Engine) Grant(caller types.Address, capability Capability, addr types.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.roles.Require(CapabilityAdmin, caller); err != nil {
		return err
	}
	e.roles.Grant(capability, addr)
	return nil
}

// Pause stops outbound transfer requests. Inbound batch execution continues.
func (e *Engine) Pause(caller types.Address) error {
	return e.run(func() error {
		if err := e.roles.Require(CapabilityPauser, caller); err != nil {
			return err
		}
		e.paused = true
		e.Emit(events.BridgePaused{})
		return nil
	})
}

// Unpause resumes outbound transfer requests.
func (e *Engine) Unpause(caller types.Address) error {
	return e.run(func() error {
		if err := e.roles.Require(CapabilityPauser, caller); err != nil {
			return err
		}
		e.paused = false
		e.Emit(events.BridgeUnpaused{})
		return nil
	})
}

// WhitelistToken upserts the enabled flag and local address for a key. Admin
// only; idempotent.
func (e *Engine) WhitelistToken(caller types.Address, key types.TokenKey, enabled bool, local types.Address, symbol, name string, decimals uint8) error {
	return e.run(func() error {
		if err := e.roles.Require(CapabilityAdmin, caller); err != nil {
			return err
		}
		meta := types.TokenMetadata{Name: name, Symbol: symbol, Decimals: decimals}
		info := e.registry.Whitelist(key, enabled, local, meta)
		e.Emit(events.TokenWhitelisted{
			TokenKey:  key,
			Address:   info.Address,
			Managed:   info.Managed,
			Enabled:   info.Enabled,
			Supported: info.Supported,
			Metadata:  meta,
		})
		return nil
	})
}

// RequestTransfer records an outbound transfer request. For native transfers
// the attached value must equal amount exactly; hosted tokens are pulled via
// allowance granted to the vault; managed tokens are burned. The assigned
// nonce is returned.
func (e *Engine) RequestTransfer(from types.Address, key types.TokenKey, to types.Address, amount *big.Int, destinationChainID uint64, value *big.Int) (uint64, error) {
	var nonce uint64
	err := e.run(func() error {
		if e.paused {
			return coreerr.ErrBridgePaused
		}
		if destinationChainID == e.localChainID {
			return coreerr.ErrInvalidDestinationChain
		}
		info, ok := e.registry.AssetInfo(key)
		if !ok || !info.Enabled {
			return coreerr.ErrTokenNotWhitelisted
		}
		if to.IsZero() {
			return coreerr.ErrInvalidRecipient
		}
		if amount == nil || amount.Sign() <= 0 {
			return coreerr.ErrInvalidAmount
		}

		if info.Address.IsZero() {
			// Native: the attached value must match exactly.
			if value == nil || value.Cmp(amount) != 0 {
				return coreerr.ErrInvalidAmount
			}
			if err := e.accounts.DebitNative(from, amount); err != nil {
				return err
			}
			if e.staking != nil {
				if err := e.staking.Stake(from, amount); err != nil {
					return err
				}
			} else {
				e.accounts.CreditNative(e.vault, amount)
			}
		} else {
			if value != nil && value.Sign() != 0 {
				return coreerr.ErrInvalidAmount
			}
			book, ok := e.registry.Book(info.Address)
			if !ok {
				return coreerr.ErrUnknownToken
			}
			if info.Managed {
				if err := book.Burn(from, amount); err != nil {
					return err
				}
			} else {
				if err := book.TransferFrom(e.vault, from, e.vault, amount); err != nil {
					return err
				}
			}
		}

		nonce = e.nonce
		e.nonce++
		e.Emit(events.TransferRequested{
			Nonce:              nonce,
			From:               from,
			To:                 to,
			TokenKey:           key,
			Amount:             new(big.Int).Set(amount),
			SourceChainID:      e.localChainID,
			DestinationChainID: destinationChainID,
		})
		return nil
	})
	return nonce, err
}

// ExecuteTransferRequests settles a batch of inbound transfers. Authority
// only. The batch is atomic: a failure on any item rolls back every staged
// mutation and emits nothing. Facility withdrawals for unstaked items are
// deferred and issued as one call once every item has staged, so an aborted
// batch never leaves the facility drained.
func (e *Engine) ExecuteTransferRequests(caller types.Address, batch []TransferItem) error {
	return e.run(func() error {
		if err := e.roles.Require(CapabilityAuthority, caller); err != nil {
			return err
		}
		if len(batch) == 0 || len(batch) > e.maxBatch {
			return coreerr.ErrInvalidInput
		}
		if e.staking != nil {
			e.staking.DeferWithdrawals()
		}
		for _, item := range batch {
			if err := e.executeItem(item); err != nil {
				return err
			}
		}
		if e.staking != nil {
			return e.staking.SettleWithdrawals()
		}
		return nil
	})
}

func (e *Engine) executeItem(item TransferItem) error {
	id := TransferID{Nonce: item.Nonce, SourceChainID: item.SourceChainID}
	if e.replay.Seen(id) {
		return coreerr.ErrTransferAlreadyProcessed
	}
	if item.Amount == nil || item.Amount.Sign() <= 0 {
		return coreerr.ErrInvalidAmount
	}
	if item.To.IsZero() {
		return coreerr.ErrInvalidRecipient
	}

	info, wrapped := e.registry.ResolveOrWrap(item.TokenKey, item.Metadata)
	if wrapped {
		e.Emit(events.TokenWrapped{
			TokenKey:    item.TokenKey,
			Address:     info.Address,
			Whitelisted: true,
			Metadata:    item.Metadata,
		})
	}

	if info.Address.IsZero() {
		if e.staking != nil {
			if err := e.staking.Unstake(item.To, item.Amount); err != nil {
				return err
			}
		} else {
			if err := e.accounts.DebitNative(e.vault, item.Amount); err != nil {
				return err
			}
			e.accounts.CreditNative(item.To, item.Amount)
		}
	} else {
		book, ok := e.registry.Book(info.Address)
		if !ok {
			return coreerr.ErrUnknownToken
		}
		if info.Managed {
			book.Mint(item.To, item.Amount)
		} else {
			if err := book.Transfer(e.vault, item.To, item.Amount); err != nil {
				return err
			}
		}
	}

	if err := e.replay.Mark(id); err != nil {
		return err
	}
	e.Emit(events.TransferExecuted{Nonce: item.Nonce, SourceChainID: item.SourceChainID})
	return nil
}

// run stages an operation: every event is buffered and every mutable store is
// snapshotted up front, so a failure restores the pre-call state exactly and
// emits nothing. Calls into the staking facility are the only external side
// effects; they are not compensated, so each operation orders them as its
// last step before commit and their failure simply fails the operation.
func (e *Engine) run(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	recorder := &events.Recorder{}
	e.recorder = recorder
	regSnap := e.registry.Snapshot()
	accSnap := e.accounts.Snapshot()
	replaySnap := e.replay.Snapshot()
	var stakeSnap *staking.EngineSnapshot
	if e.staking != nil {
		stakeSnap = e.staking.Snapshot()
	}
	pausedBefore := e.paused
	nonceBefore := e.nonce

	err := fn()
	if err != nil {
		e.registry.Restore(regSnap)
		e.accounts.Restore(accSnap)
		e.replay.Restore(replaySnap)
		if e.staking != nil {
			e.staking.Restore(stakeSnap)
		}
		e.paused = pausedBefore
		e.nonce = nonceBefore
		recorder.Discard()
	}
	e.recorder = nil
	if err == nil {
		recorder.Flush(e.sink)
	}
	return err
}

// Registry exposes the token registry for deployment wiring and for event
// sinks, which run while the engine lock is held. Callers outside the lock
// should use TokenKeys and TokenDetail instead.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// TokenKeys returns every registered asset key.
func (e *Engine) TokenKeys() []types.TokenKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Keys()
}

// TokenDetail returns the classification and cached metadata for a key.
func (e *Engine) TokenDetail(key types.TokenKey) (registry.TokenInfo, types.TokenMetadata, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.registry.AssetInfo(key)
	if !ok {
		return registry.TokenInfo{}, types.TokenMetadata{}, false
	}
	meta, _ := e.registry.Metadata(key)
	return info, meta, true
}

// ProcessedCount returns the size of the replay guard's processed set.
func (e *Engine) ProcessedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replay.Size()
}

// StakeStatus is a point-in-time view of the attached staking policy.
type StakeStatus struct {
	PooledBalance      *big.Int
	NextStakingEpochID uint64
	LastStakingBlock   uint64
	StakeInterval      uint64
}

// StakeStatus reports the pool counters of the attached staking policy. The
// second result is false when no policy is attached.
func (e *Engine) StakeStatus() (StakeStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staking == nil {
		return StakeStatus{}, false
	}
	return StakeStatus{
		PooledBalance:      e.staking.PooledBalance(),
		NextStakingEpochID: e.staking.NextStakingEpochID(),
		LastStakingBlock:   e.staking.LastStakingBlock(),
		StakeInterval:      e.staking.StakeInterval(),
	}, true
}

// StakePosition returns addr's stake position under the engine lock.
func (e *Engine) StakePosition(addr types.Address) (staking.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staking == nil {
		return staking.Position{Amount: big.NewInt(0)}, false
	}
	return e.staking.PositionOf(addr)
}

// Accounts exposes the native balance book. Genesis funding and the staking
// payout path go through it.
func (e *Engine) Accounts() *Accounts { return e.accounts }

// Replay exposes the processed set for persistence.
func (e *Engine) Replay() *ReplayGuard { return e.replay }

// BridgeNonce returns the next outbound nonce to be assigned.
func (e *Engine) BridgeNonce() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonce
}

// Paused reports whether outbound requests are currently rejected.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Vault returns the address holding locked native and hosted balances.
func (e *Engine) Vault() types.Address { return e.vault }

// LocalChainID returns the chain the ledger settles on.
func (e *Engine) LocalChainID() uint64 { return e.localChainID }

// RestoreNonce reinstates the outbound nonce counter from persisted state.
func (e *Engine) RestoreNonce(nonce uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nonce = nonce
}

// VaultAddress derives the ledger's vault account.
func VaultAddress() types.Address {
	h := ethcrypto.Keccak256([]byte("taobridge/vault"))
	return types.BytesToAddress(h[12:])
}
