package bridge

import (
	"math/big"

	coreerr "taobridge/core/errors"
	"taobridge/core/types"
)

// Accounts is the native currency balance book. It doubles as the payout sink
// for the staking engine.
type Accounts struct {
	balances map[types.Address]*big.Int
}

// NewAccounts creates an empty native balance book.
func NewAccounts() *Accounts {
	return &Accounts{balances: make(map[types.Address]*big.Int)}
}

// CreditNative adds amount to the balance held by addr.
func (a *Accounts) CreditNative(addr types.Address, amount *big.Int) {
	bal, ok := a.balances[addr]
	if !ok {
		bal = big.NewInt(0)
		a.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

// DebitNative removes amount from the balance held by addr.
func (a *Accounts) DebitNative(addr types.Address, amount *big.Int) error {
	bal, ok := a.balances[addr]
	if !ok || bal.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

// BalanceOf returns the native balance held by addr.
func (a *Accounts) BalanceOf(addr types.Address) *big.Int {
	if bal, ok := a.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Snapshot returns a deep copy of the balance map.
func (a *Accounts) Snapshot() map[types.Address]*big.Int {
	snap := make(map[types.Address]*big.Int, len(a.balances))
	for addr, bal := range a.balances {
		snap[addr] = new(big.Int).Set(bal)
	}
	return snap
}

// Restore replaces the balance map with a snapshot.
func (a *Accounts) Restore(snap map[types.Address]*big.Int) {
	a.balances = snap
}

// TransferID identifies an inbound settlement across chains.
type TransferID struct {
	Nonce         uint64 `json:"nonce"`
	SourceChainID uint64 `json:"srcChainId"`
}

// ReplayGuard tracks which inbound (nonce, srcChainId) pairs already settled.
// The set grows monotonically and is never pruned.
type ReplayGuard struct {
	processed map[TransferID]struct{}
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{processed: make(map[TransferID]struct{})}
}

// Seen reports whether the pair was already settled.
func (g *ReplayGuard) Seen(id TransferID) bool {
	_, ok := g.processed[id]
	return ok
}

// Mark records the pair. Marking an already settled pair is rejected rather
// than silently ignored.
func (g *ReplayGuard) Mark(id TransferID) error {
	if g.Seen(id) {
		return coreerr.ErrTransferAlreadyProcessed
	}
	g.processed[id] = struct{}{}
	return nil
}

// Size returns the number of settled pairs.
func (g *ReplayGuard) Size() int { return len(g.processed) }

// Snapshot returns a copy of the processed set.
func (g *ReplayGuard) Snapshot() map[TransferID]struct{} {
	snap := make(map[TransferID]struct{}, len(g.processed))
	for id := range g.processed {
		snap[id] = struct{}{}
	}
	return snap
}

// Restore replaces the processed set with a snapshot.
func (g *ReplayGuard) Restore(snap map[TransferID]struct{}) {
	g.processed = snap
}

// Each visits every settled pair, for persistence.
func (g *ReplayGuard) Each(fn func(TransferID)) {
	for id := range g.processed {
		fn(id)
	}
}
