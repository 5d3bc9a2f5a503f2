package bridge

import (
	"math/big"
	"sort"

	"taobridge/core/types"
	"taobridge/native/registry"
	"taobridge/native/staking"
)

// PersistedState is the serialisable ledger state written between restarts.
// The staking section is nil when no staking policy is attached.
type PersistedState struct {
	BridgeNonce uint64                     `json:"bridgeNonce"`
	Paused      bool                       `json:"paused"`
	Registry    *registry.State            `json:"registry"`
	Accounts    map[types.Address]*big.Int `json:"accounts"`
	Processed   []TransferID               `json:"processed"`
	Staking     *staking.EngineSnapshot    `json:"staking,omitempty"`
}

// ExportState captures the full ledger state for persistence. The processed
// set is emitted in deterministic order so repeated exports of identical state
// serialise identically.
func (e *Engine) ExportState() *PersistedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	processed := make([]TransferID, 0, e.replay.Size())
	e.replay.Each(func(id TransferID) {
		processed = append(processed, id)
	})
	sort.Slice(processed, func(i, j int) bool {
		if processed[i].SourceChainID != processed[j].SourceChainID {
			return processed[i].SourceChainID < processed[j].SourceChainID
		}
		return processed[i].Nonce < processed[j].Nonce
	})

	st := &PersistedState{
		BridgeNonce: e.nonce,
		Paused:      e.paused,
		Registry:    e.registry.State(),
		Accounts:    e.accounts.Snapshot(),
		Processed:   processed,
	}
	if e.staking != nil {
		st.Staking = e.staking.Snapshot()
	}
	return st
}

// ImportState reinstates a previously exported ledger state. The staking
// section is only applied when a staking policy is already attached.
func (e *Engine) ImportState(st *PersistedState) {
	if st == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nonce = st.BridgeNonce
	e.paused = st.Paused
	e.registry.LoadState(st.Registry)

	accounts := make(map[types.Address]*big.Int, len(st.Accounts))
	for addr, bal := range st.Accounts {
		if bal != nil {
			accounts[addr] = new(big.Int).Set(bal)
		}
	}
	e.accounts.Restore(accounts)

	processed := make(map[TransferID]struct{}, len(st.Processed))
	for _, id := range st.Processed {
		processed[id] = struct{}{}
	}
	e.replay.Restore(processed)

	if e.staking != nil && st.Staking != nil {
		e.staking.Restore(st.Staking)
	}
}
