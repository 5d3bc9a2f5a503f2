// Package statedb persists the settlement ledger between restarts. The full
// ledger state is written as a single JSON document; the state is small (token
// classifications, balances, the processed set and stake positions) and a
// whole-document write keeps recovery trivially atomic.
package statedb

import (
	"encoding/json"
	"errors"
	"fmt"

	"taobridge/native/bridge"
	"taobridge/storage"
)

var stateKey = []byte("bridge/state")

// StateDB reads and writes ledger snapshots on a key-value backend.
type StateDB struct {
	db storage.Database
}

// New wraps a key-value backend.
func New(db storage.Database) *StateDB {
	return &StateDB{db: db}
}

// Save serialises and writes the ledger state.
func (s *StateDB) Save(st *bridge.PersistedState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("statedb: encode state: %w", err)
	}
	if err := s.db.Put(stateKey, raw); err != nil {
		return fmt.Errorf("statedb: write state: %w", err)
	}
	return nil
}

// Load reads the persisted ledger state. The boolean is false when no state
// has been saved yet.
func (s *StateDB) Load() (*bridge.PersistedState, bool, error) {
	raw, err := s.db.Get(stateKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statedb: read state: %w", err)
	}
	st := &bridge.PersistedState{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, false, fmt.Errorf("statedb: decode state: %w", err)
	}
	return st, true, nil
}
