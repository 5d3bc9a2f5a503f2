package registry

import (
	"math/big"

	"taobridge/core/types"
)

// BookState is the serialisable form of a balance book.
type BookState struct {
	Metadata   types.TokenMetadata                          `json:"metadata"`
	Supply     *big.Int                                     `json:"supply"`
	Balances   map[types.Address]*big.Int                   `json:"balances"`
	Allowances map[types.Address]map[types.Address]*big.Int `json:"allowances,omitempty"`
}

// State is the serialisable form of the registry, written between restarts.
type State struct {
	Tokens   map[types.TokenKey]TokenInfo           `json:"tokens"`
	Metadata map[types.TokenKey]types.TokenMetadata `json:"metadata"`
	Books    map[types.Address]BookState            `json:"books"`
}

// State exports a deep copy of the registry contents.
func (r *Registry) State() *State {
	st := &State{
		Tokens:   make(map[types.TokenKey]TokenInfo, len(r.tokens)),
		Metadata: make(map[types.TokenKey]types.TokenMetadata, len(r.metadata)),
		Books:    make(map[types.Address]BookState, len(r.books)),
	}
	for key, info := range r.tokens {
		st.Tokens[key] = *info
	}
	for key, meta := range r.metadata {
		st.Metadata[key] = meta
	}
	for addr, book := range r.books {
		st.Books[addr] = book.State()
	}
	return st
}

// LoadState replaces the registry contents with an exported state.
func (r *Registry) LoadState(st *State) {
	if st == nil {
		return
	}
	r.tokens = make(map[types.TokenKey]*TokenInfo, len(st.Tokens))
	r.metadata = make(map[types.TokenKey]types.TokenMetadata, len(st.Metadata))
	r.books = make(map[types.Address]*Book, len(st.Books))
	for key, info := range st.Tokens {
		copied := info
		r.tokens[key] = &copied
	}
	for key, meta := range st.Metadata {
		r.metadata[key] = meta
	}
	for addr, bs := range st.Books {
		r.books[addr] = bookFromState(bs)
	}
}

// State exports a deep copy of the book.
func (b *Book) State() BookState {
	st := BookState{
		Metadata:   b.meta,
		Supply:     new(big.Int).Set(b.supply),
		Balances:   make(map[types.Address]*big.Int, len(b.balances)),
		Allowances: make(map[types.Address]map[types.Address]*big.Int, len(b.allowances)),
	}
	for addr, bal := range b.balances {
		st.Balances[addr] = new(big.Int).Set(bal)
	}
	for owner, grants := range b.allowances {
		copied := make(map[types.Address]*big.Int, len(grants))
		for spender, a := range grants {
			copied[spender] = new(big.Int).Set(a)
		}
		st.Allowances[owner] = copied
	}
	return st
}

func bookFromState(st BookState) *Book {
	book := NewBook(st.Metadata)
	if st.Supply != nil {
		book.supply = new(big.Int).Set(st.Supply)
	}
	for addr, bal := range st.Balances {
		if bal != nil {
			book.balances[addr] = new(big.Int).Set(bal)
		}
	}
	for owner, grants := range st.Allowances {
		copied := make(map[types.Address]*big.Int, len(grants))
		for spender, a := range grants {
			if a != nil {
				copied[spender] = new(big.Int).Set(a)
			}
		}
		book.allowances[owner] = copied
	}
	return book
}
