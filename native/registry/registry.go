package registry

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"taobridge/core/types"
)

// TokenInfo is the classification record kept per asset key.
type TokenInfo struct {
	Address types.Address `json:"address"`
	// Managed marks tokens the bridge mints and burns. Once set it never
	// reverts to false.
	Managed bool `json:"managed"`
	// Enabled gates outbound transfer requests.
	Enabled bool `json:"enabled"`
	// Supported marks keys first whitelisted with a local token address,
	// and every wrapped key. Native entries stay unsupported.
	Supported bool `json:"supported"`
}

// Registry tracks which asset keys are bridgeable, their classification and
// cached metadata, plus the balance books of locally addressable tokens.
type Registry struct {
	tokens   map[types.TokenKey]*TokenInfo
	metadata map[types.TokenKey]types.TokenMetadata
	books    map[types.Address]*Book
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens:   make(map[types.TokenKey]*TokenInfo),
		metadata: make(map[types.TokenKey]types.TokenMetadata),
		books:    make(map[types.Address]*Book),
	}
}

// Whitelist upserts the enabled flag and local address for a key. It is
// idempotent; repeated calls simply overwrite enabled and address. Managed
// status is sticky and survives re-whitelisting. A key first seen here is
// marked supported only when it carries a local token address.
func (r *Registry) Whitelist(key types.TokenKey, enabled bool, local types.Address, meta types.TokenMetadata) TokenInfo {
	info, ok := r.tokens[key]
	if !ok {
		info = &TokenInfo{Supported: !local.IsZero()}
		r.tokens[key] = info
	}
	info.Address = local
	info.Enabled = enabled
	r.metadata[key] = meta
	return *info
}

// ResolveOrWrap looks a key up during inbound settlement. Unknown keys get a
// fresh managed token synthesised from the carried metadata; the returned
// wrapped flag is true exactly once per key.
func (r *Registry) ResolveOrWrap(key types.TokenKey, meta types.TokenMetadata) (TokenInfo, bool) {
	if info, ok := r.tokens[key]; ok {
		return *info, false
	}
	addr := WrappedTokenAddress(key)
	info := &TokenInfo{Address: addr, Managed: true, Enabled: true, Supported: true}
	r.tokens[key] = info
	r.metadata[key] = meta
	r.books[addr] = NewBook(meta)
	return *info, true
}

// AssetInfo returns the classification record for a key.
func (r *Registry) AssetInfo(key types.TokenKey) (TokenInfo, bool) {
	info, ok := r.tokens[key]
	if !ok {
		return TokenInfo{}, false
	}
	return *info, true
}

// Metadata returns the cached human-readable description for a key.
func (r *Registry) Metadata(key types.TokenKey) (types.TokenMetadata, bool) {
	meta, ok := r.metadata[key]
	return meta, ok
}

// Book returns the balance ledger for a locally addressable token.
func (r *Registry) Book(addr types.Address) (*Book, bool) {
	book, ok := r.books[addr]
	return book, ok
}

// RegisterHostedToken installs the balance book of a pre-existing local token
// that the bridge locks and unlocks rather than mints. Callers mint the
// initial supply through the returned book.
func (r *Registry) RegisterHostedToken(addr types.Address, meta types.TokenMetadata) *Book {
	book := NewBook(meta)
	r.books[addr] = book
	return book
}

// WrappedTokenAddress deterministically derives the local address of the
// managed token minted for a foreign key.
func WrappedTokenAddress(key types.TokenKey) types.Address {
	h := ethcrypto.Keccak256([]byte("wrapped"), key[:])
	return types.BytesToAddress(h[12:])
}

// Snapshot captures a deep copy of the registry for staged batch execution.
func (r *Registry) Snapshot() *Registry {
	clone := NewRegistry()
	for key, info := range r.tokens {
		copied := *info
		clone.tokens[key] = &copied
	}
	for key, meta := range r.metadata {
		clone.metadata[key] = meta
	}
	for addr, book := range r.books {
		clone.books[addr] = book.Clone()
	}
	return clone
}

// Restore replaces the registry contents with a previously taken snapshot.
func (r *Registry) Restore(snap *Registry) {
	r.tokens = snap.tokens
	r.metadata = snap.metadata
	r.books = snap.books
}

// Keys returns every known asset key, for persistence and status reporting.
func (r *Registry) Keys() []types.TokenKey {
	keys := make([]types.TokenKey, 0, len(r.tokens))
	for key := range r.tokens {
		keys = append(keys, key)
	}
	return keys
}
