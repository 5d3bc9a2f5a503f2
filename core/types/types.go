package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TokenKeyNamespace prefixes the symbol string before hashing so that token
// keys derived by the bridge can never collide with keys minted under a
// different scheme on the counter chain.
const TokenKeyNamespace = "DATURABRIDGETOKEN"

// Address identifies an account on the local chain.
type Address [20]byte

// ZeroAddress is the sentinel used both for "no recipient" checks and for the
// native currency token address.
var ZeroAddress Address

// Bytes returns the address as a byte slice copy.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// Hex renders the address as a 0x-prefixed lowercase hex string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler so addresses serialise as hex
// strings, including when used as JSON map keys.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 0x-prefixed or bare hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("types: invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("types: invalid address length %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// BytesToAddress converts a byte slice into an Address, truncating or
// left-padding as the go-ethereum helpers do.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > len(addr) {
		b = b[len(b)-len(addr):]
	}
	copy(addr[len(addr)-len(b):], b)
	return addr
}

// TokenKey is the opaque 32-byte identifier correlating the same logical
// token across both chains.
type TokenKey [32]byte

// NewTokenKey derives the key for a symbol under the bridge namespace.
func NewTokenKey(symbol string) TokenKey {
	var key TokenKey
	copy(key[:], ethcrypto.Keccak256([]byte(TokenKeyNamespace+":"+symbol)))
	return key
}

// Hex renders the key as a 0x-prefixed lowercase hex string.
func (k TokenKey) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

// IsZero reports whether the key is entirely zero.
func (k TokenKey) IsZero() bool {
	return k == TokenKey{}
}

// MarshalText implements encoding.TextMarshaler.
func (k TokenKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TokenKey) UnmarshalText(text []byte) error {
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(text)), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return fmt.Errorf("types: invalid token key %q: %w", text, err)
	}
	if len(raw) != len(k) {
		return fmt.Errorf("types: invalid token key length %d", len(raw))
	}
	copy(k[:], raw)
	return nil
}

// TokenMetadata carries the human-readable description cached for a token
// and relayed alongside inbound transfers so the destination chain can wrap
// unknown assets.
type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
