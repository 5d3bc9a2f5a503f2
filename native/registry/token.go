package registry

import (
	"math/big"

	coreerr "taobridge/core/errors"
	"taobridge/core/types"
)

// Book is the balance ledger backing a single token. Hosted tokens get a book
// registered at deployment time; managed tokens get one synthesised by the
// registry when an unknown key is first wrapped.
type Book struct {
	meta       types.TokenMetadata
	supply     *big.Int
	balances   map[types.Address]*big.Int
	allowances map[types.Address]map[types.Address]*big.Int
}

// NewBook creates an empty balance book for the given metadata.
func NewBook(meta types.TokenMetadata) *Book {
	return &Book{
		meta:       meta,
		supply:     big.NewInt(0),
		balances:   make(map[types.Address]*big.Int),
		allowances: make(map[types.Address]map[types.Address]*big.Int),
	}
}

// Metadata returns the cached token description.
func (b *Book) Metadata() types.TokenMetadata { return b.meta }

// TotalSupply returns the current supply.
func (b *Book) TotalSupply() *big.Int { return new(big.Int).Set(b.supply) }

// BalanceOf returns the balance held by addr.
func (b *Book) BalanceOf(addr types.Address) *big.Int {
	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns the remaining spend granted by owner to spender.
func (b *Book) Allowance(owner, spender types.Address) *big.Int {
	if grants, ok := b.allowances[owner]; ok {
		if a, ok := grants[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return big.NewInt(0)
}

// Approve sets the allowance from owner to spender, replacing any prior grant.
func (b *Book) Approve(owner, spender types.Address, amount *big.Int) {
	grants, ok := b.allowances[owner]
	if !ok {
		grants = make(map[types.Address]*big.Int)
		b.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
}

// Mint credits amount to addr and grows the supply.
func (b *Book) Mint(addr types.Address, amount *big.Int) {
	b.credit(addr, amount)
	b.supply.Add(b.supply, amount)
}

// Burn debits amount from addr and shrinks the supply.
func (b *Book) Burn(addr types.Address, amount *big.Int) error {
	if err := b.debit(addr, amount); err != nil {
		return err
	}
	b.supply.Sub(b.supply, amount)
	return nil
}

// Transfer moves amount from one holder to another.
func (b *Book) Transfer(from, to types.Address, amount *big.Int) error {
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

// TransferFrom moves amount out of from on behalf of spender, consuming the
// corresponding allowance first.
func (b *Book) TransferFrom(spender, from, to types.Address, amount *big.Int) error {
	allowance := b.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientAllowance
	}
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.allowances[from][spender] = allowance.Sub(allowance, amount)
	b.credit(to, amount)
	return nil
}

func (b *Book) credit(addr types.Address, amount *big.Int) {
	bal, ok := b.balances[addr]
	if !ok {
		bal = big.NewInt(0)
		b.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (b *Book) debit(addr types.Address, amount *big.Int) error {
	bal, ok := b.balances[addr]
	if !ok || bal.Cmp(amount) < 0 {
		return coreerr.ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

// Clone returns a deep copy so batch execution can stage mutations.
func (b *Book) Clone() *Book {
	clone := NewBook(b.meta)
	clone.supply = new(big.Int).Set(b.supply)
	for addr, bal := range b.balances {
		clone.balances[addr] = new(big.Int).Set(bal)
	}
	for owner, grants := range b.allowances {
		cloned := make(map[types.Address]*big.Int, len(grants))
		for spender, a := range grants {
			cloned[spender] = new(big.Int).Set(a)
		}
		clone.allowances[owner] = cloned
	}
	return clone
}
