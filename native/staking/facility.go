package staking

import (
	"errors"
	"math/big"
)

// Facility is the external staking contract the pooled balance is delegated
// to. Both mutating calls may fail and their failure must propagate as a
// failure of the enclosing operation. The engine never mutates the value
// returned by BalanceOf, so implementations may hand out an internal pointer.
type Facility interface {
	DepositStake(amount *big.Int) error
	WithdrawStake(amount *big.Int) error
	BalanceOf() *big.Int
}

// MemoryFacility is an in-process facility used for local deployments and
// tests. Reward accrual is simulated by crediting the balance out of band.
type MemoryFacility struct {
	balance *big.Int
}

// NewMemoryFacility creates a facility with a zero balance.
func NewMemoryFacility() *MemoryFacility {
	return &MemoryFacility{balance: big.NewInt(0)}
}

// DepositStake adds the delegated amount to the held balance.
func (f *MemoryFacility) DepositStake(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("facility: deposit amount must be positive")
	}
	f.balance.Add(f.balance, amount)
	return nil
}

// WithdrawStake releases amount from the held balance.
func (f *MemoryFacility) WithdrawStake(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("facility: withdraw amount must be positive")
	}
	if f.balance.Cmp(amount) < 0 {
		return errors.New("facility: insufficient facility balance")
	}
	f.balance.Sub(f.balance, amount)
	return nil
}

// BalanceOf reports the externally held balance.
func (f *MemoryFacility) BalanceOf() *big.Int {
	return new(big.Int).Set(f.balance)
}

// Accrue simulates yield by crediting the held balance.
func (f *MemoryFacility) Accrue(amount *big.Int) {
	f.balance.Add(f.balance, amount)
}
