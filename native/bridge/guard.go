package bridge

import (
	coreerr "taobridge/core/errors"
	"taobridge/core/types"
)

// Capability enumerates the roles checked at the public entry points.
type Capability uint8

const (
	// CapabilityAdmin may whitelist tokens, attach the staking policy and
	// manage role grants.
	CapabilityAdmin Capability = iota
	// CapabilityAuthority may execute inbound transfer batches.
	CapabilityAuthority
	// CapabilityPauser may pause and unpause outbound requests.
	CapabilityPauser
)

// RoleSet maps capabilities to the addresses holding them.
type RoleSet struct {
	grants map[Capability]map[types.Address]struct{}
}

// NewRoleSet creates an empty role set.
func NewRoleSet() *RoleSet {
	return &RoleSet{grants: make(map[Capability]map[types.Address]struct{})}
}

// Grant gives addr the capability.
func (r *RoleSet) Grant(capability Capability, addr types.Address) {
	holders, ok := r.grants[capability]
	if !ok {
		holders = make(map[types.Address]struct{})
		r.grants[capability] = holders
	}
	holders[addr] = struct{}{}
}

// Revoke removes the capability from addr.
func (r *RoleSet) Revoke(capability Capability, addr types.Address) {
	if holders, ok := r.grants[capability]; ok {
		delete(holders, addr)
	}
}

// Has reports whether addr holds the capability.
func (r *RoleSet) Has(capability Capability, addr types.Address) bool {
	holders, ok := r.grants[capability]
	if !ok {
		return false
	}
	_, ok = holders[addr]
	return ok
}

// Require returns ErrUnauthorized unless addr holds the capability.
func (r *RoleSet) Require(capability Capability, addr types.Address) error {
	if !r.Has(capability, addr) {
		return coreerr.ErrUnauthorized
	}
	return nil
}
