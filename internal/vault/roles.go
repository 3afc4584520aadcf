package vault

import "github.com/ethereum/go-ethereum/common"

// Role is a capability the vault checks before privileged operations.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleCurator   Role = "curator"
	RoleGuardian  Role = "guardian"
	RoleAllocator Role = "allocator"
	RoleFeeder    Role = "feeder"
)

// roleSet keeps authorization state separate from accounting so it can be
// tested on its own. Owner, curator and guardian are single-holder roles;
// allocator and feeder are grant sets.
type roleSet struct {
	owner    common.Address
	curator  common.Address
	guardian common.Address
	grants   map[Role]map[common.Address]bool
}

func newRoleSet(owner, curator, guardian common.Address) *roleSet {
	return &roleSet{
		owner:    owner,
		curator:  curator,
		guardian: guardian,
		grants: map[Role]map[common.Address]bool{
			RoleAllocator: {},
			RoleFeeder:    {},
		},
	}
}

func (r *roleSet) hasRole(account common.Address, role Role) bool {
	switch role {
	case RoleOwner:
		return account == r.owner
	case RoleCurator:
		return account == r.curator
	case RoleGuardian:
		return account == r.guardian
	default:
		return r.grants[role][account]
	}
}

func (r *roleSet) grant(role Role, account common.Address) {
	set, ok := r.grants[role]
	if !ok {
		return
	}
	set[account] = true
}

func (r *roleSet) revoke(role Role, account common.Address) {
	set, ok := r.grants[role]
	if !ok {
		return
	}
	delete(set, account)
}

func (r *roleSet) clone() *roleSet {
	out := &roleSet{
		owner:    r.owner,
		curator:  r.curator,
		guardian: r.guardian,
		grants:   make(map[Role]map[common.Address]bool, len(r.grants)),
	}
	for role, set := range r.grants {
		cp := make(map[common.Address]bool, len(set))
		for addr, ok := range set {
			cp[addr] = ok
		}
		out.grants[role] = cp
	}
	return out
}
