package rbac

// CapabilitySet is an ordered, immutable set of capabilities
type CapabilitySet struct {
	ordered []Capability
	index   map[Capability]struct{}
}

func newCapabilitySet(caps ...Capability) CapabilitySet {
	return CapabilitySet{}.with(caps...)
}

// with returns a copy of s extended by caps. Senior role sets are built from
// junior ones with with, so a senior set can never lose a junior capability.
func (s CapabilitySet) with(caps ...Capability) CapabilitySet {
	out := CapabilitySet{
		ordered: make([]Capability, 0, len(s.ordered)+len(caps)),
		index:   make(map[Capability]struct{}, len(s.ordered)+len(caps)),
	}
	for _, c := range s.ordered {
		out.add(c)
	}
	for _, c := range caps {
		out.add(c)
	}
	return out
}

func (s *CapabilitySet) add(c Capability) {
	if _, ok := s.index[c]; ok {
		return
	}
	s.index[c] = struct{}{}
	s.ordered = append(s.ordered, c)
}

// Has reports whether c is in the set
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s.index[c]
	return ok
}

// List returns the capabilities in grant order
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of capabilities in the set
func (s CapabilitySet) Len() int {
	return len(s.ordered)
}

var (
	memberCapabilities = newCapabilitySet(
		CapUsersRead,
		CapRolesRead,
		CapSettingsRead,
		CapAPIKeysRead,
	)

	adminCapabilities = memberCapabilities.with(
		CapUsersWrite,
		CapUsersDelete,
		CapRolesWrite,
		CapSettingsWrite,
		CapAPIKeysWrite,
		CapInvitationsWrite,
		CapAuditRead,
	)

	ownerCapabilities = adminCapabilities.with(
		CapRolesDelete,
		CapOwnersManage,
		CapTenantDeactivate,
		CapBillingManage,
	)

	// system.config is deliberately absent from every tenant role
	noCapabilities = newCapabilitySet()
)

// Capabilities returns the fixed capability set granted to r
func (r Role) Capabilities() CapabilitySet {
	switch r {
	case RoleMember:
		return memberCapabilities
	case RoleAdmin:
		return adminCapabilities
	case RoleOwner:
		return ownerCapabilities
	}
	return noCapabilities
}
