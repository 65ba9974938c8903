package users

// Gate is the role/permission predicate consumed by downstream services.
// The authority stays ignorant of any particular service's authorization
// rules; a service builds its own Gate over the role names returned by
// session verification. The admin endpoints here use the same contract.
type Gate interface {
	Allow(roles []RoleType) bool
}

// AnyOf is a Gate that passes when the caller holds at least one of the
// listed roles.
type AnyOf []RoleType

func (g AnyOf) Allow(roles []RoleType) bool {
	for _, have := range roles {
		for _, want := range g {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AllOf is a Gate that passes only when the caller holds every listed role.
type AllOf []RoleType

func (g AllOf) Allow(roles []RoleType) bool {
	held := make(map[RoleType]bool, len(roles))
	for _, r := range roles {
		held[r] = true
	}
	for _, want := range g {
		if !held[want] {
			return false
		}
	}
	return true
}
