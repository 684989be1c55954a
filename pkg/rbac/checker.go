package rbac

import "sync"

// Evaluate answers whether s may exercise c. It never fails: a denial is a
// Decision with Allowed false.
func Evaluate(s Subject, c Capability) Decision {
	if s.Role.Capabilities().Has(c) {
		return Decision{Allowed: true}
	}
	if s.SuperAdmin {
		return Decision{Allowed: true, Bypass: true}
	}
	return Decision{}
}

// HasPermission is Evaluate reduced to a boolean
func HasPermission(s Subject, c Capability) bool {
	return Evaluate(s, c).Allowed
}

// EvaluateSet checks a set of capabilities under the given combinator. An
// empty set is denied.
func EvaluateSet(s Subject, mode Combinator, caps ...Capability) Decision {
	if len(caps) == 0 {
		return Decision{}
	}

	switch mode {
	case Any:
		bypass := false
		for _, c := range caps {
			d := Evaluate(s, c)
			if d.Allowed && !d.Bypass {
				return d
			}
			bypass = bypass || d.Bypass
		}
		return Decision{Allowed: bypass, Bypass: bypass}
	default:
		out := Decision{Allowed: true}
		for _, c := range caps {
			d := Evaluate(s, c)
			if !d.Allowed {
				return Decision{}
			}
			out.Bypass = out.Bypass || d.Bypass
		}
		return out
	}
}

type memoKey struct {
	role       Role
	superAdmin bool
	capability Capability
}

// Memo caches decisions for the lifetime of one request. It also remembers
// whether any decision relied on the super admin bypass, so the request's
// audit records can be tagged.
type Memo struct {
	mu        sync.Mutex
	decisions map[memoKey]Decision
	bypassed  bool
}

// NewMemo creates an empty per-request memo
func NewMemo() *Memo {
	return &Memo{decisions: make(map[memoKey]Decision)}
}

// Evaluate is the memoized form of the package-level Evaluate
func (m *Memo) Evaluate(s Subject, c Capability) Decision {
	d := m.peek(s, c)
	if d.Bypass {
		m.markBypassed()
	}
	return d
}

// EvaluateSet is the memoized form of the package-level EvaluateSet
func (m *Memo) EvaluateSet(s Subject, mode Combinator, caps ...Capability) Decision {
	if len(caps) == 0 {
		return Decision{}
	}

	switch mode {
	case Any:
		bypass := false
		for _, c := range caps {
			d := m.peek(s, c)
			if d.Allowed && !d.Bypass {
				return d
			}
			bypass = bypass || d.Bypass
		}
		if bypass {
			m.markBypassed()
		}
		return Decision{Allowed: bypass, Bypass: bypass}
	default:
		out := Decision{Allowed: true}
		for _, c := range caps {
			d := m.peek(s, c)
			if !d.Allowed {
				return Decision{}
			}
			out.Bypass = out.Bypass || d.Bypass
		}
		if out.Bypass {
			m.markBypassed()
		}
		return out
	}
}

// Bypassed reports whether any allowed decision so far needed the super admin bypass
func (m *Memo) Bypassed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bypassed
}

// Len returns the number of cached decisions
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decisions)
}

// peek evaluates through the cache without recording a bypass
func (m *Memo) peek(s Subject, c Capability) Decision {
	key := memoKey{role: s.Role, superAdmin: s.SuperAdmin, capability: c}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decisions[key]
	if !ok {
		d = Evaluate(s, c)
		m.decisions[key] = d
	}
	return d
}

func (m *Memo) markBypassed() {
	m.mu.Lock()
	m.bypassed = true
	m.mu.Unlock()
}
