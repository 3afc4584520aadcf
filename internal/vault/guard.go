package vault

// opClass partitions vault operations into mutual-exclusion groups. Allocation
// operations (allocate/deallocate/reallocate) must not be re-entered by a swap
// callback, and funding operations must not be re-entered except by the flash
// composition that is already holding the guard.
type opClass int

const (
	classNone opClass = iota
	classAllocation
	classFunding
)

func (c opClass) String() string {
	switch c {
	case classAllocation:
		return "allocation"
	case classFunding:
		return "funding"
	default:
		return "none"
	}
}

// opGuard is the explicit reentrancy state machine: Idle, InAllocation or
// InFunding. Nested funding entries are only legal while a flash composition
// is in flight on the same invocation.
type opGuard struct {
	state opClass
	depth int
}

func (g *opGuard) enter(c opClass, flashInFlight bool) error {
	if g.state == classNone {
		g.state = c
		g.depth = 1
		return nil
	}
	if c == classFunding && g.state == classFunding && flashInFlight {
		g.depth++
		return nil
	}
	return ErrReentrancy
}

func (g *opGuard) exit() {
	if g.depth == 0 {
		return
	}
	g.depth--
	if g.depth == 0 {
		g.state = classNone
	}
}
