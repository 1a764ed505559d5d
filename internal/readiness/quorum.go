package readiness

import "github.com/ddm94/SlimyKitchenOnline/internal/replicated"

// Readiness records ready marks. Marks are one-way: nothing clears them
// while the session lives.
type Readiness struct {
	set *Set
}

func NewReadiness() *Readiness {
	return &Readiness{set: NewSet()}
}

// SetReady marks id ready and reports whether every participant in universe
// is now ready.
func (r *Readiness) SetReady(id string, universe []string) bool {
	r.set.Mark(id, true)
	return r.set.All(universe)
}

// Quorum re-evaluates readiness without recording anything.
func (r *Readiness) Quorum(universe []string) bool {
	return r.set.All(universe)
}

func (r *Readiness) IsReady(id string) bool {
	ready, _ := r.set.Value(id)
	return ready
}

func (r *Readiness) Set() *Set {
	return r.set
}

// Pause keeps per-participant pause requests and the replicated aggregate.
type Pause struct {
	entries   *Set
	aggregate *replicated.Value[bool]
}

func NewPause(role replicated.Role) *Pause {
	return &Pause{
		entries:   NewSet(),
		aggregate: replicated.New(role, false),
	}
}

// Signal records id's pause request and recomputes the aggregate over
// universe.
func (p *Pause) Signal(id string, paused bool, universe []string) error {
	p.entries.Mark(id, paused)
	return p.Recompute(universe)
}

// Recompute rewrites the aggregate from the current entries. The write
// happens even when the result is unchanged.
func (p *Pause) Recompute(universe []string) error {
	return p.aggregate.SetFromAuthority(p.entries.Any(universe))
}

func (p *Pause) Paused() bool {
	return p.aggregate.Get()
}

// Aggregate exposes the replicated flag so callers can observe or apply it.
func (p *Pause) Aggregate() *replicated.Value[bool] {
	return p.aggregate
}

// Entries exposes the per-participant pause requests.
func (p *Pause) Entries() *Set {
	return p.entries
}
