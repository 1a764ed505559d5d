package sim

// EngineCore is the authoritative state the loop drives. Every method is
// called from the loop goroutine only.
type EngineCore interface {
	Deps() Deps
	Apply([]Command) error
	Step(LoopTickContext)
	Snapshot() Keyframe
	DrainPatches() []Patch
}

// Engine defines the surface exposed to non-simulation callers.
type Engine interface {
	Enqueue(Command) (bool, string)
	EnqueueLifecycle(Command)
	Pending() int
	Advance(LoopTickContext) LoopStepResult
	Run(stop <-chan struct{})
}
