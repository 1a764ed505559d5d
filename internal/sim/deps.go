package sim

import (
	"math/rand/v2"

	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
)

// Deps carries shared infrastructure dependencies required by the simulation engine.
type Deps struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Clock   logging.Clock
	RNG     *rand.Rand
}

// NewRNG seeds a PCG source. A zero seed derives one from the clock.
func NewRNG(seed uint64, clock logging.Clock) *rand.Rand {
	if seed == 0 {
		if clock == nil {
			clock = logging.SystemClock{}
		}
		seed = uint64(clock.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
