package maker

import (
	"math/rand"

	"github.com/dnldd/fxrfq/shared"
)

// Agent represents a single automated maker with a stable signing identity
// and a pricing strategy.
type Agent struct {
	identity *shared.Identity
	// variancePercent bounds the random rate perturbation applied per
	// quote.
	variancePercent float64
}

// NewAgent initializes a new maker agent.
func NewAgent(identity *shared.Identity, variancePercent float64) *Agent {
	return &Agent{
		identity:        identity,
		variancePercent: variancePercent,
	}
}

// Address returns the agent's ledger address.
func (a *Agent) Address() string {
	return a.identity.Address()
}

// AdjustRate applies the agent's pricing strategy to the provided market
// rate: a bounded random perturbation sampled uniformly per quote,
// intentionally non-deterministic to simulate independent competing makers.
func (a *Agent) AdjustRate(rate float64) float64 {
	perturbation := (rand.Float64()*2 - 1) * (a.variancePercent / 100)
	return rate * (1 + perturbation)
}
