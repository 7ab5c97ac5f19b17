package rollup

import (
	"fmt"

	"github.com/theirongolddev/costroll/internal/money"
)

// Attribution splits a cost-code-level amount across the budget lines that
// share the cost code. weights holds the lines' original amounts in key
// order; index 0 is the code's primary line. The returned shares always sum
// to amount exactly.
type Attribution interface {
	Name() string
	Split(amount money.Money, weights []money.Money) []money.Money
}

// Attribution strategy names accepted by ParseAttribution.
const (
	AttributionPrimary      = "primary"
	AttributionProportional = "proportional"
)

// ParseAttribution returns the strategy with the given name. An empty name
// selects the primary-line strategy.
func ParseAttribution(name string) (Attribution, error) {
	switch name {
	case "", AttributionPrimary:
		return Primary{}, nil
	case AttributionProportional:
		return Proportional{}, nil
	}
	return nil, fmt.Errorf("unknown attribution %q (want %s or %s)", name, AttributionPrimary, AttributionProportional)
}

// Primary places the whole amount on the first line for the cost code.
type Primary struct{}

func (Primary) Name() string { return AttributionPrimary }

func (Primary) Split(amount money.Money, weights []money.Money) []money.Money {
	out := make([]money.Money, len(weights))
	if len(out) > 0 {
		out[0] = amount
	}
	return out
}

// Proportional splits by each line's share of the code's original budget,
// truncating to cents and putting the remainder on the primary line. With
// no original budget on the code it behaves like Primary.
type Proportional struct{}

func (Proportional) Name() string { return AttributionProportional }

func (Proportional) Split(amount money.Money, weights []money.Money) []money.Money {
	total := money.Sum(weights...)
	if len(weights) < 2 || total.IsZero() {
		return Primary{}.Split(amount, weights)
	}

	out := make([]money.Money, len(weights))
	assigned := money.Zero()
	for i := 1; i < len(weights); i++ {
		share := amount.Decimal().Mul(weights[i].Decimal()).Div(total.Decimal())
		out[i] = money.FromDecimal(share).Truncate()
		assigned = assigned.Add(out[i])
	}
	out[0] = amount.Sub(assigned)
	return out
}
