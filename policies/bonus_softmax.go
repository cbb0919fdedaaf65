package policies

import (
	"math"

	"github.com/zeu5/robot-goal-env/types"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// BonusPolicySoftMax samples directions with probabilities proportional to
// exp(Q/temperature) instead of acting greedily.
type BonusPolicySoftMax struct {
	*BonusPolicyGreedy
	temperature float64
}

var _ types.Policy = &BonusPolicySoftMax{}

func NewBonusPolicySoftMax(alpha, discount, cell, temperature float64) *BonusPolicySoftMax {
	return &BonusPolicySoftMax{
		BonusPolicyGreedy: NewBonusPolicyGreedy(alpha, discount, 0, cell, false),
		temperature:       temperature,
	}
}

func (b *BonusPolicySoftMax) NextAction(step int, obs *types.Observation, space *types.Box) ([]float64, bool) {
	stateHash := CellKey(obs, b.cell)

	vals := make([]float64, len(directionKeys))
	maxVal := math.Inf(-1)
	for i, action := range directionKeys {
		vals[i] = b.qTable.Get(stateHash, action, 1) / b.temperature
		maxVal = math.Max(maxVal, vals[i])
	}
	sum := float64(0)
	for i, val := range vals {
		// shifted by the max for numerical stability
		exp := math.Exp(val - maxVal)
		vals[i] = exp
		sum += exp
	}
	weights := make([]float64, len(vals))
	for i, v := range vals {
		weights[i] = v / sum
	}
	i, ok := sampleuv.NewWeighted(weights, b.rand).Take()
	if !ok {
		return nil, false
	}
	return directionAction(directionKeys[i], space), true
}
