package policies

import (
	"time"

	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
)

// BonusPolicyGreedy explores with a count based bonus over the discretized
// goal offset. Values are learnt backwards over each finished episode.
type BonusPolicyGreedy struct {
	qTable   *QTable
	alpha    float64
	discount float64
	visits   *QTable
	epsilon  float64
	cell     float64
	rand     *rand.Rand

	// rewardScale mixes the environment reward into the bonus, 0 explores only
	rewardScale float64
	max         bool
}

var _ types.Policy = &BonusPolicyGreedy{}

func NewBonusPolicyGreedy(alpha, discount, epsilon, cell float64, max bool) *BonusPolicyGreedy {
	return &BonusPolicyGreedy{
		qTable:   NewQTable(),
		alpha:    alpha,
		discount: discount,
		visits:   NewQTable(),
		epsilon:  epsilon,
		cell:     cell,
		rand:     rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		max:      max,
	}
}

// WithRewardScale makes the policy exploit the environment reward as well
func (b *BonusPolicyGreedy) WithRewardScale(scale float64) *BonusPolicyGreedy {
	b.rewardScale = scale
	return b
}

// WithSeed fixes the exploration randomness
func (b *BonusPolicyGreedy) WithSeed(seed uint64) *BonusPolicyGreedy {
	b.rand = rand.New(rand.NewSource(seed))
	return b
}

func (b *BonusPolicyGreedy) Record(path string) error {
	return b.qTable.Record(path)
}

func (b *BonusPolicyGreedy) Reset() {
	b.qTable = NewQTable()
	b.visits = NewQTable()
}

func (b *BonusPolicyGreedy) NextAction(step int, obs *types.Observation, space *types.Box) ([]float64, bool) {
	if b.rand.Float64() < b.epsilon {
		i := b.rand.Intn(len(directionKeys))
		return directionAction(directionKeys[i], space), true
	}

	maxAction, _ := b.qTable.MaxAmong(CellKey(obs, b.cell), directionKeys, 1)
	if maxAction == "" {
		return nil, false
	}
	return directionAction(maxAction, space), true
}

func (b *BonusPolicyGreedy) Update(_ int, _ *types.Observation, _ []float64, _ float64, _ *types.Observation) {
}

func (b *BonusPolicyGreedy) updateInternal(tr types.Transition, last bool) {
	stateHash := CellKey(tr.Obs, b.cell)
	actionHash := DirectionKey(tr.Action)
	nextStateHash := CellKey(tr.NextObs, b.cell)
	t := b.visits.Get(stateHash, actionHash, 0) + 1
	b.visits.Set(stateHash, actionHash, t)

	nextStateVal := 0.0
	// the horizon cuts off the value of the last state
	if !last {
		_, nextStateVal = b.qTable.Max(nextStateHash, 1)
	}
	curVal := b.qTable.Get(stateHash, actionHash, 1)

	bonus := 1/t + b.rewardScale*tr.Reward
	newVal := 0.0
	if b.max {
		newVal = (1-b.alpha)*curVal + b.alpha*max(bonus, b.discount*nextStateVal)
	} else {
		newVal = (1-b.alpha)*curVal + b.alpha*(bonus+b.discount*nextStateVal)
	}
	b.qTable.Set(stateHash, actionHash, newVal)
}

func (b *BonusPolicyGreedy) UpdateIteration(iteration int, trace *types.Trace) {
	lastIndex := trace.Len() - 1

	for i := lastIndex; i > -1; i-- { // going backwards in the episode
		tr, ok := trace.Get(i)
		if ok {
			b.updateInternal(tr, i == lastIndex)
		}
	}
}

// Visits is the number of updates of the state/action pair
func (b *BonusPolicyGreedy) Visits(obs *types.Observation, action []float64) float64 {
	return b.visits.Get(CellKey(obs, b.cell), DirectionKey(action), 0)
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
