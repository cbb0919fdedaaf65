package policies

import "github.com/zeu5/robot-goal-env/types"

type ObservationAction func(*types.Observation, *types.Box) ([]float64, bool)

type IfThenObservationAction struct {
	If func(*types.Observation) bool
	T  func(*types.Box) ([]float64, bool)
}

func If(cond func(*types.Observation) bool) *IfThenObservationAction {
	return &IfThenObservationAction{
		If: cond,
	}
}

func (i *IfThenObservationAction) Then(action func(*types.Box) ([]float64, bool)) ObservationAction {
	i.T = action
	return func(o *types.Observation, space *types.Box) ([]float64, bool) {
		if i.If(o) {
			return i.T(space)
		}
		return nil, false
	}
}

// StrictPolicy overrides the default policy whenever one of its conditions
// holds, in the order they were added
type StrictPolicy struct {
	types.Policy
	conds []ObservationAction
}

func NewStrictPolicy(def types.Policy) *StrictPolicy {
	return &StrictPolicy{
		Policy: def,
		conds:  make([]ObservationAction, 0),
	}
}

var _ types.Policy = &StrictPolicy{}

func (s *StrictPolicy) AddPolicy(oa ObservationAction) {
	s.conds = append(s.conds, oa)
}

func (s *StrictPolicy) NextAction(step int, obs *types.Observation, space *types.Box) ([]float64, bool) {
	for _, c := range s.conds {
		a, ok := c(obs, space)
		if ok {
			return a, ok
		}
	}
	return s.Policy.NextAction(step, obs, space)
}

// Stay is a Then action that holds the gripper still
func Stay(space *types.Box) ([]float64, bool) {
	return directionAction("stay", space), true
}
