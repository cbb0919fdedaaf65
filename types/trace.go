package types

import "encoding/json"

// Transition taken in an episode
type Transition struct {
	Obs     *Observation `json:"obs"`
	Action  []float64    `json:"action"`
	Reward  float64      `json:"reward"`
	NextObs *Observation `json:"next_obs"`
	Info    Info         `json:"info"`
}

// Trace of an episode as a sequence of transitions
type Trace struct {
	transitions []Transition
}

func NewTrace() *Trace {
	return &Trace{
		transitions: make([]Transition, 0),
	}
}

func (t *Trace) Slice(from, to int) *Trace {
	slicedTrace := NewTrace()
	for i := from; i < to; i++ {
		tr := t.transitions[i]
		slicedTrace.Append(i-from, tr.Obs, tr.Action, tr.Reward, tr.NextObs, tr.Info)
	}
	return slicedTrace
}

func (t *Trace) Append(step int, obs *Observation, action []float64, reward float64, nextObs *Observation, info Info) {
	t.transitions = append(t.transitions, Transition{
		Obs:     obs,
		Action:  action,
		Reward:  reward,
		NextObs: nextObs,
		Info:    info,
	})
}

func (t *Trace) Len() int {
	return len(t.transitions)
}

func (t *Trace) Get(i int) (Transition, bool) {
	if i < 0 || i >= len(t.transitions) {
		return Transition{}, false
	}
	return t.transitions[i], true
}

func (t *Trace) Last() (Transition, bool) {
	return t.Get(len(t.transitions) - 1)
}

func (t *Trace) GetPrefix(i int) (*Trace, bool) {
	if i > len(t.transitions) {
		return nil, false
	}
	return &Trace{
		transitions: t.transitions[0:i],
	}, true
}

// Return is the undiscounted sum of rewards
func (t *Trace) Return() float64 {
	sum := 0.0
	for _, tr := range t.transitions {
		sum += tr.Reward
	}
	return sum
}

// Succeeded reports whether the last transition reached the goal
func (t *Trace) Succeeded() bool {
	last, ok := t.Last()
	return ok && last.Info.IsSuccess
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.transitions)
}

func (t *Trace) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.transitions)
}
