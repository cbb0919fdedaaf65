package types

import (
	"time"

	"golang.org/x/exp/rand"
)

type Policy interface {
	UpdateIteration(int, *Trace)
	// NextAction picks an action inside the action space, false ends the episode
	NextAction(int, *Observation, *Box) ([]float64, bool)
	Update(int, *Observation, []float64, float64, *Observation)
	Reset()
}

// RandomPolicy samples actions uniformly from the action space
type RandomPolicy struct {
	rand rand.Source
}

var _ Policy = &RandomPolicy{}

func NewRandomPolicy() *RandomPolicy {
	return NewSeededRandomPolicy(uint64(time.Now().UnixNano()))
}

func NewSeededRandomPolicy(seed uint64) *RandomPolicy {
	return &RandomPolicy{
		rand: rand.NewSource(seed),
	}
}

func (r *RandomPolicy) Reset() {

}

func (r *RandomPolicy) UpdateIteration(_ int, _ *Trace) {

}

func (r *RandomPolicy) NextAction(step int, obs *Observation, space *Box) ([]float64, bool) {
	return space.Sample(r.rand), true
}

func (r *RandomPolicy) Update(_ int, _ *Observation, _ []float64, _ float64, _ *Observation) {}
