package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Box is a bounded numeric vector space
type Box struct {
	Low  []float64 `json:"low"`
	High []float64 `json:"high"`
}

// NewBox creates a box of dimension n with the same bounds on every element
func NewBox(low, high float64, n int) *Box {
	b := &Box{
		Low:  make([]float64, n),
		High: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		b.Low[i] = low
		b.High[i] = high
	}
	return b
}

// Unbounded creates a box of dimension n bounded by ±Inf
func Unbounded(n int) *Box {
	return NewBox(math.Inf(-1), math.Inf(1), n)
}

func (b *Box) Shape() int {
	return len(b.Low)
}

// Clip returns a copy of x with every element clamped into [Low, High].
// Panics if the length of x does not match the box shape.
func (b *Box) Clip(x []float64) []float64 {
	if len(x) != len(b.Low) {
		panic("box: clip shape mismatch")
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, b.Low[i]), b.High[i])
	}
	return out
}

func (b *Box) Contains(x []float64) bool {
	if len(x) != len(b.Low) {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || v < b.Low[i] || v > b.High[i] {
			return false
		}
	}
	return true
}

// Sample draws a point from the box: uniform when both bounds are finite,
// shifted exponential when one is, standard normal otherwise
func (b *Box) Sample(src rand.Source) []float64 {
	out := make([]float64, len(b.Low))
	for i := range out {
		lo, hi := b.Low[i], b.High[i]
		loInf, hiInf := math.IsInf(lo, -1), math.IsInf(hi, 1)
		switch {
		case !loInf && !hiInf:
			out[i] = distuv.Uniform{Min: lo, Max: hi, Src: src}.Rand()
		case !loInf:
			out[i] = lo + distuv.Exponential{Rate: 1, Src: src}.Rand()
		case !hiInf:
			out[i] = hi - distuv.Exponential{Rate: 1, Src: src}.Rand()
		default:
			out[i] = distuv.Normal{Mu: 0, Sigma: 1, Src: src}.Rand()
		}
	}
	return out
}

// bounds encode infinities as "inf" and "-inf" since json has no literal for them
type bounds []float64

func (b bounds) MarshalJSON() ([]byte, error) {
	out := make([]interface{}, len(b))
	for i, v := range b {
		switch {
		case math.IsInf(v, 1):
			out[i] = "inf"
		case math.IsInf(v, -1):
			out[i] = "-inf"
		default:
			out[i] = v
		}
	}
	return json.Marshal(out)
}

func (b *bounds) UnmarshalJSON(data []byte) error {
	raw := make([]json.RawMessage, 0)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(bounds, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			switch s {
			case "inf":
				out[i] = math.Inf(1)
			case "-inf":
				out[i] = math.Inf(-1)
			default:
				return fmt.Errorf("box: invalid bound %q", s)
			}
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return err
		}
	}
	*b = out
	return nil
}

type boxJSON struct {
	Low  bounds `json:"low"`
	High bounds `json:"high"`
}

func (b *Box) MarshalJSON() ([]byte, error) {
	return json.Marshal(boxJSON{Low: b.Low, High: b.High})
}

func (b *Box) UnmarshalJSON(data []byte) error {
	v := boxJSON{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Low) != len(v.High) {
		return fmt.Errorf("box: %d low bounds and %d high bounds", len(v.Low), len(v.High))
	}
	b.Low, b.High = v.Low, v.High
	return nil
}

// Keys of the goal observation dictionary
const (
	KeyObservation  = "observation"
	KeyAchievedGoal = "achieved_goal"
	KeyDesiredGoal  = "desired_goal"
)

// DictSpace is a structured space of named boxes
type DictSpace struct {
	Spaces map[string]*Box `json:"spaces"`
}

// GoalSpace creates the observation space of a goal environment
func GoalSpace(obsDim, goalDim int) *DictSpace {
	return &DictSpace{
		Spaces: map[string]*Box{
			KeyDesiredGoal:  Unbounded(goalDim),
			KeyAchievedGoal: Unbounded(goalDim),
			KeyObservation:  Unbounded(obsDim),
		},
	}
}

// Keys returns the sorted space names
func (d *DictSpace) Keys() []string {
	keys := make([]string, 0, len(d.Spaces))
	for k := range d.Spaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contains checks every part of a goal observation against its box
func (d *DictSpace) Contains(o *Observation) bool {
	if o == nil {
		return false
	}
	parts := map[string][]float64{
		KeyObservation:  o.Observation,
		KeyAchievedGoal: o.AchievedGoal,
		KeyDesiredGoal:  o.DesiredGoal,
	}
	for k, box := range d.Spaces {
		if !box.Contains(parts[k]) {
			return false
		}
	}
	return true
}
