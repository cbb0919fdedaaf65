// Package replay stores goal-conditioned episodes and relabels them with
// achieved goals (hindsight experience replay).
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrEmpty is returned when sampling from a store without transitions.
	ErrEmpty = errors.New("replay store is empty")
	// ErrNoEpisode is returned for episode indices out of range.
	ErrNoEpisode = errors.New("no such episode")
)

// Episode is the ordered list of transitions of one episode.
type Episode []types.Transition

// FromTrace copies the transitions of a trace.
func FromTrace(trace *types.Trace) Episode {
	ep := make(Episode, 0, trace.Len())
	for i := 0; i < trace.Len(); i++ {
		tr, _ := trace.Get(i)
		ep = append(ep, tr)
	}
	return ep
}

// Store keeps episodes. Implementations are safe for concurrent use.
type Store interface {
	// Append stores an episode and returns its index
	Append(ctx context.Context, ep Episode) (int, error)
	Episode(ctx context.Context, i int) (Episode, error)
	// Episodes is the number of stored episodes
	Episodes(ctx context.Context) (int, error)
	// Len is the number of stored transitions
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// RewardFunc recomputes the reward of a transition for a substituted goal.
// (*robot.Env).ComputeReward satisfies it.
type RewardFunc func(achieved, desired []float64, info types.Info) float64

// Strategy picks the substitute goals.
type Strategy string

const (
	// StrategyFuture uses goals achieved later in the same episode
	StrategyFuture Strategy = "future"
	// StrategyFinal uses the goal achieved at the end of the episode
	StrategyFinal Strategy = "final"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFuture, StrategyFinal:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("replay: unknown relabelling strategy %q", s)
}

// Relabel returns the transitions of ep followed by k relabelled copies of
// each transition (one for StrategyFinal). A relabelled copy has its
// desired goals replaced and its reward recomputed; Info is kept.
func Relabel(ep Episode, k int, strategy Strategy, reward RewardFunc, rng *rand.Rand) ([]types.Transition, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	out := make([]types.Transition, 0, len(ep)*(k+1))
	out = append(out, ep...)
	if len(ep) == 0 {
		return out, nil
	}
	final := ep[len(ep)-1].NextObs.AchievedGoal
	for t, tr := range ep {
		switch strategy {
		case StrategyFinal:
			out = append(out, withGoal(tr, final, reward))
		case StrategyFuture:
			for j := 0; j < k; j++ {
				future := t + rng.Intn(len(ep)-t)
				out = append(out, withGoal(tr, ep[future].NextObs.AchievedGoal, reward))
			}
		}
	}
	return out, nil
}

func withGoal(tr types.Transition, goal []float64, reward RewardFunc) types.Transition {
	obs := tr.Obs.Copy()
	next := tr.NextObs.Copy()
	obs.DesiredGoal = append([]float64(nil), goal...)
	next.DesiredGoal = append([]float64(nil), goal...)
	return types.Transition{
		Obs:     obs,
		Action:  append([]float64(nil), tr.Action...),
		Reward:  reward(next.AchievedGoal, goal, tr.Info),
		NextObs: next,
		Info:    tr.Info,
	}
}

// Sampler draws training batches, relabelling every sampled transition with
// a future goal with probability FutureP.
type Sampler struct {
	Store   Store
	Reward  RewardFunc
	FutureP float64

	rng *rand.Rand
}

// NewSampler derives FutureP from the number of relabelled goals k per
// transition as 1 - 1/(1+k).
func NewSampler(store Store, reward RewardFunc, k int, seed uint64) *Sampler {
	return &Sampler{
		Store:   store,
		Reward:  reward,
		FutureP: 1 - 1/(1+float64(k)),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Sample draws n transitions uniformly over episodes and timesteps.
func (s *Sampler) Sample(ctx context.Context, n int) ([]types.Transition, error) {
	episodes, err := s.Store.Episodes(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.Store.Len(ctx)
	if err != nil {
		return nil, err
	}
	if episodes == 0 || total == 0 {
		return nil, ErrEmpty
	}
	coin := distuv.Bernoulli{P: s.FutureP, Src: s.rng}
	cache := make(map[int]Episode)
	batch := make([]types.Transition, 0, n)
	for len(batch) < n {
		i := s.rng.Intn(episodes)
		ep, ok := cache[i]
		if !ok {
			ep, err = s.Store.Episode(ctx, i)
			if err != nil {
				return nil, err
			}
			cache[i] = ep
		}
		if len(ep) == 0 {
			continue
		}
		t := s.rng.Intn(len(ep))
		tr := ep[t]
		if coin.Rand() == 1 {
			future := t + s.rng.Intn(len(ep)-t)
			tr = withGoal(tr, ep[future].NextObs.AchievedGoal, s.Reward)
		}
		batch = append(batch, tr)
	}
	return batch, nil
}
