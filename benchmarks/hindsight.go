package benchmarks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zeu5/robot-goal-env/replay"
	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// replayStores hands out one replay store per experiment, in memory or in
// redis under <prefix>:<experiment>.
type replayStores struct {
	mu       sync.Mutex
	stores   map[string]replay.Store
	client   *redis.Client
	prefix   string
	capacity int
}

func newReplayStores(client *redis.Client, prefix string, capacity int) *replayStores {
	return &replayStores{
		stores:   make(map[string]replay.Store),
		client:   client,
		prefix:   prefix,
		capacity: capacity,
	}
}

func (r *replayStores) get(ctx context.Context, name string) (replay.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	var s replay.Store
	if r.client != nil {
		s = replay.NewRedisStoreWithClient(r.client, r.prefix+":"+name)
		// leftovers of an earlier invocation
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
	} else {
		s = replay.NewMemoryStore(r.capacity)
	}
	r.stores[name] = s
	return s, nil
}

func (r *replayStores) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// summarize samples a relabelled batch from every store and prints its
// mean reward.
func (r *replayStores) summarize(ctx context.Context, reward replay.RewardFunc, k int, seed uint64, out io.Writer) error {
	for _, name := range r.names() {
		s, err := r.get(ctx, name)
		if err != nil {
			return err
		}
		sampler := replay.NewSampler(s, reward, k, seed)
		batch, err := sampler.Sample(ctx, 256)
		if errors.Is(err, replay.ErrEmpty) {
			continue
		}
		if err != nil {
			return fmt.Errorf("sampling %s: %w", name, err)
		}
		rewards := make([]float64, len(batch))
		for i, tr := range batch {
			rewards[i] = tr.Reward
		}
		n, _ := s.Len(ctx)
		fmt.Fprintf(out, "%s: %d stored transitions, hindsight batch mean reward %.3f\n", name, n, stat.Mean(rewards, nil))
	}
	return nil
}

// HindsightAnalyzer stores every episode for replay and records the mean
// reward of its hindsight relabelled transitions.
type HindsightAnalyzer struct {
	ctx      context.Context
	stores   *replayStores
	reward   replay.RewardFunc
	k        int
	strategy replay.Strategy
	rng      *rand.Rand
	logger   *slog.Logger

	series []float64
}

var _ types.Analyzer = &HindsightAnalyzer{}

func hindsightAnalyzerCtor(ctx context.Context, stores *replayStores, reward replay.RewardFunc, k int, strategy replay.Strategy, seed uint64, logger *slog.Logger) func() types.Analyzer {
	return func() types.Analyzer {
		return &HindsightAnalyzer{
			ctx:      ctx,
			stores:   stores,
			reward:   reward,
			k:        k,
			strategy: strategy,
			rng:      rand.New(rand.NewSource(seed)),
			logger:   logger,
			series:   make([]float64, 0),
		}
	}
}

func (h *HindsightAnalyzer) Analyze(run int, episode int, name string, trace *types.Trace) {
	ep := replay.FromTrace(trace)
	if len(ep) == 0 {
		return
	}
	store, err := h.stores.get(h.ctx, name)
	if err == nil {
		_, err = store.Append(h.ctx, ep)
	}
	if err != nil {
		h.logger.Warn("storing episode", "experiment", name, "run", run, "episode", episode, "err", err)
	}

	relabelled, err := replay.Relabel(ep, h.k, h.strategy, h.reward, h.rng)
	if err != nil {
		h.logger.Warn("relabelling episode", "experiment", name, "episode", episode, "err", err)
		return
	}
	relabelled = relabelled[len(ep):]
	if len(relabelled) == 0 {
		return
	}
	rewards := make([]float64, len(relabelled))
	for i, tr := range relabelled {
		rewards[i] = tr.Reward
	}
	h.series = append(h.series, stat.Mean(rewards, nil))
}

func (h *HindsightAnalyzer) DataSet() types.DataSet {
	out := make([]float64, len(h.series))
	copy(out, h.series)
	return out
}

func (h *HindsightAnalyzer) Reset() {
	h.series = make([]float64, 0)
}
