package benchmarks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/zeu5/robot-goal-env/config"
	"github.com/zeu5/robot-goal-env/envs/reach"
	"github.com/zeu5/robot-goal-env/policies"
	"github.com/zeu5/robot-goal-env/replay"
	"github.com/zeu5/robot-goal-env/robot"
	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/types"
	"gonum.org/v1/gonum/floats"
)

var (
	backendName    string
	parallel       bool
	recordTraces   bool
	redisServerBin string
	redisPort      int
)

// recordable policies can dump what they learnt
type recordable interface {
	Record(string) error
}

// reachPolicies builds every known policy, keyed by experiment name.
func reachPolicies(cfg *config.ExperimentConfig, seed uint64) map[string]types.Policy {
	threshold := cfg.Env.DistanceThreshold
	strict := policies.NewStrictPolicy(types.NewSeededRandomPolicy(seed + 1))
	strict.AddPolicy(policies.If(func(o *types.Observation) bool {
		return floats.Distance(o.AchievedGoal, o.DesiredGoal, 2) < threshold
	}).Then(policies.Stay))

	return map[string]types.Policy{
		"Random":   types.NewSeededRandomPolicy(seed),
		"Zero":     policies.ZeroPolicy{},
		"Goal":     policies.NewGoalSeekingPolicy(10, 0.1).WithSeed(seed + 2),
		"StayNear": strict,
		"BonusMax": policies.NewBonusPolicyGreedy(0.1, 0.95, 0.05, 2*threshold, true).WithRewardScale(1).WithSeed(seed + 3),
		"SoftMax":  policies.NewBonusPolicySoftMax(0.1, 0.95, 2*threshold, 0.5),
	}
}

func sortedKeys(m map[string]types.Policy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func selectPolicies(all map[string]types.Policy, names []string) (map[string]types.Policy, error) {
	if len(names) == 0 {
		return all, nil
	}
	out := make(map[string]types.Policy)
	for _, name := range names {
		p, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown policy %q", name)
		}
		out[name] = p
	}
	return out, nil
}

// newReachEnv builds one environment, offset shifts a fixed seed so that
// experiments do not share goal sequences.
func newReachEnv(cfg *config.ExperimentConfig, backend sim.Backend, offset uint64, logger *slog.Logger) (*robot.Env, error) {
	opts := []robot.Option{robot.WithLogger(logger)}
	if cfg.Experiment.Seed != 0 {
		opts = append(opts, robot.WithSeed(cfg.Experiment.Seed+offset))
	}
	return reach.New(backend, cfg.Env, opts...)
}

// openReplay picks the redis store when an address is configured or a
// redis-server binary is given, the in memory store otherwise.
func openReplay(ctx context.Context, cfg *config.ExperimentConfig, logger *slog.Logger) (*replayStores, func(), error) {
	addr := cfg.Replay.RedisAddr
	cleanup := func() {}
	if addr == "" && redisServerBin != "" {
		server := replay.NewRedisServer(&replay.RedisServerConfig{
			BinaryPath:   redisServerBin,
			Port:         redisPort,
			WorkingDir:   path.Join(cfg.Experiment.Save, "redis"),
			StartTimeout: 5 * time.Second,
		})
		if err := server.Start(); err != nil {
			return nil, nil, err
		}
		logger.Info("started redis server", "addr", server.Addr())
		addr = server.Addr()
		cleanup = func() {
			if err := server.Terminate(); err != nil {
				logger.Warn("stopping redis server", "err", err)
			}
		}
	}
	if addr == "" {
		return newReplayStores(nil, "", cfg.Replay.Capacity), cleanup, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		cleanup()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return newReplayStores(client, cfg.Replay.Prefix, cfg.Replay.Capacity), func() {
		client.Close()
		cleanup()
	}, nil
}

func ReachExperiment(ctx context.Context, cfg *config.ExperimentConfig) error {
	logger := cfg.Logger()
	saveDir := cfg.Experiment.Save
	if err := os.MkdirAll(saveDir, os.ModePerm); err != nil {
		return err
	}
	backend, err := sim.Open(backendName)
	if err != nil {
		return err
	}
	strategy, err := replay.ParseStrategy(cfg.Replay.Strategy)
	if err != nil {
		return err
	}
	// sparse or dense as configured, independent of any environment
	task, err := reach.NewTask(cfg.Env)
	if err != nil {
		return err
	}

	stores, closeReplay, err := openReplay(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeReplay()

	seed := cfg.Experiment.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	chosen, err := selectPolicies(reachPolicies(cfg, seed), cfg.Experiment.Policies)
	if err != nil {
		return err
	}

	c := types.NewComparison(&types.ComparisonConfig{
		Runs:         cfg.Experiment.Runs,
		Episodes:     cfg.Experiment.Episodes,
		Horizon:      cfg.Experiment.Horizon,
		RecordPath:   saveDir,
		ReportConfig: types.RepConfigStandard(),
		Timeout:      cfg.Experiment.Timeout,
		RecordTraces: recordTraces,
		RecordTimes:  true,
		Parallel:     parallel || cfg.Experiment.Parallel,
	})
	c.AddAnalysis("success", types.NewSuccessAnalyzer, types.SeriesPlotter(path.Join(saveDir, "success"), "success", "success rate", os.Stdout))
	c.AddAnalysis("return", types.NewReturnAnalyzer, types.SeriesPlotter(path.Join(saveDir, "return"), "return", "return", os.Stdout))
	cell := 2 * cfg.Env.DistanceThreshold
	c.AddAnalysis("coverage",
		types.NewCoverageAnalyzer(func(o *types.Observation) string { return policies.CellKey(o, cell) }, policies.DirectionKey),
		types.CoveragePlotter(path.Join(saveDir, "coverage"), os.Stdout))
	c.AddAnalysis("hindsight",
		hindsightAnalyzerCtor(ctx, stores, task.ComputeReward, cfg.Replay.K, strategy, seed, logger),
		types.SeriesPlotter(path.Join(saveDir, "hindsight"), "hindsight", "relabelled reward", os.Stdout))

	resetOpts := types.ResetOptions{
		RandTexture: cfg.Reset.RandTexture,
		RandLight:   cfg.Reset.RandLight,
		RandCamera:  cfg.Reset.RandCamera,
	}
	envs := make([]*robot.Env, 0, len(chosen))
	defer func() {
		for _, env := range envs {
			env.Close()
		}
	}()
	offset := uint64(0)
	for _, name := range sortedKeys(chosen) {
		env, err := newReachEnv(cfg, backend, offset, logger)
		if err != nil {
			return fmt.Errorf("creating environment for %s: %w", name, err)
		}
		offset++
		envs = append(envs, env)
		c.AddExperiment(types.NewExperiment(name, chosen[name], env).WithResetOptions(resetOpts))
	}

	stopProfiling, err := startProfiling(saveDir)
	if err != nil {
		return err
	}
	runErr := c.Run(ctx)
	if err := stopProfiling(); err != nil {
		logger.Warn("profiling", "err", err)
	}
	if runErr != nil {
		return runErr
	}

	for name, p := range chosen {
		if r, ok := p.(recordable); ok {
			if err := r.Record(filepath.Join(saveDir, "policies", name+".json")); err != nil {
				logger.Warn("recording policy", "policy", name, "err", err)
			}
		}
	}
	return stores.summarize(ctx, task.ComputeReward, cfg.Replay.K, seed, os.Stdout)
}

func ReachCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reach",
		Short: "Compare policies on the reach environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return ReachExperiment(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "kinematic", "Simulation backend")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Run the experiments concurrently")
	cmd.Flags().BoolVar(&recordTraces, "record-traces", false, "Record every trace as json lines")
	cmd.Flags().StringVar(&redisServerBin, "redis-server", "", "Start this redis-server binary for the replay store")
	cmd.Flags().IntVar(&redisPort, "redis-port", 6390, "Port of the started redis-server")
	return cmd
}
