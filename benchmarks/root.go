package benchmarks

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/zeu5/robot-goal-env/config"
	"github.com/zeu5/robot-goal-env/explorer"
)

var (
	episodes   int
	horizon    int
	saveFile   string
	runs       int
	configFile string
	seed       uint64
	cpuprofile string
	memprofile string
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "robotenv",
		Short:         "Goal-conditioned robot environments and experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 100, "Number of episodes to run")
	rootCommand.PersistentFlags().IntVar(&horizon, "horizon", 50, "Horizon of each episode")
	rootCommand.PersistentFlags().StringVarP(&saveFile, "save", "s", "results", "Save the result data in the specified folder")
	rootCommand.PersistentFlags().IntVar(&runs, "runs", 1, "Number of experiment runs")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML experiment configuration")
	rootCommand.PersistentFlags().Uint64Var(&seed, "seed", 0, "Environment seed, random when 0")
	rootCommand.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write a cpu profile to this file inside the save folder")
	rootCommand.PersistentFlags().StringVar(&memprofile, "memprofile", "", "Write a heap profile to this file inside the save folder")
	// adding the subcommands here
	rootCommand.AddCommand(ReachCommand())
	rootCommand.AddCommand(ServeCommand())
	rootCommand.AddCommand(RenderCommand())
	rootCommand.AddCommand(explorer.ExploreCommand())
	return rootCommand
}

// loadConfig reads the config file, the ROBOTENV_ variables and then the
// flags that were set explicitly, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.ExperimentConfig, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("episodes") || configFile == "" {
		cfg.Experiment.Episodes = episodes
	}
	if flags.Changed("horizon") || configFile == "" {
		cfg.Experiment.Horizon = horizon
	}
	if flags.Changed("runs") || configFile == "" {
		cfg.Experiment.Runs = runs
	}
	if flags.Changed("save") || configFile == "" {
		cfg.Experiment.Save = saveFile
	}
	if flags.Changed("seed") {
		cfg.Experiment.Seed = seed
	}
	return cfg, cfg.Validate()
}

// signalContext is cancelled on interrupt or when the command returns.
func signalContext() (context.Context, context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
		cancel()
	}()
	return ctx, cancel
}
