package benchmarks

import (
	"github.com/spf13/cobra"
	"github.com/zeu5/robot-goal-env/envserver"
	"github.com/zeu5/robot-goal-env/sim"
)

var serveAddr string

func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a reach environment over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = serveAddr
			}
			logger := cfg.Logger()

			backend, err := sim.Open(backendName)
			if err != nil {
				return err
			}
			env, err := newReachEnv(cfg, backend, 0, logger)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, cancel := signalContext()
			defer cancel()
			server := envserver.NewServer(ctx, cfg.Server.Addr, env, logger)
			logger.Info("serving reach environment", "addr", cfg.Server.Addr, "seed", env.CurrentSeed())
			return server.Run()
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "kinematic", "Simulation backend")
	cmd.Flags().StringVar(&serveAddr, "addr", "localhost:7074", "Listen address")
	return cmd
}
