package benchmarks

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/zeu5/robot-goal-env/config"
	"github.com/zeu5/robot-goal-env/policies"
	"github.com/zeu5/robot-goal-env/sim/kinematic"
	"github.com/zeu5/robot-goal-env/types"
)

// RenderGoalSeeking runs the goal seeking policy and renders every step into
// frameDir through the human viewer. The last frame of each episode is also
// saved as an rgb_array image.
func RenderGoalSeeking(ctx context.Context, cfg *config.ExperimentConfig, opts types.ResetOptions, frameDir string, episodes int) error {
	logger := cfg.Logger()
	if err := os.MkdirAll(frameDir, os.ModePerm); err != nil {
		return err
	}

	env, err := newReachEnv(cfg, &kinematic.Backend{FrameDir: frameDir}, 0, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	policy := policies.NewGoalSeekingPolicy(5, 0.2).WithSeed(env.CurrentSeed())
	space := env.ActionSpace()
	for ep := 0; ep < episodes; ep++ {
		obs, err := env.Reset(ctx, opts)
		if err != nil {
			return err
		}
		success := false
		for step := 0; step < cfg.Experiment.Horizon; step++ {
			if _, err := env.Render(types.RenderHuman); err != nil {
				return err
			}
			action, _ := policy.NextAction(step, obs, space)
			var info types.Info
			obs, _, _, info, err = env.Step(action)
			if err != nil {
				return err
			}
			success = info.IsSuccess
		}

		img, err := env.Render(types.RenderRGBArray)
		if err != nil {
			return err
		}
		f, err := os.Create(path.Join(frameDir, fmt.Sprintf("episode_%03d.png", ep)))
		if err != nil {
			return err
		}
		err = png.Encode(f, img)
		f.Close()
		if err != nil {
			return err
		}
		logger.Info("rendered episode", "episode", ep, "success", success)
	}
	return nil
}

func RenderCommand() *cobra.Command {
	var renderEpisodes int
	var randTexture, randLight, randCamera bool
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render reach episodes of the goal seeking policy to png frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			opts := types.ResetOptions{
				RandTexture: randTexture || cfg.Reset.RandTexture,
				RandLight:   randLight || cfg.Reset.RandLight,
				RandCamera:  randCamera || cfg.Reset.RandCamera,
			}
			return RenderGoalSeeking(ctx, cfg, opts, path.Join(cfg.Experiment.Save, "frames"), renderEpisodes)
		},
	}
	cmd.Flags().IntVar(&renderEpisodes, "render-episodes", 1, "Number of rendered episodes")
	cmd.Flags().BoolVar(&randTexture, "rand-texture", false, "Randomize textures on reset")
	cmd.Flags().BoolVar(&randLight, "rand-light", false, "Randomize the light on reset")
	cmd.Flags().BoolVar(&randCamera, "rand-camera", false, "Jitter the camera on reset")
	return cmd
}
