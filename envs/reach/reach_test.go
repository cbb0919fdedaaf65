package reach

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/zeu5/robot-goal-env/robot"
	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/sim/kinematic"
	"github.com/zeu5/robot-goal-env/types"
	"gonum.org/v1/gonum/floats"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AssetsDir = "../../assets"
	return cfg
}

func newEnv(t *testing.T, cfg Config) *robot.Env {
	t.Helper()
	env, err := New(&kinematic.Backend{}, cfg,
		robot.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		robot.WithSeed(3))
	if err != nil {
		t.Fatalf("new reach env: %v", err)
	}
	return env
}

// greedy moves straight at the goal.
func greedy(obs *types.Observation) []float64 {
	a := make([]float64, 4)
	for i := 0; i < 3; i++ {
		a[i] = (obs.DesiredGoal[i] - obs.AchievedGoal[i]) / posScale
	}
	return a
}

func TestNewTaskValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardType = "shaped"
	if _, err := NewTask(cfg); err == nil {
		t.Errorf("expected an error for an unknown reward type")
	}
	cfg = DefaultConfig()
	cfg.DistanceThreshold = 0
	if _, err := NewTask(cfg); err == nil {
		t.Errorf("expected an error for a zero threshold")
	}
}

func TestReachSpacesAndTiming(t *testing.T) {
	env := newEnv(t, testConfig())
	if math.Abs(env.Dt()-0.04) > 1e-12 || env.Metadata().FPS != 25 {
		t.Errorf("dt %v fps %d", env.Dt(), env.Metadata().FPS)
	}
	obsSpace := env.ObservationSpace().Spaces
	if obsSpace[types.KeyObservation].Shape() != 7 || obsSpace[types.KeyAchievedGoal].Shape() != 3 {
		t.Errorf("unexpected observation space %v", env.ObservationSpace().Keys())
	}
	if env.ActionSpace().High[0] != 1 {
		t.Errorf("gripper convention bound %v", env.ActionSpace().High[0])
	}
}

func TestGoalsStayInRange(t *testing.T) {
	cfg := testConfig()
	task, err := NewTask(cfg)
	if err != nil {
		t.Fatal(err)
	}
	env, err := robot.New(&kinematic.Backend{}, task, cfg.Config,
		robot.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	center := task.InitialGripper()
	for i := 0; i < 50; i++ {
		obs, err := env.Reset(context.Background(), types.ResetOptions{})
		if err != nil {
			t.Fatal(err)
		}
		for k := 0; k < 3; k++ {
			if math.Abs(obs.DesiredGoal[k]-center[k]) > cfg.TargetRange {
				t.Fatalf("goal %v outside the cube around %v", obs.DesiredGoal, center)
			}
		}
		if !floats.Equal(obs.AchievedGoal, center[:]) {
			t.Fatalf("gripper at %v after reset, want %v", obs.AchievedGoal, center)
		}
	}
}

func TestGreedyReachesGoal(t *testing.T) {
	env := newEnv(t, testConfig())
	for episode := 0; episode < 5; episode++ {
		obs, err := env.Reset(context.Background(), types.ResetOptions{})
		if err != nil {
			t.Fatal(err)
		}
		succeeded := false
		for step := 0; step < 50 && !succeeded; step++ {
			var reward float64
			var info types.Info
			obs, reward, _, info, err = env.Step(greedy(obs))
			if err != nil {
				t.Fatal(err)
			}
			if info.IsSuccess != (reward == 0) {
				t.Fatalf("sparse reward %v disagrees with success %v", reward, info.IsSuccess)
			}
			succeeded = info.IsSuccess
		}
		if !succeeded {
			t.Errorf("episode %d: goal %v not reached, gripper at %v", episode, obs.DesiredGoal, obs.AchievedGoal)
		}
	}
}

func TestDenseReward(t *testing.T) {
	cfg := testConfig()
	cfg.RewardType = RewardDense
	env := newEnv(t, cfg)
	got := env.ComputeReward([]float64{0, 0, 0}, []float64{0, 3, 4}, types.Info{})
	if got != -5 {
		t.Errorf("dense reward %v, want -5", got)
	}
}

func TestObjectPlacement(t *testing.T) {
	env := newEnv(t, testConfig())
	if _, err := env.Reset(context.Background(), types.ResetOptions{ObjectPos: []float64{1.3, 0.8}}); err != nil {
		t.Fatal(err)
	}
	p, _ := env.Sim().BodyPos(ObjectBody)
	if p != (sim.Vec3{1.3, 0.8, 0.425}) {
		t.Errorf("object at %v", p)
	}
	if _, err := env.Reset(context.Background(), types.ResetOptions{}); err != nil {
		t.Fatal(err)
	}
	p, _ = env.Sim().BodyPos(ObjectBody)
	if p != (sim.Vec3{1.25, 0.68, 0.425}) {
		t.Errorf("object not restored: %v", p)
	}
	_, err := env.Reset(context.Background(), types.ResetOptions{ObjectPos: []float64{1}, MaxAttempts: 2})
	if err == nil {
		t.Errorf("expected a bad object position to exhaust the reset")
	}
}

func TestBlockGripper(t *testing.T) {
	cfg := testConfig()
	cfg.BlockGripper = true
	env := newEnv(t, cfg)
	before, _ := env.Sim().JointQPos(FingerJoint)
	env.Step([]float64{0, 0, 0, 1})
	after, _ := env.Sim().JointQPos(FingerJoint)
	if before != after {
		t.Errorf("finger moved from %v to %v", before, after)
	}

	env = newEnv(t, testConfig())
	env.Step([]float64{0, 0, 0, 1})
	if q, _ := env.Sim().JointQPos(FingerJoint); math.Abs(q-0.03) > 1e-12 {
		t.Errorf("finger at %v, want 0.03", q)
	}
}

func TestRenderMovesMarker(t *testing.T) {
	env := newEnv(t, testConfig())
	img, err := env.Render(types.RenderRGBArray)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != robot.RenderWidth || b.Dy() != robot.RenderHeight {
		t.Errorf("frame %v", b)
	}
	marker, _ := env.Sim().BodyPos(TargetBody)
	if !floats.Equal(marker[:], env.Goal()) {
		t.Errorf("marker at %v, goal %v", marker, env.Goal())
	}
	if err := env.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRandomizedResetRenders(t *testing.T) {
	env := newEnv(t, testConfig())
	opts := types.ResetOptions{RandTexture: true, RandLight: true, RandCamera: true}
	if _, err := env.Reset(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	ks := env.Sim().(*kinematic.Simulation)
	if c, _ := ks.GeomRGBA(robot.ObjectGeom); c[0] != 1 || c[1] != 0 || c[2] != 0 {
		t.Errorf("object not red after texture randomization: %v", c)
	}
	if c, _ := ks.GeomRGBA("robot0:gripper_geom"); c != [4]float64{0.6, 0.6, 0.6, 1} {
		t.Errorf("robot geom recolored: %v", c)
	}
	if _, err := env.Render(types.RenderRGBArray); err != nil {
		t.Fatal(err)
	}
}
