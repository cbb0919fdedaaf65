package robot

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"testing"

	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/sim/simtest"
	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	mocap  = "robot0:mocap"
	finger = "robot0:finger"
)

// testHooks moves the gripper mocap by action[:3] and the finger joint by action[3].
type testHooks struct {
	actions [][]float64

	failResets     int
	resetCalls     int
	lastObjectPos  []float64
	resetErr       error
	stepCallbacks  int
	viewerSetups   int
	renderCallback int
}

func (h *testHooks) GetObs(s sim.Simulation, goal []float64) (*types.Observation, error) {
	pos, err := s.BodyPos("robot0:gripper")
	if err != nil {
		return nil, err
	}
	q, err := s.JointQPos(finger)
	if err != nil {
		return nil, err
	}
	return &types.Observation{
		Observation:  []float64{pos[0], pos[1], pos[2], q},
		AchievedGoal: []float64{pos[0], pos[1], pos[2]},
		DesiredGoal:  goal,
	}, nil
}

func (h *testHooks) SetAction(s sim.Simulation, action []float64) error {
	h.actions = append(h.actions, append([]float64(nil), action...))
	cur, err := s.BodyPos(mocap)
	if err != nil {
		return err
	}
	target := cur.Add(sim.Vec3{action[0] * 0.05, action[1] * 0.05, action[2] * 0.05})
	if err := s.SetMocapPos(mocap, target); err != nil {
		return err
	}
	return s.SetJointQPos(finger, action[3])
}

func (h *testHooks) IsSuccess(achieved, desired []float64) bool {
	return floats.Distance(achieved, desired, 2) < 0.05
}

func (h *testHooks) SampleGoal(s sim.Simulation, rng *rand.Rand) ([]float64, error) {
	u := distuv.Uniform{Min: -0.15, Max: 0.15, Src: rng}
	return []float64{1.34 + u.Rand(), 0.75 + u.Rand(), 0.53 + u.Rand()}, nil
}

func (h *testHooks) StepCallback(s sim.Simulation) error {
	h.stepCallbacks++
	return nil
}

func (h *testHooks) ViewerSetup(v sim.Viewer) error {
	h.viewerSetups++
	if fv, ok := v.(*simtest.Viewer); ok {
		fv.SetupCalls++
	}
	return nil
}

func (h *testHooks) RenderCallback(s sim.Simulation, goal []float64) error {
	h.renderCallback++
	return nil
}

// resettingHooks fails the first failResets simulator resets.
type resettingHooks struct {
	*testHooks
}

func (h resettingHooks) ResetSim(s sim.Simulation, initial sim.State, objectPos []float64, rng *rand.Rand) (bool, error) {
	h.resetCalls++
	h.lastObjectPos = objectPos
	if h.resetErr != nil {
		return false, h.resetErr
	}
	if h.resetCalls <= h.failResets {
		return false, nil
	}
	if err := s.SetState(initial); err != nil {
		return false, err
	}
	return true, s.Forward()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, hooks Hooks, cfg Config, opts ...Option) (*Env, *simtest.Backend) {
	t.Helper()
	dir := t.TempDir()
	if _, err := simtest.WriteScene(dir, "scene.xml"); err != nil {
		t.Fatalf("writing scene: %v", err)
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = "scene.xml"
	}
	cfg.AssetsDir = dir
	if cfg.NActions == 0 {
		cfg.NActions = 4
	}
	if cfg.Substeps == 0 {
		cfg.Substeps = 20
	}
	backend := simtest.New()
	opts = append([]Option{WithLogger(quietLogger()), WithSeed(42)}, opts...)
	env, err := New(backend, hooks, cfg, opts...)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env, backend
}

func TestMissingSceneIsFatal(t *testing.T) {
	_, err := New(simtest.New(), &testHooks{}, Config{
		ModelPath: "missing.xml",
		AssetsDir: t.TempDir(),
		NActions:  4,
		Substeps:  20,
	}, WithLogger(quietLogger()))
	if !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("expected ErrSceneNotFound, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected the underlying not-exist error to be kept, got %v", err)
	}
}

func TestNilHooksIsNotImplemented(t *testing.T) {
	_, err := New(simtest.New(), nil, Config{})
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := simtest.WriteScene(dir, "scene.xml"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		nActions int
		substeps int
		dt       float64
	}{
		{"negative actions", -1, 20, 0.002},
		{"zero actions", 0, 20, 0.002},
		{"zero substeps", 4, 0, 0.002},
		{"negative substeps", 4, -3, 0.002},
		{"zero timestep", 4, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := simtest.New()
			backend.ModelTemplate.Dt = tt.dt
			env, err := New(backend, &testHooks{}, Config{
				ModelPath: "scene.xml",
				AssetsDir: dir,
				NActions:  tt.nActions,
				Substeps:  tt.substeps,
			}, WithLogger(quietLogger()))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got env %v err %v", env, err)
			}
		})
	}
}

func TestAbsoluteModelPath(t *testing.T) {
	dir := t.TempDir()
	p, err := simtest.WriteScene(dir, "abs.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(simtest.New(), &testHooks{}, Config{
		ModelPath: p,
		AssetsDir: "/does/not/matter",
		NActions:  4,
		Substeps:  1,
	}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("absolute path should bypass the assets dir: %v", err)
	}
}

func TestDtAndFPS(t *testing.T) {
	env, backend := newTestEnv(t, &testHooks{}, Config{Substeps: 20})
	want := backend.ModelTemplate.Dt * 20
	if env.Dt() != want {
		t.Errorf("dt = %v, want %v", env.Dt(), want)
	}
	if math.Abs(env.Dt()-0.04) > 1e-12 {
		t.Errorf("dt = %v, want 0.04", env.Dt())
	}
	if env.Metadata().FPS != 25 {
		t.Errorf("fps = %d, want 25", env.Metadata().FPS)
	}
	if len(env.Metadata().RenderModes) != 2 {
		t.Errorf("unexpected render modes %v", env.Metadata().RenderModes)
	}
}

func TestActionBounds(t *testing.T) {
	tests := []struct {
		nActions int
		bound    float64
	}{
		{4, 1.0},
		{7, math.Pi},
		{3, math.Pi},
	}
	for _, tt := range tests {
		env, _ := newTestEnv(t, &testHooks{}, Config{NActions: tt.nActions})
		space := env.ActionSpace()
		if space.Shape() != tt.nActions {
			t.Errorf("n=%d: shape %d", tt.nActions, space.Shape())
		}
		for i := range space.Low {
			if space.Low[i] != -tt.bound || space.High[i] != tt.bound {
				t.Errorf("n=%d: bounds [%v, %v], want ±%v", tt.nActions, space.Low[i], space.High[i], tt.bound)
			}
		}
	}
}

func TestStepObservationMatchesSpaces(t *testing.T) {
	env, _ := newTestEnv(t, &testHooks{}, Config{})
	if _, err := env.Reset(context.Background(), types.ResetOptions{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	src := rand.NewSource(1)
	for i := 0; i < 10; i++ {
		obs, _, done, _, err := env.Step(env.ActionSpace().Sample(src))
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if done {
			t.Errorf("done must always be false")
		}
		spaces := env.ObservationSpace().Spaces
		if len(obs.Observation) != spaces[types.KeyObservation].Shape() ||
			len(obs.AchievedGoal) != spaces[types.KeyAchievedGoal].Shape() ||
			len(obs.DesiredGoal) != spaces[types.KeyDesiredGoal].Shape() {
			t.Fatalf("observation shapes do not match spaces: %+v", obs)
		}
		if !env.ObservationSpace().Contains(obs) {
			t.Errorf("observation outside its space")
		}
	}
}

func TestStepClipsActions(t *testing.T) {
	h1, h2 := &testHooks{}, &testHooks{}
	env1, b1 := newTestEnv(t, h1, Config{})
	env2, b2 := newTestEnv(t, h2, Config{})

	raw := []float64{3, -7, 0.5, 12}
	if _, _, _, _, err := env1.Step(raw); err != nil {
		t.Fatal(err)
	}
	if _, _, _, _, err := env2.Step(env2.ActionSpace().Clip(raw)); err != nil {
		t.Fatal(err)
	}
	want := []float64{1, -1, 0.5, 1}
	if !floats.Equal(h1.actions[0], want) {
		t.Errorf("applied action %v, want %v", h1.actions[0], want)
	}
	if !floats.Equal(h1.actions[0], h2.actions[0]) {
		t.Errorf("clipped and raw actions differ: %v vs %v", h1.actions[0], h2.actions[0])
	}
	p1, _ := b1.Sim.BodyPos("robot0:gripper")
	p2, _ := b2.Sim.BodyPos("robot0:gripper")
	if p1 != p2 {
		t.Errorf("simulator effects differ: %v vs %v", p1, p2)
	}
	if raw[0] != 3 {
		t.Errorf("caller action must not be modified")
	}
}

func TestStepWrongShape(t *testing.T) {
	env, _ := newTestEnv(t, &testHooks{}, Config{})
	_, _, _, _, err := env.Step([]float64{1, 2})
	if !errors.Is(err, ErrActionShape) {
		t.Fatalf("expected ErrActionShape, got %v", err)
	}
}

func TestStepRunsCallbackAndSimulation(t *testing.T) {
	h := &testHooks{}
	env, backend := newTestEnv(t, h, Config{})
	for i := 0; i < 3; i++ {
		env.Step([]float64{0, 0, 0, 0})
	}
	if backend.Sim.Steps != 3 || h.stepCallbacks != 3 {
		t.Errorf("steps %d, callbacks %d, want 3 and 3", backend.Sim.Steps, h.stepCallbacks)
	}
}

func TestSuccessConsistentAfterReset(t *testing.T) {
	h := &testHooks{}
	env, _ := newTestEnv(t, h, Config{})
	for i := 0; i < 20; i++ {
		obs, err := env.Reset(context.Background(), types.ResetOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !floats.Equal(obs.DesiredGoal, env.Goal()) {
			t.Fatalf("desired goal %v is not the current goal %v", obs.DesiredGoal, env.Goal())
		}
		before := h.IsSuccess(obs.AchievedGoal, env.Goal())
		_, reward, _, info, err := env.Step([]float64{0, 0, 0, 0})
		if err != nil {
			t.Fatal(err)
		}
		if before != info.IsSuccess {
			t.Errorf("reset success %v, step success %v", before, info.IsSuccess)
		}
		if (reward == 0) != info.IsSuccess {
			t.Errorf("sparse reward %v inconsistent with success %v", reward, info.IsSuccess)
		}
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	env, backend := newTestEnv(t, &testHooks{}, Config{})
	initial, _ := backend.Sim.BodyPos("robot0:gripper")
	for i := 0; i < 5; i++ {
		env.Step([]float64{1, 1, 1, 1})
	}
	moved, _ := backend.Sim.BodyPos("robot0:gripper")
	if moved == initial {
		t.Fatalf("gripper did not move")
	}
	if _, err := env.Reset(context.Background(), types.ResetOptions{}); err != nil {
		t.Fatal(err)
	}
	after, _ := backend.Sim.BodyPos("robot0:gripper")
	if after != initial {
		t.Errorf("gripper at %v after reset, want %v", after, initial)
	}
	if backend.Sim.Forwards != 1 {
		t.Errorf("forward called %d times, want 1", backend.Sim.Forwards)
	}
}

func TestResetRetriesUntilSuccess(t *testing.T) {
	h := resettingHooks{&testHooks{failResets: 5}}
	env, _ := newTestEnv(t, h, Config{})
	obs, err := env.Reset(context.Background(), types.ResetOptions{ObjectPos: []float64{1, 2}})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if obs == nil {
		t.Fatal("expected observation")
	}
	if h.resetCalls != 6 {
		t.Errorf("reset called %d times, want 6", h.resetCalls)
	}
	if !floats.Equal(h.lastObjectPos, []float64{1, 2}) {
		t.Errorf("object position override not forwarded: %v", h.lastObjectPos)
	}
}

func TestResetAttemptCap(t *testing.T) {
	h := resettingHooks{&testHooks{failResets: 1 << 30}}
	env, _ := newTestEnv(t, h, Config{MaxResetAttempts: 7})

	_, err := env.Reset(context.Background(), types.ResetOptions{})
	var exhausted *ResetExhaustedError
	if !errors.As(err, &exhausted) || !errors.Is(err, ErrResetExhausted) {
		t.Fatalf("expected ResetExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 7 || h.resetCalls != 7 {
		t.Errorf("attempts %d, calls %d, want 7", exhausted.Attempts, h.resetCalls)
	}

	h.resetCalls = 0
	_, err = env.Reset(context.Background(), types.ResetOptions{MaxAttempts: 3})
	if !errors.Is(err, ErrResetExhausted) || h.resetCalls != 3 {
		t.Errorf("per-reset cap not honoured: %v after %d calls", err, h.resetCalls)
	}
}

func TestResetKeepsLastResetterError(t *testing.T) {
	boom := errors.New("penetration")
	h := resettingHooks{&testHooks{resetErr: boom}}
	env, _ := newTestEnv(t, h, Config{MaxResetAttempts: 2})
	_, err := env.Reset(context.Background(), types.ResetOptions{})
	if !errors.Is(err, boom) || !errors.Is(err, ErrResetExhausted) {
		t.Fatalf("expected exhausted error wrapping the resetter error, got %v", err)
	}
}

func TestResetUnboundedStopsOnCancel(t *testing.T) {
	h := resettingHooks{&testHooks{failResets: 1 << 30}}
	env, _ := newTestEnv(t, h, Config{MaxResetAttempts: -1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.Reset(ctx, types.ResetOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSeedDeterminesGoals(t *testing.T) {
	env1, _ := newTestEnv(t, &testHooks{}, Config{}, WithSeed(7))
	env2, _ := newTestEnv(t, &testHooks{}, Config{}, WithSeed(7))
	if !floats.Equal(env1.Goal(), env2.Goal()) {
		t.Fatalf("same seed, different first goal")
	}
	for i := 0; i < 5; i++ {
		env1.Reset(context.Background(), types.ResetOptions{})
		env2.Reset(context.Background(), types.ResetOptions{})
		if !floats.Equal(env1.Goal(), env2.Goal()) {
			t.Fatalf("reset %d: goals diverged", i)
		}
	}

	seed := uint64(99)
	if got := env1.Seed(&seed); len(got) != 1 || got[0] != 99 {
		t.Errorf("seed returned %v", got)
	}
	fresh := env1.Seed(nil)
	if fresh[0] != env1.CurrentSeed() {
		t.Errorf("effective seed %d not recorded", fresh[0])
	}
}

func TestRenderRGBArrayIsFlipped(t *testing.T) {
	h := &testHooks{}
	env, _ := newTestEnv(t, h, Config{})
	img, err := env.Render(types.RenderRGBArray)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != RenderWidth || b.Dy() != RenderHeight {
		t.Fatalf("frame size %v", b)
	}
	top := RenderHeight - 1
	r, _, _, _ := img.At(0, 0).RGBA()
	if uint8(r>>8) != uint8(top) {
		t.Errorf("top row has level %d, want %d", uint8(r>>8), uint8(top))
	}
	r, _, _, _ = img.At(0, RenderHeight-1).RGBA()
	if uint8(r>>8) != 0 {
		t.Errorf("bottom row has level %d, want 0", uint8(r>>8))
	}
	if h.renderCallback != 1 {
		t.Errorf("render callback ran %d times", h.renderCallback)
	}
}

func TestCloseThenRenderRecreatesViewer(t *testing.T) {
	h := &testHooks{}
	env, backend := newTestEnv(t, h, Config{})
	if img, err := env.Render(types.RenderHuman); err != nil || img != nil {
		t.Fatalf("human render: %v %v", img, err)
	}
	env.Render(types.RenderHuman)
	if len(backend.Viewers) != 1 || h.viewerSetups != 1 {
		t.Fatalf("viewer should be created lazily once, got %d viewers", len(backend.Viewers))
	}
	if err := env.Close(); err != nil {
		t.Fatal(err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !backend.Viewers[0].Closed {
		t.Errorf("viewer not closed")
	}
	if _, err := env.Render(types.RenderHuman); err != nil {
		t.Fatalf("render after close: %v", err)
	}
	if len(backend.Viewers) != 2 || h.viewerSetups != 2 {
		t.Errorf("expected a new viewer with its own setup, got %d viewers, %d setups", len(backend.Viewers), h.viewerSetups)
	}
	if backend.Viewers[1].Renders != 1 {
		t.Errorf("new viewer rendered %d times", backend.Viewers[1].Renders)
	}
}

func TestRenderUnknownMode(t *testing.T) {
	env, _ := newTestEnv(t, &testHooks{}, Config{})
	if _, err := env.Render("depth"); !errors.Is(err, ErrUnsupportedRenderMode) {
		t.Fatalf("expected ErrUnsupportedRenderMode, got %v", err)
	}
}

type rewardHooks struct {
	*testHooks
}

func (rewardHooks) ComputeReward(achieved, desired []float64, _ types.Info) float64 {
	return -floats.Distance(achieved, desired, 2)
}

func TestComputeRewardOverride(t *testing.T) {
	env, _ := newTestEnv(t, rewardHooks{&testHooks{}}, Config{})
	got := env.ComputeReward([]float64{0, 0, 0}, []float64{3, 4, 0}, types.Info{})
	if got != -5 {
		t.Errorf("reward %v, want -5", got)
	}
	if env.ComputeReward([]float64{1, 1, 1}, []float64{1, 1, 1}, types.Info{}) != 0 {
		t.Errorf("zero distance should pay 0")
	}
}
