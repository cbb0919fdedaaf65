package envserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zeu5/robot-goal-env/envs/reach"
	"github.com/zeu5/robot-goal-env/robot"
	"github.com/zeu5/robot-goal-env/sim/kinematic"
	"github.com/zeu5/robot-goal-env/types"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReach(t *testing.T) *robot.Env {
	t.Helper()
	cfg := reach.DefaultConfig()
	cfg.AssetsDir = "../assets"
	env, err := reach.New(&kinematic.Backend{}, cfg, robot.WithLogger(quiet()), robot.WithSeed(11))
	if err != nil {
		t.Fatalf("new reach env: %v", err)
	}
	return env
}

func newTestServer(t *testing.T) (*httptest.Server, *robot.Env) {
	t.Helper()
	env := newReach(t)
	s := NewServer(context.Background(), "", env, quiet())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, env
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	bs, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(bs))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerResetStep(t *testing.T) {
	ts, env := newTestServer(t)

	resp := post(t, ts.URL+"/reset", types.ResetOptions{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status %d", resp.StatusCode)
	}
	obs := &types.Observation{}
	if err := json.NewDecoder(resp.Body).Decode(obs); err != nil {
		t.Fatal(err)
	}
	if !env.ObservationSpace().Contains(obs) {
		t.Errorf("reset observation %+v outside the observation space", obs)
	}

	resp = post(t, ts.URL+"/step", StepRequest{Action: []float64{5, 0, 0, 0}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("step status %d", resp.StatusCode)
	}
	step := StepResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&step); err != nil {
		t.Fatal(err)
	}
	if step.Done {
		t.Errorf("step reported done")
	}
	if step.Observation.AchievedGoal[0] <= obs.AchievedGoal[0] {
		t.Errorf("gripper did not move along x: %v -> %v", obs.AchievedGoal, step.Observation.AchievedGoal)
	}

	resp = post(t, ts.URL+"/step", StepRequest{Action: []float64{1, 0}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong action shape gave status %d", resp.StatusCode)
	}
}

func TestServerBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/step", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed step gave status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/render?mode=depth")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown render mode gave status %d", resp.StatusCode)
	}

	rewards := []struct {
		body   string
		status int
	}{
		{`{"achieved_goal":[0,0,0],"desired_goal":[0,0]}`, http.StatusBadRequest},
		{`{"achieved_goal":[0,0],"desired_goal":[0,0]}`, http.StatusBadRequest},
		{`{"achieved_goal":[0,0,0],"desired_goal":[0,0,0]}`, http.StatusOK},
	}
	for _, r := range rewards {
		resp, err = http.Post(ts.URL+"/reward", "application/json", bytes.NewBufferString(r.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != r.status {
			t.Errorf("reward %s gave status %d, want %d", r.body, resp.StatusCode, r.status)
		}
	}
}

func TestServerRender(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/render")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("render status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	human, err := http.Get(ts.URL + "/render?mode=human")
	if err != nil {
		t.Fatal(err)
	}
	human.Body.Close()
	if human.StatusCode != http.StatusNoContent {
		t.Errorf("human render status %d", human.StatusCode)
	}
}

func TestClient(t *testing.T) {
	ts, env := newTestServer(t)
	ctx := context.Background()

	c, err := NewClient(ctx, ts.URL, ts.Client(), quiet())
	if err != nil {
		t.Fatal(err)
	}
	if c.ActionSpace().Shape() != 4 || c.ActionSpace().High[0] != 1 {
		t.Errorf("action space %+v", c.ActionSpace())
	}
	if box := c.ObservationSpace().Spaces[types.KeyObservation]; box.Shape() != 7 || !math.IsInf(box.High[0], 1) {
		t.Errorf("observation space %+v", box)
	}
	if c.Metadata().FPS != env.Metadata().FPS {
		t.Errorf("metadata %+v", c.Metadata())
	}

	seed := uint64(5)
	if seeds := c.Seed(&seed); len(seeds) != 1 || seeds[0] != 5 {
		t.Errorf("seeds %v", seeds)
	}
	obs, err := c.Reset(ctx, types.ResetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range env.Goal() {
		if obs.DesiredGoal[i] != g {
			t.Fatalf("remote goal %v, local goal %v", obs.DesiredGoal, env.Goal())
		}
	}

	_, reward, _, info, err := c.Step([]float64{0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if want := c.ComputeReward(obs.AchievedGoal, obs.DesiredGoal, info); reward != want {
		t.Errorf("step reward %v, computed %v", reward, want)
	}

	_, _, _, _, err = c.Step([]float64{0})
	remote := &RemoteError{}
	if !errors.As(err, &remote) || remote.Status != http.StatusBadRequest {
		t.Errorf("expected a bad request error, got %v", err)
	}

	img, err := c.Render(types.RenderRGBArray)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != robot.RenderWidth || b.Dy() != robot.RenderHeight {
		t.Errorf("frame bounds %v", b)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if img, err := c.Render(types.RenderHuman); err != nil || img != nil {
		t.Errorf("human render after close: %v %v", img, err)
	}
}
