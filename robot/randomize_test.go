package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/sim/simtest"
	"github.com/zeu5/robot-goal-env/types"
)

func TestRandTexture(t *testing.T) {
	env, backend := newTestEnv(t, &testHooks{}, Config{})
	if err := env.RandTexture(); err != nil {
		t.Fatal(err)
	}
	m := backend.Modder
	if m.RGB[ObjectGeom] != red {
		t.Errorf("object color %v, want red", m.RGB[ObjectGeom])
	}
	if m.Randomized[ObjectGeom] != 0 {
		t.Errorf("object must not get a random texture")
	}
	if _, ok := m.RGB["robot0:gripper_geom"]; ok {
		t.Errorf("robot geoms must be left alone")
	}
	for _, g := range []string{"table0", "floor0"} {
		if m.Randomized[g] != 1 {
			t.Errorf("geom %s randomized %d times", g, m.Randomized[g])
		}
		for _, c := range m.RGB[g] {
			if c < 0 || c > 1 {
				t.Errorf("geom %s channel %v outside [0, 1]", g, c)
			}
		}
	}
}

func TestSetLight(t *testing.T) {
	env, backend := newTestEnv(t, &testHooks{}, Config{})
	for i := 0; i < 50; i++ {
		if err := env.SetLight(); err != nil {
			t.Fatal(err)
		}
		m := backend.Modder
		if m.LightPos[LightName] != (sim.Vec3{3.425, 1.333, 3}) {
			t.Fatalf("light position %v", m.LightPos[LightName])
		}
		d := m.LightDir[LightName]
		if d[0] < -0.9 || d[0] > 0.1 || d[1] < -0.9 || d[1] > 0.9 || d[2] < -0.9 || d[2] > 0 {
			t.Fatalf("light direction %v outside its ranges", d)
		}
		if !m.Shadow[LightName] {
			t.Fatalf("shadow not cast")
		}
		if m.Ambient[LightName] != (sim.Vec3{0.2, 0.2, 0.2}) ||
			m.Diffuse[LightName] != (sim.Vec3{0.7, 0.7, 0.7}) ||
			m.Specular[LightName] != (sim.Vec3{0.3, 0.3, 0.3}) {
			t.Fatalf("light channels not fixed")
		}
	}
}

func TestSetCameraJittersSideways(t *testing.T) {
	env, backend := newTestEnv(t, &testHooks{}, Config{})
	start := backend.Modder.CameraPos[CameraName]
	moved := false
	for i := 0; i < 10; i++ {
		if err := env.SetCamera(); err != nil {
			t.Fatal(err)
		}
		p := backend.Modder.CameraPos[CameraName]
		if p[0] != start[0] || p[2] != start[2] {
			t.Fatalf("camera moved off its plane: %v from %v", p, start)
		}
		if p[1] != start[1] {
			moved = true
		}
	}
	if !moved {
		t.Errorf("camera never jittered")
	}
}

func TestSetCameraMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := simtest.WriteScene(dir, "scene.xml"); err != nil {
		t.Fatal(err)
	}
	backend := simtest.New()
	backend.ModelTemplate.Cameras = nil
	env, err := New(backend, &testHooks{}, Config{
		ModelPath: "scene.xml",
		AssetsDir: dir,
		NActions:  4,
		Substeps:  1,
	}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.SetCamera(); !errors.Is(err, sim.ErrUnknownName) {
		t.Fatalf("expected ErrUnknownName, got %v", err)
	}
	// randomization failures are not fatal to reset
	if _, err := env.Reset(context.Background(), types.ResetOptions{RandCamera: true, RandLight: true, RandTexture: true}); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
