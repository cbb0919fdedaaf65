package robot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeu5/robot-goal-env/sim"
	"gonum.org/v1/gonum/stat/distuv"
)

// Names the scene randomization touches.
const (
	LightName    = "light0"
	CameraName   = "external_camera_0"
	ObjectGeom   = "object0"
	robotPrefix  = "robot0:"
	cameraJitter = 0.05
)

var (
	armInitPos = sim.Vec3{1.425, 1.333, 0}
	lightOff   = sim.Vec3{2, 0, 3}
	red        = sim.Vec3{1, 0, 0}
)

// RandTexture recolors every geom that is not part of the robot: the object
// turns red and everything else gets random textures. Failures on single
// geoms do not stop the others.
func (e *Env) RandTexture() error {
	if e.modders.Texture == nil {
		return errors.New("no texture modder")
	}
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: e.rng}
	var errs []error
	for _, name := range e.sim.Model().GeomNames() {
		if strings.Contains(name, robotPrefix) {
			continue
		}
		var err error
		if name == ObjectGeom {
			err = e.modders.Texture.SetRGB(name, red)
		} else {
			err = e.modders.Texture.RandAll(name, uniform.Rand)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("geom %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// SetLight places the main light above the arm with a random direction and
// fixed shadow and color channels.
func (e *Env) SetLight() error {
	l := e.modders.Light
	if l == nil {
		return errors.New("no light modder")
	}
	dir := sim.Vec3{
		distuv.Uniform{Min: -0.9, Max: 0.1, Src: e.rng}.Rand(),
		distuv.Uniform{Min: -0.9, Max: 0.9, Src: e.rng}.Rand(),
		distuv.Uniform{Min: -0.9, Max: 0, Src: e.rng}.Rand(),
	}
	return errors.Join(
		l.SetPos(LightName, lightOff.Add(armInitPos)),
		l.SetDir(LightName, dir),
		l.SetCastShadow(LightName, true),
		l.SetAmbient(LightName, sim.Vec3{0.2, 0.2, 0.2}),
		l.SetDiffuse(LightName, sim.Vec3{0.7, 0.7, 0.7}),
		l.SetSpecular(LightName, sim.Vec3{0.3, 0.3, 0.3}),
	)
}

// SetCamera jitters the external camera sideways around the position it had
// when the environment was built.
func (e *Env) SetCamera() error {
	if e.modders.Camera == nil || !e.cameraOK {
		return fmt.Errorf("camera %s: %w", CameraName, sim.ErrUnknownName)
	}
	y := distuv.Normal{Mu: 0, Sigma: cameraJitter, Src: e.rng}.Rand()
	return e.modders.Camera.SetPos(CameraName, e.cameraInit.Add(sim.Vec3{0, y, 0}))
}
