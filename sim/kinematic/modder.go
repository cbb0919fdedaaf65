package kinematic

import (
	"fmt"

	"github.com/zeu5/robot-goal-env/sim"
)

type textureModder struct{ s *Simulation }

func (t textureModder) SetRGB(geom string, rgb sim.Vec3) error {
	c, ok := t.s.geomRGBA[geom]
	if !ok {
		return fmt.Errorf("kinematic: geom %q: %w", geom, sim.ErrUnknownName)
	}
	t.s.geomRGBA[geom] = [4]float64{rgb[0], rgb[1], rgb[2], alpha(c)}
	return nil
}

// RandAll draws a new color. The kinematic viewer has flat colors only, so
// every texture channel collapses to the rgb of the geom.
func (t textureModder) RandAll(geom string, draw func() float64) error {
	c, ok := t.s.geomRGBA[geom]
	if !ok {
		return fmt.Errorf("kinematic: geom %q: %w", geom, sim.ErrUnknownName)
	}
	t.s.geomRGBA[geom] = [4]float64{draw(), draw(), draw(), alpha(c)}
	return nil
}

func alpha(c [4]float64) float64 {
	if c[3] == 0 {
		return 1
	}
	return c[3]
}

type lightModder struct{ s *Simulation }

func (l lightModder) light(name string) (*lightState, error) {
	ls, ok := l.s.lights[name]
	if !ok {
		return nil, fmt.Errorf("kinematic: light %q: %w", name, sim.ErrUnknownName)
	}
	return ls, nil
}

func (l lightModder) SetPos(light string, pos sim.Vec3) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.pos = pos
	return nil
}

func (l lightModder) SetDir(light string, dir sim.Vec3) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.dir = dir
	return nil
}

func (l lightModder) SetCastShadow(light string, on bool) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.castShadow = on
	return nil
}

func (l lightModder) SetAmbient(light string, rgb sim.Vec3) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.ambient = rgb
	return nil
}

func (l lightModder) SetDiffuse(light string, rgb sim.Vec3) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.diffuse = rgb
	return nil
}

func (l lightModder) SetSpecular(light string, rgb sim.Vec3) error {
	ls, err := l.light(light)
	if err != nil {
		return err
	}
	ls.specular = rgb
	return nil
}

type cameraModder struct{ s *Simulation }

func (c cameraModder) Pos(camera string) (sim.Vec3, error) {
	p, ok := c.s.cameras[camera]
	if !ok {
		return sim.Vec3{}, fmt.Errorf("kinematic: camera %q: %w", camera, sim.ErrUnknownName)
	}
	return p, nil
}

func (c cameraModder) SetPos(camera string, pos sim.Vec3) error {
	if _, ok := c.s.cameras[camera]; !ok {
		return fmt.Errorf("kinematic: camera %q: %w", camera, sim.ErrUnknownName)
	}
	c.s.cameras[camera] = pos
	return nil
}

// GeomRGBA reports the current color of a geom.
func (s *Simulation) GeomRGBA(geom string) ([4]float64, error) {
	c, ok := s.geomRGBA[geom]
	if !ok {
		return c, fmt.Errorf("kinematic: geom %q: %w", geom, sim.ErrUnknownName)
	}
	return c, nil
}
