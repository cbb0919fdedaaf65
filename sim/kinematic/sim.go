package kinematic

import (
	"fmt"
	"math"

	"github.com/zeu5/robot-goal-env/sim"
)

// Simulation moves bodies kinematically: on every tick welded bodies close a
// fixed fraction of the distance to their mocap target and joints are
// clamped into their range. There are no forces or contacts.
type Simulation struct {
	model    *Model
	substeps int

	time float64
	qpos []float64
	qvel []float64
	// mocap targets by body name
	mocap map[string]sim.Vec3

	geomRGBA map[string][4]float64
	lights   map[string]*lightState
	cameras  map[string]sim.Vec3
}

type lightState struct {
	pos, dir                   sim.Vec3
	ambient, diffuse, specular sim.Vec3
	castShadow                 bool
}

var _ sim.Simulation = &Simulation{}

func newSimulation(m *Model, substeps int) (*Simulation, error) {
	if substeps < 1 {
		return nil, fmt.Errorf("kinematic: substeps must be positive, got %d", substeps)
	}
	s := &Simulation{
		model:    m,
		substeps: substeps,
		qpos:     make([]float64, m.nq),
		qvel:     make([]float64, m.nq),
		mocap:    make(map[string]sim.Vec3),
		geomRGBA: make(map[string][4]float64),
		lights:   make(map[string]*lightState),
		cameras:  make(map[string]sim.Vec3),
	}
	for i, j := range m.scene.Joints {
		s.qpos[i] = j.Init
	}
	for _, b := range m.scene.Bodies {
		if b.Mocap {
			s.mocap[b.Name] = b.Pos
			continue
		}
		off := m.freeIdx[b.Name]
		copy(s.qpos[off:off+3], b.Pos[:])
	}
	for _, g := range m.scene.Geoms {
		s.geomRGBA[g.Name] = g.RGBA
	}
	for _, l := range m.scene.Lights {
		s.lights[l.Name] = &lightState{pos: l.Pos, dir: l.Dir, diffuse: sim.Vec3{0.7, 0.7, 0.7}}
	}
	for _, c := range m.scene.Cameras {
		s.cameras[c.Name] = c.Pos
	}
	s.clampJoints()
	return s, nil
}

func (s *Simulation) Model() sim.Model { return s.model }
func (s *Simulation) Substeps() int    { return s.substeps }
func (s *Simulation) Time() float64    { return s.time }

func (s *Simulation) State() sim.State {
	st := sim.State{
		Time:  s.time,
		QPos:  s.qpos,
		QVel:  s.qvel,
		Mocap: s.mocap,
	}
	return st.Copy()
}

func (s *Simulation) SetState(st sim.State) error {
	if len(st.QPos) != s.model.nq || len(st.QVel) != s.model.nq {
		return fmt.Errorf("kinematic: state has %d qpos and %d qvel entries, model needs %d", len(st.QPos), len(st.QVel), s.model.nq)
	}
	for name := range st.Mocap {
		if _, ok := s.mocap[name]; !ok {
			return fmt.Errorf("kinematic: mocap %q: %w", name, sim.ErrUnknownName)
		}
	}
	c := st.Copy()
	s.time = c.Time
	s.qpos = c.QPos
	s.qvel = c.QVel
	for name, p := range c.Mocap {
		s.mocap[name] = p
	}
	return nil
}

func (s *Simulation) Step() error {
	before := append([]float64(nil), s.qpos...)
	gain := s.model.scene.WeldGain
	for i := 0; i < s.substeps; i++ {
		for _, b := range s.model.scene.Bodies {
			if b.Weld == "" {
				continue
			}
			target := s.mocap[b.Weld]
			off := s.model.freeIdx[b.Name]
			for k := 0; k < 3; k++ {
				s.qpos[off+k] += gain * (target[k] - s.qpos[off+k])
			}
		}
		s.clampJoints()
		s.time += s.model.scene.Timestep
	}
	for _, v := range s.qpos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("kinematic: state diverged at t=%v", s.time)
		}
	}
	dt := s.model.scene.Timestep * float64(s.substeps)
	for i := range s.qvel {
		s.qvel[i] = (s.qpos[i] - before[i]) / dt
	}
	return nil
}

// Forward only enforces joint limits: positions are the whole state.
func (s *Simulation) Forward() error {
	s.clampJoints()
	return nil
}

func (s *Simulation) clampJoints() {
	for i, j := range s.model.scene.Joints {
		if j.limited() {
			s.qpos[i] = math.Min(math.Max(s.qpos[i], j.Range[0]), j.Range[1])
		}
	}
}

func (s *Simulation) BodyPos(name string) (sim.Vec3, error) {
	if p, ok := s.mocap[name]; ok {
		return p, nil
	}
	off, ok := s.model.freeIdx[name]
	if !ok {
		return sim.Vec3{}, fmt.Errorf("kinematic: body %q: %w", name, sim.ErrUnknownName)
	}
	return sim.Vec3{s.qpos[off], s.qpos[off+1], s.qpos[off+2]}, nil
}

// SetBodyPos places a non-mocap body, e.g. an object at reset.
func (s *Simulation) SetBodyPos(name string, pos sim.Vec3) error {
	off, ok := s.model.freeIdx[name]
	if !ok {
		return fmt.Errorf("kinematic: free body %q: %w", name, sim.ErrUnknownName)
	}
	copy(s.qpos[off:off+3], pos[:])
	return nil
}

func (s *Simulation) JointQPos(name string) (float64, error) {
	i, ok := s.model.jointIdx[name]
	if !ok {
		return 0, fmt.Errorf("kinematic: joint %q: %w", name, sim.ErrUnknownName)
	}
	return s.qpos[i], nil
}

func (s *Simulation) SetJointQPos(name string, qpos float64) error {
	i, ok := s.model.jointIdx[name]
	if !ok {
		return fmt.Errorf("kinematic: joint %q: %w", name, sim.ErrUnknownName)
	}
	s.qpos[i] = qpos
	return nil
}

func (s *Simulation) SetMocapPos(name string, pos sim.Vec3) error {
	if _, ok := s.mocap[name]; !ok {
		return fmt.Errorf("kinematic: mocap %q: %w", name, sim.ErrUnknownName)
	}
	s.mocap[name] = pos
	return nil
}

// geomPos is the world position of a geom.
func (s *Simulation) geomPos(g GeomSpec) sim.Vec3 {
	if g.Body == "" {
		return g.Offset
	}
	p, _ := s.BodyPos(g.Body)
	return p.Add(g.Offset)
}
