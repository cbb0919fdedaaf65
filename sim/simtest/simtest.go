// Package simtest provides an in-memory sim.Backend for tests. It records
// every call so tests can assert on what the adapter forwarded.
package simtest

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/zeu5/robot-goal-env/sim"
)

// Model is a fake scene.
type Model struct {
	Dt      float64
	Bodies  []string
	Joints  []string
	Geoms   []string
	Lights  []string
	Cameras []string
}

func (m *Model) Timestep() float64     { return m.Dt }
func (m *Model) BodyNames() []string   { return m.Bodies }
func (m *Model) JointNames() []string  { return m.Joints }
func (m *Model) GeomNames() []string   { return m.Geoms }
func (m *Model) LightNames() []string  { return m.Lights }
func (m *Model) CameraNames() []string { return m.Cameras }

// DefaultModel has a gripper mocap body, one object and the named lights and
// cameras the adapter randomizes.
func DefaultModel() *Model {
	return &Model{
		Dt:      0.002,
		Bodies:  []string{"robot0:mocap", "robot0:gripper", "object0"},
		Joints:  []string{"robot0:finger"},
		Geoms:   []string{"robot0:gripper_geom", "object0", "table0", "floor0"},
		Lights:  []string{"light0"},
		Cameras: []string{"external_camera_0"},
	}
}

// Sim is a fake simulation: mocap targets are copied onto the gripper body
// on every Step.
type Sim struct {
	model    *Model
	substeps int

	state  sim.State
	bodies map[string]sim.Vec3

	Steps     int
	Forwards  int
	SetStates int
	// StepErr is returned from Step when non-nil
	StepErr error
}

var _ sim.Simulation = &Sim{}

func (s *Sim) Model() sim.Model { return s.model }
func (s *Sim) Substeps() int    { return s.substeps }

func (s *Sim) State() sim.State {
	st := s.state.Copy()
	return st
}

func (s *Sim) SetStateTo(st sim.State) { s.state = st.Copy() }

func (s *Sim) SetState(st sim.State) error {
	s.SetStates++
	s.state = st.Copy()
	for name, p := range s.state.Mocap {
		s.bodies[name] = p
	}
	if p, ok := s.state.Mocap["robot0:mocap"]; ok {
		s.bodies["robot0:gripper"] = p
	}
	return nil
}

func (s *Sim) Step() error {
	if s.StepErr != nil {
		return s.StepErr
	}
	s.Steps++
	s.state.Time += s.model.Dt * float64(s.substeps)
	if p, ok := s.state.Mocap["robot0:mocap"]; ok {
		s.bodies["robot0:gripper"] = p
	}
	return nil
}

func (s *Sim) Forward() error {
	s.Forwards++
	return nil
}

func (s *Sim) BodyPos(name string) (sim.Vec3, error) {
	p, ok := s.bodies[name]
	if !ok {
		return sim.Vec3{}, fmt.Errorf("body %q: %w", name, sim.ErrUnknownName)
	}
	return p, nil
}

func (s *Sim) jointIndex(name string) (int, error) {
	for i, j := range s.model.Joints {
		if j == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("joint %q: %w", name, sim.ErrUnknownName)
}

func (s *Sim) JointQPos(name string) (float64, error) {
	i, err := s.jointIndex(name)
	if err != nil {
		return 0, err
	}
	return s.state.QPos[i], nil
}

func (s *Sim) SetJointQPos(name string, qpos float64) error {
	i, err := s.jointIndex(name)
	if err != nil {
		return err
	}
	s.state.QPos[i] = qpos
	return nil
}

func (s *Sim) SetMocapPos(name string, pos sim.Vec3) error {
	if _, ok := s.bodies[name]; !ok {
		return fmt.Errorf("mocap %q: %w", name, sim.ErrUnknownName)
	}
	s.state.Mocap[name] = pos
	s.bodies[name] = pos
	return nil
}

// Viewer is a fake viewer. ReadPixels returns a frame whose row y is filled
// with gray level y, so flipping is observable.
type Viewer struct {
	Renders int
	Closed  bool
	// SetupCalls counts how often the adapter ran its viewer setup hook on it
	SetupCalls int
}

var _ sim.Viewer = &Viewer{}

func (v *Viewer) Render() error {
	if v.Closed {
		return sim.ErrClosed
	}
	v.Renders++
	return nil
}

func (v *Viewer) ReadPixels(width, height int) (*image.RGBA, error) {
	if v.Closed {
		return nil, sim.ErrClosed
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(y), G: uint8(y), B: uint8(y), A: 255})
		}
	}
	return img, nil
}

func (v *Viewer) Close() error {
	v.Closed = true
	return nil
}

// Modder implements all three modder interfaces and records mutations.
type Modder struct {
	RGB        map[string]sim.Vec3
	Randomized map[string]int

	LightPos, LightDir         map[string]sim.Vec3
	Ambient, Diffuse, Specular map[string]sim.Vec3
	Shadow                     map[string]bool
	CameraPos                  map[string]sim.Vec3
}

func newModder(m *Model) *Modder {
	md := &Modder{
		RGB:        make(map[string]sim.Vec3),
		Randomized: make(map[string]int),
		LightPos:   make(map[string]sim.Vec3),
		LightDir:   make(map[string]sim.Vec3),
		Ambient:    make(map[string]sim.Vec3),
		Diffuse:    make(map[string]sim.Vec3),
		Specular:   make(map[string]sim.Vec3),
		Shadow:     make(map[string]bool),
		CameraPos:  make(map[string]sim.Vec3),
	}
	for _, c := range m.Cameras {
		md.CameraPos[c] = sim.Vec3{1.3, 0.75, 1.2}
	}
	return md
}

func contains(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}

func (m *Modder) SetRGB(geom string, rgb sim.Vec3) error {
	m.RGB[geom] = rgb
	return nil
}

func (m *Modder) RandAll(geom string, draw func() float64) error {
	m.Randomized[geom]++
	m.RGB[geom] = sim.Vec3{draw(), draw(), draw()}
	return nil
}

func (m *Modder) SetPos(light string, pos sim.Vec3) error {
	m.LightPos[light] = pos
	return nil
}

func (m *Modder) SetDir(light string, dir sim.Vec3) error {
	m.LightDir[light] = dir
	return nil
}

func (m *Modder) SetCastShadow(light string, on bool) error {
	m.Shadow[light] = on
	return nil
}

func (m *Modder) SetAmbient(light string, rgb sim.Vec3) error {
	m.Ambient[light] = rgb
	return nil
}

func (m *Modder) SetDiffuse(light string, rgb sim.Vec3) error {
	m.Diffuse[light] = rgb
	return nil
}

func (m *Modder) SetSpecular(light string, rgb sim.Vec3) error {
	m.Specular[light] = rgb
	return nil
}

// cameraModder adapts Modder to sim.CameraModder; the method names collide
// with the light setters.
type cameraModder struct{ m *Modder }

func (c cameraModder) Pos(camera string) (sim.Vec3, error) {
	p, ok := c.m.CameraPos[camera]
	if !ok {
		return sim.Vec3{}, fmt.Errorf("camera %q: %w", camera, sim.ErrUnknownName)
	}
	return p, nil
}

func (c cameraModder) SetPos(camera string, pos sim.Vec3) error {
	if _, ok := c.m.CameraPos[camera]; !ok {
		return fmt.Errorf("camera %q: %w", camera, sim.ErrUnknownName)
	}
	c.m.CameraPos[camera] = pos
	return nil
}

// Backend is a fake sim.Backend. Scene files only need to exist on disk;
// their content is ignored and ModelTemplate is used instead.
type Backend struct {
	ModelTemplate *Model

	Sim     *Sim
	Modder  *Modder
	Viewers []*Viewer
}

var _ sim.Backend = &Backend{}

// New returns a fake backend with DefaultModel.
func New() *Backend {
	return &Backend{ModelTemplate: DefaultModel()}
}

func (b *Backend) LoadModel(path string) (sim.Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	m := *b.ModelTemplate
	return &m, nil
}

func (b *Backend) NewSimulation(model sim.Model, substeps int) (sim.Simulation, error) {
	m := model.(*Model)
	s := &Sim{
		model:    m,
		substeps: substeps,
		state: sim.State{
			QPos:  make([]float64, len(m.Joints)),
			QVel:  make([]float64, len(m.Joints)),
			Mocap: make(map[string]sim.Vec3),
		},
		bodies: make(map[string]sim.Vec3),
	}
	for _, body := range m.Bodies {
		s.bodies[body] = sim.Vec3{1.34, 0.75, 0.53}
	}
	if contains(m.Bodies, "robot0:mocap") {
		s.state.Mocap["robot0:mocap"] = s.bodies["robot0:mocap"]
	}
	if contains(m.Bodies, "object0") {
		s.bodies["object0"] = sim.Vec3{1.25, 0.75, 0.42}
	}
	b.Sim = s
	b.Modder = newModder(m)
	return s, nil
}

func (b *Backend) NewViewer(s sim.Simulation) (sim.Viewer, error) {
	v := &Viewer{}
	b.Viewers = append(b.Viewers, v)
	return v, nil
}

func (b *Backend) Modders(s sim.Simulation) (*sim.Modders, error) {
	return &sim.Modders{
		Texture: b.Modder,
		Light:   b.Modder,
		Camera:  cameraModder{b.Modder},
	}, nil
}

// WriteScene creates an empty scene file under dir and returns its path.
func WriteScene(dir, name string) (string, error) {
	p := dir + string(os.PathSeparator) + name
	return p, os.WriteFile(p, []byte("# fake scene\n"), 0644)
}
