package kinematic

import (
	"errors"
	"fmt"
	"os"

	"github.com/zeu5/robot-goal-env/sim"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScene is returned for scene files that parse but do not
// describe a consistent model.
var ErrInvalidScene = errors.New("invalid scene")

const defaultWeldGain = 0.5

// BodySpec is a body of the scene. Mocap bodies are moved directly, bodies
// with Weld follow the named mocap body, everything else stays put unless
// its state is set.
type BodySpec struct {
	Name  string   `yaml:"name"`
	Pos   sim.Vec3 `yaml:"pos"`
	Mocap bool     `yaml:"mocap"`
	Weld  string   `yaml:"weld"`
}

// JointSpec is a scalar slide joint. Range is enforced on every tick when
// Range[0] < Range[1].
type JointSpec struct {
	Name  string     `yaml:"name"`
	Range [2]float64 `yaml:"range"`
	Init  float64    `yaml:"init"`
}

func (j JointSpec) limited() bool { return j.Range[0] < j.Range[1] }

// GeomSpec is drawn at the position of its body plus Offset.
type GeomSpec struct {
	Name   string     `yaml:"name"`
	Body   string     `yaml:"body"`
	Offset sim.Vec3   `yaml:"offset"`
	Size   float64    `yaml:"size"`
	RGBA   [4]float64 `yaml:"rgba"`
}

type LightSpec struct {
	Name string   `yaml:"name"`
	Pos  sim.Vec3 `yaml:"pos"`
	Dir  sim.Vec3 `yaml:"dir"`
}

type CameraSpec struct {
	Name string   `yaml:"name"`
	Pos  sim.Vec3 `yaml:"pos"`
}

// Scene is the YAML scene description.
type Scene struct {
	Timestep float64      `yaml:"timestep"`
	WeldGain float64      `yaml:"weld_gain"`
	Bodies   []BodySpec   `yaml:"bodies"`
	Joints   []JointSpec  `yaml:"joints"`
	Geoms    []GeomSpec   `yaml:"geoms"`
	Lights   []LightSpec  `yaml:"lights"`
	Cameras  []CameraSpec `yaml:"cameras"`
}

// LoadScene reads and validates a scene file.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScene(data)
}

// ParseScene decodes and validates a scene.
func ParseScene(data []byte) (*Scene, error) {
	sc := &Scene{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}
	if sc.WeldGain == 0 {
		sc.WeldGain = defaultWeldGain
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Scene) validate() error {
	if sc.Timestep <= 0 {
		return fmt.Errorf("%w: timestep must be positive, got %v", ErrInvalidScene, sc.Timestep)
	}
	if sc.WeldGain <= 0 || sc.WeldGain > 1 {
		return fmt.Errorf("%w: weld_gain must be in (0, 1], got %v", ErrInvalidScene, sc.WeldGain)
	}
	bodies := make(map[string]BodySpec)
	for _, b := range sc.Bodies {
		if b.Name == "" {
			return fmt.Errorf("%w: body without a name", ErrInvalidScene)
		}
		if _, dup := bodies[b.Name]; dup {
			return fmt.Errorf("%w: duplicate body %q", ErrInvalidScene, b.Name)
		}
		if b.Mocap && b.Weld != "" {
			return fmt.Errorf("%w: mocap body %q cannot be welded", ErrInvalidScene, b.Name)
		}
		bodies[b.Name] = b
	}
	for _, b := range sc.Bodies {
		if b.Weld == "" {
			continue
		}
		target, ok := bodies[b.Weld]
		if !ok || !target.Mocap {
			return fmt.Errorf("%w: body %q welded to %q which is not a mocap body", ErrInvalidScene, b.Name, b.Weld)
		}
	}
	if err := uniqueNames("joint", len(sc.Joints), func(i int) string { return sc.Joints[i].Name }); err != nil {
		return err
	}
	if err := uniqueNames("geom", len(sc.Geoms), func(i int) string { return sc.Geoms[i].Name }); err != nil {
		return err
	}
	for _, g := range sc.Geoms {
		if g.Body != "" {
			if _, ok := bodies[g.Body]; !ok {
				return fmt.Errorf("%w: geom %q on unknown body %q", ErrInvalidScene, g.Name, g.Body)
			}
		}
	}
	if err := uniqueNames("light", len(sc.Lights), func(i int) string { return sc.Lights[i].Name }); err != nil {
		return err
	}
	return uniqueNames("camera", len(sc.Cameras), func(i int) string { return sc.Cameras[i].Name })
}

func uniqueNames(kind string, n int, name func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		nm := name(i)
		if nm == "" {
			return fmt.Errorf("%w: %s without a name", ErrInvalidScene, kind)
		}
		if seen[nm] {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalidScene, kind, nm)
		}
		seen[nm] = true
	}
	return nil
}

// Model is a loaded scene. It is immutable and can back several simulations.
type Model struct {
	scene *Scene

	bodyIdx  map[string]int
	jointIdx map[string]int
	// freeIdx maps non-mocap bodies to their offset in qpos
	freeIdx map[string]int
	nq      int
}

var _ sim.Model = &Model{}

func newModel(sc *Scene) *Model {
	m := &Model{
		scene:    sc,
		bodyIdx:  make(map[string]int),
		jointIdx: make(map[string]int),
		freeIdx:  make(map[string]int),
	}
	for i, j := range sc.Joints {
		m.jointIdx[j.Name] = i
	}
	m.nq = len(sc.Joints)
	for i, b := range sc.Bodies {
		m.bodyIdx[b.Name] = i
		if !b.Mocap {
			m.freeIdx[b.Name] = m.nq
			m.nq += 3
		}
	}
	return m
}

func (m *Model) Timestep() float64 { return m.scene.Timestep }

func (m *Model) BodyNames() []string {
	out := make([]string, len(m.scene.Bodies))
	for i, b := range m.scene.Bodies {
		out[i] = b.Name
	}
	return out
}

func (m *Model) JointNames() []string {
	out := make([]string, len(m.scene.Joints))
	for i, j := range m.scene.Joints {
		out[i] = j.Name
	}
	return out
}

func (m *Model) GeomNames() []string {
	out := make([]string, len(m.scene.Geoms))
	for i, g := range m.scene.Geoms {
		out[i] = g.Name
	}
	return out
}

func (m *Model) LightNames() []string {
	out := make([]string, len(m.scene.Lights))
	for i, l := range m.scene.Lights {
		out[i] = l.Name
	}
	return out
}

func (m *Model) CameraNames() []string {
	out := make([]string, len(m.scene.Cameras))
	for i, c := range m.scene.Cameras {
		out[i] = c.Name
	}
	return out
}

// NQ is the length of the generalized position vector: one entry per joint
// followed by three per non-mocap body.
func (m *Model) NQ() int { return m.nq }
