// Package kinematic is a small reference backend for the sim contract. It
// reads YAML scenes, moves bodies without dynamics and draws top-down
// frames with gonum/plot. Importing it registers the backend as "kinematic":
//
//	import _ "github.com/zeu5/robot-goal-env/sim/kinematic"
package kinematic

import (
	"fmt"

	"github.com/zeu5/robot-goal-env/sim"
)

// Name the backend is registered under.
const Name = "kinematic"

func init() {
	sim.Register(Name, &Backend{})
}

// Backend implements sim.Backend.
type Backend struct {
	// FrameDir receives a PNG per human render when set
	FrameDir string
}

var _ sim.Backend = &Backend{}

func (b *Backend) LoadModel(path string) (sim.Model, error) {
	sc, err := LoadScene(path)
	if err != nil {
		return nil, fmt.Errorf("kinematic: %s: %w", path, err)
	}
	return newModel(sc), nil
}

func (b *Backend) NewSimulation(model sim.Model, substeps int) (sim.Simulation, error) {
	m, ok := model.(*Model)
	if !ok {
		return nil, fmt.Errorf("kinematic: foreign model type %T", model)
	}
	return newSimulation(m, substeps)
}

func (b *Backend) NewViewer(s sim.Simulation) (sim.Viewer, error) {
	ks, ok := s.(*Simulation)
	if !ok {
		return nil, fmt.Errorf("kinematic: foreign simulation type %T", s)
	}
	return newViewer(ks, b.FrameDir), nil
}

func (b *Backend) Modders(s sim.Simulation) (*sim.Modders, error) {
	ks, ok := s.(*Simulation)
	if !ok {
		return nil, fmt.Errorf("kinematic: foreign simulation type %T", s)
	}
	return &sim.Modders{
		Texture: textureModder{ks},
		Light:   lightModder{ks},
		Camera:  cameraModder{ks},
	}, nil
}
