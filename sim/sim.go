// Package sim defines the contract between the robot environment adapter and
// an external simulation engine. Nothing in here steps physics or rasterizes
// pixels: a Backend does that, this package only names the calls.
package sim

import (
	"errors"
	"image"
)

var (
	// ErrUnknownName is returned when a body, joint, geom, light or camera
	// is not part of the loaded model.
	ErrUnknownName = errors.New("unknown name in model")
	// ErrClosed is returned by viewers used after Close.
	ErrClosed = errors.New("viewer closed")
)

// Vec3 is a position, direction or color in model space.
type Vec3 [3]float64

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Model is the loaded scene description: bodies, joints and geometry.
type Model interface {
	// Timestep of a single integration tick in seconds
	Timestep() float64
	BodyNames() []string
	JointNames() []string
	GeomNames() []string
	LightNames() []string
	CameraNames() []string
}

// Simulation owns the mutable state of a loaded model.
type Simulation interface {
	Model() Model
	// Substeps is the number of integration ticks advanced per Step
	Substeps() int

	// State returns a deep copy of the full simulator state
	State() State
	SetState(State) error
	// Step advances the simulation by Substeps ticks
	Step() error
	// Forward recomputes derived quantities without advancing time
	Forward() error

	BodyPos(name string) (Vec3, error)
	JointQPos(name string) (float64, error)
	SetJointQPos(name string, qpos float64) error
	SetMocapPos(name string, pos Vec3) error
}

// Viewer renders a simulation either to screen or to an off-screen buffer.
type Viewer interface {
	Render() error
	// ReadPixels returns the last rendered frame. Rows are ordered bottom-up,
	// the origin convention of the underlying rasterizer.
	ReadPixels(width, height int) (*image.RGBA, error)
	Close() error
}

// TextureModder mutates material colors of geoms.
type TextureModder interface {
	SetRGB(geom string, rgb Vec3) error
	// RandAll randomizes every texture channel of the geom using draw,
	// which returns uniform samples in [0, 1)
	RandAll(geom string, draw func() float64) error
}

// LightModder mutates lights.
type LightModder interface {
	SetPos(light string, pos Vec3) error
	SetDir(light string, dir Vec3) error
	SetCastShadow(light string, on bool) error
	SetAmbient(light string, rgb Vec3) error
	SetDiffuse(light string, rgb Vec3) error
	SetSpecular(light string, rgb Vec3) error
}

// CameraModder reads and mutates camera placement.
type CameraModder interface {
	Pos(camera string) (Vec3, error)
	SetPos(camera string, pos Vec3) error
}

// Modders groups the scene-modding handles bound to one simulation.
type Modders struct {
	Texture TextureModder
	Light   LightModder
	Camera  CameraModder
}

// Backend is an external simulation engine.
type Backend interface {
	LoadModel(path string) (Model, error)
	NewSimulation(model Model, substeps int) (Simulation, error)
	NewViewer(s Simulation) (Viewer, error)
	Modders(s Simulation) (*Modders, error)
}
