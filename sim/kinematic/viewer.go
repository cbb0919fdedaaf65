package kinematic

import (
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeu5/robot-goal-env/sim"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	defaultExtent = 0.5
	defaultSize   = 500
)

// Viewer draws a top-down view of the scene centred under a camera. It is
// off-screen only; "human" rendering writes PNG frames when a frame
// directory is set and is a no-op otherwise.
type Viewer struct {
	s        *Simulation
	camera   string
	extent   float64
	frameDir string

	frame  *image.RGBA
	frames int
	closed bool
}

var _ sim.Viewer = &Viewer{}

func newViewer(s *Simulation, frameDir string) *Viewer {
	v := &Viewer{s: s, extent: defaultExtent, frameDir: frameDir}
	if names := s.model.CameraNames(); len(names) > 0 {
		v.camera = names[0]
	}
	return v
}

// SetCamera picks the camera the view is centred under.
func (v *Viewer) SetCamera(name string) error {
	if _, ok := v.s.cameras[name]; !ok {
		return fmt.Errorf("kinematic: camera %q: %w", name, sim.ErrUnknownName)
	}
	v.camera = name
	return nil
}

// SetExtent sets the half-width of the visible square in model units.
func (v *Viewer) SetExtent(extent float64) {
	if extent > 0 {
		v.extent = extent
	}
}

// Frames is the number of PNG frames written so far.
func (v *Viewer) Frames() int { return v.frames }

func (v *Viewer) Render() error {
	if v.closed {
		return sim.ErrClosed
	}
	c, err := v.draw(defaultSize, defaultSize)
	if err != nil {
		return err
	}
	if v.frameDir == "" {
		return nil
	}
	if err := os.MkdirAll(v.frameDir, os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(v.frameDir, fmt.Sprintf("frame_%05d.png", v.frames)))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		return err
	}
	v.frames++
	return nil
}

// ReadPixels returns the last frame with rows bottom-up, redrawing when no
// frame of the requested size exists.
func (v *Viewer) ReadPixels(width, height int) (*image.RGBA, error) {
	if v.closed {
		return nil, sim.ErrClosed
	}
	if v.frame == nil || v.frame.Bounds().Dx() != width || v.frame.Bounds().Dy() != height {
		if _, err := v.draw(width, height); err != nil {
			return nil, err
		}
	}
	src := v.frame
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		copy(out.Pix[out.PixOffset(0, height-1-y):out.PixOffset(0, height-y)], src.Pix[src.PixOffset(0, y):src.PixOffset(0, y+1)])
	}
	return out, nil
}

func (v *Viewer) Close() error {
	v.closed = true
	v.frame = nil
	return nil
}

func (v *Viewer) center() sim.Vec3 {
	if p, ok := v.s.cameras[v.camera]; ok {
		return p
	}
	return sim.Vec3{}
}

// draw rasterizes the scene into v.frame.
func (v *Viewer) draw(width, height int) (*vgimg.Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("kinematic: invalid frame size %dx%d", width, height)
	}
	p := plot.New()
	p.HideAxes()
	p.BackgroundColor = color.Black

	center := v.center()
	shade := v.shade()
	geoms := append([]GeomSpec(nil), v.s.model.scene.Geoms...)
	pos := make(map[string]sim.Vec3, len(geoms))
	for _, g := range geoms {
		pos[g.Name] = v.s.geomPos(g)
	}
	// lower geoms first so that higher ones cover them
	sort.SliceStable(geoms, func(i, j int) bool { return pos[geoms[i].Name][2] < pos[geoms[j].Name][2] })

	pxPerUnit := float64(width) / (2 * v.extent)
	for _, g := range geoms {
		gp := pos[g.Name]
		if math.Abs(gp[0]-center[0]) > v.extent || math.Abs(gp[1]-center[1]) > v.extent {
			continue
		}
		sc, err := plotter.NewScatter(plotter.XYs{{X: gp[0], Y: gp[1]}})
		if err != nil {
			return nil, err
		}
		size := g.Size
		if size <= 0 {
			size = 0.01
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  v.geomColor(g.Name, shade),
			Radius: vg.Length(math.Max(1, size*pxPerUnit)),
			Shape:  draw.CircleGlyph{},
		}
		p.Add(sc)
	}
	p.X.Min, p.X.Max = center[0]-v.extent, center[0]+v.extent
	p.Y.Min, p.Y.Max = center[1]-v.extent, center[1]+v.extent

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := vgimg.NewWith(vgimg.UseImage(img))
	p.Draw(draw.New(c))

	frame, ok := c.Image().(*image.RGBA)
	if !ok {
		frame = image.NewRGBA(c.Image().Bounds())
		stddraw.Draw(frame, frame.Bounds(), c.Image(), image.Point{}, stddraw.Src)
	}
	v.frame = frame
	return c, nil
}

// shade scales colors by the ambient and diffuse terms of the first light.
func (v *Viewer) shade() sim.Vec3 {
	names := v.s.model.LightNames()
	if len(names) == 0 {
		return sim.Vec3{1, 1, 1}
	}
	l := v.s.lights[names[0]]
	var out sim.Vec3
	for i := range out {
		out[i] = math.Min(1, l.ambient[i]+l.diffuse[i])
	}
	return out
}

func (v *Viewer) geomColor(name string, shade sim.Vec3) color.Color {
	c := v.s.geomRGBA[name]
	ch := func(x float64) uint8 {
		return uint8(math.Round(255 * math.Min(1, math.Max(0, x))))
	}
	return color.NRGBA{
		R: ch(c[0] * shade[0]),
		G: ch(c[1] * shade[1]),
		B: ch(c[2] * shade[2]),
		A: ch(alpha(c)),
	}
}
