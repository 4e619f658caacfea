// Package geometry builds, meshes, and serializes planar CAD models. Models
// are assembled bottom-up from points, curves, curve loops, and plane
// surfaces, tagged with named physical groups, and can carry periodic
// constraints between boundary curves. The package understands the unrolled
// geo text format for both reading and writing, and can emit meshes in the
// MSH 2.2 and legacy VTK formats.
package geometry

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Supported serialization formats for Save.
const (
	FormatGeoUnrolled = "geo_unrolled"
	FormatMSH         = "msh"
	FormatVTK         = "vtk"
)

// DefaultTag names models created without an explicit tag.
const DefaultTag = "geometry"

var (
	// ErrClosed is returned by operations on a closed geometry.
	ErrClosed = errors.New("geometry closed")
	// ErrNoMesh is returned when a mesh format is saved before GenerateMesh.
	ErrNoMesh = errors.New("no mesh generated")
)

// Point is a model vertex. Lc is the characteristic mesh length at the
// point; zero or negative means no constraint.
type Point struct {
	Tag int
	X   float64
	Y   float64
	Z   float64
	Lc  float64
}

// Curve is a straight line between two point tags.
type Curve struct {
	Tag   int
	Start int
	End   int
}

// CurveLoop is a closed chain of curve tags. A negative tag reverses the
// curve orientation within the loop.
type CurveLoop struct {
	Tag    int
	Curves []int
}

// PlaneSurface is a surface bounded by one outer curve loop, optionally
// followed by hole loops.
type PlaneSurface struct {
	Tag   int
	Loops []int
}

// PhysicalGroup names a set of entities of a single dimension so that
// downstream solvers can address boundaries and domains symbolically.
type PhysicalGroup struct {
	Dim      int
	Tag      int
	Name     string
	Entities []int
}

// Periodic constrains the mesh of target curves to copy the mesh of source
// curves through an affine transform, given as a 4x4 row-major matrix.
type Periodic struct {
	Dim       int
	Targets   []int
	Sources   []int
	Transform [16]float64
}

// TranslationTransform returns the 4x4 row-major affine matrix for a pure
// translation by (tx, ty, tz).
func TranslationTransform(tx, ty, tz float64) []float64 {
	return []float64{
		1, 0, 0, tx,
		0, 1, 0, ty,
		0, 0, 1, tz,
		0, 0, 0, 1,
	}
}

// kernel guards the shared modeling state. The first geometry acquires it
// and the last one to close releases it, mirroring the lifecycle of a
// native CAD kernel that must be initialized once per process.
type kernel struct {
	mu     sync.Mutex
	active int
}

var modelKernel kernel

func (k *kernel) acquire() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active++
}

func (k *kernel) release() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == 0 {
		return errors.New("kernel not initialized")
	}
	k.active--
	return nil
}

func (k *kernel) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// ActiveModels reports how many geometries currently hold the kernel open.
func ActiveModels() int { return modelKernel.count() }

// DefaultOutputDir is where models and meshes are written unless
// WithOutputDir overrides it.
func DefaultOutputDir() string { return filepath.Join(os.TempDir(), "cadio") }

type options struct {
	parent    *Node
	outputDir string
	file      string
}

// Option configures NewGeometry.
type Option func(*options)

// WithParent attaches the new geometry under an existing node.
func WithParent(p *Node) Option { return func(o *options) { o.parent = p } }

// WithOutputDir sets the directory Save and GenerateMesh write into.
func WithOutputDir(dir string) Option { return func(o *options) { o.outputDir = dir } }

// WithFile imports an unrolled geo model from path during construction.
func WithFile(path string) Option { return func(o *options) { o.file = path } }

// Geometry is a single planar model. It is not safe for concurrent use.
type Geometry struct {
	node      *Node
	outputDir string

	points    map[int]Point
	curves    map[int]Curve
	loops     map[int]CurveLoop
	surfaces  map[int]PlaneSurface
	groups    map[int]map[int]*PhysicalGroup
	periodics []Periodic

	nextPoint   int
	nextCurve   int
	nextLoop    int
	nextSurface int
	nextGroup   map[int]int

	mesh   *Mesh
	synced bool
	closed bool
}

// NewGeometry opens the kernel and returns an empty model named tag, or the
// model imported by WithFile. An empty tag defaults to DefaultTag.
func NewGeometry(tag string, opts ...Option) (*Geometry, error) {
	if tag == "" {
		tag = DefaultTag
	}
	o := options{outputDir: DefaultOutputDir()}
	for _, opt := range opts {
		opt(&o)
	}
	modelKernel.acquire()
	g := &Geometry{
		node:      NewNode(tag, o.parent),
		outputDir: o.outputDir,
	}
	g.reset()
	if o.file != "" {
		if err := g.Open(o.file); err != nil {
			g.closed = true
			_ = modelKernel.release()
			return nil, err
		}
	}
	return g, nil
}

// Close releases the geometry's hold on the kernel. Closing twice is an
// error so that reference counting stays balanced.
func (g *Geometry) Close() error {
	if g.closed {
		return fmt.Errorf("geometry %q: %w", g.Tag(), ErrClosed)
	}
	g.closed = true
	return modelKernel.release()
}

// Tag returns the model name.
func (g *Geometry) Tag() string { return g.node.Tag() }

// Model returns the geometry's position in the model tree.
func (g *Geometry) Model() *Node { return g.node }

// OutputDir returns the directory Save and GenerateMesh write into.
func (g *Geometry) OutputDir() string { return g.outputDir }

// Mesh returns the last generated mesh, or nil before GenerateMesh.
func (g *Geometry) Mesh() *Mesh { return g.mesh }

func (g *Geometry) reset() {
	g.points = make(map[int]Point)
	g.curves = make(map[int]Curve)
	g.loops = make(map[int]CurveLoop)
	g.surfaces = make(map[int]PlaneSurface)
	g.groups = map[int]map[int]*PhysicalGroup{0: {}, 1: {}, 2: {}}
	g.periodics = nil
	g.nextPoint = 1
	g.nextCurve = 1
	g.nextLoop = 1
	g.nextSurface = 1
	g.nextGroup = map[int]int{0: 1, 1: 1, 2: 1}
	g.mesh = nil
	g.synced = false
}

// Clear removes all entities, groups, periodic constraints, and any
// generated mesh, leaving an empty model with the same tag.
func (g *Geometry) Clear() { g.reset() }

// AddPoint adds a vertex at (x, y, z) with characteristic length lc and
// returns its tag.
func (g *Geometry) AddPoint(x, y, z, lc float64) int {
	tag := g.nextPoint
	g.nextPoint++
	g.points[tag] = Point{Tag: tag, X: x, Y: y, Z: z, Lc: lc}
	g.synced = false
	return tag
}

// AddLine adds a straight curve between two point tags and returns its tag.
// Endpoints are validated at Synchronize time.
func (g *Geometry) AddLine(start, end int) int {
	tag := g.nextCurve
	g.nextCurve++
	g.curves[tag] = Curve{Tag: tag, Start: start, End: end}
	g.synced = false
	return tag
}

// AddCurveLoop adds a closed chain of curve tags and returns its tag.
func (g *Geometry) AddCurveLoop(curves []int) int {
	tag := g.nextLoop
	g.nextLoop++
	cs := make([]int, len(curves))
	copy(cs, curves)
	g.loops[tag] = CurveLoop{Tag: tag, Curves: cs}
	g.synced = false
	return tag
}

// AddPlaneSurface adds a surface bounded by the given loop tags and returns
// its tag.
func (g *Geometry) AddPlaneSurface(loops []int) int {
	tag := g.nextSurface
	g.nextSurface++
	ls := make([]int, len(loops))
	copy(ls, loops)
	g.surfaces[tag] = PlaneSurface{Tag: tag, Loops: ls}
	g.synced = false
	return tag
}

// AddPhysicalGroup groups entity tags of dimension dim and returns the group
// tag. Use SetPhysicalName to name it.
func (g *Geometry) AddPhysicalGroup(dim int, entities []int) int {
	byTag, ok := g.groups[dim]
	if !ok {
		byTag = map[int]*PhysicalGroup{}
		g.groups[dim] = byTag
	}
	tag := g.nextGroup[dim]
	g.nextGroup[dim] = tag + 1
	es := make([]int, len(entities))
	copy(es, entities)
	byTag[tag] = &PhysicalGroup{Dim: dim, Tag: tag, Entities: es}
	g.synced = false
	return tag
}

// SetPhysicalName names the physical group (dim, tag). Unknown groups are
// ignored.
func (g *Geometry) SetPhysicalName(dim, tag int, name string) {
	if byTag, ok := g.groups[dim]; ok {
		if pg, ok := byTag[tag]; ok {
			pg.Name = name
		}
	}
}

// SetPeriodic constrains the mesh of target curves to follow source curves
// through the given 4x4 row-major affine transform. Targets and sources are
// matched pairwise.
func (g *Geometry) SetPeriodic(dim int, targets, sources []int, transform []float64) error {
	if len(transform) != 16 {
		return fmt.Errorf("periodic transform needs 16 entries, got %d", len(transform))
	}
	if len(targets) != len(sources) {
		return fmt.Errorf("periodic targets and sources differ in length: %d vs %d", len(targets), len(sources))
	}
	p := Periodic{
		Dim:     dim,
		Targets: append([]int(nil), targets...),
		Sources: append([]int(nil), sources...),
	}
	copy(p.Transform[:], transform)
	g.periodics = append(g.periodics, p)
	g.synced = false
	return nil
}

// Points returns all vertices ordered by tag.
func (g *Geometry) Points() []Point {
	out := make([]Point, 0, len(g.points))
	for tag := 1; tag < g.nextPoint; tag++ {
		if p, ok := g.points[tag]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Curves returns all curves ordered by tag.
func (g *Geometry) Curves() []Curve {
	out := make([]Curve, 0, len(g.curves))
	for tag := 1; tag < g.nextCurve; tag++ {
		if c, ok := g.curves[tag]; ok {
			out = append(out, c)
		}
	}
	return out
}

// CurveLoops returns all curve loops ordered by tag.
func (g *Geometry) CurveLoops() []CurveLoop {
	out := make([]CurveLoop, 0, len(g.loops))
	for tag := 1; tag < g.nextLoop; tag++ {
		if l, ok := g.loops[tag]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Surfaces returns all plane surfaces ordered by tag.
func (g *Geometry) Surfaces() []PlaneSurface {
	out := make([]PlaneSurface, 0, len(g.surfaces))
	for tag := 1; tag < g.nextSurface; tag++ {
		if s, ok := g.surfaces[tag]; ok {
			out = append(out, s)
		}
	}
	return out
}

// PhysicalGroups returns all groups ordered by dimension, then tag.
func (g *Geometry) PhysicalGroups() []PhysicalGroup {
	var out []PhysicalGroup
	for dim := 0; dim <= 3; dim++ {
		byTag, ok := g.groups[dim]
		if !ok {
			continue
		}
		for tag := 1; tag < g.nextGroup[dim]; tag++ {
			if pg, ok := byTag[tag]; ok {
				out = append(out, *pg)
			}
		}
	}
	return out
}

// GroupByName finds a physical group of dimension dim by name.
func (g *Geometry) GroupByName(dim int, name string) (PhysicalGroup, bool) {
	byTag, ok := g.groups[dim]
	if !ok {
		return PhysicalGroup{}, false
	}
	for tag := 1; tag < g.nextGroup[dim]; tag++ {
		if pg, ok := byTag[tag]; ok && pg.Name == name {
			return *pg, true
		}
	}
	return PhysicalGroup{}, false
}

// Periodics returns the periodic constraints in the order they were set.
func (g *Geometry) Periodics() []Periodic {
	out := make([]Periodic, len(g.periodics))
	copy(out, g.periodics)
	return out
}

// Dimension returns the highest entity dimension present, or -1 for an
// empty model.
func (g *Geometry) Dimension() int {
	switch {
	case len(g.surfaces) > 0:
		return 2
	case len(g.curves) > 0:
		return 1
	case len(g.points) > 0:
		return 0
	default:
		return -1
	}
}

// Synchronize validates cross-references between entities. Builders may add
// entities in any order; nothing is checked until this point.
func (g *Geometry) Synchronize() error {
	if g.closed {
		return fmt.Errorf("geometry %q: %w", g.Tag(), ErrClosed)
	}
	for _, c := range g.Curves() {
		for _, pt := range []int{c.Start, c.End} {
			if _, ok := g.points[pt]; !ok {
				return fmt.Errorf("curve %d references unknown point %d", c.Tag, pt)
			}
		}
	}
	for _, l := range g.CurveLoops() {
		if len(l.Curves) == 0 {
			return fmt.Errorf("curve loop %d is empty", l.Tag)
		}
		for _, ct := range l.Curves {
			if _, ok := g.curves[abs(ct)]; !ok {
				return fmt.Errorf("curve loop %d references unknown curve %d", l.Tag, ct)
			}
		}
	}
	for _, s := range g.Surfaces() {
		if len(s.Loops) == 0 {
			return fmt.Errorf("surface %d has no boundary loop", s.Tag)
		}
		for _, lt := range s.Loops {
			if _, ok := g.loops[lt]; !ok {
				return fmt.Errorf("surface %d references unknown curve loop %d", s.Tag, lt)
			}
		}
	}
	for _, pg := range g.PhysicalGroups() {
		for _, e := range pg.Entities {
			if !g.entityExists(pg.Dim, e) {
				return fmt.Errorf("physical group %q references unknown entity %d of dimension %d", pg.Name, e, pg.Dim)
			}
		}
	}
	for i, p := range g.periodics {
		for _, set := range [][]int{p.Targets, p.Sources} {
			for _, e := range set {
				if !g.entityExists(p.Dim, e) {
					return fmt.Errorf("periodic constraint %d references unknown entity %d of dimension %d", i+1, e, p.Dim)
				}
			}
		}
	}
	g.synced = true
	return nil
}

func (g *Geometry) entityExists(dim, tag int) bool {
	switch dim {
	case 0:
		_, ok := g.points[tag]
		return ok
	case 1:
		_, ok := g.curves[abs(tag)]
		return ok
	case 2:
		_, ok := g.surfaces[tag]
		return ok
	default:
		return false
	}
}

// Save serializes the model into the output directory as <tag>.<format> and
// returns the written path. An empty format means FormatGeoUnrolled. Mesh
// formats require a prior GenerateMesh.
func (g *Geometry) Save(format string) (string, error) {
	if g.closed {
		return "", fmt.Errorf("geometry %q: %w", g.Tag(), ErrClosed)
	}
	if format == "" {
		format = FormatGeoUnrolled
	}
	var buf bytes.Buffer
	switch format {
	case FormatGeoUnrolled:
		if !g.synced {
			if err := g.Synchronize(); err != nil {
				return "", err
			}
		}
		g.writeGeo(&buf)
	case FormatMSH:
		if g.mesh == nil {
			return "", fmt.Errorf("save %s: %w", format, ErrNoMesh)
		}
		g.writeMSH(&buf)
	case FormatVTK:
		if g.mesh == nil {
			return "", fmt.Errorf("save %s: %w", format, ErrNoMesh)
		}
		g.writeVTK(&buf)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(g.outputDir, g.Tag()+"."+format)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
