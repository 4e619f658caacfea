package geometry

import (
	"fmt"
	"math"
)

// ElementType identifies a mesh element kind using the MSH type codes.
type ElementType int

const (
	ElementLine     ElementType = 1
	ElementTriangle ElementType = 2
	ElementPoint    ElementType = 15
)

// MeshNode is a mesh vertex.
type MeshNode struct {
	Tag int
	X   float64
	Y   float64
	Z   float64
}

// MeshElement connects mesh nodes. Physical carries the physical group tag
// the element belongs to, zero when untagged, and Entity the tag of the
// model entity it discretizes.
type MeshElement struct {
	Tag      int
	Type     ElementType
	Physical int
	Entity   int
	Nodes    []int
}

// Mesh is a generated discretization of a model.
type Mesh struct {
	Nodes    []MeshNode
	Elements []MeshElement
}

// NodeCount returns the number of mesh vertices.
func (m *Mesh) NodeCount() int { return len(m.Nodes) }

// ElementCount returns the number of elements of all types.
func (m *Mesh) ElementCount() int { return len(m.Elements) }

// CountType returns the number of elements of the given type.
func (m *Mesh) CountType(t ElementType) int {
	n := 0
	for _, e := range m.Elements {
		if e.Type == t {
			n++
		}
	}
	return n
}

// BoundingBox returns the smallest axis-aligned box containing all nodes.
func (m *Mesh) BoundingBox() (min, max [3]float64) {
	if len(m.Nodes) == 0 {
		return
	}
	min = [3]float64{m.Nodes[0].X, m.Nodes[0].Y, m.Nodes[0].Z}
	max = min
	for _, n := range m.Nodes[1:] {
		min[0] = math.Min(min[0], n.X)
		min[1] = math.Min(min[1], n.Y)
		min[2] = math.Min(min[2], n.Z)
		max[0] = math.Max(max[0], n.X)
		max[1] = math.Max(max[1], n.Y)
		max[2] = math.Max(max[2], n.Z)
	}
	return
}

// RectangleMesh builds a structured triangulation of a w by h rectangle with
// its corner at the origin, split into nx by ny cells of two triangles each.
// It needs no model and is the fast path for solver warm-up meshes.
func RectangleMesh(w, h float64, nx, ny int) (*Mesh, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("rectangle sides must be positive, got %g x %g", w, h)
	}
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("cell counts must be at least 1, got %d x %d", nx, ny)
	}
	m := &Mesh{
		Nodes:    make([]MeshNode, 0, (nx+1)*(ny+1)),
		Elements: make([]MeshElement, 0, 2*nx*ny),
	}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Nodes = append(m.Nodes, MeshNode{
				Tag: j*(nx+1) + i + 1,
				X:   w * float64(i) / float64(nx),
				Y:   h * float64(j) / float64(ny),
			})
		}
	}
	tag := 1
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			n00 := j*(nx+1) + i + 1
			n10 := n00 + 1
			n01 := n00 + nx + 1
			n11 := n01 + 1
			m.Elements = append(m.Elements,
				MeshElement{Tag: tag, Type: ElementTriangle, Entity: 1, Nodes: []int{n00, n10, n11}},
				MeshElement{Tag: tag + 1, Type: ElementTriangle, Entity: 1, Nodes: []int{n00, n11, n01}},
			)
			tag += 2
		}
	}
	return m, nil
}

// GenerateMesh meshes the model up to dimension dim and writes <tag>.msh to
// the output directory. Plane surfaces must be axis-aligned rectangles; they
// are meshed with structured grids whose divisions come from the corner
// characteristic lengths, so periodic boundary pairs discretize identically.
func (g *Geometry) GenerateMesh(dim int) error {
	if g.closed {
		return fmt.Errorf("geometry %q: %w", g.Tag(), ErrClosed)
	}
	if !g.synced {
		if err := g.Synchronize(); err != nil {
			return err
		}
	}
	m, err := g.structuredMesh(dim)
	if err != nil {
		return err
	}
	g.mesh = m
	if _, err := g.Save(FormatMSH); err != nil {
		return err
	}
	return nil
}

type rectSide int

const (
	sideBottom rectSide = iota
	sideRight
	sideTop
	sideLeft
)

func (s rectSide) horizontal() bool { return s == sideBottom || s == sideTop }

// surfGrid is the structured grid plan for one rectangular surface.
type surfGrid struct {
	surf                   PlaneSurface
	xmin, xmax, ymin, ymax float64
	z                      float64
	corners                map[rectSide]int // side start corner point tag, walking counterclockwise
	sides                  map[int]rectSide // boundary curve tag -> side
	nx, ny                 int
	nodes                  [][]int // [j][i] -> node tag
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }

// divisions returns how many mesh cells cover a span of the given length at
// characteristic length lc.
func divisions(length, lc float64) int {
	if lc <= 0 {
		return 1
	}
	n := int(math.Ceil(length/lc - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

func (g *Geometry) structuredMesh(dim int) (*Mesh, error) {
	if dim > 2 {
		dim = 2
	}
	b := &meshBuilder{g: g, pointNode: map[int]int{}, mesh: &Mesh{}}
	switch {
	case dim >= 2 && len(g.surfaces) > 0:
		if err := b.meshSurfaces(); err != nil {
			return nil, err
		}
	case dim >= 1 && len(g.curves) > 0:
		if err := b.meshCurves(); err != nil {
			return nil, err
		}
	default:
		b.meshPoints()
	}
	b.emitPhysicalPoints()
	return b.mesh, nil
}

type meshBuilder struct {
	g         *Geometry
	mesh      *Mesh
	pointNode map[int]int // model point tag -> mesh node tag
	nextNode  int
	nextElem  int
}

func (b *meshBuilder) addNode(x, y, z float64) int {
	b.nextNode++
	b.mesh.Nodes = append(b.mesh.Nodes, MeshNode{Tag: b.nextNode, X: x, Y: y, Z: z})
	return b.nextNode
}

func (b *meshBuilder) nodeForPoint(p Point) int {
	if tag, ok := b.pointNode[p.Tag]; ok {
		return tag
	}
	tag := b.addNode(p.X, p.Y, p.Z)
	b.pointNode[p.Tag] = tag
	return tag
}

func (b *meshBuilder) addElement(t ElementType, physical, entity int, nodes ...int) {
	b.nextElem++
	b.mesh.Elements = append(b.mesh.Elements, MeshElement{
		Tag:      b.nextElem,
		Type:     t,
		Physical: physical,
		Entity:   entity,
		Nodes:    nodes,
	})
}

// physicalFor returns the tag of the first physical group of dimension dim
// containing the entity, or zero when the entity is untagged.
func (g *Geometry) physicalFor(dim, entity int) int {
	for _, pg := range g.PhysicalGroups() {
		if pg.Dim != dim {
			continue
		}
		for _, e := range pg.Entities {
			if abs(e) == entity {
				return pg.Tag
			}
		}
	}
	return 0
}

// planGrid validates that the surface boundary is a four-sided axis-aligned
// rectangle and derives the initial grid divisions from the corner
// characteristic lengths.
func (b *meshBuilder) planGrid(s PlaneSurface) (*surfGrid, error) {
	if len(s.Loops) != 1 {
		return nil, fmt.Errorf("surface %d: structured meshing supports a single boundary loop, got %d", s.Tag, len(s.Loops))
	}
	loop := b.g.loops[s.Loops[0]]
	if len(loop.Curves) != 4 {
		return nil, fmt.Errorf("surface %d: structured meshing needs a four-sided boundary, got %d curves", s.Tag, len(loop.Curves))
	}
	seen := map[int]Point{}
	var curves []Curve
	for _, ct := range loop.Curves {
		c := b.g.curves[abs(ct)]
		curves = append(curves, c)
		seen[c.Start] = b.g.points[c.Start]
		seen[c.End] = b.g.points[c.End]
	}
	if len(seen) != 4 {
		return nil, fmt.Errorf("surface %d: boundary has %d distinct corners, want 4", s.Tag, len(seen))
	}
	grid := &surfGrid{
		surf:    s,
		corners: map[rectSide]int{},
		sides:   map[int]rectSide{},
	}
	first := true
	for _, p := range seen {
		if first {
			grid.xmin, grid.xmax = p.X, p.X
			grid.ymin, grid.ymax = p.Y, p.Y
			grid.z = p.Z
			first = false
			continue
		}
		grid.xmin = math.Min(grid.xmin, p.X)
		grid.xmax = math.Max(grid.xmax, p.X)
		grid.ymin = math.Min(grid.ymin, p.Y)
		grid.ymax = math.Max(grid.ymax, p.Y)
		if !near(p.Z, grid.z) {
			return nil, fmt.Errorf("surface %d: boundary is not planar in z", s.Tag)
		}
	}
	if near(grid.xmin, grid.xmax) || near(grid.ymin, grid.ymax) {
		return nil, fmt.Errorf("surface %d: boundary rectangle is degenerate", s.Tag)
	}
	lcMin := math.Inf(1)
	for _, p := range seen {
		onX := near(p.X, grid.xmin) || near(p.X, grid.xmax)
		onY := near(p.Y, grid.ymin) || near(p.Y, grid.ymax)
		if !onX || !onY {
			return nil, fmt.Errorf("surface %d: point %d is not a rectangle corner", s.Tag, p.Tag)
		}
		if p.Lc > 0 {
			lcMin = math.Min(lcMin, p.Lc)
		}
		switch {
		case near(p.X, grid.xmin) && near(p.Y, grid.ymin):
			grid.corners[sideBottom] = p.Tag
		case near(p.X, grid.xmax) && near(p.Y, grid.ymin):
			grid.corners[sideRight] = p.Tag
		case near(p.X, grid.xmax) && near(p.Y, grid.ymax):
			grid.corners[sideTop] = p.Tag
		default:
			grid.corners[sideLeft] = p.Tag
		}
	}
	for _, c := range curves {
		p, q := b.g.points[c.Start], b.g.points[c.End]
		var side rectSide
		switch {
		case near(p.Y, q.Y) && near(p.Y, grid.ymin):
			side = sideBottom
		case near(p.Y, q.Y) && near(p.Y, grid.ymax):
			side = sideTop
		case near(p.X, q.X) && near(p.X, grid.xmin):
			side = sideLeft
		case near(p.X, q.X) && near(p.X, grid.xmax):
			side = sideRight
		default:
			return nil, fmt.Errorf("surface %d: curve %d is not axis-aligned", s.Tag, c.Tag)
		}
		if _, dup := grid.sides[c.Tag]; dup {
			return nil, fmt.Errorf("surface %d: curve %d appears twice in the boundary", s.Tag, c.Tag)
		}
		grid.sides[c.Tag] = side
	}
	if len(grid.sides) != 4 {
		return nil, fmt.Errorf("surface %d: boundary does not cover all four rectangle sides", s.Tag)
	}
	if math.IsInf(lcMin, 1) {
		grid.nx, grid.ny = 1, 1
	} else {
		grid.nx = divisions(grid.xmax-grid.xmin, lcMin)
		grid.ny = divisions(grid.ymax-grid.ymin, lcMin)
	}
	return grid, nil
}

func (b *meshBuilder) meshSurfaces() error {
	var grids []*surfGrid
	curveGrid := map[int]*surfGrid{}
	for _, s := range b.g.Surfaces() {
		grid, err := b.planGrid(s)
		if err != nil {
			return err
		}
		grids = append(grids, grid)
		for ct := range grid.sides {
			if _, taken := curveGrid[ct]; !taken {
				curveGrid[ct] = grid
			}
		}
	}
	// Periodic boundary pairs must carry identical discretizations, so the
	// paired grid axes are raised to the larger division count. Two rounds
	// settle chained constraints.
	for pass := 0; pass < 2; pass++ {
		for _, p := range b.g.periodics {
			if p.Dim != 1 {
				continue
			}
			for k := range p.Targets {
				b.unifyDivisions(curveGrid, abs(p.Targets[k]), abs(p.Sources[k]))
			}
		}
	}
	for _, grid := range grids {
		b.fillGrid(grid)
	}
	for _, c := range b.g.Curves() {
		grid, ok := curveGrid[c.Tag]
		if !ok {
			continue
		}
		path := grid.sidePath(c)
		physical := b.g.physicalFor(1, c.Tag)
		for k := 0; k+1 < len(path); k++ {
			b.addElement(ElementLine, physical, c.Tag, path[k], path[k+1])
		}
	}
	for _, grid := range grids {
		physical := b.g.physicalFor(2, grid.surf.Tag)
		for j := 0; j < grid.ny; j++ {
			for i := 0; i < grid.nx; i++ {
				n00 := grid.nodes[j][i]
				n10 := grid.nodes[j][i+1]
				n01 := grid.nodes[j+1][i]
				n11 := grid.nodes[j+1][i+1]
				b.addElement(ElementTriangle, physical, grid.surf.Tag, n00, n10, n11)
				b.addElement(ElementTriangle, physical, grid.surf.Tag, n00, n11, n01)
			}
		}
	}
	return nil
}

func (b *meshBuilder) unifyDivisions(curveGrid map[int]*surfGrid, target, source int) {
	gt, okT := curveGrid[target]
	gs, okS := curveGrid[source]
	if !okT || !okS {
		return
	}
	dt := gt.divisionsFor(gt.sides[target])
	ds := gs.divisionsFor(gs.sides[source])
	d := dt
	if ds > d {
		d = ds
	}
	gt.setDivisions(gt.sides[target], d)
	gs.setDivisions(gs.sides[source], d)
}

func (sg *surfGrid) divisionsFor(side rectSide) int {
	if side.horizontal() {
		return sg.nx
	}
	return sg.ny
}

func (sg *surfGrid) setDivisions(side rectSide, d int) {
	if side.horizontal() {
		sg.nx = d
	} else {
		sg.ny = d
	}
}

func (b *meshBuilder) fillGrid(grid *surfGrid) {
	grid.nodes = make([][]int, grid.ny+1)
	w := grid.xmax - grid.xmin
	h := grid.ymax - grid.ymin
	for j := 0; j <= grid.ny; j++ {
		grid.nodes[j] = make([]int, grid.nx+1)
		for i := 0; i <= grid.nx; i++ {
			x := grid.xmin + w*float64(i)/float64(grid.nx)
			y := grid.ymin + h*float64(j)/float64(grid.ny)
			grid.nodes[j][i] = b.addNode(x, y, grid.z)
		}
	}
	b.pointNode[grid.corners[sideBottom]] = grid.nodes[0][0]
	b.pointNode[grid.corners[sideRight]] = grid.nodes[0][grid.nx]
	b.pointNode[grid.corners[sideTop]] = grid.nodes[grid.ny][grid.nx]
	b.pointNode[grid.corners[sideLeft]] = grid.nodes[grid.ny][0]
}

// sidePath lists the grid nodes along the curve's side, ordered from the
// curve start point to its end point.
func (sg *surfGrid) sidePath(c Curve) []int {
	side := sg.sides[c.Tag]
	var path []int
	var canonicalStart int
	switch side {
	case sideBottom:
		path = append(path, sg.nodes[0]...)
		canonicalStart = sg.corners[sideBottom]
	case sideTop:
		path = append(path, sg.nodes[sg.ny]...)
		canonicalStart = sg.corners[sideLeft]
	case sideLeft:
		for j := 0; j <= sg.ny; j++ {
			path = append(path, sg.nodes[j][0])
		}
		canonicalStart = sg.corners[sideBottom]
	case sideRight:
		for j := 0; j <= sg.ny; j++ {
			path = append(path, sg.nodes[j][sg.nx])
		}
		canonicalStart = sg.corners[sideRight]
	}
	if c.Start != canonicalStart {
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
	}
	return path
}

// meshCurves discretizes each curve independently, splitting by the smaller
// endpoint characteristic length. Shared endpoints share mesh nodes.
func (b *meshBuilder) meshCurves() error {
	divs := map[int]int{}
	for _, c := range b.g.Curves() {
		p, q := b.g.points[c.Start], b.g.points[c.End]
		length := math.Hypot(q.X-p.X, q.Y-p.Y)
		length = math.Hypot(length, q.Z-p.Z)
		lcMin := math.Inf(1)
		if p.Lc > 0 {
			lcMin = p.Lc
		}
		if q.Lc > 0 {
			lcMin = math.Min(lcMin, q.Lc)
		}
		if math.IsInf(lcMin, 1) {
			divs[c.Tag] = 1
		} else {
			divs[c.Tag] = divisions(length, lcMin)
		}
	}
	for pass := 0; pass < 2; pass++ {
		for _, p := range b.g.periodics {
			if p.Dim != 1 {
				continue
			}
			for k := range p.Targets {
				t, s := abs(p.Targets[k]), abs(p.Sources[k])
				if _, ok := divs[t]; !ok {
					continue
				}
				if _, ok := divs[s]; !ok {
					continue
				}
				d := divs[t]
				if divs[s] > d {
					d = divs[s]
				}
				divs[t], divs[s] = d, d
			}
		}
	}
	for _, c := range b.g.Curves() {
		p, q := b.g.points[c.Start], b.g.points[c.End]
		n := divs[c.Tag]
		path := make([]int, 0, n+1)
		path = append(path, b.nodeForPoint(p))
		for k := 1; k < n; k++ {
			f := float64(k) / float64(n)
			path = append(path, b.addNode(p.X+(q.X-p.X)*f, p.Y+(q.Y-p.Y)*f, p.Z+(q.Z-p.Z)*f))
		}
		path = append(path, b.nodeForPoint(q))
		physical := b.g.physicalFor(1, c.Tag)
		for k := 0; k+1 < len(path); k++ {
			b.addElement(ElementLine, physical, c.Tag, path[k], path[k+1])
		}
	}
	return nil
}

func (b *meshBuilder) meshPoints() {
	for _, p := range b.g.Points() {
		b.nodeForPoint(p)
	}
}

// emitPhysicalPoints adds vertex elements for physical point groups so that
// tagged vertices survive into the mesh file.
func (b *meshBuilder) emitPhysicalPoints() {
	for _, pg := range b.g.PhysicalGroups() {
		if pg.Dim != 0 {
			continue
		}
		for _, pt := range pg.Entities {
			p, ok := b.g.points[pt]
			if !ok {
				continue
			}
			b.addElement(ElementPoint, pg.Tag, pt, b.nodeForPoint(p))
		}
	}
}
