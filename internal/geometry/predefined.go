package geometry

// Defaults for the predefined builders, applied when the corresponding
// argument is zero or negative.
const (
	DefaultLc     = 0.1
	DefaultEps    = 1e-6
	DefaultWidth  = 1.0
	DefaultHeight = 0.5
)

// GeomA builds a two-rectangle assembly from a unit square: a lower
// rectangle of width 1 and height 0.5 with a corner at the origin, and an
// identical upper rectangle lifted by eps. The two boundaries facing each
// other across the gap are left free, so their meshes need not match. Both
// rectangles get a left/right periodic constraint. The model is synchronized
// and written to the output directory in unrolled geo form.
func (g *Geometry) GeomA(lc, eps float64) error {
	if lc <= 0 {
		lc = DefaultLc
	}
	if eps <= 0 {
		eps = DefaultEps
	}
	// lower rectangle, counterclockwise from the origin
	p0 := g.AddPoint(0, 0, 0, lc/4)
	p1 := g.AddPoint(1, 0, 0, lc)
	p2 := g.AddPoint(1, 0.5, 0, lc)
	p3 := g.AddPoint(0, 0.5, 0, lc/4)
	// upper rectangle, lifted by eps
	p4 := g.AddPoint(0, 0.5+eps, 0, lc)
	p5 := g.AddPoint(1, 0.5+eps, 0, lc)
	p6 := g.AddPoint(1, 1.0+eps, 0, lc)
	p7 := g.AddPoint(0, 1.0+eps, 0, lc)

	l0 := g.AddLine(p0, p1) // bottom lower
	l1 := g.AddLine(p1, p2) // right lower
	l2 := g.AddLine(p2, p3) // top lower
	l3 := g.AddLine(p3, p0) // left lower
	l4 := g.AddLine(p4, p5) // bottom upper
	l5 := g.AddLine(p5, p6) // right upper
	l6 := g.AddLine(p6, p7) // top upper
	l7 := g.AddLine(p7, p4) // left upper

	cla := g.AddCurveLoop([]int{l0, l1, l2, l3})
	clb := g.AddCurveLoop([]int{l4, l5, l6, l7})
	sa := g.AddPlaneSurface([]int{cla})
	sb := g.AddPlaneSurface([]int{clb})

	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l0}), "bottom_lower")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l1, l3}), "bottom_periodic")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l2}), "top_lower")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l4}), "bottom_upper")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l5, l7}), "top_periodic")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l6}), "top_upper")
	g.SetPhysicalName(2, g.AddPhysicalGroup(2, []int{sa}), "lower")
	g.SetPhysicalName(2, g.AddPhysicalGroup(2, []int{sb}), "upper")

	if err := g.Synchronize(); err != nil {
		return err
	}
	// right boundary copies the left boundary shifted by the width
	translation := TranslationTransform(1, 0, 0)
	if err := g.SetPeriodic(1, []int{l1}, []int{l3}, translation); err != nil {
		return err
	}
	if err := g.SetPeriodic(1, []int{l5}, []int{l7}, translation); err != nil {
		return err
	}
	_, err := g.Save(FormatGeoUnrolled)
	return err
}

// GeomB is GeomA with a matching boundary between the top of the lower
// rectangle and the bottom of the upper one: all lower corners mesh at lc/4,
// the facing curves form a single "pair" group, and a vertical periodic
// constraint ties their meshes together across the eps gap.
func (g *Geometry) GeomB(lc, eps float64) error {
	if lc <= 0 {
		lc = DefaultLc
	}
	if eps <= 0 {
		eps = DefaultEps
	}
	p0 := g.AddPoint(0, 0, 0, lc/4)
	p1 := g.AddPoint(1, 0, 0, lc/4)
	p2 := g.AddPoint(1, 0.5, 0, lc/4)
	p3 := g.AddPoint(0, 0.5, 0, lc/4)
	p4 := g.AddPoint(0, 0.5+eps, 0, lc)
	p5 := g.AddPoint(1, 0.5+eps, 0, lc)
	p6 := g.AddPoint(1, 1.0+eps, 0, lc)
	p7 := g.AddPoint(0, 1.0+eps, 0, lc)

	l0 := g.AddLine(p0, p1) // bottom lower
	l1 := g.AddLine(p1, p2) // right lower
	l2 := g.AddLine(p2, p3) // top lower
	l3 := g.AddLine(p3, p0) // left lower
	l4 := g.AddLine(p4, p5) // bottom upper
	l5 := g.AddLine(p5, p6) // right upper
	l6 := g.AddLine(p6, p7) // top upper
	l7 := g.AddLine(p7, p4) // left upper

	cla := g.AddCurveLoop([]int{l0, l1, l2, l3})
	clb := g.AddCurveLoop([]int{l4, l5, l6, l7})
	sa := g.AddPlaneSurface([]int{cla})
	sb := g.AddPlaneSurface([]int{clb})

	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l0}), "bottom_lower")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l1, l3}), "bottom_periodic")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l2, l4}), "pair")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l5, l7}), "top_periodic")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l6}), "top_upper")
	g.SetPhysicalName(2, g.AddPhysicalGroup(2, []int{sa}), "lower")
	g.SetPhysicalName(2, g.AddPhysicalGroup(2, []int{sb}), "upper")

	if err := g.Synchronize(); err != nil {
		return err
	}
	translation := TranslationTransform(1, 0, 0)
	if err := g.SetPeriodic(1, []int{l1}, []int{l3}, translation); err != nil {
		return err
	}
	if err := g.SetPeriodic(1, []int{l5}, []int{l7}, translation); err != nil {
		return err
	}
	// bottom of the upper rectangle copies the top of the lower one
	if err := g.SetPeriodic(1, []int{l4}, []int{l2}, TranslationTransform(0, eps, 0)); err != nil {
		return err
	}
	_, err := g.Save(FormatGeoUnrolled)
	return err
}

// GeomC builds a single w by h rectangle with a left/right periodic
// constraint. Zero w and h fall back to DefaultWidth and DefaultHeight.
func (g *Geometry) GeomC(lc, w, h float64) error {
	if lc <= 0 {
		lc = DefaultLc
	}
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	p0 := g.AddPoint(0, 0, 0, lc/4)
	p1 := g.AddPoint(w, 0, 0, lc)
	p2 := g.AddPoint(w, h, 0, lc)
	p3 := g.AddPoint(0, h, 0, lc/4)

	l0 := g.AddLine(p0, p1) // bottom
	l1 := g.AddLine(p1, p2) // right
	l2 := g.AddLine(p2, p3) // top
	l3 := g.AddLine(p3, p0) // left

	cl := g.AddCurveLoop([]int{l0, l1, l2, l3})
	s := g.AddPlaneSurface([]int{cl})

	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l0}), "bottom_lower")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l1, l3}), "periodic_lower")
	g.SetPhysicalName(1, g.AddPhysicalGroup(1, []int{l2}), "top_lower")
	g.SetPhysicalName(2, g.AddPhysicalGroup(2, []int{s}), "lower")

	if err := g.Synchronize(); err != nil {
		return err
	}
	if err := g.SetPeriodic(1, []int{l1}, []int{l3}, TranslationTransform(w, 0, 0)); err != nil {
		return err
	}
	_, err := g.Save(FormatGeoUnrolled)
	return err
}
