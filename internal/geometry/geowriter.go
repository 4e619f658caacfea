package geometry

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// physicalKeyword maps an entity dimension to its geo statement keyword.
func physicalKeyword(dim int) string {
	switch dim {
	case 0:
		return "Point"
	case 1:
		return "Curve"
	case 2:
		return "Surface"
	default:
		return "Volume"
	}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinInts(tags []int) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = strconv.Itoa(t)
	}
	return strings.Join(parts, ", ")
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = ftoa(v)
	}
	return strings.Join(parts, ", ")
}

// writeGeo serializes the model as unrolled geo statements, one entity per
// line in tag order, followed by physical groups and periodic constraints.
func (g *Geometry) writeGeo(w io.Writer) {
	fmt.Fprintf(w, "// %s\n", g.Tag())
	for _, p := range g.Points() {
		fmt.Fprintf(w, "Point(%d) = {%s, %s, %s, %s};\n", p.Tag, ftoa(p.X), ftoa(p.Y), ftoa(p.Z), ftoa(p.Lc))
	}
	for _, c := range g.Curves() {
		fmt.Fprintf(w, "Line(%d) = {%d, %d};\n", c.Tag, c.Start, c.End)
	}
	for _, l := range g.CurveLoops() {
		fmt.Fprintf(w, "Curve Loop(%d) = {%s};\n", l.Tag, joinInts(l.Curves))
	}
	for _, s := range g.Surfaces() {
		fmt.Fprintf(w, "Plane Surface(%d) = {%s};\n", s.Tag, joinInts(s.Loops))
	}
	for _, pg := range g.PhysicalGroups() {
		kw := physicalKeyword(pg.Dim)
		if pg.Name != "" {
			fmt.Fprintf(w, "Physical %s(%q, %d) = {%s};\n", kw, pg.Name, pg.Tag, joinInts(pg.Entities))
		} else {
			fmt.Fprintf(w, "Physical %s(%d) = {%s};\n", kw, pg.Tag, joinInts(pg.Entities))
		}
	}
	for _, p := range g.Periodics() {
		fmt.Fprintf(w, "Periodic %s {%s} = {%s} Affine {%s};\n",
			physicalKeyword(p.Dim), joinInts(p.Targets), joinInts(p.Sources), joinFloats(p.Transform[:]))
	}
}
