package geometry

import (
	"fmt"
	"io"
)

// vtkCellType maps element types to legacy VTK cell type codes.
func vtkCellType(t ElementType) int {
	switch t {
	case ElementLine:
		return 3
	case ElementTriangle:
		return 5
	case ElementPoint:
		return 1
	default:
		return 0
	}
}

// writeVTK serializes the generated mesh as a legacy ASCII VTK unstructured
// grid, suitable for web viewers.
func (g *Geometry) writeVTK(w io.Writer) {
	m := g.mesh
	fmt.Fprint(w, "# vtk DataFile Version 3.0\n")
	fmt.Fprintf(w, "%s, written by cadio\n", g.Tag())
	fmt.Fprint(w, "ASCII\nDATASET UNSTRUCTURED_GRID\n")
	fmt.Fprintf(w, "POINTS %d double\n", len(m.Nodes))
	index := make(map[int]int, len(m.Nodes))
	for i, n := range m.Nodes {
		index[n.Tag] = i
		fmt.Fprintf(w, "%s %s %s\n", ftoa(n.X), ftoa(n.Y), ftoa(n.Z))
	}
	size := 0
	for _, e := range m.Elements {
		size += 1 + len(e.Nodes)
	}
	fmt.Fprintf(w, "CELLS %d %d\n", len(m.Elements), size)
	for _, e := range m.Elements {
		fmt.Fprintf(w, "%d", len(e.Nodes))
		for _, n := range e.Nodes {
			fmt.Fprintf(w, " %d", index[n])
		}
		fmt.Fprint(w, "\n")
	}
	fmt.Fprintf(w, "CELL_TYPES %d\n", len(m.Elements))
	for _, e := range m.Elements {
		fmt.Fprintf(w, "%d\n", vtkCellType(e.Type))
	}
}
