package geometry

import (
	"fmt"
	"io"
)

// writeMSH serializes the generated mesh in MSH 2.2 ASCII form. Element
// lines carry two tags, the physical group and the model entity, which is
// what solver imports expect.
func (g *Geometry) writeMSH(w io.Writer) {
	m := g.mesh
	fmt.Fprint(w, "$MeshFormat\n2.2 0 8\n$EndMeshFormat\n")
	var named []PhysicalGroup
	for _, pg := range g.PhysicalGroups() {
		if pg.Name != "" {
			named = append(named, pg)
		}
	}
	if len(named) > 0 {
		fmt.Fprintf(w, "$PhysicalNames\n%d\n", len(named))
		for _, pg := range named {
			fmt.Fprintf(w, "%d %d %q\n", pg.Dim, pg.Tag, pg.Name)
		}
		fmt.Fprint(w, "$EndPhysicalNames\n")
	}
	fmt.Fprintf(w, "$Nodes\n%d\n", len(m.Nodes))
	for _, n := range m.Nodes {
		fmt.Fprintf(w, "%d %s %s %s\n", n.Tag, ftoa(n.X), ftoa(n.Y), ftoa(n.Z))
	}
	fmt.Fprint(w, "$EndNodes\n")
	fmt.Fprintf(w, "$Elements\n%d\n", len(m.Elements))
	for _, e := range m.Elements {
		fmt.Fprintf(w, "%d %d 2 %d %d", e.Tag, int(e.Type), e.Physical, e.Entity)
		for _, n := range e.Nodes {
			fmt.Fprintf(w, " %d", n)
		}
		fmt.Fprint(w, "\n")
	}
	fmt.Fprint(w, "$EndElements\n")
}
