package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onlinefem/onlinefem/internal/geometry"
)

// physicalSummary is one named entity group in a model summary.
type physicalSummary struct {
	Dim      int    `json:"dim"`
	Tag      int    `json:"tag"`
	Name     string `json:"name"`
	Entities int    `json:"entities"`
}

// modelSummary is what generate, info, and mesh print about a model.
type modelSummary struct {
	Tag            string            `json:"tag"`
	Points         int               `json:"points"`
	Curves         int               `json:"curves"`
	Surfaces       int               `json:"surfaces"`
	Periodics      int               `json:"periodics"`
	PhysicalGroups []physicalSummary `json:"physicalGroups"`
	MeshNodes      int               `json:"meshNodes,omitempty"`
	MeshElements   int               `json:"meshElements,omitempty"`
	Path           string            `json:"path,omitempty"`
}

func summarize(g *geometry.Geometry, path string) modelSummary {
	s := modelSummary{
		Tag:       g.Tag(),
		Points:    len(g.Points()),
		Curves:    len(g.Curves()),
		Surfaces:  len(g.Surfaces()),
		Periodics: len(g.Periodics()),
		Path:      path,
	}
	for _, pg := range g.PhysicalGroups() {
		s.PhysicalGroups = append(s.PhysicalGroups, physicalSummary{
			Dim:      pg.Dim,
			Tag:      pg.Tag,
			Name:     pg.Name,
			Entities: len(pg.Entities),
		})
	}
	if m := g.Mesh(); m != nil {
		s.MeshNodes = m.NodeCount()
		s.MeshElements = m.ElementCount()
	}
	return s
}

// printSummary renders the summary as text or JSON per the --json flag.
func printSummary(cmd *cobra.Command, s modelSummary) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return WrapCLIError(ExitGeneralError, "encode summary", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "model %s: %d points, %d curves, %d surfaces, %d periodic constraints\n",
		s.Tag, s.Points, s.Curves, s.Surfaces, s.Periodics)
	for _, pg := range s.PhysicalGroups {
		fmt.Fprintf(out, "  physical dim=%d tag=%d name=%q entities=%d\n", pg.Dim, pg.Tag, pg.Name, pg.Entities)
	}
	if s.MeshNodes > 0 {
		fmt.Fprintf(out, "  mesh: %d nodes, %d elements\n", s.MeshNodes, s.MeshElements)
	}
	if s.Path != "" {
		fmt.Fprintf(out, "  written to %s\n", s.Path)
	}
	return nil
}
