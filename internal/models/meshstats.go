package models

// MeshStats summarizes a structured rectangle mesh built by the solver.
type MeshStats struct {
	NX           int     `json:"nx"`
	NY           int     `json:"ny"`
	Nodes        int     `json:"nodes"`
	Triangles    int     `json:"triangles"`
	BuildSeconds float64 `json:"buildSeconds"`
}
