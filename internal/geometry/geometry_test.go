package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeometry(t *testing.T, tag string) *Geometry {
	t.Helper()
	g, err := NewGeometry(tag, WithOutputDir(t.TempDir()))
	require.NoError(t, err)
	return g
}

// TestKernelReferenceCounting creates two geometries and verifies the shared
// kernel stays open until the last one closes.
func TestKernelReferenceCounting(t *testing.T) {
	before := ActiveModels()

	g1, err := NewGeometry("", WithOutputDir(t.TempDir()))
	require.NoError(t, err)
	g2, err := NewGeometry("", WithOutputDir(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, before+2, ActiveModels())
	assert.Equal(t, DefaultTag, g1.Tag())

	require.NoError(t, g1.Close())
	assert.Equal(t, before+1, ActiveModels())

	// the second instance keeps working after the first closes
	g2.AddPoint(0, 0, 0, 0.1)
	require.NoError(t, g2.Synchronize())

	require.NoError(t, g2.Close())
	assert.Equal(t, before, ActiveModels())

	err = g2.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGeometryTagsAreSequential(t *testing.T) {
	g := newTestGeometry(t, "tags")
	defer g.Close()

	p1 := g.AddPoint(0, 0, 0, 0.1)
	p2 := g.AddPoint(1, 0, 0, 0.1)
	l1 := g.AddLine(p1, p2)

	assert.Equal(t, 1, p1)
	assert.Equal(t, 2, p2)
	assert.Equal(t, 1, l1)
	assert.Equal(t, 1, g.AddCurveLoop([]int{l1}))
	assert.Equal(t, 1, g.AddPlaneSurface([]int{1}))
	assert.Equal(t, 1, g.AddPhysicalGroup(1, []int{l1}))
	assert.Equal(t, 1, g.AddPhysicalGroup(2, []int{1}), "group tags count per dimension")
}

func TestSynchronizeRejectsDanglingReferences(t *testing.T) {
	tests := []struct {
		name    string
		build   func(g *Geometry)
		wantErr string
	}{
		{
			name: "curve with unknown point",
			build: func(g *Geometry) {
				g.AddLine(1, 2)
			},
			wantErr: "unknown point",
		},
		{
			name: "loop with unknown curve",
			build: func(g *Geometry) {
				g.AddCurveLoop([]int{7})
			},
			wantErr: "unknown curve",
		},
		{
			name: "surface with unknown loop",
			build: func(g *Geometry) {
				g.AddPlaneSurface([]int{3})
			},
			wantErr: "unknown curve loop",
		},
		{
			name: "group with unknown entity",
			build: func(g *Geometry) {
				tag := g.AddPhysicalGroup(1, []int{9})
				g.SetPhysicalName(1, tag, "ghost")
			},
			wantErr: "unknown entity",
		},
		{
			name: "periodic with unknown curve",
			build: func(g *Geometry) {
				p1 := g.AddPoint(0, 0, 0, 0.1)
				p2 := g.AddPoint(1, 0, 0, 0.1)
				l := g.AddLine(p1, p2)
				require.NoError(t, g.SetPeriodic(1, []int{l}, []int{l + 1}, TranslationTransform(1, 0, 0)))
			},
			wantErr: "periodic constraint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGeometry(t, "validate")
			defer g.Close()

			tt.build(g)

			err := g.Synchronize()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSetPeriodicValidatesArguments(t *testing.T) {
	g := newTestGeometry(t, "periodic")
	defer g.Close()

	err := g.SetPeriodic(1, []int{1}, []int{2}, []float64{1, 2, 3})
	assert.ErrorContains(t, err, "16 entries")

	err = g.SetPeriodic(1, []int{1, 2}, []int{3}, TranslationTransform(1, 0, 0))
	assert.ErrorContains(t, err, "differ in length")
}

func TestDimensionTracksHighestEntity(t *testing.T) {
	g := newTestGeometry(t, "dim")
	defer g.Close()

	assert.Equal(t, -1, g.Dimension())

	p1 := g.AddPoint(0, 0, 0, 0.1)
	assert.Equal(t, 0, g.Dimension())

	p2 := g.AddPoint(1, 0, 0, 0.1)
	l := g.AddLine(p1, p2)
	assert.Equal(t, 1, g.Dimension())

	cl := g.AddCurveLoop([]int{l})
	g.AddPlaneSurface([]int{cl})
	assert.Equal(t, 2, g.Dimension())

	g.Clear()
	assert.Equal(t, -1, g.Dimension())
}

func TestGroupByName(t *testing.T) {
	g := newTestGeometry(t, "groups")
	defer g.Close()

	require.NoError(t, g.GeomC(0, 0, 0))

	pg, ok := g.GroupByName(1, "periodic_lower")
	require.True(t, ok)
	assert.Equal(t, []int{2, 4}, pg.Entities)

	_, ok = g.GroupByName(1, "no_such_group")
	assert.False(t, ok)
}

func TestClearResetsEverything(t *testing.T) {
	g := newTestGeometry(t, "clear")
	defer g.Close()

	require.NoError(t, g.GeomC(0, 0, 0))
	require.NoError(t, g.GenerateMesh(2))
	require.NotNil(t, g.Mesh())

	g.Clear()

	assert.Empty(t, g.Points())
	assert.Empty(t, g.Curves())
	assert.Empty(t, g.PhysicalGroups())
	assert.Empty(t, g.Periodics())
	assert.Nil(t, g.Mesh())
	assert.Equal(t, 1, g.AddPoint(0, 0, 0, 0.1), "tags restart after clear")
}

func TestTranslationTransform(t *testing.T) {
	got := TranslationTransform(2, 3, 4)
	want := []float64{
		1, 0, 0, 2,
		0, 1, 0, 3,
		0, 0, 1, 4,
		0, 0, 0, 1,
	}
	assert.Equal(t, want, got)
}
