package tilemesh

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/detour"
	"github.com/gorustyt/tilenav/geom"
	"github.com/gorustyt/tilenav/recast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testSettings() config.BuildSettings {
	s := config.DefaultBuildSettings()
	s.CellSize = 1
	s.CellHeight = 0.5
	s.AgentHeight = 2
	s.AgentRadius = 1
	s.AgentMaxClimb = 0.9
	s.TileSize = 8
	s.EdgeMaxLen = 12
	s.RegionMinSize = 2
	return s
}

// planeGeom is a flat square at y=0 spanning [x0,x1]x[z0,z1], meshed over
// the 2x2 tile grid (0,-1,0)-(16,1,16).
func planeGeom(x0, z0, x1, z1 float32) *geom.InputGeom {
	g := geom.NewInputGeom(&geom.ObjMesh{
		Verts: []float32{x0, 0, z0, x0, 0, z1, x1, 0, z1, x1, 0, z0},
		Tris:  []int32{0, 1, 2, 0, 2, 3},
	})
	g.SetNavMeshBounds(recast.Bounds{Min: mgl32.Vec3{0, -1, 0}, Max: mgl32.Vec3{16, 1, 16}})
	return g
}

func fullPlane() *geom.InputGeom {
	return planeGeom(-50, -50, 50, 50)
}

func newTileBuilder(t *testing.T, g GeometryProvider, mb MeshBuilder) *TileBuilder {
	t.Helper()
	s := testSettings()
	grid, err := recast.PlanTileGrid(g.Bounds(), s.CellSize, s.TileSize)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	if mb == nil {
		mb = recast.NewHeightfieldBuilder(log)
	}
	return &TileBuilder{Geom: g, Grid: grid, Settings: s, Mesh: mb, Log: log}
}

type meshBuilderFunc func(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error)

func (f meshBuilderFunc) Build(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
	return f(cfg, in)
}

func TestTileBuilderBuilt(t *testing.T) {
	b := newTileBuilder(t, fullPlane(), nil)
	assert.Equal(t, 2, b.Grid.Width)
	assert.Equal(t, 2, b.Grid.Height)

	res := b.Build(1, 0)
	require.Equal(t, TileBuilt, res.Status, "%v", res.Err)
	require.NoError(t, res.Err)
	assert.Equal(t, detour.TileCoord{X: 1, Y: 0}, res.Coord)
	assert.Equal(t, 2, res.TriCount)

	data, err := detour.NavMeshDataFromBin(res.Buffer.Bytes())
	require.NoError(t, err)
	assert.Equal(t, detour.TileCoord{X: 1, Y: 0}, data.Header.Coord())
	assert.EqualValues(t, 1, data.Header.PolyCount)
	assert.Equal(t, float32(2), data.Header.WalkableHeight)
	assert.Equal(t, float32(1), data.Header.WalkableRadius)
	assert.Equal(t, float32(0.9), data.Header.WalkableClimb)
	assert.Equal(t, [3]float32{8, -1, 0}, data.Header.Bmin)
	assert.Equal(t, [3]float32{16, 1, 8}, data.Header.Bmax)

	p := data.NavPolys[0]
	assert.EqualValues(t, recast.SAMPLE_POLYAREA_GROUND, p.GetArea())
	assert.EqualValues(t, recast.SAMPLE_POLYFLAGS_WALK, p.Flags)
	assert.EqualValues(t, 4, p.VertCount)
}

func TestTileBuilderOffMeshConnections(t *testing.T) {
	g := fullPlane()
	require.NoError(t, g.AddOffMeshConnection([3]float32{2, 0, 2}, [3]float32{5, 0, 5}, 0.5, true, recast.SAMPLE_POLYAREA_JUMP))
	b := newTileBuilder(t, g, nil)

	res := b.Build(0, 0)
	require.Equal(t, TileBuilt, res.Status, "%v", res.Err)
	data, err := detour.NavMeshDataFromBin(res.Buffer.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 1, data.Header.OffMeshConCount)
	assert.EqualValues(t, 2, data.Header.PolyCount)
	assert.EqualValues(t, 1000, data.OffMeshCons[0].UserId)
	assert.EqualValues(t, recast.SAMPLE_POLYFLAGS_JUMP, data.NavPolys[1].Flags)

	// The connection starts in tile (0,0) only.
	res = b.Build(1, 1)
	require.Equal(t, TileBuilt, res.Status, "%v", res.Err)
	data, err = detour.NavMeshDataFromBin(res.Buffer.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 0, data.Header.OffMeshConCount)
}

func TestTileBuilderEmpty(t *testing.T) {
	// No triangles under the tile at all.
	none := newTileBuilder(t, fullPlane(), nil)
	none.Geom = emptyGeom{fullPlane()}
	res := none.Build(0, 0)
	assert.Equal(t, TileEmpty, res.Status)
	assert.NoError(t, res.Err)
	assert.Nil(t, res.Buffer)

	// Triangles exist but nothing is walkable.
	wall := geom.NewInputGeom(&geom.ObjMesh{
		Verts: []float32{0, -1, 4, 0, 1, 4, 16, 1, 4, 16, -1, 4},
		Tris:  []int32{0, 1, 2, 0, 2, 3},
	})
	wall.SetNavMeshBounds(recast.Bounds{Min: mgl32.Vec3{0, -1, 0}, Max: mgl32.Vec3{16, 1, 16}})
	res = newTileBuilder(t, wall, nil).Build(0, 0)
	assert.Equal(t, TileEmpty, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.TriCount)
}

type emptyGeom struct {
	*geom.InputGeom
}

func (emptyGeom) QueryOverlapping(bmin, bmax [2]float32) []int32 { return nil }

func TestTileBuilderTooManyVertices(t *testing.T) {
	mb := meshBuilderFunc(func(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
		return &recast.PolyMesh{Nverts: recast.RC_MAX_VERTS, Npolys: 1, Nvp: 6}, &recast.PolyMeshDetail{}, nil
	})
	res := newTileBuilder(t, fullPlane(), mb).Build(0, 0)
	assert.Equal(t, TileFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrTooManyVertices)
	assert.Nil(t, res.Buffer)
}

func TestTileBuilderStepFailure(t *testing.T) {
	boom := errors.New("boom")
	mb := meshBuilderFunc(func(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
		return nil, nil, boom
	})
	res := newTileBuilder(t, fullPlane(), mb).Build(0, 0)
	assert.Equal(t, TileFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrStepFailure)
	assert.ErrorIs(t, res.Err, boom)
}

func TestTileBuilderConfigError(t *testing.T) {
	b := newTileBuilder(t, fullPlane(), nil)
	b.Settings.AgentMaxClimb = 0.1 // below one cell height
	res := b.Build(0, 0)
	assert.Equal(t, TileFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrConfig)
}

func TestTileBuilderWithoutGeometry(t *testing.T) {
	res := (&TileBuilder{}).Build(0, 0)
	assert.Equal(t, TileFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrGeometryUnavailable)
}

func TestTileStatusString(t *testing.T) {
	assert.Equal(t, "built", TileBuilt.String())
	assert.Equal(t, "empty", TileEmpty.String())
	assert.Equal(t, "failed", TileFailed.String())
	assert.Equal(t, "unknown", TileStatus(9).String())
}
