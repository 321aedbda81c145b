package recast

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPlanTileGrid100x100(t *testing.T) {
	b := Bounds{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{100, 10, 100}}
	g, err := PlanTileGrid(b, 0.6, 32)
	require.NoError(t, err)

	assert.Equal(t, 6, g.Width)
	assert.Equal(t, 6, g.Height)
	assert.Equal(t, 36, g.TileCount())
	assert.EqualValues(t, 6, g.TileBits)
	assert.Equal(t, 64, g.MaxTiles)
	assert.EqualValues(t, 16, g.PolyBits)
	assert.Equal(t, 65536, g.MaxPolysPerTile)
	assert.InDelta(t, 19.2, g.TileWorldSize(), 1e-4)
	assert.False(t, g.Overflow())
}

func TestPlanTileGridCoversBounds(t *testing.T) {
	cases := []struct {
		size     float32
		cellSize float32
		tileSize int
	}{
		{1, 0.3, 32},
		{10, 0.5, 16},
		{99.9, 0.25, 48},
		{512, 0.3, 64},
		{1000, 1, 1},
		{3, 1, 128},
	}
	for _, c := range cases {
		b := Bounds{Min: mgl32.Vec3{-c.size / 2, 0, -c.size / 2}, Max: mgl32.Vec3{c.size / 2, 1, c.size / 2}}
		g, err := PlanTileGrid(b, c.cellSize, c.tileSize)
		require.NoError(t, err)

		covered := float64(g.Width) * float64(c.tileSize) * float64(c.cellSize)
		assert.GreaterOrEqual(t, covered+1e-3, float64(c.size), "%+v", c)
		if g.Width > 1 {
			assert.Less(t, float64(g.Width-1)*float64(c.tileSize)*float64(c.cellSize), float64(c.size), "%+v", c)
		}

		tx, ty := g.TileCoordinate(mgl32.Vec3{b.Max[0] - 1e-3, 0, b.Max[2] - 1e-3})
		assert.True(t, g.Contains(tx, ty), "%+v: far corner maps to %d,%d", c, tx, ty)
		tx, ty = g.TileCoordinate(b.Min)
		assert.Equal(t, 0, tx)
		assert.Equal(t, 0, ty)
	}
}

func TestPlanTileGridBitBudget(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 50, 128, 1000, 20000} {
		b := Bounds{Max: mgl32.Vec3{float32(n), 1, 1}}
		g, err := PlanTileGrid(b, 1, 1)
		require.NoError(t, err)
		assert.EqualValues(t, IdBits, g.TileBits+g.PolyBits)
		assert.LessOrEqual(t, g.TileBits, uint32(MaxTileBits))
		assert.Equal(t, 1<<g.TileBits, g.MaxTiles)
		assert.Equal(t, 1<<g.PolyBits, g.MaxPolysPerTile)
		if g.TileBits < MaxTileBits {
			assert.GreaterOrEqual(t, g.MaxTiles, g.TileCount(), "n=%d", n)
		}
	}
}

func TestPlanTileGridOverflow(t *testing.T) {
	b := Bounds{Max: mgl32.Vec3{10000, 1, 10000}}
	g, err := PlanTileGrid(b, 0.5, 8)
	require.NoError(t, err)
	assert.EqualValues(t, MaxTileBits, g.TileBits)
	assert.EqualValues(t, 8, g.PolyBits)
	assert.True(t, g.Overflow())
}

func TestPlanTileGridRejectsBadInput(t *testing.T) {
	b := Bounds{Max: mgl32.Vec3{10, 1, 10}}
	_, err := PlanTileGrid(b, 0, 32)
	require.ErrorIs(t, err, config.ErrInvalid)
	_, err = PlanTileGrid(b, 0.3, 0)
	require.ErrorIs(t, err, config.ErrInvalid)
	_, err = PlanTileGrid(Bounds{Min: mgl32.Vec3{1, 0, 0}}, 0.3, 32)
	require.ErrorIs(t, err, config.ErrInvalid)
	_, err = PlanTileGrid(Bounds{Max: mgl32.Vec3{float32(math.NaN()), 0, 0}}, 0.3, 32)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestTileBoundsTileTheWorld(t *testing.T) {
	b := Bounds{Min: mgl32.Vec3{-5, -2, 3}, Max: mgl32.Vec3{20, 4, 9}}
	g, err := PlanTileGrid(b, 0.5, 10)
	require.NoError(t, err)
	tb := g.TileBounds(1, 0)
	assert.InDelta(t, 0, tb.Min[0], 1e-5)
	assert.InDelta(t, 5, tb.Max[0], 1e-5)
	assert.Equal(t, b.Min[1], tb.Min[1])
	assert.Equal(t, b.Max[1], tb.Max[1])
	assert.Equal(t, b.Min[2], tb.Min[2])
}

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

func testTileBounds() Bounds {
	return Bounds{Min: mgl32.Vec3{0, -1, 0}, Max: mgl32.Vec3{8, 1, 8}}
}

func TestDeriveTileConfig(t *testing.T) {
	s := config.DefaultBuildSettings()
	tile := Bounds{Min: mgl32.Vec3{3, -1, 7}, Max: mgl32.Vec3{12.6, 5, 16.6}}
	cfg, err := DeriveTileConfig(s, tile)
	require.NoError(t, err)

	assert.Equal(t, cfg.WalkableRadius+3, cfg.BorderSize)
	assert.Equal(t, s.TileSize+2*cfg.BorderSize, cfg.Width)
	assert.Equal(t, cfg.Width, cfg.Height)
	assert.Equal(t, 10, cfg.WalkableHeight)
	assert.Equal(t, 4, cfg.WalkableClimb)
	assert.Equal(t, 64, cfg.MinRegionArea)
	assert.Equal(t, 400, cfg.MergeRegionArea)

	pad := float32(cfg.BorderSize) * s.CellSize
	assert.InDelta(t, tile.Min[0]-pad, cfg.Bmin[0], 1e-4)
	assert.InDelta(t, tile.Min[2]-pad, cfg.Bmin[2], 1e-4)
	assert.InDelta(t, tile.Max[0]+pad, cfg.Bmax[0], 1e-4)
	assert.InDelta(t, tile.Max[2]+pad, cfg.Bmax[2], 1e-4)
	assert.Equal(t, tile.Min[1], cfg.Bmin[1])
	assert.Equal(t, tile.Max[1], cfg.Bmax[1])

	back := cfg.TileBounds()
	assert.InDelta(t, tile.Min[0], back.Min[0], 1e-4)
	assert.InDelta(t, tile.Max[2], back.Max[2], 1e-4)
}

func TestDeriveTileConfigRejectsZeroCells(t *testing.T) {
	s := config.DefaultBuildSettings()
	s.AgentMaxClimb = 0.1
	_, err := DeriveTileConfig(s, testTileBounds())
	require.ErrorIs(t, err, config.ErrInvalid)

	s = config.DefaultBuildSettings()
	s.CellSize = 0
	_, err = DeriveTileConfig(s, testTileBounds())
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestDeriveTileConfigDetailSampleDist(t *testing.T) {
	s := config.DefaultBuildSettings()
	s.DetailSampleDist = 2
	cfg, err := DeriveTileConfig(s, testTileBounds())
	require.NoError(t, err)
	assert.Zero(t, cfg.DetailSampleDist)
}

func TestDividePoly(t *testing.T) {
	square := []float32{0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 0, 1}
	out1 := make([]float32, 7*3)
	out2 := make([]float32, 7*3)
	n1, n2 := dividePoly(square, 4, out1, out2, 0.5, RC_AXIS_X)
	require.Equal(t, 4, n1)
	require.Equal(t, 4, n2)
	for i := 0; i < n1; i++ {
		assert.LessOrEqual(t, out1[i*3], float32(0.5))
	}
	for i := 0; i < n2; i++ {
		assert.GreaterOrEqual(t, out2[i*3], float32(0.5))
	}
}

func TestPolyAreas(t *testing.T) {
	a, err := ParsePolyArea("", SAMPLE_POLYAREA_JUMP)
	require.NoError(t, err)
	assert.EqualValues(t, SAMPLE_POLYAREA_JUMP, a)
	a, err = ParsePolyArea("Water", 0)
	require.NoError(t, err)
	assert.EqualValues(t, SAMPLE_POLYAREA_WATER, a)
	_, err = ParsePolyArea("lava", 0)
	require.Error(t, err)

	assert.EqualValues(t, SAMPLE_POLYFLAGS_WALK, PolyFlagsForArea(SAMPLE_POLYAREA_GRASS))
	assert.EqualValues(t, SAMPLE_POLYFLAGS_SWIM, PolyFlagsForArea(SAMPLE_POLYAREA_WATER))
	assert.EqualValues(t, SAMPLE_POLYFLAGS_WALK|SAMPLE_POLYFLAGS_DOOR, PolyFlagsForArea(SAMPLE_POLYAREA_DOOR))
	assert.EqualValues(t, SAMPLE_POLYFLAGS_JUMP, PolyFlagsForArea(SAMPLE_POLYAREA_JUMP))
}

// plane is a 100x100 flat floor at y=0 centred on the origin.
func plane() *TileInput {
	return &TileInput{
		Verts: []float32{-50, 0, -50, -50, 0, 50, 50, 0, 50, 50, 0, -50},
		Tris:  []int32{0, 1, 2, 0, 2, 3},
	}
}

func buildPlaneTile(t *testing.T, s config.BuildSettings, in *TileInput) (*PolyMesh, *PolyMeshDetail, error) {
	t.Helper()
	cfg, err := DeriveTileConfig(s, testTileBounds())
	require.NoError(t, err)
	return NewHeightfieldBuilder(zaptest.NewLogger(t)).Build(cfg, in)
}

func TestBuildFlatTileWatershed(t *testing.T) {
	pmesh, dmesh, err := buildPlaneTile(t, testSettings(), plane())
	require.NoError(t, err)

	require.Equal(t, 1, pmesh.Npolys)
	require.Equal(t, 4, pmesh.Nverts)
	nvp := pmesh.Nvp
	p := pmesh.Polys[:nvp*2]
	// Every edge of the single quad lies on the tile border.
	assert.Equal(t, []uint16{0x8000, 0x8001, 0x8002, 0x8003}, p[nvp:nvp+4])
	assert.EqualValues(t, RC_WALKABLE_AREA, pmesh.Areas[0])
	assert.Equal(t, testTileBounds().Min, pmesh.Bmin)

	require.Equal(t, 2, dmesh.Ntris)
	assert.Equal(t, []uint32{0, 4, 0, 2}, dmesh.Meshes)
	assert.Equal(t, []uint8{0, 1, 2, 5, 0, 2, 3, 20}, dmesh.Tris)
}

func TestBuildFlatTileMonotone(t *testing.T) {
	s := testSettings()
	s.Partition = config.PartitionMonotone
	pmesh, _, err := buildPlaneTile(t, s, plane())
	require.NoError(t, err)

	require.Equal(t, 8, pmesh.Npolys)
	require.Equal(t, 18, pmesh.Nverts)
	nvp := pmesh.Nvp
	// Row k links to row k+1 through its z+ edge.
	first := pmesh.Polys[:nvp*2]
	assert.EqualValues(t, 1, first[nvp+1])
	assert.EqualValues(t, 0x8003, first[nvp+3])
}

func TestBuildFlatTileTriangles(t *testing.T) {
	s := testSettings()
	s.VertsPerPoly = 3
	pmesh, dmesh, err := buildPlaneTile(t, s, plane())
	require.NoError(t, err)
	require.Equal(t, 2, pmesh.Npolys)
	require.Equal(t, 3, pmesh.Nvp)
	assert.Equal(t, []uint8{0, 1, 2, 21, 0, 1, 2, 21}, dmesh.Tris)
	// The diagonal is shared.
	assert.EqualValues(t, 1, pmesh.Polys[3+2])
	assert.EqualValues(t, 0, pmesh.Polys[6+3+0])
}

func TestBuildMarksConvexVolumes(t *testing.T) {
	in := plane()
	in.Volumes = []ConvexVolume{{
		Verts: []float32{-10, 0, -10, -10, 0, 20, 20, 0, 20, 20, 0, -10},
		HMin:  -1,
		HMax:  2,
		Area:  SAMPLE_POLYAREA_WATER,
	}}
	pmesh, _, err := buildPlaneTile(t, testSettings(), in)
	require.NoError(t, err)
	require.Equal(t, 1, pmesh.Npolys)
	assert.EqualValues(t, SAMPLE_POLYAREA_WATER, pmesh.Areas[0])
}

func TestBuildEmptyRegion(t *testing.T) {
	wall := &TileInput{
		Verts: []float32{0, 0, 4, 0, 5, 4, 8, 0, 4},
		Tris:  []int32{0, 1, 2},
	}
	_, _, err := buildPlaneTile(t, testSettings(), wall)
	require.ErrorIs(t, err, ErrEmptyRegion)

	_, _, err = buildPlaneTile(t, testSettings(), &TileInput{})
	require.ErrorIs(t, err, ErrEmptyRegion)
}

func TestBuildRejectsBadIndices(t *testing.T) {
	in := plane()
	in.Tris = []int32{0, 1, 9}
	_, _, err := buildPlaneTile(t, testSettings(), in)
	require.ErrorIs(t, err, ErrStepFailure)
}

func TestBuildIsDeterministic(t *testing.T) {
	s := testSettings()
	in := &TileInput{
		Verts: []float32{
			-50, 0, -50, -50, 0, 50, 50, 0, 50, 50, 0, -50,
			2, 0.5, 2, 2, 0.5, 5, 5, 0.5, 5, 5, 0.5, 2,
		},
		Tris: []int32{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7},
	}
	p1, d1, err := buildPlaneTile(t, s, in)
	require.NoError(t, err)
	p2, d2, err := buildPlaneTile(t, s, in)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, d1, d2)
}
