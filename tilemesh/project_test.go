package tilemesh

import (
	"bytes"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/detour"
	"github.com/gorustyt/tilenav/recast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestProject(t *testing.T, g GeometryProvider, opts ...Option) *Project {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p := NewProject(opts...)
	require.NoError(t, p.SetSettings(testSettings()))
	require.NoError(t, p.SetGeometry(g))
	return p
}

func TestProjectPlansGrid(t *testing.T) {
	p := newTestProject(t, fullPlane())
	grid := p.Grid()
	require.NotNil(t, grid)
	assert.Equal(t, 4, grid.TileCount())
	assert.EqualValues(t, 2, grid.TileBits)
	assert.EqualValues(t, 20, grid.PolyBits)

	params := p.NavMesh().Params()
	assert.Equal(t, [3]float32{0, -1, 0}, params.Orig)
	assert.Equal(t, float32(8), params.TileWidth)
	assert.EqualValues(t, 4, params.MaxTiles)
	assert.EqualValues(t, 1<<20, params.MaxPolys)

	built, total, elapsed := p.Progress()
	assert.Equal(t, 0, built)
	assert.Equal(t, 4, total)
	assert.Zero(t, elapsed)
	assert.Nil(t, p.Report())
}

func TestProjectBuildAll(t *testing.T) {
	p := newTestProject(t, fullPlane(), WithWorkers(3))
	require.NoError(t, p.BuildAll(false))
	assert.False(t, p.IsBuilding())

	built, total, _ := p.Progress()
	assert.Equal(t, 4, built)
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, p.NavMesh().TileCount())

	report := p.Report()
	assert.Equal(t, 4, report.TilesTotal)
	assert.Equal(t, 4, report.TilesBuilt)
	assert.Zero(t, report.TilesEmpty)
	assert.Zero(t, report.TilesFailed)
	assert.False(t, report.Cancelled)

	for _, e := range p.NavMesh().Tiles() {
		h, err := detour.ReadMeshHeader(e.Data)
		require.NoError(t, err)
		assert.Equal(t, e.Coord, h.Coord())
	}

	// A second build replaces every tile without growing the store.
	require.NoError(t, p.BuildAll(false))
	assert.Equal(t, 4, p.NavMesh().TileCount())
}

func TestProjectBuildAllAsync(t *testing.T) {
	p := newTestProject(t, fullPlane())
	require.NoError(t, p.BuildAll(true))
	p.CancelBuildAll(true)
	assert.False(t, p.IsBuilding())
	built, total, _ := p.Progress()
	assert.LessOrEqual(t, built, total)
}

func TestProjectEmptyIsNotFailed(t *testing.T) {
	// The plane only reaches into the border of the upper tile row.
	p := newTestProject(t, planeGeom(-50, -50, 50, 6))
	require.NoError(t, p.BuildAll(false))

	report := p.Report()
	assert.Equal(t, 2, report.TilesBuilt)
	assert.Equal(t, 2, report.TilesEmpty)
	assert.Zero(t, report.TilesFailed)
	assert.Empty(t, report.Failures)

	mesh := p.NavMesh()
	assert.Equal(t, 2, mesh.TileCount())
	_, ok := mesh.Get(detour.TileCoord{X: 0, Y: 0})
	assert.True(t, ok)
	_, ok = mesh.Get(detour.TileCoord{X: 0, Y: 1})
	assert.False(t, ok)
}

func TestProjectRequiresGeometry(t *testing.T) {
	p := NewProject(WithLogger(zaptest.NewLogger(t)))
	assert.ErrorIs(t, p.BuildAll(false), ErrGeometryUnavailable)
	assert.ErrorIs(t, p.BuildTile(mgl32.Vec3{1, 0, 1}), ErrGeometryUnavailable)
	assert.ErrorIs(t, p.RemoveTile(mgl32.Vec3{1, 0, 1}), ErrGeometryUnavailable)
	assert.ErrorIs(t, p.SaveMesh(t.TempDir()+"/x.bin"), ErrGeometryUnavailable)
	assert.False(t, p.IsBuilding())
	p.RemoveAll()
	p.CancelBuildAll(true)
}

func TestProjectRejectsBadSettings(t *testing.T) {
	p := NewProject()
	s := testSettings()
	s.CellSize = 0
	assert.ErrorIs(t, p.SetSettings(s), ErrConfig)
}

func TestBuildTileIsIdempotent(t *testing.T) {
	p := newTestProject(t, fullPlane())
	pos := mgl32.Vec3{12, 0, 3}
	coord := detour.TileCoord{X: 1, Y: 0}

	require.NoError(t, p.BuildTile(pos))
	first, ok := p.NavMesh().Get(coord)
	require.True(t, ok)
	first = bytes.Clone(first)
	ref := p.NavMesh().GetTileRefAt(coord)

	require.NoError(t, p.BuildTile(pos))
	second, ok := p.NavMesh().Get(coord)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.NavMesh().TileCount())

	// The slot was recycled, so the old reference is stale.
	_, ok = p.NavMesh().GetTileByRef(ref)
	assert.False(t, ok)
}

func TestBuildTileOutsideGrid(t *testing.T) {
	p := newTestProject(t, fullPlane())
	assert.ErrorIs(t, p.BuildTile(mgl32.Vec3{-1, 0, 3}), detour.ErrInvalidParam)
	assert.ErrorIs(t, p.RemoveTile(mgl32.Vec3{3, 0, 16.5}), detour.ErrInvalidParam)
}

// switchableBuilder fails every build while failing is set.
type switchableBuilder struct {
	mu      sync.Mutex
	failing bool
	hb      *recast.HeightfieldBuilder
}

func newSwitchableBuilder() *switchableBuilder {
	return &switchableBuilder{hb: recast.NewHeightfieldBuilder(nil)}
}

func (b *switchableBuilder) setFailing(v bool) {
	b.mu.Lock()
	b.failing = v
	b.mu.Unlock()
}

func (b *switchableBuilder) Build(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
	b.mu.Lock()
	failing := b.failing
	b.mu.Unlock()
	if failing {
		return &recast.PolyMesh{Nverts: 70000, Npolys: 1, Nvp: 6}, nil, nil
	}
	return b.hb.Build(cfg, in)
}

func TestBuildTileFailureKeepsPreviousTile(t *testing.T) {
	mb := newSwitchableBuilder()
	p := newTestProject(t, fullPlane(), WithMeshBuilder(mb))
	pos := mgl32.Vec3{3, 0, 3}
	coord := detour.TileCoord{X: 0, Y: 0}
	require.NoError(t, p.BuildTile(pos))
	before, ok := p.NavMesh().Get(coord)
	require.True(t, ok)
	before = bytes.Clone(before)

	mb.setFailing(true)
	assert.ErrorIs(t, p.BuildTile(pos), ErrTooManyVertices)
	after, ok := p.NavMesh().Get(coord)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, p.NavMesh().TileCount())
}

func TestBuildAllFailureKeepsPreviousTiles(t *testing.T) {
	mb := newSwitchableBuilder()
	p := newTestProject(t, fullPlane(), WithMeshBuilder(mb))
	require.NoError(t, p.BuildAll(false))
	before := p.NavMesh().Tiles()
	require.Len(t, before, 4)

	mb.setFailing(true)
	require.NoError(t, p.BuildAll(false))
	report := p.Report()
	assert.Equal(t, 4, report.TilesFailed)
	assert.Zero(t, report.TilesBuilt)
	assert.Equal(t, before, p.NavMesh().Tiles())
}

func TestSetSettingsRejectsUnusableConfig(t *testing.T) {
	p := newTestProject(t, fullPlane())
	require.NoError(t, p.BuildAll(false))
	first := p.Report()

	s := testSettings()
	s.AgentMaxClimb = 0.1 // below one cell height
	assert.ErrorIs(t, p.SetSettings(s), ErrConfig)

	// Nothing was reset or started.
	assert.Equal(t, 4, p.NavMesh().TileCount())
	assert.Equal(t, first, p.Report())

	require.NoError(t, p.BuildAll(false))
	assert.Zero(t, p.Report().TilesFailed)

	q := NewProject(WithLogger(zaptest.NewLogger(t)))
	assert.ErrorIs(t, q.SetSettings(s), ErrConfig)
}

func TestRemoveTileAndRemoveAll(t *testing.T) {
	p := newTestProject(t, fullPlane())
	require.NoError(t, p.BuildAll(false))

	require.NoError(t, p.RemoveTile(mgl32.Vec3{3, 0, 12}))
	assert.Equal(t, 3, p.NavMesh().TileCount())
	_, ok := p.NavMesh().Get(detour.TileCoord{X: 0, Y: 1})
	assert.False(t, ok)

	// Removing an absent tile is fine.
	require.NoError(t, p.RemoveTile(mgl32.Vec3{3, 0, 12}))

	p.RemoveAll()
	assert.Zero(t, p.NavMesh().TileCount())
	assert.Empty(t, p.NavMesh().Tiles())
}

// gatedBuilder blocks its first build until released.
type gatedBuilder struct {
	real    *recast.HeightfieldBuilder
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedBuilder() *gatedBuilder {
	return &gatedBuilder{
		real:    recast.NewHeightfieldBuilder(nil),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedBuilder) Build(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.real.Build(cfg, in)
}

func TestCancelBuildAll(t *testing.T) {
	gate := newGatedBuilder()
	p := newTestProject(t, fullPlane(), WithWorkers(1), WithMeshBuilder(gate))
	require.NoError(t, p.BuildAll(true))

	<-gate.started
	assert.True(t, p.IsBuilding())
	assert.ErrorIs(t, p.SaveMesh(t.TempDir()+"/busy.bin"), ErrBuildInProgress)

	p.CancelBuildAll(false)
	close(gate.release)
	p.CancelBuildAll(true)
	assert.False(t, p.IsBuilding())

	// The tile already in flight is applied, nothing else starts.
	built, total, elapsed := p.Progress()
	assert.Equal(t, 1, built)
	assert.Equal(t, 4, total)
	assert.Positive(t, elapsed)
	assert.Equal(t, 1, p.NavMesh().TileCount())

	report := p.Report()
	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.TilesBuilt)

	// No further mutations after the join.
	assert.Equal(t, 1, p.NavMesh().TileCount())
}

func TestBuildTileJoinsRunningBuild(t *testing.T) {
	gate := newGatedBuilder()
	p := newTestProject(t, fullPlane(), WithWorkers(1), WithMeshBuilder(gate))
	require.NoError(t, p.BuildAll(true))
	<-gate.started

	done := make(chan error)
	go func() {
		done <- p.BuildTile(mgl32.Vec3{12, 0, 12})
	}()
	close(gate.release)
	require.NoError(t, <-done)
	assert.False(t, p.IsBuilding())
	_, ok := p.NavMesh().Get(detour.TileCoord{X: 1, Y: 1})
	assert.True(t, ok)
}

func TestBuildAllRecoversPanics(t *testing.T) {
	mb := meshBuilderFunc(func(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error) {
		panic("corrupt heightfield")
	})
	p := newTestProject(t, fullPlane(), WithMeshBuilder(mb))
	require.NoError(t, p.BuildAll(false))

	report := p.Report()
	assert.Equal(t, 4, report.TilesFailed)
	require.Len(t, report.Failures, 4)
	assert.Contains(t, report.Failures[0].Reason, "corrupt heightfield")
	assert.Zero(t, p.NavMesh().TileCount())

	built, total, _ := p.Progress()
	assert.Equal(t, 4, built)
	assert.Equal(t, 4, total)
}

func TestSchedulerWithNoTiles(t *testing.T) {
	store, err := detour.NewNavMesh(&detour.NavMeshParams{TileWidth: 1, TileHeight: 1, MaxTiles: 1, MaxPolys: 1 << 22})
	require.NoError(t, err)
	s := &Scheduler{Builder: &TileBuilder{}, Store: store, Log: zaptest.NewLogger(t)}
	sess := s.Start(nil)
	sess.Wait()
	built, total, _ := sess.Progress()
	assert.Zero(t, built)
	assert.Zero(t, total)
	assert.False(t, sess.Running())
}
