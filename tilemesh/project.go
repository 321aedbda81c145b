package tilemesh

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common/message"
	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/detour"
	"github.com/gorustyt/tilenav/recast"
	"go.uber.org/zap"
)

type Option func(*Project)

func WithLogger(log *zap.Logger) Option {
	return func(p *Project) {
		if log != nil {
			p.log = log
		}
	}
}

// WithWorkers sets the bulk build pool size; zero or less uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Project) {
		p.workers = n
	}
}

func WithMeshBuilder(b MeshBuilder) Option {
	return func(p *Project) {
		if b != nil {
			p.meshBuilder = b
		}
	}
}

// Project owns the geometry, the build settings, the tile grid and the
// tile store, and runs at most one bulk build at a time. Single tile edits
// and loads first cancel and join the running build.
type Project struct {
	mu sync.Mutex

	log         *zap.Logger
	workers     int
	meshBuilder MeshBuilder

	geom     GeometryProvider
	settings config.BuildSettings
	grid     *recast.TileGrid
	navMesh  *detour.NavMesh
	session  *BuildSession
}

func NewProject(opts ...Option) *Project {
	p := &Project{
		log:      zap.NewNop(),
		settings: config.DefaultBuildSettings(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.meshBuilder == nil {
		p.meshBuilder = recast.NewHeightfieldBuilder(p.log.Named("recast"))
	}
	return p
}

// SetGeometry replaces the input geometry and starts an empty store sized
// for it.
func (p *Project) SetGeometry(g GeometryProvider) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinLocked()
	p.geom = g
	return p.resetLocked()
}

// SetSettings validates s and, when geometry is loaded, replans the grid
// and starts an empty store. Settings that do not convert to a usable
// tile config are rejected and the previous settings are kept.
func (p *Project) SetSettings(s config.BuildSettings) error {
	if _, err := recast.DeriveTileConfig(s, recast.Bounds{}); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinLocked()
	p.settings = s
	return p.resetLocked()
}

func (p *Project) resetLocked() error {
	p.grid = nil
	p.navMesh = nil
	if p.geom == nil {
		return nil
	}
	grid, err := recast.PlanTileGrid(p.geom.Bounds(), p.settings.CellSize, p.settings.TileSize)
	if err != nil {
		return err
	}
	if grid.Overflow() {
		p.log.Warn("tile grid exceeds the tile reference budget",
			zap.Int("tiles", grid.TileCount()),
			zap.Int("maxTiles", grid.MaxTiles))
	}
	params := &detour.NavMeshParams{
		Orig:       grid.Bounds.Min,
		TileWidth:  grid.TileWorldSize(),
		TileHeight: grid.TileWorldSize(),
		MaxTiles:   int32(grid.MaxTiles),
		MaxPolys:   int32(grid.MaxPolysPerTile),
	}
	mesh, err := detour.NewNavMesh(params)
	if err != nil {
		return err
	}
	p.grid = grid
	p.navMesh = mesh
	p.log.Info("tile grid planned",
		zap.Int("width", grid.Width),
		zap.Int("height", grid.Height),
		zap.Uint32("tileBits", grid.TileBits),
		zap.Uint32("polyBits", grid.PolyBits))
	return nil
}

// joinLocked cancels the running bulk build and waits for it to drain.
// The applier never takes p.mu, so waiting with the lock held is safe.
func (p *Project) joinLocked() {
	if p.session == nil {
		return
	}
	p.session.Cancel()
	p.session.Wait()
}

func (p *Project) tileBuilderLocked() *TileBuilder {
	return &TileBuilder{
		Geom:     p.geom,
		Grid:     p.grid,
		Settings: p.settings,
		Mesh:     p.meshBuilder,
		Log:      p.log.Named("tile"),
	}
}

func (p *Project) buildableLocked() error {
	if p.geom == nil || p.navMesh == nil {
		return ErrGeometryUnavailable
	}
	if p.grid == nil {
		return fmt.Errorf("%w: the loaded tile set was not planned from this geometry", ErrGeometryUnavailable)
	}
	return nil
}

// BuildAll builds every tile of the grid. A running build is cancelled and
// joined first. With async false the call returns once the build drained.
func (p *Project) BuildAll(async bool) error {
	p.mu.Lock()
	if err := p.buildableLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.joinLocked()
	if _, err := recast.DeriveTileConfig(p.settings, p.grid.TileBounds(0, 0)); err != nil {
		p.mu.Unlock()
		return err
	}

	coords := make([]detour.TileCoord, 0, p.grid.TileCount())
	for y := 0; y < p.grid.Height; y++ {
		for x := 0; x < p.grid.Width; x++ {
			coords = append(coords, detour.TileCoord{X: int32(x), Y: int32(y)})
		}
	}
	sched := &Scheduler{
		Builder: p.tileBuilderLocked(),
		Store:   p.navMesh,
		Workers: p.workers,
		Log:     p.log.Named("scheduler"),
	}
	sess := sched.Start(coords)
	p.session = sess
	p.mu.Unlock()

	if !async {
		sess.Wait()
	}
	return nil
}

func (p *Project) tileAtLocked(pos mgl32.Vec3) (detour.TileCoord, error) {
	if p.grid == nil {
		// A loaded tile set without a matching grid is addressed by its own params.
		tx, ty := p.navMesh.CalcTileLoc(pos)
		return detour.TileCoord{X: tx, Y: ty}, nil
	}
	tx, ty := p.grid.TileCoordinate(pos)
	if !p.grid.Contains(tx, ty) {
		return detour.TileCoord{}, fmt.Errorf("%w: position %v is outside the %dx%d tile grid",
			detour.ErrInvalidParam, pos, p.grid.Width, p.grid.Height)
	}
	return detour.TileCoord{X: int32(tx), Y: int32(ty)}, nil
}

// BuildTile rebuilds the tile containing pos. Empty tiles are removed from
// the store; on failure the previous tile is kept and the error returned.
func (p *Project) BuildTile(pos mgl32.Vec3) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.buildableLocked(); err != nil {
		return err
	}
	p.joinLocked()
	coord, err := p.tileAtLocked(pos)
	if err != nil {
		return err
	}
	if _, err := recast.DeriveTileConfig(p.settings, p.grid.TileBounds(int(coord.X), int(coord.Y))); err != nil {
		return err
	}

	res := p.tileBuilderLocked().Build(int(coord.X), int(coord.Y))
	switch res.Status {
	case TileBuilt:
		if _, err := p.navMesh.Replace(coord, res.Buffer); err != nil {
			return err
		}
	case TileEmpty:
		p.navMesh.Remove(coord)
	default:
		p.log.Warn("tile build failed", zap.Stringer("tile", coord), zap.Error(res.Err))
		return res.Err
	}
	return nil
}

// RemoveTile drops the tile containing pos.
func (p *Project) RemoveTile(pos mgl32.Vec3) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navMesh == nil {
		return ErrGeometryUnavailable
	}
	p.joinLocked()
	coord, err := p.tileAtLocked(pos)
	if err != nil {
		return err
	}
	p.navMesh.Remove(coord)
	return nil
}

// RemoveAll drops every tile of the grid.
func (p *Project) RemoveAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navMesh == nil {
		return
	}
	p.joinLocked()
	if p.grid == nil {
		p.navMesh.Clear()
		return
	}
	n := p.navMesh.RemoveAll(int32(p.grid.Width), int32(p.grid.Height))
	p.log.Debug("tiles removed", zap.Int("count", n))
}

// CancelBuildAll asks the running build to stop starting tiles and, when
// wait is set, blocks until it drained.
func (p *Project) CancelBuildAll(wait bool) {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Cancel()
	if wait {
		sess.Wait()
	}
}

func (p *Project) IsBuilding() bool {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	return sess != nil && sess.Running()
}

// Progress reports the last bulk build. Without one, total is the grid
// size and nothing is built.
func (p *Project) Progress() (built, total int, elapsed time.Duration) {
	p.mu.Lock()
	sess, grid := p.session, p.grid
	p.mu.Unlock()
	if sess == nil {
		if grid != nil {
			total = grid.TileCount()
		}
		return 0, total, 0
	}
	return sess.Progress()
}

// Report summarises the last bulk build, or nil before the first one.
func (p *Project) Report() *message.BuildReport {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Report()
}

// SaveMesh writes the store to path. It refuses to run during a bulk build.
func (p *Project) SaveMesh(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil && p.session.Running() {
		return ErrBuildInProgress
	}
	if p.navMesh == nil {
		return ErrGeometryUnavailable
	}
	if err := SaveFile(path, p.navMesh); err != nil {
		return err
	}
	p.log.Info("navmesh saved", zap.String("path", path), zap.Int("tiles", p.navMesh.TileCount()))
	return nil
}

// LoadMesh replaces the store with the tile set at path. On error the
// current store is kept.
func (p *Project) LoadMesh(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinLocked()
	mesh, err := LoadFile(path)
	if err != nil {
		return err
	}
	p.navMesh = mesh
	if p.grid != nil && !gridMatches(p.grid, mesh.Params()) {
		params := mesh.Params()
		p.log.Warn("loaded tile set does not match the planned grid, builds are disabled until geometry or settings are set",
			zap.Float32s("orig", params.Orig[:]),
			zap.Float32("tileWidth", params.TileWidth),
			zap.Int32("maxTiles", params.MaxTiles))
		p.grid = nil
	}
	p.log.Info("navmesh loaded", zap.String("path", path), zap.Int("tiles", mesh.TileCount()))
	return nil
}

// gridMatches reports whether tiles planned on g can be stored under params.
func gridMatches(g *recast.TileGrid, params detour.NavMeshParams) bool {
	return params.Orig == [3]float32(g.Bounds.Min) &&
		params.TileWidth == g.TileWorldSize() &&
		params.TileHeight == g.TileWorldSize() &&
		params.MaxTiles == int32(g.MaxTiles) &&
		params.MaxPolys == int32(g.MaxPolysPerTile)
}

// NavMesh is the current tile store, nil before geometry or a load.
func (p *Project) NavMesh() *detour.NavMesh {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navMesh
}

func (p *Project) Grid() *recast.TileGrid {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grid
}
