package recast

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common"
	"github.com/gorustyt/tilenav/config"
)

const (
	// Bits shared by the tile index and the polygon index of a reference.
	IdBits = 22
	// Upper bound on tile bits so at least 256 polygons per tile stay addressable.
	MaxTileBits = 14
)

// Bounds is an axis aligned box in world units.
type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (b Bounds) Valid() bool {
	for i := 0; i < 3; i++ {
		if !common.IsFinite(b.Min[i]) || !common.IsFinite(b.Max[i]) || b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// CalcBounds returns the bounds of a flat xyz vertex array.
func CalcBounds(verts []float32) Bounds {
	if len(verts) < 3 {
		return Bounds{}
	}
	b := Bounds{Min: common.Vec3At(verts, 0), Max: common.Vec3At(verts, 0)}
	for i := 1; i < len(verts)/3; i++ {
		common.Vmin(b.Min[:], verts[i*3:i*3+3])
		common.Vmax(b.Max[:], verts[i*3:i*3+3])
	}
	return b
}

// CalcGridSize returns the number of cells covering the bounds on x and z,
// rounded up so the cells always contain the bounds.
func CalcGridSize(b Bounds, cellSize float32) (sizeX, sizeZ int) {
	sizeX = int(math.Ceil(float64(b.Max[0]-b.Min[0]) / float64(cellSize)))
	sizeZ = int(math.Ceil(float64(b.Max[2]-b.Min[2]) / float64(cellSize)))
	return
}

// TileGrid partitions world bounds into square tiles and assigns the
// reference bit budget between tile and polygon indices.
type TileGrid struct {
	Bounds   Bounds
	CellSize float32
	TileSize int

	Width  int
	Height int

	TileBits        uint32
	PolyBits        uint32
	MaxTiles        int
	MaxPolysPerTile int
}

// PlanTileGrid derives the grid for bounds, cell size and tile size in cells.
func PlanTileGrid(b Bounds, cellSize float32, tileSize int) (*TileGrid, error) {
	if !(cellSize > 0) || tileSize <= 0 {
		return nil, fmt.Errorf("%w: cell size %v, tile size %d", config.ErrInvalid, cellSize, tileSize)
	}
	if !b.Valid() {
		return nil, fmt.Errorf("%w: bounds %v..%v", config.ErrInvalid, b.Min, b.Max)
	}
	gw, gh := CalcGridSize(b, cellSize)
	g := &TileGrid{
		Bounds:   b,
		CellSize: cellSize,
		TileSize: tileSize,
		Width:    max(common.CeilDiv(gw, tileSize), 1),
		Height:   max(common.CeilDiv(gh, tileSize), 1),
	}
	// Max tiles and max polys affect how the tile IDs are calculated.
	// There are 22 bits available for identifying a tile and a polygon.
	count := uint64(g.TileCount())
	if count > 1<<31 {
		count = 1 << 31
	}
	g.TileBits = min(common.Ilog2(common.NextPow2(uint32(count))), MaxTileBits)
	g.PolyBits = IdBits - g.TileBits
	g.MaxTiles = 1 << g.TileBits
	g.MaxPolysPerTile = 1 << g.PolyBits
	return g, nil
}

func (g *TileGrid) TileCount() int {
	return g.Width * g.Height
}

// TileWorldSize is the edge length of one tile in world units.
func (g *TileGrid) TileWorldSize() float32 {
	return float32(g.TileSize) * g.CellSize
}

// Overflow reports whether more tiles exist than references can address.
func (g *TileGrid) Overflow() bool {
	return g.TileCount() > g.MaxTiles
}

// TileCoordinate maps a world position to the tile containing it.
func (g *TileGrid) TileCoordinate(pos mgl32.Vec3) (tx, ty int) {
	ts := float64(g.TileWorldSize())
	tx = int(math.Floor(float64(pos[0]-g.Bounds.Min[0]) / ts))
	ty = int(math.Floor(float64(pos[2]-g.Bounds.Min[2]) / ts))
	return
}

func (g *TileGrid) Contains(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < g.Width && ty < g.Height
}

// TileBounds is the world box of tile (tx, ty); the vertical extent is the
// full world height.
func (g *TileGrid) TileBounds(tx, ty int) Bounds {
	tcs := g.TileWorldSize()
	return Bounds{
		Min: mgl32.Vec3{g.Bounds.Min[0] + float32(tx)*tcs, g.Bounds.Min[1], g.Bounds.Min[2] + float32(ty)*tcs},
		Max: mgl32.Vec3{g.Bounds.Min[0] + float32(tx+1)*tcs, g.Bounds.Max[1], g.Bounds.Min[2] + float32(ty+1)*tcs},
	}
}
