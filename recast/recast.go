package recast

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common"
	"github.com/gorustyt/tilenav/config"
)

// / Specifies a configuration to use when performing Recast builds.
type Config struct {
	/// The width of the field along the x-axis. [Limit: >= 0] [Units: vx]
	Width int

	/// The height of the field along the z-axis. [Limit: >= 0] [Units: vx]
	Height int

	/// The width/height size of tile's on the xz-plane. [Limit: >= 0] [Units: vx]
	TileSize int

	/// The size of the non-navigable border around the heightfield. [Limit: >=0] [Units: vx]
	BorderSize int

	/// The xz-plane cell size to use for fields. [Limit: > 0] [Units: wu]
	Cs float32

	/// The y-axis cell size to use for fields. [Limit: > 0] [Units: wu]
	Ch float32

	/// The bounds of the field's AABB, border included. [Units: wu]
	Bmin mgl32.Vec3
	Bmax mgl32.Vec3

	/// The maximum slope that is considered walkable. [Limits: 0 <= value < 90] [Units: Degrees]
	WalkableSlopeAngle float32

	/// Minimum floor to 'ceiling' height that will still allow the floor area to
	/// be considered walkable. [Limit: >= 3] [Units: vx]
	WalkableHeight int

	/// Maximum ledge height that is considered to still be traversable. [Limit: >=0] [Units: vx]
	WalkableClimb int

	/// The distance to erode/shrink the walkable area of the heightfield away from
	/// obstructions.  [Limit: >=0] [Units: vx]
	WalkableRadius int

	/// The maximum allowed length for polygon edges along the border of the mesh. [Limit: >=0] [Units: vx]
	MaxEdgeLen int

	/// The maximum distance a simplified contour's border edges should deviate
	/// the original raw contour. [Limit: >=0] [Units: vx]
	MaxSimplificationError float32

	/// The minimum number of cells allowed to form isolated island areas. [Limit: >=0] [Units: vx]
	MinRegionArea int

	/// Any regions with a span count smaller than this value will, if possible,
	/// be merged with larger regions. [Limit: >=0] [Units: vx]
	MergeRegionArea int

	/// The maximum number of vertices allowed for polygons. [Limit: >= 3]
	MaxVertsPerPoly int

	/// Sets the sampling distance to use when generating the detail mesh.
	/// [Limits: 0 or >= 0.9] [Units: wu]
	DetailSampleDist float32

	/// The maximum distance the detail mesh surface should deviate from heightfield
	/// data. [Limit: >=0] [Units: wu]
	DetailSampleMaxError float32

	Partition config.Partition

	FilterLowHangingObstacles    bool
	FilterLedgeSpans             bool
	FilterWalkableLowHeightSpans bool

	// World space agent parameters, carried into the tile header.
	AgentHeight   float32
	AgentRadius   float32
	AgentMaxClimb float32
}

// TileBounds returns the unexpanded bounds of the tile window.
func (c *Config) TileBounds() Bounds {
	pad := float32(c.BorderSize) * c.Cs
	return Bounds{
		Min: mgl32.Vec3{c.Bmin[0] + pad, c.Bmin[1], c.Bmin[2] + pad},
		Max: mgl32.Vec3{c.Bmax[0] - pad, c.Bmax[1], c.Bmax[2] - pad},
	}
}

// DeriveTileConfig converts agent and voxel settings into the cell-space
// build window of one tile. The bounds are grown by the border on x and z
// so erosion near the tile edge sees neighbouring geometry.
func DeriveTileConfig(s config.BuildSettings, tile Bounds) (*Config, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg := &Config{
		Cs:                           s.CellSize,
		Ch:                           s.CellHeight,
		WalkableSlopeAngle:           s.AgentMaxSlope,
		WalkableHeight:               int(math.Ceil(float64(s.AgentHeight / s.CellHeight))),
		WalkableClimb:                int(math.Floor(float64(s.AgentMaxClimb / s.CellHeight))),
		WalkableRadius:               int(math.Ceil(float64(s.AgentRadius / s.CellSize))),
		MaxEdgeLen:                   int(s.EdgeMaxLen / s.CellSize),
		MaxSimplificationError:       s.EdgeMaxError,
		MinRegionArea:                int(common.Sqr(s.RegionMinSize)),   // Note: area = size*size
		MergeRegionArea:              int(common.Sqr(s.RegionMergeSize)), // Note: area = size*size
		MaxVertsPerPoly:              s.VertsPerPoly,
		TileSize:                     s.TileSize,
		DetailSampleDist:             s.CellSize * s.DetailSampleDist,
		DetailSampleMaxError:         s.CellHeight * s.DetailSampleMaxError,
		Partition:                    s.Partition,
		FilterLowHangingObstacles:    s.FilterLowHangingObstacles,
		FilterLedgeSpans:             s.FilterLedgeSpans,
		FilterWalkableLowHeightSpans: s.FilterWalkableLowHeightSpans,
		AgentHeight:                  s.AgentHeight,
		AgentRadius:                  s.AgentRadius,
		AgentMaxClimb:                s.AgentMaxClimb,
	}
	if cfg.DetailSampleDist < 0.9 {
		cfg.DetailSampleDist = 0
	}
	cfg.BorderSize = cfg.WalkableRadius + 3 // Reserve enough padding.
	cfg.Width = cfg.TileSize + cfg.BorderSize*2
	cfg.Height = cfg.TileSize + cfg.BorderSize*2

	if cfg.WalkableHeight <= 0 {
		return nil, fmt.Errorf("%w: walkable height is %d cells", config.ErrInvalid, cfg.WalkableHeight)
	}
	if cfg.WalkableClimb <= 0 {
		return nil, fmt.Errorf("%w: walkable climb is %d cells (agent max climb %v < cell height %v)",
			config.ErrInvalid, cfg.WalkableClimb, s.AgentMaxClimb, s.CellHeight)
	}
	if cfg.WalkableRadius <= 0 {
		return nil, fmt.Errorf("%w: walkable radius is %d cells", config.ErrInvalid, cfg.WalkableRadius)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: tile window is %dx%d cells", config.ErrInvalid, cfg.Width, cfg.Height)
	}

	cfg.Bmin = tile.Min
	cfg.Bmax = tile.Max
	pad := float32(cfg.BorderSize) * cfg.Cs
	cfg.Bmin[0] -= pad
	cfg.Bmin[2] -= pad
	cfg.Bmax[0] += pad
	cfg.Bmax[2] += pad
	return cfg, nil
}

func calcTriNormal(v0, v1, v2 mgl32.Vec3) mgl32.Vec3 {
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	if n.Len() == 0 {
		return n
	}
	return n.Normalize()
}

// MarkWalkableTriangles flags triangles whose slope is below the walkable
// angle with RC_WALKABLE_AREA and every other triangle with RC_NULL_AREA.
func MarkWalkableTriangles(walkableSlopeAngle float32, verts []float32, tris []int32) []uint8 {
	walkableThr := float32(math.Cos(float64(walkableSlopeAngle) / 180.0 * math.Pi))
	areas := make([]uint8, len(tris)/3)
	for i := range areas {
		norm := calcTriNormal(common.Vec3At(verts, tris[i*3+0]), common.Vec3At(verts, tris[i*3+1]), common.Vec3At(verts, tris[i*3+2]))
		// Check if the face is walkable.
		if norm[1] > walkableThr {
			areas[i] = RC_WALKABLE_AREA
		}
	}
	return areas
}
