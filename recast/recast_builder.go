package recast

import (
	"fmt"

	"go.uber.org/zap"
)

// HeightfieldBuilder builds the polygon mesh of one tile by voxelising its
// triangles. The result only depends on the config and the input.
type HeightfieldBuilder struct {
	Log *zap.Logger
}

func NewHeightfieldBuilder(log *zap.Logger) *HeightfieldBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeightfieldBuilder{Log: log}
}

func (b *HeightfieldBuilder) logger() *zap.Logger {
	if b == nil || b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

func checkTileInput(cfg *Config, in *TileInput) error {
	if cfg == nil || in == nil {
		return fmt.Errorf("%w: missing config or input", ErrStepFailure)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || !(cfg.Cs > 0) || !(cfg.Ch > 0) {
		return fmt.Errorf("%w: field %dx%d cs %v ch %v", ErrStepFailure, cfg.Width, cfg.Height, cfg.Cs, cfg.Ch)
	}
	if cfg.MaxVertsPerPoly < 3 || cfg.MaxVertsPerPoly > 6 {
		return fmt.Errorf("%w: %d vertices per polygon", ErrStepFailure, cfg.MaxVertsPerPoly)
	}
	if len(in.Verts)%3 != 0 || len(in.Tris)%3 != 0 {
		return fmt.Errorf("%w: %d vertex floats, %d triangle indices", ErrStepFailure, len(in.Verts), len(in.Tris))
	}
	nv := int32(len(in.Verts) / 3)
	for _, t := range in.Tris {
		if t < 0 || t >= nv {
			return fmt.Errorf("%w: triangle index %d out of %d vertices", ErrStepFailure, t, nv)
		}
	}
	return nil
}

// Build runs the voxel pipeline over one tile window. Tiles without any
// walkable polygon return ErrEmptyRegion.
func (b *HeightfieldBuilder) Build(cfg *Config, in *TileInput) (*PolyMesh, *PolyMeshDetail, error) {
	if err := checkTileInput(cfg, in); err != nil {
		return nil, nil, err
	}
	log := b.logger()

	// Allocate voxel heightfield where we rasterize our input data to.
	hf := newHeightfield(cfg)

	// Find triangles which are walkable based on their slope and rasterize them.
	areas := MarkWalkableTriangles(cfg.WalkableSlopeAngle, in.Verts, in.Tris)
	if err := hf.rasterizeTriangles(in.Verts, in.Tris, areas, cfg.WalkableClimb); err != nil {
		return nil, nil, err
	}

	// Once all geometry is rasterized, we do initial pass of filtering to
	// remove unwanted overhangs caused by the conservative rasterization
	// as well as filter spans where the character cannot possibly stand.
	if cfg.FilterLowHangingObstacles {
		hf.filterLowHangingWalkableObstacles(cfg.WalkableClimb)
	}
	if cfg.FilterLedgeSpans {
		hf.filterLedgeSpans(cfg.WalkableHeight, cfg.WalkableClimb)
	}
	if cfg.FilterWalkableLowHeightSpans {
		hf.filterWalkableLowHeightSpans(cfg.WalkableHeight)
	}

	// Compact the heightfield so that it is faster to handle from now on.
	chf := buildCompactHeightfield(cfg.WalkableHeight, cfg.WalkableClimb, cfg.BorderSize, hf)

	// Erode the walkable area by agent radius.
	chf.erodeWalkableArea(cfg.WalkableRadius)

	// (Optional) Mark areas.
	for i := range in.Volumes {
		chf.markConvexPolyArea(&in.Volumes[i])
	}

	chf.buildRegions(cfg.MinRegionArea)
	if chf.maxRegions == 0 {
		return nil, nil, ErrEmptyRegion
	}

	rects := chf.extractRects(cfg.Partition, cfg.MaxEdgeLen)
	if len(rects) == 0 {
		return nil, nil, ErrEmptyRegion
	}
	pmesh := chf.buildPolyMesh(rects, cfg.MaxVertsPerPoly, cfg.TileBounds())
	if pmesh.Npolys == 0 {
		return nil, nil, ErrEmptyRegion
	}
	dmesh := pmesh.buildPolyMeshDetail()

	log.Debug("tile polygons",
		zap.Int("spans", len(chf.spans)),
		zap.Int("regions", chf.maxRegions),
		zap.Int("verts", pmesh.Nverts),
		zap.Int("polys", pmesh.Npolys),
		zap.Float32s("bmin", cfg.Bmin[:]))
	return pmesh, dmesh, nil
}
