package tilemesh

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/detour"
	"github.com/gorustyt/tilenav/recast"
	"go.uber.org/zap"
)

// TileBuilder builds the serialized payload of a single tile. It holds no
// mutable state, so one builder may be shared by every worker.
type TileBuilder struct {
	Geom     GeometryProvider
	Grid     *recast.TileGrid
	Settings config.BuildSettings
	Mesh     MeshBuilder
	Log      *zap.Logger
}

func (b *TileBuilder) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

// Build runs the pipeline for tile (tx, ty). Empty and failed tiles carry
// no buffer.
func (b *TileBuilder) Build(tx, ty int) TileBuildResult {
	now := time.Now()
	res := b.build(tx, ty)
	res.Elapsed = time.Since(now)

	log := b.logger()
	switch res.Status {
	case TileBuilt:
		log.Debug("tile built",
			zap.Int("x", tx), zap.Int("y", ty),
			zap.Int("tris", res.TriCount),
			zap.Int("bytes", res.Buffer.Len()),
			zap.Duration("elapsed", res.Elapsed))
	case TileEmpty:
		log.Debug("tile empty",
			zap.Int("x", tx), zap.Int("y", ty),
			zap.Int("tris", res.TriCount),
			zap.Duration("elapsed", res.Elapsed))
	}
	return res
}

func (b *TileBuilder) build(tx, ty int) TileBuildResult {
	res := TileBuildResult{Coord: detour.TileCoord{X: int32(tx), Y: int32(ty)}}
	fail := func(err error) TileBuildResult {
		res.Status = TileFailed
		res.Err = err
		return res
	}
	if b.Geom == nil || b.Grid == nil {
		return fail(ErrGeometryUnavailable)
	}
	if b.Mesh == nil {
		return fail(fmt.Errorf("%w: no mesh builder", ErrStepFailure))
	}

	cfg, err := recast.DeriveTileConfig(b.Settings, b.Grid.TileBounds(tx, ty))
	if err != nil {
		return fail(err)
	}

	tbmin := [2]float32{cfg.Bmin[0], cfg.Bmin[2]}
	tbmax := [2]float32{cfg.Bmax[0], cfg.Bmax[2]}
	tris := b.Geom.QueryOverlapping(tbmin, tbmax)
	res.TriCount = len(tris) / 3
	if res.TriCount == 0 {
		res.Status = TileEmpty
		return res
	}

	pmesh, dmesh, err := b.Mesh.Build(cfg, &recast.TileInput{
		Verts:   b.Geom.Verts(),
		Tris:    tris,
		Volumes: b.Geom.ConvexVolumes(),
	})
	switch {
	case errors.Is(err, recast.ErrEmptyRegion):
		res.Status = TileEmpty
		return res
	case errors.Is(err, recast.ErrStepFailure):
		return fail(err)
	case err != nil:
		return fail(fmt.Errorf("%w: %w", ErrStepFailure, err))
	case pmesh == nil || pmesh.Npolys == 0:
		res.Status = TileEmpty
		return res
	}

	// The vertex indices are ushorts, and cannot point to more than 0xffff vertices.
	if pmesh.Nverts >= recast.RC_MAX_VERTS {
		return fail(fmt.Errorf("%w: %d (max: %d)", ErrTooManyVertices, pmesh.Nverts, recast.RC_MAX_VERTS-1))
	}

	// Update poly flags from areas.
	for i := 0; i < pmesh.Npolys; i++ {
		if pmesh.Areas[i] == recast.RC_WALKABLE_AREA {
			pmesh.Areas[i] = recast.SAMPLE_POLYAREA_GROUND
		}
		pmesh.Flags[i] = recast.PolyFlagsForArea(pmesh.Areas[i])
	}

	params := &detour.NavMeshCreateParams{
		Verts:          pmesh.Verts,
		VertCount:      pmesh.Nverts,
		Polys:          pmesh.Polys,
		PolyAreas:      pmesh.Areas,
		PolyFlags:      pmesh.Flags,
		PolyCount:      pmesh.Npolys,
		Nvp:            pmesh.Nvp,
		TileX:          int32(tx),
		TileY:          int32(ty),
		TileLayer:      0,
		Bmin:           pmesh.Bmin,
		Bmax:           pmesh.Bmax,
		WalkableHeight: cfg.AgentHeight,
		WalkableRadius: cfg.AgentRadius,
		WalkableClimb:  cfg.AgentMaxClimb,
		Cs:             cfg.Cs,
		Ch:             cfg.Ch,
	}
	if dmesh != nil {
		params.DetailMeshes = dmesh.Meshes
		params.DetailVerts = dmesh.Verts
		params.DetailVertsCount = dmesh.Nverts
		params.DetailTris = dmesh.Tris
		params.DetailTriCount = dmesh.Ntris
	}
	for _, con := range b.Geom.OffMeshConnections() {
		params.OffMeshConVerts = append(params.OffMeshConVerts, con.Verts[:]...)
		params.OffMeshConRad = append(params.OffMeshConRad, con.Rad)
		params.OffMeshConDir = append(params.OffMeshConDir, con.Dir)
		params.OffMeshConAreas = append(params.OffMeshConAreas, con.Area)
		params.OffMeshConFlags = append(params.OffMeshConFlags, con.Flags)
		params.OffMeshConUserID = append(params.OffMeshConUserID, con.UserID)
	}
	params.OffMeshConCount = len(params.OffMeshConRad)

	data, err := detour.CreateNavMeshData(params)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStepFailure, err))
	}
	res.Status = TileBuilt
	res.Buffer = detour.NewTileBuffer(data.ToBin())
	return res
}
