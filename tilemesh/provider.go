package tilemesh

import (
	"github.com/gorustyt/tilenav/geom"
	"github.com/gorustyt/tilenav/recast"
)

// GeometryProvider supplies the static input of a build. QueryOverlapping
// returns vertex index triples into Verts for every triangle whose XZ
// footprint may overlap the rect; extra triangles are allowed.
type GeometryProvider interface {
	Bounds() recast.Bounds
	Verts() []float32
	QueryOverlapping(bmin, bmax [2]float32) []int32
	ConvexVolumes() []recast.ConvexVolume
	OffMeshConnections() []geom.OffMeshConnection
}

// MeshBuilder turns the triangles of one expanded tile window into a
// polygon mesh and its detail mesh. Tiles without walkable surface return
// recast.ErrEmptyRegion.
type MeshBuilder interface {
	Build(cfg *recast.Config, in *recast.TileInput) (*recast.PolyMesh, *recast.PolyMeshDetail, error)
}

var (
	_ GeometryProvider = (*geom.InputGeom)(nil)
	_ MeshBuilder      = (*recast.HeightfieldBuilder)(nil)
)
