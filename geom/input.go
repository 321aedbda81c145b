package geom

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/recast"
)

const (
	MAX_CONVEXVOL_PTS       = 12
	MAX_OFFMESH_CONNECTIONS = 256
	MAX_VOLUMES             = 256

	// Triangles per leaf of the chunky mesh.
	TRIS_PER_CHUNK = 256

	// User ids of off-mesh connections start here.
	offMeshConIdBase = 1000
)

// OffMeshConnection is a jump link between two points of the mesh.
type OffMeshConnection struct {
	Verts  [6]float32 // start xyz, end xyz
	Rad    float32
	Dir    uint8 // 1 when bidirectional
	Area   uint8
	Flags  uint16
	UserID uint32
}

// InputGeom is the static level geometry plus the user placed off-mesh
// connections and convex volumes.
type InputGeom struct {
	mesh       *ObjMesh
	chunkyMesh *ChunkyTriMesh
	meshBounds recast.Bounds
	navBounds  *recast.Bounds

	offMeshCons []OffMeshConnection
	volumes     []recast.ConvexVolume
}

// NewInputGeom wraps an already loaded mesh.
func NewInputGeom(mesh *ObjMesh) *InputGeom {
	return &InputGeom{
		mesh:       mesh,
		chunkyMesh: NewChunkyTriMesh(mesh.Verts, mesh.Tris, TRIS_PER_CHUNK),
		meshBounds: recast.CalcBounds(mesh.Verts),
	}
}

// Load reads the mesh file and the connections and volumes of cfg.
func Load(cfg config.GeometryConfig) (*InputGeom, error) {
	if cfg.Mesh == "" {
		return nil, fmt.Errorf("%w: no mesh path", ErrMalformedMesh)
	}
	mesh, err := LoadObjFile(cfg.Mesh, cfg.Scale)
	if err != nil {
		return nil, err
	}
	g := NewInputGeom(mesh)
	if err := g.Apply(cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// Apply adds the bounds override, connections and volumes of cfg.
func (g *InputGeom) Apply(cfg config.GeometryConfig) error {
	if cfg.NavBoundsMin != nil && cfg.NavBoundsMax != nil {
		g.SetNavMeshBounds(recast.Bounds{Min: mgl32.Vec3(*cfg.NavBoundsMin), Max: mgl32.Vec3(*cfg.NavBoundsMax)})
	}
	for i, c := range cfg.OffMeshConnections {
		area, err := recast.ParsePolyArea(c.Area, recast.SAMPLE_POLYAREA_JUMP)
		if err != nil {
			return fmt.Errorf("off_mesh_connections[%d]: %w", i, err)
		}
		if err := g.AddOffMeshConnection(c.Start, c.End, c.Radius, c.Bidir, area); err != nil {
			return err
		}
	}
	for i, v := range cfg.ConvexVolumes {
		area, err := recast.ParsePolyArea(v.Area, recast.SAMPLE_POLYAREA_GRASS)
		if err != nil {
			return fmt.Errorf("convex_volumes[%d]: %w", i, err)
		}
		verts := make([]float32, 0, len(v.Verts)*3)
		for _, p := range v.Verts {
			verts = append(verts, p[0], p[1], p[2])
		}
		if err := g.AddConvexVolume(verts, v.HMin, v.HMax, area); err != nil {
			return err
		}
	}
	return nil
}

func (g *InputGeom) Mesh() *ObjMesh {
	return g.mesh
}
func (g *InputGeom) MeshBounds() recast.Bounds {
	return g.meshBounds
}
func (g *InputGeom) Verts() []float32 {
	return g.mesh.Verts
}
func (g *InputGeom) SetNavMeshBounds(b recast.Bounds) {
	g.navBounds = &b
}

// Bounds is the area to build, the nav bounds override when set.
func (g *InputGeom) Bounds() recast.Bounds {
	if g.navBounds != nil {
		return *g.navBounds
	}
	return g.meshBounds
}

// QueryOverlapping returns the vertex index triples of every chunk whose
// XZ bounds overlap the rect.
func (g *InputGeom) QueryOverlapping(bmin, bmax [2]float32) []int32 {
	var tris []int32
	for _, id := range g.chunkyMesh.ChunksOverlappingRect(bmin, bmax) {
		tris = append(tris, g.chunkyMesh.ChunkTris(id)...)
	}
	return tris
}

func (g *InputGeom) ConvexVolumes() []recast.ConvexVolume {
	return g.volumes
}
func (g *InputGeom) OffMeshConnections() []OffMeshConnection {
	return g.offMeshCons
}

func (g *InputGeom) AddConvexVolume(verts []float32, hmin, hmax float32, area uint8) error {
	if len(g.volumes) >= MAX_VOLUMES {
		return fmt.Errorf("at most %d convex volumes", MAX_VOLUMES)
	}
	n := len(verts) / 3
	if n < 3 || n > MAX_CONVEXVOL_PTS || len(verts)%3 != 0 {
		return fmt.Errorf("convex volume needs 3..%d points, got %d", MAX_CONVEXVOL_PTS, n)
	}
	g.volumes = append(g.volumes, recast.ConvexVolume{
		Verts: append([]float32(nil), verts...),
		HMin:  hmin,
		HMax:  hmax,
		Area:  area,
	})
	return nil
}

func (g *InputGeom) AddOffMeshConnection(spos, epos [3]float32, rad float32, bidir bool, area uint8) error {
	if len(g.offMeshCons) >= MAX_OFFMESH_CONNECTIONS {
		return fmt.Errorf("at most %d off-mesh connections", MAX_OFFMESH_CONNECTIONS)
	}
	con := OffMeshConnection{
		Rad:    rad,
		Area:   area,
		Flags:  recast.PolyFlagsForArea(area),
		UserID: uint32(offMeshConIdBase + len(g.offMeshCons)),
	}
	if bidir {
		con.Dir = 1
	}
	copy(con.Verts[0:3], spos[:])
	copy(con.Verts[3:6], epos[:])
	g.offMeshCons = append(g.offMeshCons, con)
	return nil
}
