package detour

import (
	"fmt"

	"github.com/gorustyt/tilenav/common"
	"github.com/gorustyt/tilenav/common/rw"
)

const (
	/// The maximum number of vertices per navigation polygon.
	DT_VERTS_PER_POLYGON = 6

	/// A flag that indicates that an entity links to an external entity.
	/// (E.g. A polygon edge is a portal that links to another polygon.)
	DT_EXT_LINK = 0x8000

	/// Marks an unused vertex slot in a polygon.
	DT_NULL_IDX = 0xffff

	/// A flag that indicates that an off-mesh connection can be traversed in both directions. (Is bidirectional.)
	DT_OFFMESH_CON_BIDIR = 1

	/// A magic number used to detect compatibility of navigation tile data.
	DT_NAVMESH_MAGIC = 'D'<<24 | 'N'<<16 | 'A'<<8 | 'V'

	/// A version number used to detect compatibility of navigation tile data.
	DT_NAVMESH_VERSION = 7

	/// The maximum number of user defined area ids.
	DT_MAX_AREAS = 64

	/// Total bits available to tile and polygon indices in a reference.
	DT_ID_BITS = 22
	/// Minimum bits left over for the salt.
	DT_MIN_SALT_BITS = 32 - DT_ID_BITS
	/// Upper bound on tile index bits.
	DT_MAX_TILE_BITS = 14
)

const (
	/// The polygon is a standard convex polygon that is part of the surface of the mesh.
	DT_POLYTYPE_GROUND = 0
	/// The polygon is an off-mesh connection consisting of two vertices.
	DT_POLYTYPE_OFFMESH_CONNECTION = 1
)

// Serialized record sizes.
const (
	meshHeaderSize   = 100
	polySize         = 32
	polyDetailSize   = 12
	offMeshConSize   = 36
	navMeshParamSize = 28
)

// PolyRef identifies a polygon: salt | tile index | poly index.
type PolyRef uint32

// TileRef is the PolyRef of a tile's first polygon.
type TileRef uint32

// TileCoord is the key of a tile slot in the store.
type TileCoord struct {
	X, Y  int32
	Layer int32
}

func (c TileCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Layer)
}

// / Provides high level information related to a tile's data.
type DtMeshHeader struct {
	Magic           int32  ///< Tile magic number. (Used to identify the data format.)
	Version         int32  ///< Tile data format version number.
	X               int32  ///< The x-position of the tile within the tile grid.
	Y               int32  ///< The y-position of the tile within the tile grid.
	Layer           int32  ///< The layer of the tile within the tile grid.
	UserId          uint32 ///< The user defined id of the tile.
	PolyCount       int32  ///< The number of polygons in the tile.
	VertCount       int32  ///< The number of vertices in the tile.
	MaxLinkCount    int32  ///< The number of links a runtime needs to allocate for the tile.
	DetailMeshCount int32  ///< The number of sub-meshes in the detail mesh.

	/// The number of unique vertices in the detail mesh. (In addition to the polygon vertices.)
	DetailVertCount int32

	DetailTriCount  int32      ///< The number of triangles in the detail mesh.
	BvNodeCount     int32      ///< The number of bounding volume nodes. Always zero here.
	OffMeshConCount int32      ///< The number of off-mesh connections.
	OffMeshBase     int32      ///< The index of the first polygon which is an off-mesh connection.
	WalkableHeight  float32    ///< The height of the agents using the tile.
	WalkableRadius  float32    ///< The radius of the agents using the tile.
	WalkableClimb   float32    ///< The maximum climb height of the agents using the tile.
	Bmin            [3]float32 ///< The minimum bounds of the tile's AABB. [(x, y, z)]
	Bmax            [3]float32 ///< The maximum bounds of the tile's AABB. [(x, y, z)]

	/// The bounding volume quantization factor.
	BvQuantFactor float32
}

func (d *DtMeshHeader) Coord() TileCoord {
	return TileCoord{X: d.X, Y: d.Y, Layer: d.Layer}
}

func (d *DtMeshHeader) ToBin(w *rw.ReaderWriter) {
	w.WriteInt32(d.Magic)
	w.WriteInt32(d.Version)
	w.WriteInt32(d.X)
	w.WriteInt32(d.Y)
	w.WriteInt32(d.Layer)
	w.WriteUInt32(d.UserId)
	w.WriteInt32(d.PolyCount)
	w.WriteInt32(d.VertCount)
	w.WriteInt32(d.MaxLinkCount)
	w.WriteInt32(d.DetailMeshCount)
	w.WriteInt32(d.DetailVertCount)
	w.WriteInt32(d.DetailTriCount)
	w.WriteInt32(d.BvNodeCount)
	w.WriteInt32(d.OffMeshConCount)
	w.WriteInt32(d.OffMeshBase)
	w.WriteFloat32(d.WalkableHeight)
	w.WriteFloat32(d.WalkableRadius)
	w.WriteFloat32(d.WalkableClimb)
	w.WriteFloat32s(d.Bmin[:])
	w.WriteFloat32s(d.Bmax[:])
	w.WriteFloat32(d.BvQuantFactor)
}

func (d *DtMeshHeader) FromBin(r *rw.ReaderWriter) *DtMeshHeader {
	d.Magic = r.ReadInt32()
	d.Version = r.ReadInt32()
	d.X = r.ReadInt32()
	d.Y = r.ReadInt32()
	d.Layer = r.ReadInt32()
	d.UserId = r.ReadUInt32()
	d.PolyCount = r.ReadInt32()
	d.VertCount = r.ReadInt32()
	d.MaxLinkCount = r.ReadInt32()
	d.DetailMeshCount = r.ReadInt32()
	d.DetailVertCount = r.ReadInt32()
	d.DetailTriCount = r.ReadInt32()
	d.BvNodeCount = r.ReadInt32()
	d.OffMeshConCount = r.ReadInt32()
	d.OffMeshBase = r.ReadInt32()
	d.WalkableHeight = r.ReadFloat32()
	d.WalkableRadius = r.ReadFloat32()
	d.WalkableClimb = r.ReadFloat32()
	r.ReadFloat32s(d.Bmin[:])
	r.ReadFloat32s(d.Bmax[:])
	d.BvQuantFactor = r.ReadFloat32()
	return d
}

// ReadMeshHeader decodes and validates the header at the start of a tile payload.
func ReadMeshHeader(data []byte) (*DtMeshHeader, error) {
	if len(data) < meshHeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, meshHeaderSize, len(data))
	}
	h := (&DtMeshHeader{}).FromBin(rw.NewBinReader(data[:meshHeaderSize]))
	if h.Magic != DT_NAVMESH_MAGIC {
		return nil, ErrWrongMagic
	}
	if h.Version != DT_NAVMESH_VERSION {
		return nil, fmt.Errorf("%w: %d", ErrWrongVersion, h.Version)
	}
	return h, nil
}

// / Defines a polygon within a tile.
type DtPoly struct {
	/// Index to first link in linked list. Filled in by a runtime, stored as zero.
	FirstLink uint32

	/// The indices of the polygon's vertices.
	Verts [DT_VERTS_PER_POLYGON]uint16

	/// Packed data representing neighbor polygons references and flags for each edge.
	Neis [DT_VERTS_PER_POLYGON]uint16

	/// The user defined polygon flags.
	Flags uint16

	/// The number of vertices in the polygon.
	VertCount uint8

	/// The bit packed area id and polygon type.
	AreaAndtype uint8
}

func (d *DtPoly) ToBin(w *rw.ReaderWriter) {
	w.WriteUInt32(d.FirstLink)
	w.WriteUInt16s(d.Verts[:])
	w.WriteUInt16s(d.Neis[:])
	w.WriteUInt16(d.Flags)
	w.WriteUInt8(d.VertCount)
	w.WriteUInt8(d.AreaAndtype)
}

func (d *DtPoly) FromBin(r *rw.ReaderWriter) *DtPoly {
	d.FirstLink = r.ReadUInt32()
	r.ReadUInt16s(d.Verts[:])
	r.ReadUInt16s(d.Neis[:])
	d.Flags = r.ReadUInt16()
	d.VertCount = r.ReadUInt8()
	d.AreaAndtype = r.ReadUInt8()
	return d
}

// / Sets the user defined area id. [Limit: < #DT_MAX_AREAS]
func (p *DtPoly) SetArea(a uint8) { p.AreaAndtype = (p.AreaAndtype & 0xc0) | (a & 0x3f) }

// / Sets the polygon type. (See: #dtPolyTypes.)
func (p *DtPoly) SetType(t uint8) { p.AreaAndtype = (p.AreaAndtype & 0x3f) | (t << 6) }

// / Gets the user defined area id.
func (p *DtPoly) GetArea() uint8 { return p.AreaAndtype & 0x3f }

// / Gets the polygon type. (See: #dtPolyTypes)
func (p *DtPoly) GetType() uint8 { return p.AreaAndtype >> 6 }

// / Defines the location of detail sub-mesh data within a tile.
type DtPolyDetail struct {
	VertBase  uint32 ///< The offset of the vertices in the detail verts array.
	TriBase   uint32 ///< The offset of the triangles in the detail tris array.
	VertCount uint8  ///< The number of vertices in the sub-mesh.
	TriCount  uint8  ///< The number of triangles in the sub-mesh.
}

func (d *DtPolyDetail) ToBin(w *rw.ReaderWriter) {
	w.WriteUInt32(d.VertBase)
	w.WriteUInt32(d.TriBase)
	w.WriteUInt8(d.VertCount)
	w.WriteUInt8(d.TriCount)
	w.PadZero(2)
}

func (d *DtPolyDetail) FromBin(r *rw.ReaderWriter) *DtPolyDetail {
	d.VertBase = r.ReadUInt32()
	d.TriBase = r.ReadUInt32()
	d.VertCount = r.ReadUInt8()
	d.TriCount = r.ReadUInt8()
	r.Skip(2)
	return d
}

// / Defines a navigation mesh off-mesh connection within a tile.
type DtOffMeshConnection struct {
	/// The endpoints of the connection. [(ax, ay, az, bx, by, bz)]
	Pos [6]float32

	/// The radius of the endpoints. [Limit: >= 0]
	Rad float32

	/// The polygon reference of the connection within the tile.
	Poly uint16

	/// Link flags.
	Flags uint8

	/// End point side.
	Side uint8

	/// The id of the offmesh connection. (User assigned when the navigation mesh is built.)
	UserId uint32
}

func (d *DtOffMeshConnection) ToBin(w *rw.ReaderWriter) {
	w.WriteFloat32s(d.Pos[:])
	w.WriteFloat32(d.Rad)
	w.WriteUInt16(d.Poly)
	w.WriteUInt8(d.Flags)
	w.WriteUInt8(d.Side)
	w.WriteUInt32(d.UserId)
}

func (d *DtOffMeshConnection) FromBin(r *rw.ReaderWriter) *DtOffMeshConnection {
	r.ReadFloat32s(d.Pos[:])
	d.Rad = r.ReadFloat32()
	d.Poly = r.ReadUInt16()
	d.Flags = r.ReadUInt8()
	d.Side = r.ReadUInt8()
	d.UserId = r.ReadUInt32()
	return d
}

// / Configuration parameters used to define multi-tile navigation meshes.
type NavMeshParams struct {
	Orig       [3]float32 ///< The world space origin of the navigation mesh's tile space. [(x, y, z)]
	TileWidth  float32    ///< The width of each tile. (Along the x-axis.)
	TileHeight float32    ///< The height of each tile. (Along the z-axis.)
	MaxTiles   int32      ///< The maximum number of tiles the navigation mesh can contain.
	MaxPolys   int32      ///< The maximum number of polygons each tile can contain.
}

func (d *NavMeshParams) FromBin(r *rw.ReaderWriter) {
	r.ReadFloat32s(d.Orig[:])
	d.TileWidth = r.ReadFloat32()
	d.TileHeight = r.ReadFloat32()
	d.MaxTiles = r.ReadInt32()
	d.MaxPolys = r.ReadInt32()
}

func (d *NavMeshParams) ToBin(w *rw.ReaderWriter) {
	w.WriteFloat32s(d.Orig[:])
	w.WriteFloat32(d.TileWidth)
	w.WriteFloat32(d.TileHeight)
	w.WriteInt32(d.MaxTiles)
	w.WriteInt32(d.MaxPolys)
}

// TileBits is the number of reference bits used for the tile index.
func (d *NavMeshParams) TileBits() uint32 {
	return common.Ilog2(common.NextPow2(uint32(d.MaxTiles)))
}

// PolyBits is the number of reference bits used for the polygon index.
func (d *NavMeshParams) PolyBits() uint32 {
	return common.Ilog2(common.NextPow2(uint32(d.MaxPolys)))
}

// Validate checks tile extents and that both budgets are powers of two
// filling exactly DT_ID_BITS reference bits, with at most DT_MAX_TILE_BITS
// of them for tiles.
func (d *NavMeshParams) Validate() error {
	for _, v := range d.Orig {
		if !common.IsFinite(v) {
			return fmt.Errorf("%w: origin %v", ErrInvalidParam, d.Orig)
		}
	}
	if !(d.TileWidth > 0) || !(d.TileHeight > 0) {
		return fmt.Errorf("%w: tile extent %vx%v", ErrInvalidParam, d.TileWidth, d.TileHeight)
	}
	if d.MaxTiles <= 0 || !common.IsPow2(uint32(d.MaxTiles)) {
		return fmt.Errorf("%w: maxTiles %d is not a power of two", ErrInvalidParam, d.MaxTiles)
	}
	if d.MaxTiles > 1<<DT_MAX_TILE_BITS {
		return fmt.Errorf("%w: maxTiles %d exceeds %d", ErrInvalidParam, d.MaxTiles, 1<<DT_MAX_TILE_BITS)
	}
	if d.MaxPolys <= 0 || !common.IsPow2(uint32(d.MaxPolys)) {
		return fmt.Errorf("%w: maxPolys %d is not a power of two", ErrInvalidParam, d.MaxPolys)
	}
	if bits := d.TileBits() + d.PolyBits(); bits != DT_ID_BITS {
		return fmt.Errorf("%w: tile and poly bits sum to %d, want %d", ErrInvalidParam, bits, DT_ID_BITS)
	}
	return nil
}
