package detour

import (
	"fmt"
	"math"
)

// / Represents the source data used to build a navigation mesh tile.
type NavMeshCreateParams struct {

	/// @name Polygon Mesh Attributes
	/// @{

	Verts     []uint16 ///< The polygon mesh vertices. [(x, y, z) * #VertCount] [Unit: vx]
	VertCount int      ///< The number vertices in the polygon mesh. [Limit: >= 3]
	Polys     []uint16 ///< The polygon data. [Size: #PolyCount * 2 * #Nvp]
	PolyFlags []uint16 ///< The user defined flags assigned to each polygon. [Size: #PolyCount]
	PolyAreas []uint8  ///< The user defined area ids assigned to each polygon. [Size: #PolyCount]
	PolyCount int      ///< Number of polygons in the mesh. [Limit: >= 1]
	Nvp       int      ///< Number maximum number of vertices per polygon. [Limit: >= 3]

	/// @}
	/// @name Height Detail Attributes (Optional)
	/// @{

	DetailMeshes     []uint32  ///< The height detail sub-mesh data. [Size: 4 * #PolyCount]
	DetailVerts      []float32 ///< The detail mesh vertices. [Size: 3 * #DetailVertsCount] [Unit: wu]
	DetailVertsCount int       ///< The number of vertices in the detail mesh.
	DetailTris       []uint8   ///< The detail mesh triangles. [Size: 4 * #DetailTriCount]
	DetailTriCount   int       ///< The number of triangles in the detail mesh.

	/// @}
	/// @name Off-Mesh Connections Attributes (Optional)
	/// @{

	OffMeshConVerts  []float32 ///< [(ax, ay, az, bx, by, bz) * #OffMeshConCount] [Unit: wu]
	OffMeshConRad    []float32
	OffMeshConFlags  []uint16
	OffMeshConAreas  []uint8
	OffMeshConDir    []uint8 ///< 0 = A to B only, #DT_OFFMESH_CON_BIDIR = both ways.
	OffMeshConUserID []uint32
	OffMeshConCount  int

	/// @}
	/// @name Tile Attributes
	/// @{

	UserId    uint32
	TileX     int32
	TileY     int32
	TileLayer int32
	Bmin      [3]float32
	Bmax      [3]float32

	/// @}
	/// @name General Configuration Attributes
	/// @{

	WalkableHeight float32 ///< The agent height. [Unit: wu]
	WalkableRadius float32 ///< The agent radius. [Unit: wu]
	WalkableClimb  float32 ///< The agent maximum traversable ledge. (Up/Down) [Unit: wu]
	Cs             float32 ///< The xz-plane cell size of the polygon mesh. [Limit: > 0] [Unit: wu]
	Ch             float32 ///< The y-axis cell height of the polygon mesh. [Limit: > 0] [Unit: wu]

	/// @}
}

// classifyOffMeshPoint returns the neighbour side a point lies on, or 0xff
// when it is inside the tile.
func classifyOffMeshPoint(pt []float32, bmin, bmax [3]float32) uint8 {
	const (
		XP = 1 << 0
		ZP = 1 << 1
		XM = 1 << 2
		ZM = 1 << 3
	)

	outcode := 0
	if pt[0] >= bmax[0] {
		outcode |= XP
	}
	if pt[2] >= bmax[2] {
		outcode |= ZP
	}
	if pt[0] < bmin[0] {
		outcode |= XM
	}
	if pt[2] < bmin[2] {
		outcode |= ZM
	}

	switch outcode {
	case XP:
		return 0
	case XP | ZP:
		return 1
	case ZP:
		return 2
	case XM | ZP:
		return 3
	case XM:
		return 4
	case XM | ZM:
		return 5
	case ZM:
		return 6
	case XP | ZM:
		return 7
	}
	return 0xff
}

func polyVertCount(p []uint16, nvp int) int {
	nv := 0
	for j := 0; j < nvp; j++ {
		if p[j] == DT_NULL_IDX {
			break
		}
		nv++
	}
	return nv
}

// CreateNavMeshData builds the tile payload for one tile. Off-mesh
// connections are stored only when their start point lies inside the tile.
func CreateNavMeshData(params *NavMeshCreateParams) (*NavMeshData, error) {
	if params.Nvp < 3 || params.Nvp > DT_VERTS_PER_POLYGON {
		return nil, fmt.Errorf("%w: nvp %d", ErrInvalidParam, params.Nvp)
	}
	if params.VertCount >= 0xffff {
		return nil, fmt.Errorf("%w: %d vertices exceed the 16 bit index space", ErrInvalidParam, params.VertCount)
	}
	if params.VertCount == 0 || len(params.Verts) < params.VertCount*3 {
		return nil, fmt.Errorf("%w: no vertices", ErrInvalidParam)
	}
	if params.PolyCount == 0 || len(params.Polys) < params.PolyCount*2*params.Nvp {
		return nil, fmt.Errorf("%w: no polygons", ErrInvalidParam)
	}
	nvp := params.Nvp

	offMeshConClass := make([]uint8, params.OffMeshConCount*2)
	storedOffMeshConCount := 0
	offMeshConLinkCount := 0

	if params.OffMeshConCount > 0 {
		// Find tight height bounds, used for culling out off-mesh start locations.
		hmin := float32(math.MaxFloat32)
		hmax := float32(-math.MaxFloat32)
		if params.DetailVertsCount > 0 {
			for i := 0; i < params.DetailVertsCount; i++ {
				h := params.DetailVerts[i*3+1]
				hmin = min(hmin, h)
				hmax = max(hmax, h)
			}
		} else {
			for i := 0; i < params.VertCount; i++ {
				h := params.Bmin[1] + float32(params.Verts[i*3+1])*params.Ch
				hmin = min(hmin, h)
				hmax = max(hmax, h)
			}
		}
		hmin -= params.WalkableClimb
		hmax += params.WalkableClimb
		bmin, bmax := params.Bmin, params.Bmax
		bmin[1] = hmin
		bmax[1] = hmax

		for i := 0; i < params.OffMeshConCount; i++ {
			p0 := params.OffMeshConVerts[i*6 : i*6+3]
			p1 := params.OffMeshConVerts[i*6+3 : i*6+6]
			offMeshConClass[i*2+0] = classifyOffMeshPoint(p0, bmin, bmax)
			offMeshConClass[i*2+1] = classifyOffMeshPoint(p1, bmin, bmax)

			// Zero out off-mesh start positions which are not even potentially touching the mesh.
			if offMeshConClass[i*2+0] == 0xff {
				if p0[1] < bmin[1] || p0[1] > bmax[1] {
					offMeshConClass[i*2+0] = 0
				}
			}

			if offMeshConClass[i*2+0] == 0xff {
				offMeshConLinkCount++
				storedOffMeshConCount++
			}
			if offMeshConClass[i*2+1] == 0xff {
				offMeshConLinkCount++
			}
		}
	}

	// Off-mesh connections are stored as polygons, adjust values.
	totPolyCount := params.PolyCount + storedOffMeshConCount
	totVertCount := params.VertCount + storedOffMeshConCount*2

	// Find portal edges which are at tile borders.
	edgeCount := 0
	portalCount := 0
	for i := 0; i < params.PolyCount; i++ {
		p := params.Polys[i*2*nvp:]
		for j := 0; j < nvp; j++ {
			if p[j] == DT_NULL_IDX {
				break
			}
			edgeCount++
			if p[nvp+j]&0x8000 != 0 {
				if dir := p[nvp+j] & 0xf; dir != 0xf {
					portalCount++
				}
			}
		}
	}
	maxLinkCount := edgeCount + portalCount*2 + offMeshConLinkCount*2

	// Find unique detail vertices.
	uniqueDetailVertCount := 0
	detailTriCount := 0
	if len(params.DetailMeshes) > 0 {
		detailTriCount = params.DetailTriCount
		for i := 0; i < params.PolyCount; i++ {
			nv := polyVertCount(params.Polys[i*nvp*2:], nvp)
			uniqueDetailVertCount += int(params.DetailMeshes[i*4+1]) - nv
		}
	} else {
		for i := 0; i < params.PolyCount; i++ {
			detailTriCount += polyVertCount(params.Polys[i*nvp*2:], nvp) - 2
		}
	}

	header := &DtMeshHeader{
		Magic:           DT_NAVMESH_MAGIC,
		Version:         DT_NAVMESH_VERSION,
		X:               params.TileX,
		Y:               params.TileY,
		Layer:           params.TileLayer,
		UserId:          params.UserId,
		PolyCount:       int32(totPolyCount),
		VertCount:       int32(totVertCount),
		MaxLinkCount:    int32(maxLinkCount),
		Bmin:            params.Bmin,
		Bmax:            params.Bmax,
		DetailMeshCount: int32(params.PolyCount),
		DetailVertCount: int32(uniqueDetailVertCount),
		DetailTriCount:  int32(detailTriCount),
		BvQuantFactor:   1.0 / params.Cs,
		OffMeshBase:     int32(params.PolyCount),
		WalkableHeight:  params.WalkableHeight,
		WalkableRadius:  params.WalkableRadius,
		WalkableClimb:   params.WalkableClimb,
		OffMeshConCount: int32(storedOffMeshConCount),
	}
	data := &NavMeshData{
		Header:      header,
		NavVerts:    make([]float32, 3*totVertCount),
		NavPolys:    make([]*DtPoly, totPolyCount),
		NavDMeshes:  make([]*DtPolyDetail, params.PolyCount),
		NavDVerts:   make([]float32, 3*uniqueDetailVertCount),
		NavDTris:    make([]uint8, 4*detailTriCount),
		OffMeshCons: make([]*DtOffMeshConnection, storedOffMeshConCount),
	}

	offMeshVertsBase := params.VertCount
	offMeshPolyBase := params.PolyCount

	// Mesh vertices
	for i := 0; i < params.VertCount; i++ {
		iv := params.Verts[i*3 : i*3+3]
		v := data.NavVerts[i*3 : i*3+3]
		v[0] = params.Bmin[0] + float32(iv[0])*params.Cs
		v[1] = params.Bmin[1] + float32(iv[1])*params.Ch
		v[2] = params.Bmin[2] + float32(iv[2])*params.Cs
	}
	// Off-mesh link vertices.
	n := 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] == 0xff {
			linkv := params.OffMeshConVerts[i*6 : i*6+6]
			base := (offMeshVertsBase + n*2) * 3
			copy(data.NavVerts[base:base+6], linkv)
			n++
		}
	}

	// Mesh polys
	src := params.Polys
	for i := 0; i < params.PolyCount; i++ {
		p := &DtPoly{Flags: params.PolyFlags[i]}
		p.SetArea(params.PolyAreas[i])
		p.SetType(DT_POLYTYPE_GROUND)
		for j := 0; j < nvp; j++ {
			if src[j] == DT_NULL_IDX {
				break
			}
			p.Verts[j] = src[j]
			if src[nvp+j]&0x8000 != 0 {
				// Border or portal edge.
				switch src[nvp+j] & 0xf {
				case 0xf:
					p.Neis[j] = 0
				case 0: // Portal x-
					p.Neis[j] = DT_EXT_LINK | 4
				case 1: // Portal z+
					p.Neis[j] = DT_EXT_LINK | 2
				case 2: // Portal x+
					p.Neis[j] = DT_EXT_LINK | 0
				case 3: // Portal z-
					p.Neis[j] = DT_EXT_LINK | 6
				}
			} else {
				// Normal connection
				p.Neis[j] = src[nvp+j] + 1
			}
			p.VertCount++
		}
		data.NavPolys[i] = p
		src = src[nvp*2:]
	}
	// Off-mesh connection polygons.
	n = 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] == 0xff {
			p := &DtPoly{VertCount: 2, Flags: params.OffMeshConFlags[i]}
			p.Verts[0] = uint16(offMeshVertsBase + n*2 + 0)
			p.Verts[1] = uint16(offMeshVertsBase + n*2 + 1)
			p.SetArea(params.OffMeshConAreas[i])
			p.SetType(DT_POLYTYPE_OFFMESH_CONNECTION)
			data.NavPolys[offMeshPolyBase+n] = p
			n++
		}
	}

	// The nav polygon vertices are stored as the first vertices on each detail
	// mesh, so only the extra ones are copied.
	if len(params.DetailMeshes) > 0 {
		vbase := 0
		for i := 0; i < params.PolyCount; i++ {
			vb := int(params.DetailMeshes[i*4+0])
			ndv := int(params.DetailMeshes[i*4+1])
			nv := int(data.NavPolys[i].VertCount)
			data.NavDMeshes[i] = &DtPolyDetail{
				VertBase:  uint32(vbase),
				VertCount: uint8(ndv - nv),
				TriBase:   params.DetailMeshes[i*4+2],
				TriCount:  uint8(params.DetailMeshes[i*4+3]),
			}
			if ndv-nv > 0 {
				copy(data.NavDVerts[vbase*3:], params.DetailVerts[(vb+nv)*3:(vb+ndv)*3])
				vbase += ndv - nv
			}
		}
		copy(data.NavDTris, params.DetailTris[:4*params.DetailTriCount])
	} else {
		// Create dummy detail mesh by triangulating polys.
		tbase := 0
		for i := 0; i < params.PolyCount; i++ {
			nv := int(data.NavPolys[i].VertCount)
			data.NavDMeshes[i] = &DtPolyDetail{TriBase: uint32(tbase), TriCount: uint8(nv - 2)}
			for j := 2; j < nv; j++ {
				t := data.NavDTris[tbase*4 : tbase*4+4]
				t[0] = 0
				t[1] = uint8(j - 1)
				t[2] = uint8(j)
				// Bit for each edge that belongs to poly boundary.
				t[3] = 1 << 2
				if j == 2 {
					t[3] |= 1 << 0
				}
				if j == nv-1 {
					t[3] |= 1 << 4
				}
				tbase++
			}
		}
	}

	// Store Off-Mesh connections.
	n = 0
	for i := 0; i < params.OffMeshConCount; i++ {
		if offMeshConClass[i*2+0] == 0xff {
			con := &DtOffMeshConnection{
				Poly: uint16(offMeshPolyBase + n),
				Rad:  params.OffMeshConRad[i],
				Side: offMeshConClass[i*2+1],
			}
			copy(con.Pos[:], params.OffMeshConVerts[i*6:i*6+6])
			if params.OffMeshConDir[i] != 0 {
				con.Flags = DT_OFFMESH_CON_BIDIR
			}
			if len(params.OffMeshConUserID) > 0 {
				con.UserId = params.OffMeshConUserID[i]
			}
			data.OffMeshCons[n] = con
			n++
		}
	}

	return data, nil
}
