package recast

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common"
	"github.com/gorustyt/tilenav/config"
)

var (
	// ErrEmptyRegion is returned when a tile has no walkable polygons.
	ErrEmptyRegion = errors.New("no walkable region")
	// ErrStepFailure is returned when a build step cannot run on its input.
	ErrStepFailure = errors.New("build step failed")
)

const (
	// RC_MESH_NULL_IDX marks an unused vertex slot or an unconnected edge.
	RC_MESH_NULL_IDX = 0xffff
	// RC_MAX_VERTS is the largest vertex count a 16 bit index can address.
	RC_MAX_VERTS = 0xffff
)

// / Represents a polygon mesh suitable for use in building a navigation mesh.
type PolyMesh struct {
	Verts      []uint16 ///< The mesh vertices. [Form: (x, y, z) * #nverts]
	Polys      []uint16 ///< Polygon and neighbor data. [Length: #maxpolys * 2 * #nvp]
	Regs       []uint16 ///< The region id assigned to each polygon. [Length: #maxpolys]
	Flags      []uint16 ///< The user defined flags for each polygon. [Length: #maxpolys]
	Areas      []uint8  ///< The area id assigned to each polygon. [Length: #maxpolys]
	Nverts     int      ///< The number of vertices.
	Npolys     int      ///< The number of polygons.
	Nvp        int      ///< The maximum number of vertices per polygon.
	Bmin       mgl32.Vec3
	Bmax       mgl32.Vec3
	Cs         float32 ///< The size of each cell. (On the xz-plane.)
	Ch         float32 ///< The height of each cell. (The minimum increment along the y-axis.)
	BorderSize int     ///< The AABB border size used to generate the source data from which the mesh was derived.
}

// / Contains triangle meshes that represent detailed height data associated
// / with the polygons in its associated polygon mesh object.
type PolyMeshDetail struct {
	Meshes []uint32  ///< The sub-mesh data. [(baseVertIndex, vertCount, baseTriIndex, triCount) * #nmeshes]
	Verts  []float32 ///< The mesh vertices. [(x, y, z) * #nverts]
	Tris   []uint8   ///< The mesh triangles. [(vertIndexA, vertIndexB, vertIndexC, flags) * #ntris]
	Nverts int
	Ntris  int
}

// TileInput is the geometry handed to a tile build: the triangles that
// overlap the expanded tile rect and the area volumes.
type TileInput struct {
	Verts   []float32
	Tris    []int32
	Volumes []ConvexVolume
}

// polyRect is a rectangle of spans that becomes one quad.
type polyRect struct {
	x0, z0, x1, z1 int
	area           uint8
	reg            int
	layer          int
	// Span indices of the first and last row, left to right.
	first []int
	last  []int
}

// extractRects splits the interior window into rectangles of spans that
// share an area and a region. Runs follow the x axis; watershed and layers
// merge identical runs of consecutive rows.
func (chf *compactHeightfield) extractRects(partition config.Partition, maxEdgeLen int) []*polyRect {
	bs := chf.borderSize
	used := make([]bool, len(chf.spans))
	var (
		rects []*polyRect
		open  []*polyRect
	)
	maxRun := chf.width
	if maxEdgeLen > 0 {
		maxRun = maxEdgeLen
	}
	for z := bs; z < chf.height-bs; z++ {
		var next []*polyRect
		for x := bs; x < chf.width-bs; x++ {
			c := chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				if used[i] || s.area == RC_NULL_AREA || s.reg == 0 {
					continue
				}
				run := []int{i}
				used[i] = true
				for cur := i; len(run) < maxRun; {
					ni := chf.spans[cur].con[2]
					if ni == notConnected || used[ni] {
						break
					}
					ns := &chf.spans[ni]
					if ns.x >= chf.width-bs || ns.area != s.area || ns.reg != s.reg {
						break
					}
					used[ni] = true
					run = append(run, ni)
					cur = ni
				}
				r := chf.mergeRun(open, run, partition, maxRun)
				if r == nil {
					r = &polyRect{x0: x, z0: z, x1: x + len(run) - 1, z1: z, area: s.area, reg: s.reg, layer: s.layer, first: run}
					rects = append(rects, r)
				}
				r.z1 = z
				r.last = run
				next = append(next, r)
			}
		}
		open = next
	}
	return rects
}

// mergeRun finds an open rectangle of the previous row that run extends.
func (chf *compactHeightfield) mergeRun(open []*polyRect, run []int, partition config.Partition, maxRun int) *polyRect {
	if partition == config.PartitionMonotone {
		return nil
	}
	s := &chf.spans[run[0]]
	for _, r := range open {
		if r.z1 != s.z-1 || r.x0 != s.x || r.x1-r.x0+1 != len(run) {
			continue
		}
		if r.area != s.area || r.reg != s.reg || r.z1-r.z0+1 >= maxRun {
			continue
		}
		if partition == config.PartitionLayers && r.layer != s.layer {
			continue
		}
		linked := true
		for k, si := range r.last {
			if chf.spans[si].con[1] != run[k] {
				linked = false
				break
			}
		}
		if linked {
			return r
		}
	}
	return nil
}

type meshBuilder struct {
	mesh     *PolyMesh
	buckets  map[[2]int][]int
	overflow bool
}

// addVertex returns the index of a vertex at (x, z) within two cells of y,
// adding one when none exists.
func (b *meshBuilder) addVertex(x, y, z int) (int, bool) {
	key := [2]int{x, z}
	for _, vi := range b.buckets[key] {
		if common.Abs(int(b.mesh.Verts[vi*3+1])-y) <= 2 {
			return vi, true
		}
	}
	if b.mesh.Nverts >= RC_MAX_VERTS {
		b.overflow = true
		return 0, false
	}
	vi := b.mesh.Nverts
	b.mesh.Verts = append(b.mesh.Verts, uint16(x), uint16(y), uint16(z))
	b.mesh.Nverts++
	b.buckets[key] = append(b.buckets[key], vi)
	return vi, true
}

func (b *meshBuilder) addPoly(verts []int, area uint8, reg int) {
	nvp := b.mesh.Nvp
	p := make([]uint16, nvp*2)
	for j := range p {
		p[j] = RC_MESH_NULL_IDX
	}
	for j, v := range verts {
		p[j] = uint16(v)
	}
	b.mesh.Polys = append(b.mesh.Polys, p...)
	b.mesh.Areas = append(b.mesh.Areas, area)
	b.mesh.Regs = append(b.mesh.Regs, uint16(reg))
	b.mesh.Flags = append(b.mesh.Flags, 0)
	b.mesh.Npolys++
}

// buildPolyMesh turns the rectangles into polygons in tile-local cells.
func (chf *compactHeightfield) buildPolyMesh(rects []*polyRect, nvp int, tile Bounds) *PolyMesh {
	bs := chf.borderSize
	b := &meshBuilder{
		mesh: &PolyMesh{
			Nvp:        nvp,
			Bmin:       tile.Min,
			Bmax:       tile.Max,
			Cs:         chf.cs,
			Ch:         chf.ch,
			BorderSize: bs,
		},
		buckets: make(map[[2]int][]int),
	}
	for _, r := range rects {
		first, last := r.first, r.last
		corners := [4][3]int{
			{r.x0 - bs, chf.spans[first[0]].y, r.z0 - bs},
			{r.x0 - bs, chf.spans[last[0]].y, r.z1 + 1 - bs},
			{r.x1 + 1 - bs, chf.spans[last[len(last)-1]].y, r.z1 + 1 - bs},
			{r.x1 + 1 - bs, chf.spans[first[len(first)-1]].y, r.z0 - bs},
		}
		var idx [4]int
		ok := true
		for k, c := range corners {
			if idx[k], ok = b.addVertex(c[0], c[1], c[2]); !ok {
				break
			}
		}
		if !ok {
			break
		}
		if nvp == 3 {
			b.addPoly([]int{idx[0], idx[1], idx[2]}, r.area, r.reg)
			b.addPoly([]int{idx[0], idx[2], idx[3]}, r.area, r.reg)
			continue
		}
		b.addPoly(idx[:], r.area, r.reg)
	}
	if b.overflow {
		b.mesh.Nverts = RC_MAX_VERTS
	}
	b.mesh.buildAdjacency(chf.width-bs*2, chf.height-bs*2)
	return b.mesh
}

func (mesh *PolyMesh) polyVertCount(i int) int {
	p := mesh.Polys[i*mesh.Nvp*2:]
	n := 0
	for n < mesh.Nvp && p[n] != RC_MESH_NULL_IDX {
		n++
	}
	return n
}

// buildAdjacency links polygons sharing an edge and flags edges on the tile
// border as portals (0x8000 | direction).
func (mesh *PolyMesh) buildAdjacency(w, h int) {
	nvp := mesh.Nvp
	type edgeRef struct{ poly, edge int }
	edges := make(map[[2]uint16]edgeRef)
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := mesh.polyVertCount(i)
		for j := 0; j < nv; j++ {
			edges[[2]uint16{p[j], p[(j+1)%nv]}] = edgeRef{i, j}
		}
	}
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := mesh.polyVertCount(i)
		for j := 0; j < nv; j++ {
			a, b := p[j], p[(j+1)%nv]
			if e, ok := edges[[2]uint16{b, a}]; ok && e.poly != i {
				p[nvp+j] = uint16(e.poly)
				continue
			}
			va := mesh.Verts[int(a)*3:]
			vb := mesh.Verts[int(b)*3:]
			switch {
			case va[0] == 0 && vb[0] == 0:
				p[nvp+j] = 0x8000 | 0
			case int(va[2]) == h && int(vb[2]) == h:
				p[nvp+j] = 0x8000 | 1
			case int(va[0]) == w && int(vb[0]) == w:
				p[nvp+j] = 0x8000 | 2
			case va[2] == 0 && vb[2] == 0:
				p[nvp+j] = 0x8000 | 3
			}
		}
	}
}

// Boundary edge flags of a detail triangle, two bits per edge.
func detailTriFlags(ab, bc, ca bool) uint8 {
	var f uint8
	if ab {
		f |= 1
	}
	if bc {
		f |= 1 << 2
	}
	if ca {
		f |= 1 << 4
	}
	return f
}

// buildPolyMeshDetail fans each polygon into triangles over its own
// vertices, in world units.
func (mesh *PolyMesh) buildPolyMeshDetail() *PolyMeshDetail {
	dmesh := &PolyMeshDetail{Meshes: make([]uint32, 0, mesh.Npolys*4)}
	nvp := mesh.Nvp
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := mesh.polyVertCount(i)
		vbase, tbase := dmesh.Nverts, dmesh.Ntris
		for j := 0; j < nv; j++ {
			v := mesh.Verts[int(p[j])*3:]
			dmesh.Verts = append(dmesh.Verts,
				mesh.Bmin[0]+float32(v[0])*mesh.Cs,
				mesh.Bmin[1]+float32(v[1])*mesh.Ch,
				mesh.Bmin[2]+float32(v[2])*mesh.Cs)
		}
		dmesh.Nverts += nv
		for j := 1; j < nv-1; j++ {
			dmesh.Tris = append(dmesh.Tris, 0, uint8(j), uint8(j+1), detailTriFlags(j == 1, true, j == nv-2))
			dmesh.Ntris++
		}
		dmesh.Meshes = append(dmesh.Meshes, uint32(vbase), uint32(nv), uint32(tbase), uint32(dmesh.Ntris-tbase))
	}
	return dmesh
}
