package geom

import "sort"

type chunkyTriMeshNode struct {
	bmin [2]float32
	bmax [2]float32
	// First triangle of a leaf, or the negated subtree size of an inner node.
	i int
	n int
}

type boundsItem struct {
	bmin [2]float32
	bmax [2]float32
	i    int
}

// ChunkyTriMesh is a 2D bounding volume tree over the XZ footprint of the
// triangles, used to fetch the triangles under a tile.
type ChunkyTriMesh struct {
	nodes           []chunkyTriMeshNode
	tris            []int32
	MaxTrisPerChunk int
}

func calcExtends(items []boundsItem) (bmin, bmax [2]float32) {
	bmin = items[0].bmin
	bmax = items[0].bmax
	for _, it := range items[1:] {
		bmin[0] = min(bmin[0], it.bmin[0])
		bmin[1] = min(bmin[1], it.bmin[1])
		bmax[0] = max(bmax[0], it.bmax[0])
		bmax[1] = max(bmax[1], it.bmax[1])
	}
	return
}

func longestAxis(x, y float32) int {
	if y > x {
		return 1
	}
	return 0
}

func (cm *ChunkyTriMesh) subdivide(items []boundsItem, trisPerChunk int, inTris []int32) {
	icur := len(cm.nodes)
	cm.nodes = append(cm.nodes, chunkyTriMeshNode{})
	bmin, bmax := calcExtends(items)
	cm.nodes[icur].bmin = bmin
	cm.nodes[icur].bmax = bmax

	if len(items) <= trisPerChunk {
		// Leaf
		cm.nodes[icur].i = len(cm.tris) / 3
		cm.nodes[icur].n = len(items)
		for _, it := range items {
			cm.tris = append(cm.tris, inTris[it.i*3:it.i*3+3]...)
		}
		return
	}

	// Split
	axis := longestAxis(bmax[0]-bmin[0], bmax[1]-bmin[1])
	sort.Slice(items, func(i, j int) bool {
		return items[i].bmin[axis] < items[j].bmin[axis]
	})
	isplit := len(items) / 2
	cm.subdivide(items[:isplit], trisPerChunk, inTris)
	cm.subdivide(items[isplit:], trisPerChunk, inTris)

	// Negative index means escape.
	cm.nodes[icur].i = -(len(cm.nodes) - icur)
}

// NewChunkyTriMesh partitions the triangles into leaves of at most
// trisPerChunk triangles.
func NewChunkyTriMesh(verts []float32, tris []int32, trisPerChunk int) *ChunkyTriMesh {
	cm := &ChunkyTriMesh{}
	ntris := len(tris) / 3
	if ntris == 0 || trisPerChunk <= 0 {
		return cm
	}
	nchunks := (ntris + trisPerChunk - 1) / trisPerChunk
	cm.nodes = make([]chunkyTriMeshNode, 0, nchunks*4)
	cm.tris = make([]int32, 0, ntris*3)

	items := make([]boundsItem, ntris)
	for i := range items {
		t := tris[i*3 : i*3+3]
		it := &items[i]
		it.i = i
		// Calc triangle XZ bounds.
		it.bmin = [2]float32{verts[t[0]*3+0], verts[t[0]*3+2]}
		it.bmax = it.bmin
		for _, vi := range t[1:] {
			v := verts[vi*3 : vi*3+3]
			it.bmin[0] = min(it.bmin[0], v[0])
			it.bmin[1] = min(it.bmin[1], v[2])
			it.bmax[0] = max(it.bmax[0], v[0])
			it.bmax[1] = max(it.bmax[1], v[2])
		}
	}
	cm.subdivide(items, trisPerChunk, tris)

	// Calc max tris per node.
	for _, node := range cm.nodes {
		if node.i >= 0 {
			cm.MaxTrisPerChunk = max(cm.MaxTrisPerChunk, node.n)
		}
	}
	return cm
}

func checkOverlapRect(amin, amax, bmin, bmax [2]float32) bool {
	if amin[0] > bmax[0] || amax[0] < bmin[0] {
		return false
	}
	if amin[1] > bmax[1] || amax[1] < bmin[1] {
		return false
	}
	return true
}

// ChunksOverlappingRect returns the leaves whose bounds overlap the rect.
func (cm *ChunkyTriMesh) ChunksOverlappingRect(bmin, bmax [2]float32) []int {
	var ids []int
	// Traverse tree
	for i := 0; i < len(cm.nodes); {
		node := &cm.nodes[i]
		overlap := checkOverlapRect(bmin, bmax, node.bmin, node.bmax)
		isLeafNode := node.i >= 0
		if isLeafNode && overlap {
			ids = append(ids, i)
		}
		if overlap || isLeafNode {
			i++
		} else {
			i += -node.i
		}
	}
	return ids
}

// ChunkTris returns the vertex index triples of a leaf.
func (cm *ChunkyTriMesh) ChunkTris(id int) []int32 {
	node := cm.nodes[id]
	return cm.tris[node.i*3 : (node.i+node.n)*3]
}
