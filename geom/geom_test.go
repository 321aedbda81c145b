package geom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/recast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadObj = `# unit quad
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
vn 0 1 0
vt 0 0
f 1/1/1 4/1/1 3/1/1 2/1/1
f -4 -3 -2
f 1 2 9
`

func TestLoadObj(t *testing.T) {
	m, err := LoadObj(strings.NewReader(quadObj), 2)
	require.NoError(t, err)

	assert.Equal(t, 4, m.VertCount())
	assert.Equal(t, []float32{0, 0, 0, 2, 0, 0, 2, 0, 2, 0, 0, 2}, m.Verts)
	assert.Equal(t, []int32{0, 3, 2, 0, 2, 1, 0, 1, 2}, m.Tris)
	assert.Equal(t, 3, m.TriCount())
	assert.InDeltaSlice(t, []float32{0, 1, 0}, m.Normals[0:3], 1e-6)
}

func TestLoadObjMalformed(t *testing.T) {
	_, err := LoadObj(strings.NewReader("v 1 x 3\n"), 1)
	require.ErrorIs(t, err, ErrMalformedMesh)

	_, err = LoadObj(strings.NewReader("v 1 2\n"), 1)
	require.ErrorIs(t, err, ErrMalformedMesh)

	_, err = LoadObj(strings.NewReader("v 1 2 3\nf a b c\n"), 1)
	require.ErrorIs(t, err, ErrMalformedMesh)
}

// gridMesh is an n x n grid of unit quads on the y=0 plane.
func gridMesh(n int) *ObjMesh {
	m := &ObjMesh{}
	for z := 0; z <= n; z++ {
		for x := 0; x <= n; x++ {
			m.Verts = append(m.Verts, float32(x), 0, float32(z))
		}
	}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			a := int32(z*(n+1) + x)
			b := a + 1
			c := a + int32(n+1) + 1
			d := a + int32(n+1)
			m.Tris = append(m.Tris, a, d, c, a, c, b)
		}
	}
	return m
}

func triKey(t []int32) [3]int32 {
	return [3]int32{t[0], t[1], t[2]}
}

func TestChunkyTriMesh(t *testing.T) {
	m := gridMesh(40)
	cm := NewChunkyTriMesh(m.Verts, m.Tris, TRIS_PER_CHUNK)
	assert.LessOrEqual(t, cm.MaxTrisPerChunk, TRIS_PER_CHUNK)
	assert.Positive(t, cm.MaxTrisPerChunk)

	// Every triangle lands in exactly one leaf.
	all := map[[3]int32]int{}
	for _, id := range cm.ChunksOverlappingRect([2]float32{-1, -1}, [2]float32{41, 41}) {
		tris := cm.ChunkTris(id)
		for i := 0; i < len(tris); i += 3 {
			all[triKey(tris[i:])]++
		}
	}
	require.Len(t, all, m.TriCount())
	for k, n := range all {
		require.Equal(t, 1, n, "%v", k)
	}

	// A query returns at least every triangle touching the rect.
	bmin, bmax := [2]float32{10.5, 20.5}, [2]float32{12.5, 22.5}
	got := map[[3]int32]bool{}
	for _, id := range cm.ChunksOverlappingRect(bmin, bmax) {
		tris := cm.ChunkTris(id)
		for i := 0; i < len(tris); i += 3 {
			got[triKey(tris[i:])] = true
		}
	}
	assert.Less(t, len(got), m.TriCount())
	for i := 0; i < len(m.Tris); i += 3 {
		tmin := [2]float32{1e9, 1e9}
		tmax := [2]float32{-1e9, -1e9}
		for _, vi := range m.Tris[i : i+3] {
			tmin[0] = min(tmin[0], m.Verts[vi*3])
			tmin[1] = min(tmin[1], m.Verts[vi*3+2])
			tmax[0] = max(tmax[0], m.Verts[vi*3])
			tmax[1] = max(tmax[1], m.Verts[vi*3+2])
		}
		if checkOverlapRect(bmin, bmax, tmin, tmax) {
			assert.True(t, got[triKey(m.Tris[i:])], "triangle %d missing", i/3)
		}
	}
}

func TestChunkyTriMeshEmpty(t *testing.T) {
	cm := NewChunkyTriMesh(nil, nil, TRIS_PER_CHUNK)
	assert.Empty(t, cm.ChunksOverlappingRect([2]float32{0, 0}, [2]float32{1, 1}))
}

func TestInputGeomApply(t *testing.T) {
	g := NewInputGeom(gridMesh(4))
	assert.Equal(t, recast.Bounds{Max: mgl32.Vec3{4, 0, 4}}, g.Bounds())
	assert.Equal(t, g.Bounds(), g.MeshBounds())
	assert.Equal(t, 32, g.Mesh().TriCount())
	assert.Len(t, g.QueryOverlapping([2]float32{0, 0}, [2]float32{4, 4}), 32*3)

	cfg := config.GeometryConfig{
		NavBoundsMin: &[3]float32{1, -1, 1},
		NavBoundsMax: &[3]float32{3, 1, 3},
		OffMeshConnections: []config.OffMeshConnection{
			{Start: [3]float32{1, 0, 1}, End: [3]float32{3, 0, 3}, Radius: 0.5, Bidir: true},
			{Start: [3]float32{2, 0, 1}, End: [3]float32{2, 0, 3}, Radius: 0.5, Area: "door"},
		},
		ConvexVolumes: []config.ConvexVolume{{
			Verts: [][3]float32{{0, 0, 0}, {0, 0, 2}, {2, 0, 2}},
			HMin:  -1,
			HMax:  1,
			Area:  "water",
		}},
	}
	require.NoError(t, g.Apply(cfg))

	assert.Equal(t, recast.Bounds{Min: mgl32.Vec3{1, -1, 1}, Max: mgl32.Vec3{3, 1, 3}}, g.Bounds())

	cons := g.OffMeshConnections()
	require.Len(t, cons, 2)
	assert.Equal(t, [6]float32{1, 0, 1, 3, 0, 3}, cons[0].Verts)
	assert.EqualValues(t, 1, cons[0].Dir)
	assert.EqualValues(t, recast.SAMPLE_POLYAREA_JUMP, cons[0].Area)
	assert.EqualValues(t, recast.SAMPLE_POLYFLAGS_JUMP, cons[0].Flags)
	assert.EqualValues(t, 1000, cons[0].UserID)
	assert.EqualValues(t, 0, cons[1].Dir)
	assert.EqualValues(t, recast.SAMPLE_POLYAREA_DOOR, cons[1].Area)
	assert.EqualValues(t, 1001, cons[1].UserID)

	vols := g.ConvexVolumes()
	require.Len(t, vols, 1)
	assert.Equal(t, 3, vols[0].NumVerts())
	assert.EqualValues(t, recast.SAMPLE_POLYAREA_WATER, vols[0].Area)
}

func TestInputGeomApplyRejects(t *testing.T) {
	g := NewInputGeom(gridMesh(1))
	err := g.Apply(config.GeometryConfig{OffMeshConnections: []config.OffMeshConnection{{Area: "lava"}}})
	require.Error(t, err)

	err = g.AddConvexVolume([]float32{0, 0, 0, 1, 0, 1}, 0, 1, 0)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(quadObj), 0o644))

	g, err := Load(config.GeometryConfig{Mesh: path, Scale: 1})
	require.NoError(t, err)
	assert.Equal(t, "quad.obj", g.Mesh().FileName)
	assert.Len(t, g.Verts(), 12)

	_, err = Load(config.GeometryConfig{Mesh: filepath.Join(dir, "missing.obj"), Scale: 1})
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(config.GeometryConfig{})
	require.ErrorIs(t, err, ErrMalformedMesh)
}
