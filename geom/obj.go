package geom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorustyt/tilenav/common"
)

// ErrMalformedMesh is returned for OBJ input that cannot be parsed.
var ErrMalformedMesh = errors.New("malformed mesh")

// Faces with more corners than this are truncated.
const maxFaceVerts = 32

// ObjMesh is a triangle soup loaded from a Wavefront OBJ file.
type ObjMesh struct {
	FileName string
	Verts    []float32
	Tris     []int32
	Normals  []float32
}

func (m *ObjMesh) VertCount() int { return len(m.Verts) / 3 }
func (m *ObjMesh) TriCount() int  { return len(m.Tris) / 3 }

// LoadObjFile loads the vertices and faces of an OBJ file, scaling every
// position by scale.
func LoadObjFile(path string, scale float32) (*ObjMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := LoadObj(f, scale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.FileName = filepath.Base(path)
	return m, nil
}

// LoadObj reads "v" and "f" records. Polygon faces are fanned into
// triangles and faces referencing missing vertices are dropped.
func LoadObj(r io.Reader, scale float32) (*ObjMesh, error) {
	m := &ObjMesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		var err error
		switch fields[0] {
		case "v":
			err = m.parseVertex(fields[1:], scale)
		case "f":
			err = m.parseFace(fields[1:])
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedMesh, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	m.calcNormals()
	return m, nil
}

func (m *ObjMesh) parseVertex(fields []string, scale float32) error {
	if len(fields) < 3 {
		return fmt.Errorf("vertex has %d components", len(fields))
	}
	var v [3]float32
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return err
		}
		v[i] = float32(f) * scale
	}
	m.Verts = append(m.Verts, v[0], v[1], v[2])
	return nil
}

func (m *ObjMesh) parseFace(fields []string) error {
	vertCount := m.VertCount()
	var face []int
	for _, f := range fields {
		// v, v/vt, v//vn or v/vt/vn
		vs := strings.SplitN(f, "/", 2)
		vi, err := strconv.Atoi(vs[0])
		if err != nil {
			return err
		}
		if vi < 0 {
			vi += vertCount
		} else {
			vi--
		}
		face = append(face, vi)
		if len(face) >= maxFaceVerts {
			break
		}
	}
	for i := 2; i < len(face); i++ {
		a, b, c := face[0], face[i-1], face[i]
		if a < 0 || a >= vertCount || b < 0 || b >= vertCount || c < 0 || c >= vertCount {
			continue
		}
		m.Tris = append(m.Tris, int32(a), int32(b), int32(c))
	}
	return nil
}

func (m *ObjMesh) calcNormals() {
	m.Normals = make([]float32, len(m.Tris))
	for i := 0; i < len(m.Tris); i += 3 {
		v0 := common.Vec3At(m.Verts, m.Tris[i])
		v1 := common.Vec3At(m.Verts, m.Tris[i+1])
		v2 := common.Vec3At(m.Verts, m.Tris[i+2])
		n := v1.Sub(v0).Cross(v2.Sub(v0))
		if d := n.Len(); d > 0 {
			n = n.Mul(1 / d)
		}
		copy(m.Normals[i:i+3], n[:])
	}
}
