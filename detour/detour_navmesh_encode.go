package detour

import (
	"fmt"

	"github.com/gorustyt/tilenav/common/rw"
)

// NavMeshData is the decoded form of one tile payload.
type NavMeshData struct {
	Header      *DtMeshHeader
	NavVerts    []float32
	NavPolys    []*DtPoly
	NavDMeshes  []*DtPolyDetail
	NavDVerts   []float32
	NavDTris    []uint8
	OffMeshCons []*DtOffMeshConnection
}

// dataSize is the payload size implied by a header. Every section is a
// multiple of four bytes so no padding is inserted between them.
func dataSize(h *DtMeshHeader) int64 {
	size := int64(rw.Align4(meshHeaderSize))
	size += int64(rw.Align4(4 * 3 * int(h.VertCount)))
	size += int64(rw.Align4(polySize * int(h.PolyCount)))
	size += int64(rw.Align4(polyDetailSize * int(h.DetailMeshCount)))
	size += int64(rw.Align4(4 * 3 * int(h.DetailVertCount)))
	size += int64(rw.Align4(4 * int(h.DetailTriCount)))
	size += int64(rw.Align4(offMeshConSize * int(h.OffMeshConCount)))
	return size
}

func (d *NavMeshData) ToBin() []byte {
	w := rw.NewBinWriter()
	d.Header.ToBin(w)
	w.Align4(meshHeaderSize)
	w.WriteFloat32s(d.NavVerts)
	for _, v := range d.NavPolys {
		v.ToBin(w)
	}
	for _, v := range d.NavDMeshes {
		v.ToBin(w)
	}
	w.WriteFloat32s(d.NavDVerts)
	w.WriteUInt8s(d.NavDTris)
	w.Align4(len(d.NavDTris))
	for _, v := range d.OffMeshCons {
		v.ToBin(w)
	}
	return w.GetWriteBytes()
}

// NavMeshDataFromBin decodes a tile payload. The header counts are checked
// against the buffer length before any section is allocated.
func NavMeshDataFromBin(data []byte) (*NavMeshData, error) {
	header, err := ReadMeshHeader(data)
	if err != nil {
		return nil, err
	}
	counts := []int32{header.PolyCount, header.VertCount, header.DetailMeshCount,
		header.DetailVertCount, header.DetailTriCount, header.OffMeshConCount, header.BvNodeCount}
	for _, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("%w: negative section count %d", ErrInvalidParam, c)
		}
	}
	if header.BvNodeCount != 0 {
		return nil, fmt.Errorf("%w: bounding volume trees are not stored", ErrInvalidParam)
	}
	if header.DetailMeshCount > header.PolyCount || header.OffMeshConCount > header.PolyCount {
		return nil, fmt.Errorf("%w: section counts exceed polygon count %d", ErrInvalidParam, header.PolyCount)
	}
	want := dataSize(header)
	if int64(len(data)) < want {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, want, len(data))
	}
	if int64(len(data)) > want {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidParam, int64(len(data))-want)
	}

	r := rw.NewBinReader(data[meshHeaderSize:])
	d := &NavMeshData{Header: header}
	d.NavVerts = make([]float32, 3*header.VertCount)
	r.ReadFloat32s(d.NavVerts)
	d.NavPolys = make([]*DtPoly, header.PolyCount)
	for i := range d.NavPolys {
		d.NavPolys[i] = (&DtPoly{}).FromBin(r)
	}
	d.NavDMeshes = make([]*DtPolyDetail, header.DetailMeshCount)
	for i := range d.NavDMeshes {
		d.NavDMeshes[i] = (&DtPolyDetail{}).FromBin(r)
	}
	d.NavDVerts = make([]float32, 3*header.DetailVertCount)
	r.ReadFloat32s(d.NavDVerts)
	d.NavDTris = make([]uint8, 4*header.DetailTriCount)
	r.ReadUInt8s(d.NavDTris)
	r.SkipAlign4(len(d.NavDTris))
	d.OffMeshCons = make([]*DtOffMeshConnection, header.OffMeshConCount)
	for i := range d.OffMeshCons {
		d.OffMeshCons[i] = (&DtOffMeshConnection{}).FromBin(r)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	for i, p := range d.NavPolys {
		if int(p.VertCount) > DT_VERTS_PER_POLYGON {
			return nil, fmt.Errorf("%w: poly %d has %d verts", ErrInvalidParam, i, p.VertCount)
		}
		for j := 0; j < int(p.VertCount); j++ {
			if int32(p.Verts[j]) >= header.VertCount {
				return nil, fmt.Errorf("%w: poly %d references vertex %d of %d", ErrInvalidParam, i, p.Verts[j], header.VertCount)
			}
		}
	}
	return d, nil
}
