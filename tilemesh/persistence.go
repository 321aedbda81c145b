package tilemesh

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorustyt/tilenav/common/rw"
	"github.com/gorustyt/tilenav/detour"
	"github.com/klauspost/compress/zstd"
)

const (
	NAVMESHSET_MAGIC   = 'M'<<24 | 'S'<<16 | 'E'<<8 | 'T'
	NAVMESHSET_VERSION = 1

	navMeshSetHeaderSize  = 12 + 28
	navMeshTileHeaderSize = 8
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type NavMeshSetHeader struct {
	Magic    uint32
	Version  uint32
	NumTiles uint32
	Params   detour.NavMeshParams
}

func (n *NavMeshSetHeader) Encode(w *rw.ReaderWriter) {
	w.WriteUInt32(n.Magic)
	w.WriteUInt32(n.Version)
	w.WriteUInt32(n.NumTiles)
	n.Params.ToBin(w)
}

func (n *NavMeshSetHeader) Decode(r *rw.ReaderWriter) {
	n.Magic = r.ReadUInt32()
	n.Version = r.ReadUInt32()
	n.NumTiles = r.ReadUInt32()
	n.Params.FromBin(r)
}

type NavMeshTileHeader struct {
	TileRef  detour.TileRef
	DataSize uint32
}

func (n *NavMeshTileHeader) Encode(w *rw.ReaderWriter) {
	w.WriteUInt32(uint32(n.TileRef))
	w.WriteUInt32(n.DataSize)
}

func (n *NavMeshTileHeader) Decode(r *rw.ReaderWriter) {
	n.TileRef = detour.TileRef(r.ReadUInt32())
	n.DataSize = r.ReadUInt32()
}

// SaveTileSet writes the params and every populated tile of mesh.
func SaveTileSet(out io.Writer, mesh *detour.NavMesh) error {
	tiles := mesh.Tiles()
	w := rw.NewBinWriter()

	// Store header.
	header := NavMeshSetHeader{
		Magic:    NAVMESHSET_MAGIC,
		Version:  NAVMESHSET_VERSION,
		NumTiles: uint32(len(tiles)),
		Params:   mesh.Params(),
	}
	header.Encode(w)

	// Store tiles.
	for _, tile := range tiles {
		th := NavMeshTileHeader{TileRef: tile.Ref, DataSize: uint32(len(tile.Data))}
		th.Encode(w)
		w.WriteUInt8s(tile.Data)
	}
	if _, err := out.Write(w.GetWriteBytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// LoadTileSet reads a tile set into a new store. Nothing is returned
// unless every record decodes.
func LoadTileSet(in io.Reader) (*detour.NavMesh, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if len(data) < navMeshSetHeaderSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrSerialization, len(data))
	}
	r := rw.NewBinReader(data)

	// Read header.
	var header NavMeshSetHeader
	header.Decode(r)
	if header.Magic != NAVMESHSET_MAGIC {
		return nil, fmt.Errorf("%w: %w: magic %#x", ErrSerialization, detour.ErrWrongMagic, header.Magic)
	}
	if header.Version != NAVMESHSET_VERSION {
		return nil, fmt.Errorf("%w: %w: version %d", ErrSerialization, detour.ErrWrongVersion, header.Version)
	}
	if header.NumTiles > uint32(max(header.Params.MaxTiles, 0)) {
		return nil, fmt.Errorf("%w: %d tiles exceed max tiles %d", ErrSerialization, header.NumTiles, header.Params.MaxTiles)
	}
	mesh, err := detour.NewNavMesh(&header.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	// Read tiles.
	for i := uint32(0); i < header.NumTiles; i++ {
		if r.Len() < navMeshTileHeaderSize {
			return nil, fmt.Errorf("%w: tile %d: %w", ErrSerialization, i, detour.ErrTruncated)
		}
		var th NavMeshTileHeader
		th.Decode(r)
		if th.TileRef == 0 || th.DataSize == 0 {
			return nil, fmt.Errorf("%w: tile %d: empty record", ErrSerialization, i)
		}
		if uint64(th.DataSize) > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: tile %d: %w", ErrSerialization, i, detour.ErrTruncated)
		}
		payload := make([]byte, th.DataSize)
		r.ReadUInt8s(payload)
		if _, err := detour.NavMeshDataFromBin(payload); err != nil {
			return nil, fmt.Errorf("%w: tile %d: %w", ErrSerialization, i, err)
		}
		if _, err := mesh.AddTile(detour.NewTileBuffer(payload), th.TileRef); err != nil {
			return nil, fmt.Errorf("%w: tile %d: %w", ErrSerialization, i, err)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerialization, r.Len())
	}
	return mesh, nil
}

// SaveFile writes the tile set next to path and renames it into place.
// A ".zst" suffix compresses the file.
func SaveFile(path string, mesh *detour.NavMesh) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	var enc *zstd.Encoder
	defer func() {
		if err != nil {
			if enc != nil {
				enc.Close()
			}
			f.Close()
			os.Remove(f.Name())
		}
	}()

	var out io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		out = enc
	}
	if err = SaveTileSet(out, mesh); err != nil {
		return err
	}
	if enc != nil {
		err = enc.Close()
		enc = nil
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// LoadFile reads a tile set written by SaveFile, compressed or not.
func LoadFile(path string) (*detour.NavMesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
	}
	return LoadTileSet(bytes.NewReader(data))
}
