package detour

import (
	"fmt"
	"math"
	"sync"
)

// MeshTile is one slot of the store. Slots are reused through a free list
// and their salt changes on every removal so stale references are detected.
type MeshTile struct {
	salt   uint32
	index  uint32
	Header *DtMeshHeader
	Data   []byte
	next   *MeshTile
}

// TileEntry is a snapshot of one populated tile.
type TileEntry struct {
	Ref   TileRef
	Coord TileCoord
	Data  []byte
}

// NavMesh owns every tile payload once added. Writers are serialised by an
// internal lock and readers may enumerate concurrently. Returned payloads
// are shared with the store and must not be modified.
type NavMesh struct {
	mu sync.RWMutex

	params   NavMeshParams
	tileBits uint32
	polyBits uint32
	saltBits uint32

	tiles     []*MeshTile
	nextFree  *MeshTile
	posLookup map[TileCoord]*MeshTile
}

// NewNavMesh initializes the navigation mesh for tiled use.
func NewNavMesh(params *NavMeshParams) (*NavMesh, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidParam)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	mesh := &NavMesh{
		params:    *params,
		tileBits:  params.TileBits(),
		polyBits:  params.PolyBits(),
		tiles:     make([]*MeshTile, params.MaxTiles),
		posLookup: make(map[TileCoord]*MeshTile),
	}
	// Only allow 31 salt bits, since the salt mask is calculated using 32bit uint and it will overflow.
	mesh.saltBits = min(31, 32-mesh.tileBits-mesh.polyBits)
	if mesh.saltBits < DT_MIN_SALT_BITS {
		return nil, fmt.Errorf("%w: only %d salt bits", ErrInvalidParam, mesh.saltBits)
	}

	for i := len(mesh.tiles) - 1; i >= 0; i-- {
		mesh.tiles[i] = &MeshTile{salt: 1, index: uint32(i), next: mesh.nextFree}
		mesh.nextFree = mesh.tiles[i]
	}
	return mesh, nil
}

func (mesh *NavMesh) Params() NavMeshParams {
	return mesh.params
}

func (mesh *NavMesh) TileBits() uint32 { return mesh.tileBits }
func (mesh *NavMesh) PolyBits() uint32 { return mesh.polyBits }

// / Derives a standard polygon reference.
func (mesh *NavMesh) EncodePolyId(salt, it, ip uint32) PolyRef {
	return PolyRef(salt<<(mesh.polyBits+mesh.tileBits) | it<<mesh.polyBits | ip)
}

// / Decodes a standard polygon reference.
func (mesh *NavMesh) DecodePolyId(ref PolyRef) (salt, it, ip uint32) {
	saltMask := uint32(1)<<mesh.saltBits - 1
	tileMask := uint32(1)<<mesh.tileBits - 1
	polyMask := uint32(1)<<mesh.polyBits - 1
	salt = (uint32(ref) >> (mesh.polyBits + mesh.tileBits)) & saltMask
	it = (uint32(ref) >> mesh.polyBits) & tileMask
	ip = uint32(ref) & polyMask
	return
}

func (mesh *NavMesh) tileRef(tile *MeshTile) TileRef {
	return TileRef(mesh.EncodePolyId(tile.salt, tile.index, 0))
}

// CalcTileLoc returns the grid location of a world position.
func (mesh *NavMesh) CalcTileLoc(pos [3]float32) (tx, ty int32) {
	tx = int32(math.Floor(float64((pos[0] - mesh.params.Orig[0]) / mesh.params.TileWidth)))
	ty = int32(math.Floor(float64((pos[2] - mesh.params.Orig[2]) / mesh.params.TileHeight)))
	return tx, ty
}

// checkPayload validates a payload's header against the store budgets.
func (mesh *NavMesh) checkPayload(data []byte) (*DtMeshHeader, error) {
	header, err := ReadMeshHeader(data)
	if err != nil {
		return nil, err
	}
	// Do not allow adding more polygons than the poly bits can index.
	if header.PolyCount < 0 || uint32(header.PolyCount) > uint32(1)<<mesh.polyBits {
		return nil, fmt.Errorf("%w: %d polygons exceed the %d bit poly budget", ErrInvalidParam, header.PolyCount, mesh.polyBits)
	}
	return header, nil
}

// Replace installs a payload at coord, releasing any previous tile there.
// The buffer is consumed even when the payload is rejected.
func (mesh *NavMesh) Replace(coord TileCoord, buf *TileBuffer) (TileRef, error) {
	data, err := buf.take()
	if err != nil {
		return 0, err
	}
	header, err := mesh.checkPayload(data)
	if err != nil {
		return 0, err
	}
	if header.Coord() != coord {
		return 0, fmt.Errorf("%w: payload is tile %v, not %v", ErrInvalidParam, header.Coord(), coord)
	}

	mesh.mu.Lock()
	defer mesh.mu.Unlock()
	if old, ok := mesh.posLookup[coord]; ok {
		mesh.removeLocked(old)
	}
	tile := mesh.nextFree
	if tile == nil {
		return 0, ErrOutOfTiles
	}
	mesh.nextFree = tile.next
	return mesh.installLocked(tile, header, data), nil
}

// AddTile installs a payload at a free location. A non-zero lastRef puts the
// tile back into the slot and salt it had when it was saved.
func (mesh *NavMesh) AddTile(buf *TileBuffer, lastRef TileRef) (TileRef, error) {
	data, err := buf.take()
	if err != nil {
		return 0, err
	}
	header, err := mesh.checkPayload(data)
	if err != nil {
		return 0, err
	}

	mesh.mu.Lock()
	defer mesh.mu.Unlock()
	if _, ok := mesh.posLookup[header.Coord()]; ok {
		return 0, fmt.Errorf("%w: %v", ErrTileExists, header.Coord())
	}

	var tile *MeshTile
	if lastRef == 0 {
		tile = mesh.nextFree
		if tile == nil {
			return 0, ErrOutOfTiles
		}
		mesh.nextFree = tile.next
	} else {
		// Try to relocate the tile to specific index with same salt.
		salt, tileIndex, _ := mesh.DecodePolyId(PolyRef(lastRef))
		if salt == 0 || tileIndex >= uint32(len(mesh.tiles)) {
			return 0, fmt.Errorf("%w: reference %#x", ErrInvalidParam, lastRef)
		}
		target := mesh.tiles[tileIndex]
		var prev *MeshTile
		tile = mesh.nextFree
		for tile != nil && tile != target {
			prev = tile
			tile = tile.next
		}
		// Could not find the correct location.
		if tile != target {
			return 0, fmt.Errorf("%w: slot %d is in use", ErrOutOfTiles, tileIndex)
		}
		if prev == nil {
			mesh.nextFree = tile.next
		} else {
			prev.next = tile.next
		}
		tile.salt = salt
	}
	return mesh.installLocked(tile, header, data), nil
}

func (mesh *NavMesh) installLocked(tile *MeshTile, header *DtMeshHeader, data []byte) TileRef {
	tile.next = nil
	tile.Header = header
	tile.Data = data
	mesh.posLookup[header.Coord()] = tile
	return mesh.tileRef(tile)
}

func (mesh *NavMesh) removeLocked(tile *MeshTile) {
	delete(mesh.posLookup, tile.Header.Coord())
	tile.Header = nil
	tile.Data = nil

	// Update salt, salt should never be zero.
	tile.salt = (tile.salt + 1) & (uint32(1)<<mesh.saltBits - 1)
	if tile.salt == 0 {
		tile.salt++
	}
	tile.next = mesh.nextFree
	mesh.nextFree = tile
}

// Remove releases the tile at coord. It reports whether a tile was present.
func (mesh *NavMesh) Remove(coord TileCoord) bool {
	mesh.mu.Lock()
	defer mesh.mu.Unlock()
	tile, ok := mesh.posLookup[coord]
	if !ok {
		return false
	}
	mesh.removeLocked(tile)
	return true
}

// RemoveAll releases every tile inside a gridW x gridH grid, on all layers.
func (mesh *NavMesh) RemoveAll(gridW, gridH int32) int {
	mesh.mu.Lock()
	defer mesh.mu.Unlock()
	removed := 0
	for _, tile := range mesh.tiles {
		if tile.Header == nil {
			continue
		}
		if tile.Header.X >= 0 && tile.Header.X < gridW && tile.Header.Y >= 0 && tile.Header.Y < gridH {
			mesh.removeLocked(tile)
			removed++
		}
	}
	return removed
}

// Clear releases every tile.
func (mesh *NavMesh) Clear() {
	mesh.mu.Lock()
	defer mesh.mu.Unlock()
	for _, tile := range mesh.tiles {
		if tile.Header != nil {
			mesh.removeLocked(tile)
		}
	}
}

func (mesh *NavMesh) Get(coord TileCoord) ([]byte, bool) {
	mesh.mu.RLock()
	defer mesh.mu.RUnlock()
	tile, ok := mesh.posLookup[coord]
	if !ok {
		return nil, false
	}
	return tile.Data, true
}

func (mesh *NavMesh) GetTileRefAt(coord TileCoord) TileRef {
	mesh.mu.RLock()
	defer mesh.mu.RUnlock()
	tile, ok := mesh.posLookup[coord]
	if !ok {
		return 0
	}
	return mesh.tileRef(tile)
}

// GetTileByRef returns the payload of a live reference; stale references
// fail the salt check.
func (mesh *NavMesh) GetTileByRef(ref TileRef) ([]byte, bool) {
	if ref == 0 {
		return nil, false
	}
	salt, tileIndex, _ := mesh.DecodePolyId(PolyRef(ref))
	mesh.mu.RLock()
	defer mesh.mu.RUnlock()
	if tileIndex >= uint32(len(mesh.tiles)) {
		return nil, false
	}
	tile := mesh.tiles[tileIndex]
	if tile.salt != salt || tile.Header == nil {
		return nil, false
	}
	return tile.Data, true
}

func (mesh *NavMesh) TileCount() int {
	mesh.mu.RLock()
	defer mesh.mu.RUnlock()
	return len(mesh.posLookup)
}

// Tiles enumerates populated tiles in slot order.
func (mesh *NavMesh) Tiles() []TileEntry {
	mesh.mu.RLock()
	defer mesh.mu.RUnlock()
	out := make([]TileEntry, 0, len(mesh.posLookup))
	for _, tile := range mesh.tiles {
		if tile.Header == nil {
			continue
		}
		out = append(out, TileEntry{Ref: mesh.tileRef(tile), Coord: tile.Header.Coord(), Data: tile.Data})
	}
	return out
}
