package tilemesh

import (
	"time"

	"github.com/gorustyt/tilenav/detour"
)

type TileStatus int

const (
	TileBuilt TileStatus = iota
	TileEmpty
	TileFailed
)

func (s TileStatus) String() string {
	switch s {
	case TileBuilt:
		return "built"
	case TileEmpty:
		return "empty"
	case TileFailed:
		return "failed"
	}
	return "unknown"
}

// TileBuildResult is the outcome of one tile build. Buffer is only set
// for built tiles and is consumed by the store when applied.
type TileBuildResult struct {
	Status TileStatus
	Coord  detour.TileCoord
	Buffer *detour.TileBuffer
	Err    error

	TriCount int
	Elapsed  time.Duration
}
