package detour

import "errors"

var (
	ErrFailure        = errors.New("detour: operation failed")
	ErrWrongMagic     = errors.New("detour: input data is not recognized")
	ErrWrongVersion   = errors.New("detour: input data is in wrong version")
	ErrInvalidParam   = errors.New("detour: an input parameter was invalid")
	ErrOutOfTiles     = errors.New("detour: no free tile slot left")
	ErrBufferConsumed = errors.New("detour: tile buffer already consumed")
	ErrTileExists     = errors.New("detour: a tile already occupies the location")
	ErrTruncated      = errors.New("detour: tile data is truncated")
)
