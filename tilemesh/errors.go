package tilemesh

import (
	"errors"

	"github.com/gorustyt/tilenav/config"
	"github.com/gorustyt/tilenav/recast"
)

var (
	ErrConfig              = config.ErrInvalid
	ErrGeometryUnavailable = errors.New("tilemesh: no geometry loaded")
	ErrEmptyRegion         = recast.ErrEmptyRegion
	ErrTooManyVertices     = errors.New("tilemesh: too many vertices per tile")
	ErrStepFailure         = recast.ErrStepFailure
	ErrSerialization       = errors.New("tilemesh: malformed tile set")
	ErrIO                  = errors.New("tilemesh: i/o failure")
	ErrBuildInProgress     = errors.New("tilemesh: a bulk build is running")
)
