package recast

import "github.com/gorustyt/tilenav/common"

// Open space above the highest span of a column.
const MAX_HEIGHT = 0xffff

// filterLowHangingWalkableObstacles marks non-walkable spans as walkable if
// their maximum is within walkableClimb of a walkable neighbour below.
func (hf *heightfield) filterLowHangingWalkableObstacles(walkableClimb int) {
	for z := 0; z < hf.height; z++ {
		for x := 0; x < hf.width; x++ {
			var previousSpan *rcSpan
			previousWasWalkable := false
			previousArea := uint8(RC_NULL_AREA)

			for span := hf.spans[x+z*hf.width]; span != nil; span = span.next {
				walkable := span.area != RC_NULL_AREA
				// If current span is not walkable, but there is walkable
				// span just below it, mark the span above it walkable too.
				if !walkable && previousWasWalkable {
					if common.Abs(span.smax-previousSpan.smax) <= walkableClimb {
						span.area = previousArea
					}
				}
				// Copy walkable flag so that it cannot propagate
				// past multiple non-walkable objects.
				previousWasWalkable = walkable
				previousArea = span.area
				previousSpan = span
			}
		}
	}
}

// filterLedgeSpans marks spans that are ledges as not-walkable.
func (hf *heightfield) filterLedgeSpans(walkableHeight, walkableClimb int) {
	xSize := hf.width
	zSize := hf.height

	// Mark border spans.
	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			for span := hf.spans[x+z*xSize]; span != nil; span = span.next {
				// Skip non walkable spans.
				if span.area == RC_NULL_AREA {
					continue
				}

				bot := span.smax
				top := MAX_HEIGHT
				if span.next != nil {
					top = span.next.smin
				}
				// Find neighbours minimum height.
				minNeighborHeight := MAX_HEIGHT

				// Min and max height of accessible neighbours.
				accessibleNeighborMinHeight := span.smax
				accessibleNeighborMaxHeight := span.smax

				for direction := 0; direction < 4; direction++ {
					dx := x + dirOffsetX(direction)
					dz := z + dirOffsetZ(direction)
					// Skip neighbours which are out of bounds.
					if dx < 0 || dz < 0 || dx >= xSize || dz >= zSize {
						minNeighborHeight = min(minNeighborHeight, -walkableClimb-bot)
						continue
					}

					// From minus infinity to the first span.
					neighborSpan := hf.spans[dx+dz*xSize]
					neighborBot := -walkableClimb
					neighborTop := MAX_HEIGHT
					if neighborSpan != nil {
						neighborTop = neighborSpan.smin
					}
					// Skip neighbour if the gap between the spans is too small.
					if min(top, neighborTop)-max(bot, neighborBot) > walkableHeight {
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
					}

					// Rest of the spans.
					for ; neighborSpan != nil; neighborSpan = neighborSpan.next {
						neighborBot = neighborSpan.smax
						neighborTop = MAX_HEIGHT
						if neighborSpan.next != nil {
							neighborTop = neighborSpan.next.smin
						}

						// Skip neighbour if the gap between the spans is too small.
						if min(top, neighborTop)-max(bot, neighborBot) <= walkableHeight {
							continue
						}
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)

						// Find min/max accessible neighbour height.
						if common.Abs(neighborBot-bot) <= walkableClimb {
							accessibleNeighborMinHeight = min(accessibleNeighborMinHeight, neighborBot)
							accessibleNeighborMaxHeight = max(accessibleNeighborMaxHeight, neighborBot)
						}
					}
				}

				if minNeighborHeight < -walkableClimb {
					// The current span is close to a ledge if the drop to any
					// neighbour span is less than the walkableClimb.
					span.area = RC_NULL_AREA
				} else if accessibleNeighborMaxHeight-accessibleNeighborMinHeight > walkableClimb {
					// If the difference between all neighbours is too large,
					// we are at steep slope, mark the span as ledge.
					span.area = RC_NULL_AREA
				}
			}
		}
	}
}

// filterWalkableLowHeightSpans removes the walkable flag from spans which do
// not have enough space above them for the agent to stand there.
func (hf *heightfield) filterWalkableLowHeightSpans(walkableHeight int) {
	for z := 0; z < hf.height; z++ {
		for x := 0; x < hf.width; x++ {
			for span := hf.spans[x+z*hf.width]; span != nil; span = span.next {
				bot := span.smax
				top := MAX_HEIGHT
				if span.next != nil {
					top = span.next.smin
				}
				if top-bot < walkableHeight {
					span.area = RC_NULL_AREA
				}
			}
		}
	}
}
