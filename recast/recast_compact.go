package recast

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common"
)

const notConnected = -1

var (
	offsetX = [4]int{-1, 0, 1, 0}
	offsetZ = [4]int{0, 1, 0, -1}
)

// / Gets the standard width (x-axis) offset for the specified direction.
func dirOffsetX(dir int) int {
	return offsetX[dir&0x03]
}

// / Gets the standard height (z-axis) offset for the specified direction.
func dirOffsetZ(dir int) int {
	return offsetZ[dir&0x03]
}

// / Represents a span of unobstructed space within a compact heightfield.
type compactSpan struct {
	x, z  int
	y     int    ///< The lower extent of the span. (Measured from the heightfield's base.)
	h     int    ///< The height of the span.  (Measured from #y.)
	con   [4]int ///< Neighbour span per direction, or notConnected.
	area  uint8
	reg   int // region id, 0 when unassigned
	layer int // index of the span within its column
}

type compactCell struct {
	index int ///< Index to the first span in the column.
	count int ///< Number of spans in the column.
}

// / A compact, static heightfield representing unobstructed space.
type compactHeightfield struct {
	width          int
	height         int
	borderSize     int
	walkableHeight int
	walkableClimb  int
	bmin           mgl32.Vec3
	bmax           mgl32.Vec3
	cs             float32
	ch             float32
	cells          []compactCell
	spans          []compactSpan
	maxRegions     int
}

// buildCompactHeightfield keeps the walkable spans of hf and links each to
// the neighbour a walker can step onto.
func buildCompactHeightfield(walkableHeight, walkableClimb, borderSize int, hf *heightfield) *compactHeightfield {
	chf := &compactHeightfield{
		width:          hf.width,
		height:         hf.height,
		borderSize:     borderSize,
		walkableHeight: walkableHeight,
		walkableClimb:  walkableClimb,
		bmin:           hf.bmin,
		bmax:           hf.bmax,
		cs:             hf.cs,
		ch:             hf.ch,
		cells:          make([]compactCell, hf.width*hf.height),
	}
	chf.bmax[1] += float32(walkableHeight) * hf.ch

	// Fill in cells and spans.
	for z := 0; z < hf.height; z++ {
		for x := 0; x < hf.width; x++ {
			cell := &chf.cells[x+z*hf.width]
			cell.index = len(chf.spans)
			for s := hf.spans[x+z*hf.width]; s != nil; s = s.next {
				if s.area == RC_NULL_AREA {
					continue
				}
				bot := s.smax
				top := MAX_HEIGHT
				if s.next != nil {
					top = s.next.smin
				}
				chf.spans = append(chf.spans, compactSpan{
					x:     x,
					z:     z,
					y:     common.Clamp(bot, 0, 0xffff),
					h:     common.Clamp(top-bot, 0, 0xff),
					con:   [4]int{notConnected, notConnected, notConnected, notConnected},
					area:  s.area,
					layer: cell.count,
				})
				cell.count++
			}
		}
	}

	// Find neighbour connections.
	for i := range chf.spans {
		s := &chf.spans[i]
		for dir := 0; dir < 4; dir++ {
			nx := s.x + dirOffsetX(dir)
			nz := s.z + dirOffsetZ(dir)
			// First check that the neighbour cell is in bounds.
			if nx < 0 || nz < 0 || nx >= chf.width || nz >= chf.height {
				continue
			}
			// Iterate over all neighbour spans and check if any of the is
			// accessible from current cell.
			nc := chf.cells[nx+nz*chf.width]
			for k := nc.index; k < nc.index+nc.count; k++ {
				ns := &chf.spans[k]
				bot := max(s.y, ns.y)
				top := min(s.y+s.h, ns.y+ns.h)
				// Check that the gap between the spans is walkable,
				// and that the climb height between the gaps is not too high.
				if top-bot >= walkableHeight && common.Abs(ns.y-s.y) <= walkableClimb {
					s.con[dir] = k
					break
				}
			}
		}
	}
	return chf
}

func (chf *compactHeightfield) inBorder(x, z int) bool {
	bs := chf.borderSize
	return x < bs || z < bs || x >= chf.width-bs || z >= chf.height-bs
}

// buildRegions flood fills connected spans that share an area id. Regions
// smaller than minRegionArea that do not reach the tile border are
// discarded, the rest are numbered from 1 in scan order.
func (chf *compactHeightfield) buildRegions(minRegionArea int) {
	for i := range chf.spans {
		chf.spans[i].reg = 0
	}
	var (
		nextReg = 1
		stack   []int
		members []int
	)
	for i := range chf.spans {
		s := &chf.spans[i]
		if s.area == RC_NULL_AREA || s.reg != 0 {
			continue
		}
		reg := nextReg
		members = members[:0]
		touchesBorder := false
		s.reg = reg
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			ci := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, ci)
			cs := &chf.spans[ci]
			if chf.inBorder(cs.x, cs.z) {
				touchesBorder = true
			}
			for dir := 0; dir < 4; dir++ {
				ni := cs.con[dir]
				if ni == notConnected {
					continue
				}
				ns := &chf.spans[ni]
				if ns.reg != 0 || ns.area != cs.area {
					continue
				}
				ns.reg = reg
				stack = append(stack, ni)
			}
		}
		// Remove too small regions that are not cut by the tile border.
		if len(members) < minRegionArea && !touchesBorder {
			for _, m := range members {
				chf.spans[m].reg = 0
				chf.spans[m].area = RC_NULL_AREA
			}
			continue
		}
		nextReg++
	}
	chf.maxRegions = nextReg - 1
}
