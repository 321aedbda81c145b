package recast

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/tilenav/common"
)

// Defines the number of bits allocated to rcSpan::smin and rcSpan::smax.
const RC_SPAN_HEIGHT_BITS = 13

// Defines the maximum value for rcSpan::smin and rcSpan::smax.
const RC_SPAN_MAX_HEIGHT = (1 << RC_SPAN_HEIGHT_BITS) - 1

// / Represents a span in a heightfield.
type rcSpan struct {
	smin int     ///< The lower limit of the span. [Limit: < #smax]
	smax int     ///< The upper limit of the span. [Limit: <= #RC_SPAN_MAX_HEIGHT]
	area uint8   ///< The area id assigned to the span.
	next *rcSpan ///< The next span higher up in column.
}

// / A dynamic heightfield representing obstructed space.
type heightfield struct {
	width  int        ///< The width of the heightfield. (Along the x-axis in cell units.)
	height int        ///< The height of the heightfield. (Along the z-axis in cell units.)
	bmin   mgl32.Vec3 ///< The minimum bounds in world space. [(x, y, z)]
	bmax   mgl32.Vec3 ///< The maximum bounds in world space. [(x, y, z)]
	cs     float32    ///< The size of each cell. (On the xz-plane.)
	ch     float32    ///< The height of each cell. (The minimum increment along the y-axis.)
	spans  []*rcSpan  ///< Heightfield of spans (width*height).
	free   *rcSpan
}

func newHeightfield(cfg *Config) *heightfield {
	return &heightfield{
		width:  cfg.Width,
		height: cfg.Height,
		bmin:   cfg.Bmin,
		bmax:   cfg.Bmax,
		cs:     cfg.Cs,
		ch:     cfg.Ch,
		spans:  make([]*rcSpan, cfg.Width*cfg.Height),
	}
}

func (hf *heightfield) allocSpan() *rcSpan {
	if s := hf.free; s != nil {
		hf.free = s.next
		*s = rcSpan{}
		return s
	}
	return &rcSpan{}
}

func (hf *heightfield) freeSpan(s *rcSpan) {
	s.next = hf.free
	hf.free = s
}

// / Check whether two bounding boxes overlap
func overlapBounds(aMin, aMax, bMin, bMax mgl32.Vec3) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}

type rcAxis int

const (
	RC_AXIS_X rcAxis = 0
	RC_AXIS_Y rcAxis = 1
	RC_AXIS_Z rcAxis = 2
)

// / Divides a convex polygon of max 12 vertices into two convex polygons
// / across a separating axis.
// / Vertices on the positive side of axisOffset go to outVerts1.
func dividePoly(inVerts []float32, inVertsCount int, outVerts1, outVerts2 []float32, axisOffset float32, axis rcAxis) (n1, n2 int) {
	// How far positive or negative away from the separating axis is each vertex.
	var inVertAxisDelta [12]float32
	for inVert := 0; inVert < inVertsCount; inVert++ {
		inVertAxisDelta[inVert] = axisOffset - inVerts[inVert*3+int(axis)]
	}

	for inVertA, inVertB := 0, inVertsCount-1; inVertA < inVertsCount; inVertB, inVertA = inVertA, inVertA+1 {
		// If the two vertices are on the same side of the separating axis
		sameSide := (inVertAxisDelta[inVertA] >= 0) == (inVertAxisDelta[inVertB] >= 0)
		if !sameSide {
			s := inVertAxisDelta[inVertB] / (inVertAxisDelta[inVertB] - inVertAxisDelta[inVertA])
			for k := 0; k < 3; k++ {
				v := inVerts[inVertB*3+k] + (inVerts[inVertA*3+k]-inVerts[inVertB*3+k])*s
				outVerts1[n1*3+k] = v
				outVerts2[n2*3+k] = v
			}
			n1++
			n2++

			// add the inVertA point to the right polygon. Do NOT add points that are on the dividing line
			// since these were already added above
			if inVertAxisDelta[inVertA] > 0 {
				copy(outVerts1[n1*3:n1*3+3], inVerts[inVertA*3:inVertA*3+3])
				n1++
			} else if inVertAxisDelta[inVertA] < 0 {
				copy(outVerts2[n2*3:n2*3+3], inVerts[inVertA*3:inVertA*3+3])
				n2++
			}
			continue
		}
		// add the inVertA point to the right polygon. Addition is done even for points on the dividing line
		if inVertAxisDelta[inVertA] >= 0 {
			copy(outVerts1[n1*3:n1*3+3], inVerts[inVertA*3:inVertA*3+3])
			n1++
			if inVertAxisDelta[inVertA] != 0 {
				continue
			}
		}
		copy(outVerts2[n2*3:n2*3+3], inVerts[inVertA*3:inVertA*3+3])
		n2++
	}
	return n1, n2
}

// / Adds a span to the heightfield.  If the new span overlaps existing spans,
// / it will merge the new span with the existing ones.
func (hf *heightfield) addSpan(x, z, smin, smax int, areaID uint8, flagMergeThreshold int) {
	newSpan := hf.allocSpan()
	newSpan.smin = smin
	newSpan.smax = smax
	newSpan.area = areaID

	columnIndex := x + z*hf.width
	var previousSpan *rcSpan
	currentSpan := hf.spans[columnIndex]

	// Insert the new span, possibly merging it with existing spans.
	for currentSpan != nil {
		if currentSpan.smin > newSpan.smax {
			// Current span is completely after the new span, break.
			break
		}
		if currentSpan.smax < newSpan.smin {
			// Current span is completely before the new span.  Keep going.
			previousSpan = currentSpan
			currentSpan = currentSpan.next
			continue
		}
		// The new span overlaps with an existing span.  Merge them.
		newSpan.smin = min(newSpan.smin, currentSpan.smin)
		newSpan.smax = max(newSpan.smax, currentSpan.smax)

		// Merge flags.
		if common.Abs(newSpan.smax-currentSpan.smax) <= flagMergeThreshold {
			// Higher area ID numbers indicate higher resolution priority.
			newSpan.area = max(newSpan.area, currentSpan.area)
		}

		// Remove the current span since it's now merged with newSpan.
		// Keep going because there might be other overlapping spans that also need to be merged.
		next := currentSpan.next
		hf.freeSpan(currentSpan)
		if previousSpan != nil {
			previousSpan.next = next
		} else {
			hf.spans[columnIndex] = next
		}
		currentSpan = next
	}

	// Insert new span after prev
	if previousSpan != nil {
		newSpan.next = previousSpan.next
		previousSpan.next = newSpan
	} else {
		// This span should go before the others in the list
		newSpan.next = hf.spans[columnIndex]
		hf.spans[columnIndex] = newSpan
	}
}

// /	Rasterize a single triangle to the heightfield.
func (hf *heightfield) rasterizeTri(v0, v1, v2 mgl32.Vec3, areaID uint8, inverseCellSize, inverseCellHeight float32, flagMergeThreshold int) {
	// Calculate the bounding box of the triangle.
	triBBMin, triBBMax := v0, v0
	common.Vmin(triBBMin[:], v1[:])
	common.Vmin(triBBMin[:], v2[:])
	common.Vmax(triBBMax[:], v1[:])
	common.Vmax(triBBMax[:], v2[:])

	// If the triangle does not touch the bounding box of the heightfield, skip the triangle.
	if !overlapBounds(triBBMin, triBBMax, hf.bmin, hf.bmax) {
		return
	}

	w := hf.width
	h := hf.height
	by := hf.bmax[1] - hf.bmin[1]

	// Calculate the footprint of the triangle on the grid's z-axis
	z0 := int((triBBMin[2] - hf.bmin[2]) * inverseCellSize)
	z1 := int((triBBMax[2] - hf.bmin[2]) * inverseCellSize)

	// use -1 rather than 0 to cut the polygon properly at the start of the tile
	z0 = common.Clamp(z0, -1, h-1)
	z1 = common.Clamp(z1, 0, h-1)

	// Clip the triangle into all grid cells it touches.
	var buf [7 * 3 * 4]float32
	in := buf[0 : 7*3]
	inRow := buf[7*3 : 14*3]
	p1 := buf[14*3 : 21*3]
	p2 := buf[21*3 : 28*3]

	copy(in[0:], v0[:])
	copy(in[3:], v1[:])
	copy(in[6:], v2[:])
	nvIn := 3
	var nvRow int

	for z := z0; z <= z1; z++ {
		// Clip polygon to row. Store the remaining polygon as well
		cellZ := hf.bmin[2] + float32(z)*hf.cs
		nvRow, nvIn = dividePoly(in, nvIn, inRow, p1, cellZ+hf.cs, RC_AXIS_Z)
		in, p1 = p1, in

		if nvRow < 3 || z < 0 {
			continue
		}

		// find X-axis bounds of the row
		minX, maxX := inRow[0], inRow[0]
		for vert := 1; vert < nvRow; vert++ {
			minX = min(minX, inRow[vert*3])
			maxX = max(maxX, inRow[vert*3])
		}
		x0 := int((minX - hf.bmin[0]) * inverseCellSize)
		x1 := int((maxX - hf.bmin[0]) * inverseCellSize)
		if x1 < 0 || x0 >= w {
			continue
		}
		x0 = common.Clamp(x0, -1, w-1)
		x1 = common.Clamp(x1, 0, w-1)

		var nv int
		nv2 := nvRow
		rowIn := inRow
		for x := x0; x <= x1; x++ {
			// Clip polygon to column. store the remaining polygon as well
			cx := hf.bmin[0] + float32(x)*hf.cs
			nv, nv2 = dividePoly(rowIn, nv2, p1, p2, cx+hf.cs, RC_AXIS_X)
			rowIn, p2 = p2, rowIn

			if nv < 3 || x < 0 {
				continue
			}

			// Calculate min and max of the span.
			spanMin, spanMax := p1[1], p1[1]
			for vert := 1; vert < nv; vert++ {
				spanMin = min(spanMin, p1[vert*3+1])
				spanMax = max(spanMax, p1[vert*3+1])
			}
			spanMin -= hf.bmin[1]
			spanMax -= hf.bmin[1]

			// Skip the span if it's completely outside the heightfield bounding box
			if spanMax < 0 || spanMin > by {
				continue
			}

			// Clamp the span to the heightfield bounding box.
			spanMin = max(spanMin, 0)
			spanMax = min(spanMax, by)

			// Snap the span to the heightfield height grid.
			spanMinCellIndex := common.Clamp(int(math.Floor(float64(spanMin*inverseCellHeight))), 0, RC_SPAN_MAX_HEIGHT)
			spanMaxCellIndex := common.Clamp(int(math.Ceil(float64(spanMax*inverseCellHeight))), spanMinCellIndex+1, RC_SPAN_MAX_HEIGHT)

			hf.addSpan(x, z, spanMinCellIndex, spanMaxCellIndex, areaID, flagMergeThreshold)
		}
		inRow = rowIn
	}
}

// rasterizeTriangles rasterizes indexed triangles with their area ids.
func (hf *heightfield) rasterizeTriangles(verts []float32, tris []int32, areas []uint8, flagMergeThreshold int) error {
	if len(areas) != len(tris)/3 {
		return fmt.Errorf("%w: %d area ids for %d triangles", ErrStepFailure, len(areas), len(tris)/3)
	}
	inverseCellSize := 1.0 / hf.cs
	inverseCellHeight := 1.0 / hf.ch
	for i := range areas {
		hf.rasterizeTri(common.Vec3At(verts, tris[i*3+0]), common.Vec3At(verts, tris[i*3+1]), common.Vec3At(verts, tris[i*3+2]),
			areas[i], inverseCellSize, inverseCellHeight, flagMergeThreshold)
	}
	return nil
}
