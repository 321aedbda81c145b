package recast

import (
	"fmt"
	"strings"
)

const (
	/// Represents the null area.
	/// When a data element is given this value it is considered to no longer be
	/// assigned to a usable area.  (E.g. It is un-walkable.)
	RC_NULL_AREA = 0

	/// The default area id used to indicate a walkable polygon.
	/// This is also the maximum allowed area id.
	RC_WALKABLE_AREA = 63
)

// These are just sample areas to use consistent values across the build,
// the store and the config file.
const (
	SAMPLE_POLYAREA_GROUND = 0
	SAMPLE_POLYAREA_WATER  = 1
	SAMPLE_POLYAREA_ROAD   = 2
	SAMPLE_POLYAREA_DOOR   = 3
	SAMPLE_POLYAREA_GRASS  = 4
	SAMPLE_POLYAREA_JUMP   = 5
)

const (
	SAMPLE_POLYFLAGS_WALK     = 0x01   // Ability to walk (ground, grass, road)
	SAMPLE_POLYFLAGS_SWIM     = 0x02   // Ability to swim (water).
	SAMPLE_POLYFLAGS_DOOR     = 0x04   // Ability to move through doors.
	SAMPLE_POLYFLAGS_JUMP     = 0x08   // Ability to jump.
	SAMPLE_POLYFLAGS_DISABLED = 0x10   // Disabled polygon
	SAMPLE_POLYFLAGS_ALL      = 0xffff // All abilities.
)

var areaNames = map[string]uint8{
	"ground": SAMPLE_POLYAREA_GROUND,
	"water":  SAMPLE_POLYAREA_WATER,
	"road":   SAMPLE_POLYAREA_ROAD,
	"door":   SAMPLE_POLYAREA_DOOR,
	"grass":  SAMPLE_POLYAREA_GRASS,
	"jump":   SAMPLE_POLYAREA_JUMP,
}

// ParsePolyArea maps a config area name to its id. An empty name is def.
func ParsePolyArea(name string, def uint8) (uint8, error) {
	if name == "" {
		return def, nil
	}
	a, ok := areaNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown area %q", name)
	}
	return a, nil
}

// PolyFlagsForArea returns the traversal flags of a sample area.
func PolyFlagsForArea(area uint8) uint16 {
	switch area {
	case SAMPLE_POLYAREA_GROUND, SAMPLE_POLYAREA_GRASS, SAMPLE_POLYAREA_ROAD:
		return SAMPLE_POLYFLAGS_WALK
	case SAMPLE_POLYAREA_WATER:
		return SAMPLE_POLYFLAGS_SWIM
	case SAMPLE_POLYAREA_DOOR:
		return SAMPLE_POLYFLAGS_WALK | SAMPLE_POLYFLAGS_DOOR
	case SAMPLE_POLYAREA_JUMP:
		return SAMPLE_POLYFLAGS_JUMP
	}
	return 0
}

// ConvexVolume marks every walkable span inside a prism with an area id.
type ConvexVolume struct {
	Verts []float32 // xyz triples, only x and z are used
	HMin  float32
	HMax  float32
	Area  uint8
}

func (v *ConvexVolume) NumVerts() int {
	return len(v.Verts) / 3
}

// / Checks if a point is contained within a polygon
func pointInPoly(numVerts int, verts []float32, px, pz float32) bool {
	inPoly := false
	for i, j := 0, numVerts-1; i < numVerts; j, i = i, i+1 {
		vi := verts[i*3 : i*3+3]
		vj := verts[j*3 : j*3+3]
		if (vi[2] > pz) == (vj[2] > pz) {
			continue
		}
		if px >= (vj[0]-vi[0])*(pz-vi[2])/(vj[2]-vi[2])+vi[0] {
			continue
		}
		inPoly = !inPoly
	}
	return inPoly
}

// markConvexPolyArea applies the volume area to spans whose floor lies
// within the vertical range and whose cell centre is inside the polygon.
func (chf *compactHeightfield) markConvexPolyArea(vol *ConvexVolume) {
	numVerts := vol.NumVerts()
	if numVerts < 3 {
		return
	}
	bminX, bmaxX := vol.Verts[0], vol.Verts[0]
	bminZ, bmaxZ := vol.Verts[2], vol.Verts[2]
	for i := 1; i < numVerts; i++ {
		bminX = min(bminX, vol.Verts[i*3+0])
		bmaxX = max(bmaxX, vol.Verts[i*3+0])
		bminZ = min(bminZ, vol.Verts[i*3+2])
		bmaxZ = max(bmaxZ, vol.Verts[i*3+2])
	}

	// Compute the grid footprint of the polygon
	minx := int((bminX - chf.bmin[0]) / chf.cs)
	miny := int((vol.HMin - chf.bmin[1]) / chf.ch)
	minz := int((bminZ - chf.bmin[2]) / chf.cs)
	maxx := int((bmaxX - chf.bmin[0]) / chf.cs)
	maxy := int((vol.HMax - chf.bmin[1]) / chf.ch)
	maxz := int((bmaxZ - chf.bmin[2]) / chf.cs)

	// Early-out if the polygon lies entirely outside the grid.
	if maxx < 0 || minx >= chf.width || maxz < 0 || minz >= chf.height {
		return
	}
	minx = max(minx, 0)
	maxx = min(maxx, chf.width-1)
	minz = max(minz, 0)
	maxz = min(maxz, chf.height-1)

	for z := minz; z <= maxz; z++ {
		for x := minx; x <= maxx; x++ {
			cell := chf.cells[x+z*chf.width]
			for i := cell.index; i < cell.index+cell.count; i++ {
				span := &chf.spans[i]
				// Skip if span is removed.
				if span.area == RC_NULL_AREA {
					continue
				}
				// Skip if y extents don't overlap.
				if span.y < miny || span.y > maxy {
					continue
				}
				px := chf.bmin[0] + (float32(x)+0.5)*chf.cs
				pz := chf.bmin[2] + (float32(z)+0.5)*chf.cs
				if pointInPoly(numVerts, vol.Verts, px, pz) {
					span.area = vol.Area
				}
			}
		}
	}
}

// erodeWalkableArea removes walkable spans closer than radius cells to a
// boundary, measured in steps across connected spans.
func (chf *compactHeightfield) erodeWalkableArea(radius int) {
	if radius <= 0 {
		return
	}
	dist := make([]int, len(chf.spans))
	queue := make([]int, 0, len(chf.spans))
	for i := range chf.spans {
		dist[i] = -1
		span := &chf.spans[i]
		if span.area == RC_NULL_AREA {
			dist[i] = 0
			queue = append(queue, i)
			continue
		}
		// At least one missing neighbour, so this is a boundary span.
		for dir := 0; dir < 4; dir++ {
			n := span.con[dir]
			if n == notConnected || chf.spans[n].area == RC_NULL_AREA {
				dist[i] = 0
				queue = append(queue, i)
				break
			}
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for dir := 0; dir < 4; dir++ {
			n := chf.spans[i].con[dir]
			if n == notConnected || dist[n] != -1 {
				continue
			}
			dist[n] = dist[i] + 1
			queue = append(queue, n)
		}
	}
	for i := range chf.spans {
		if dist[i] >= 0 && dist[i] < radius {
			chf.spans[i].area = RC_NULL_AREA
		}
	}
}
