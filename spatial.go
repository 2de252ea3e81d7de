package main

const (
	SpatialCellSize = 80.0 // larger than any non-boss enemy diameter
	SpatialCols     = 10   // ceil(FieldWidth/SpatialCellSize)
	SpatialRows     = 8    // ceil(FieldHeight/SpatialCellSize)
)

// EntityRef identifies an entity in the grid
type EntityRef struct {
	Kind byte // 'm'=mob, 'k'=pickup
	Idx  int  // index into the corresponding flat list
}

// SpatialGrid is a fixed-size grid for broad-phase collision queries
type SpatialGrid struct {
	cells [SpatialCols * SpatialRows][]EntityRef
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// cellRange returns the cell bounds covering a circle's bounding box. Anything
// outside the field is clamped into the nearest edge cell.
func cellRange(x, y, radius float64) (minCX, maxCX, minCY, maxCY int) {
	clampCell := func(v float64, n int) int {
		c := int(v / SpatialCellSize)
		if v < 0 {
			c = 0
		}
		if c >= n {
			c = n - 1
		}
		return c
	}
	return clampCell(x-radius, SpatialCols), clampCell(x+radius, SpatialCols),
		clampCell(y-radius, SpatialRows), clampCell(y+radius, SpatialRows)
}

// InsertCircle adds an entity reference to all cells overlapping its bounding box
func (g *SpatialGrid) InsertCircle(x, y, radius float64, ref EntityRef) {
	minCX, maxCX, minCY, maxCY := cellRange(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			idx := cy*SpatialCols + cx
			g.cells[idx] = append(g.cells[idx], ref)
		}
	}
}

// QueryBuf appends refs in cells overlapping the circle's bounding box to buf
// and returns the extended slice. A ref inserted into several cells may
// appear more than once.
func (g *SpatialGrid) QueryBuf(x, y, radius float64, buf []EntityRef) []EntityRef {
	minCX, maxCX, minCY, maxCY := cellRange(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			idx := cy*SpatialCols + cx
			buf = append(buf, g.cells[idx]...)
		}
	}
	return buf
}
