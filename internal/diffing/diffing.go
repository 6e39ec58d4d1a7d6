// Package diffing compares two emulator.Grid snapshots, grounded on
// original_source/src/diff.rs with one deliberate departure: spec.md §4.5
// is explicit that "only the overlapping sub-rectangle is compared" when
// dimensions differ, so unlike diff.rs this package never synthesizes
// changed-cell entries for the non-overlapping remainder.
package diffing

import "github.com/pepegar/tui-wright/internal/emulator"

// DimensionChange reports that the baseline and current grids had
// different sizes.
type DimensionChange struct {
	OldRows int `json:"old_rows"`
	OldCols int `json:"old_cols"`
	NewRows int `json:"new_rows"`
	NewCols int `json:"new_cols"`
}

// CursorChange reports that the cursor moved between snapshots.
type CursorChange struct {
	OldRow int `json:"old_row"`
	OldCol int `json:"old_col"`
	NewRow int `json:"new_row"`
	NewCol int `json:"new_col"`
}

// CellChange is one changed cell, ordered by (row, col) ascending in Diff.
type CellChange struct {
	Row int            `json:"row"`
	Col int            `json:"col"`
	Old emulator.Cell  `json:"old"`
	New emulator.Cell  `json:"new"`
}

// Summary carries aggregate counts alongside the changed-cell list.
type Summary struct {
	TotalCellsCompared int  `json:"total_cells_compared"`
	ChangedCellCount   int  `json:"changed_cell_count"`
	DimensionsMatch    bool `json:"dimensions_match"`
	CursorMatches      bool `json:"cursor_matches"`
}

// Diff is the result of comparing a baseline Grid to a current Grid.
type Diff struct {
	Identical         bool              `json:"identical"`
	DimensionsChanged *DimensionChange  `json:"dimensions_changed,omitempty"`
	CursorChanged     *CursorChange     `json:"cursor_changed,omitempty"`
	ChangedCells      []CellChange      `json:"changed_cells"`
	Summary           Summary           `json:"summary"`
}

// Compute compares baseline to current. A cell is "changed" if any of
// char, fg, bg, bold, italic, underline, inverse differs.
func Compute(baseline, current emulator.Grid) Diff {
	var dims *DimensionChange
	if baseline.Rows != current.Rows || baseline.Cols != current.Cols {
		dims = &DimensionChange{
			OldRows: baseline.Rows,
			OldCols: baseline.Cols,
			NewRows: current.Rows,
			NewCols: current.Cols,
		}
	}

	var cursor *CursorChange
	if baseline.CursorRow != current.CursorRow || baseline.CursorCol != current.CursorCol {
		cursor = &CursorChange{
			OldRow: baseline.CursorRow,
			OldCol: baseline.CursorCol,
			NewRow: current.CursorRow,
			NewCol: current.CursorCol,
		}
	}

	compareRows := minInt(baseline.Rows, current.Rows)
	compareCols := minInt(baseline.Cols, current.Cols)

	changed := make([]CellChange, 0)
	for r := 0; r < compareRows; r++ {
		for c := 0; c < compareCols; c++ {
			oldCell := baseline.Cells[r][c]
			newCell := current.Cells[r][c]
			if oldCell != newCell {
				changed = append(changed, CellChange{Row: r, Col: c, Old: oldCell, New: newCell})
			}
		}
	}

	identical := dims == nil && cursor == nil && len(changed) == 0

	return Diff{
		Identical:         identical,
		DimensionsChanged: dims,
		CursorChanged:     cursor,
		ChangedCells:      changed,
		Summary: Summary{
			TotalCellsCompared: compareRows * compareCols,
			ChangedCellCount:   len(changed),
			DimensionsMatch:    dims == nil,
			CursorMatches:      cursor == nil,
		},
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
