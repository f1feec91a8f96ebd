// Package numbering derives standard crossword numbering from a grid.
package numbering

import (
	"fmt"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Generate numbers every playable cell that starts an across or down run.
// Cells are visited row-major and the counter advances once per numbered
// cell, so numbers are contiguous from 1.
func Generate(grid puzzle.GridMatrix) puzzle.NumberMap {
	numbers := puzzle.NumberMap{}
	counter := 1
	for r, row := range grid {
		for c, cell := range row {
			if cell == puzzle.Blocked {
				continue
			}
			startsAcross := c == 0 || row[c-1] == puzzle.Blocked
			startsDown := r == 0 || blockedAt(grid, r-1, c)
			if startsAcross || startsDown {
				numbers[Key(r, c)] = counter
				counter++
			}
		}
	}
	return numbers
}

// Key formats the NumberMap key for a cell.
func Key(row, col int) string {
	return fmt.Sprintf("%d,%d", row, col)
}

func blockedAt(grid puzzle.GridMatrix, r, c int) bool {
	if c >= len(grid[r]) {
		return true
	}
	return grid[r][c] == puzzle.Blocked
}
