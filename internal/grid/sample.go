package grid

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Sampling parameters. CanvasSize is divisible by both standard and Sunday
// grid sizes.
const (
	CanvasSize     = 840
	sampleHalf     = 5
	blockedCeiling = 60.0
	marginFraction = 0.01
)

// cropToRegion trims the region's bounding box by a margin proportional to
// its width on every side.
func cropToRegion(r region) image.Rectangle {
	margin := int(float64(r.bounds.Dx()) * marginFraction)
	crop := r.bounds.Inset(margin)
	if crop.Empty() {
		return r.bounds
	}
	return crop
}

// centerSquare returns the largest centered square inside bounds.
func centerSquare(bounds image.Rectangle) image.Rectangle {
	side := min(bounds.Dx(), bounds.Dy())
	x := bounds.Min.X + (bounds.Dx()-side)/2
	y := bounds.Min.Y + (bounds.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// resize scales the crop of gray onto a square canvas with bilinear
// interpolation.
func resize(gray *image.Gray, crop image.Rectangle) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, CanvasSize, CanvasSize))
	draw.BiLinear.Scale(canvas, canvas.Bounds(), gray, crop, draw.Src, nil)
	return canvas
}

// cellCenter returns the canvas coordinates of the center of cell (r, c).
func cellCenter(r, c, rows, cols int) (int, int) {
	cellH := CanvasSize / rows
	cellW := CanvasSize / cols
	return c*cellW + cellW/2, r*cellH + cellH/2
}

// sample classifies each cell by the mean brightness of a small window at its
// center.
func sample(canvas *image.Gray, rows, cols int) (puzzle.GridMatrix, [][]float64) {
	matrix := make(puzzle.GridMatrix, rows)
	means := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		matrix[r] = make([]int, cols)
		means[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			cx, cy := cellCenter(r, c, rows, cols)
			mean := windowMean(canvas, cx, cy)
			means[r][c] = mean
			if mean < blockedCeiling {
				matrix[r][c] = puzzle.Blocked
			} else {
				matrix[r][c] = puzzle.Playable
			}
		}
	}
	return matrix, means
}

func windowMean(canvas *image.Gray, cx, cy int) float64 {
	window := image.Rect(cx-sampleHalf, cy-sampleHalf, cx+sampleHalf, cy+sampleHalf).Intersect(canvas.Rect)
	if window.Empty() {
		return 255
	}
	var sum int
	for y := window.Min.Y; y < window.Max.Y; y++ {
		for x := window.Min.X; x < window.Max.X; x++ {
			sum += int(canvas.GrayAt(x, y).Y)
		}
	}
	return float64(sum) / float64(window.Dx()*window.Dy())
}
