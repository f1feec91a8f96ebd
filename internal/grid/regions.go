package grid

import (
	"image"
	"sort"
)

// Grid region acceptance.
const (
	candidateLimit = 5
	minAspect      = 0.85
	maxAspect      = 1.15
	minArea        = 10000
)

// region is an outermost foreground shape together with every hole it
// encloses.
type region struct {
	bounds image.Rectangle
	area   int
}

func (r region) aspect() float64 {
	return float64(r.bounds.Dx()) / float64(r.bounds.Dy())
}

// externalRegions finds the outermost shapes of an 8-connected foreground
// mask. Background is 4-connected; background reachable from the image edge
// is outside, and every other pixel belongs to the filled shape around it.
// Regions are returned by area, largest first.
func externalRegions(mask []bool, w, h int) []region {
	outside := make([]bool, w*h)
	stack := make([]int, 0, 2*(w+h))
	push := func(i int) {
		if !mask[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}

	seen := make([]bool, w*h)
	var regions []region
	for start := range mask {
		if outside[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		r := region{bounds: image.Rect(start%w, start/w, start%w+1, start/w+1)}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			r.area++
			r.bounds = r.bounds.Union(image.Rect(x, y, x+1, y+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if !outside[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		regions = append(regions, r)
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].area > regions[j].area
	})
	return regions
}

// selectGrid returns the first of the largest regions that is square enough
// and big enough to be the puzzle grid.
func selectGrid(regions []region) (region, bool) {
	for i, r := range regions {
		if i >= candidateLimit {
			break
		}
		if a := r.aspect(); a > minAspect && a < maxAspect && r.area > minArea {
			return r, true
		}
	}
	return region{}, false
}
