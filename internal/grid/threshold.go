package grid

import (
	"image"
	"math"
)

// Adaptive threshold parameters.
const (
	blockSize     = 15
	thresholdBias = 3
)

// gaussianKernel returns a normalized 1-D kernel. A non-positive sigma is
// derived from the size the same way common vision libraries do.
func gaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*((float64(size)-1)*0.5-1) + 0.8
	}
	kernel := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianBlur applies a separable blur with replicated borders and returns
// the rounded local means.
func gaussianBlur(gray *image.Gray, size int) []uint8 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	kernel := gaussianKernel(size, 0)
	half := size / 2

	horiz := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * float64(row[clamp(x+k-half, 0, w-1)])
			}
			horiz[y*w+x] = acc
		}
	}

	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * horiz[clamp(y+k-half, 0, h-1)*w+x]
			}
			out[y*w+x] = uint8(clamp(int(math.Round(acc)), 0, 255))
		}
	}
	return out
}

// adaptiveThreshold marks pixels darker than their Gaussian-weighted
// neighborhood by at least bias. The result is the inverted binary image as a
// foreground mask in row-major order.
func adaptiveThreshold(gray *image.Gray, size, bias int) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	means := gaussianBlur(gray, size)
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := int(gray.Pix[y*gray.Stride+x])
			mask[y*w+x] = src-int(means[y*w+x]) <= -bias
		}
	}
	return mask
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
