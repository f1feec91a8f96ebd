package grid

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

const dotRadius = 4

var (
	blockedDot  = color.RGBA{R: 255, A: 255}
	playableDot = color.RGBA{G: 255, A: 255}
)

// overlay renders the canvas in color with a dot at every sampled cell: red
// for blocked, green for playable.
func overlay(canvas *image.Gray, rows, cols int, matrix [][]int) *image.RGBA {
	out := image.NewRGBA(canvas.Bounds())
	draw.Draw(out, out.Bounds(), canvas, canvas.Bounds().Min, draw.Src)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cx, cy := cellCenter(r, c, rows, cols)
			dot := playableDot
			if matrix[r][c] == 0 {
				dot = blockedDot
			}
			for dy := -dotRadius; dy <= dotRadius; dy++ {
				for dx := -dotRadius; dx <= dotRadius; dx++ {
					if dx*dx+dy*dy <= dotRadius*dotRadius {
						out.SetRGBA(cx+dx, cy+dy, dot)
					}
				}
			}
		}
	}
	return out
}

// writeArtifacts stores the grayscale source and the sampling overlay as PNGs
// under prefix and returns their URIs.
func (r *Reconstructor) writeArtifacts(ctx context.Context, prefix string, gray *image.Gray, view *image.RGBA) ([]string, error) {
	images := []struct {
		name string
		img  image.Image
	}{
		{name: "original.png", img: gray},
		{name: "grid_view.png", img: view},
	}
	uris := make([]string, 0, len(images))
	for _, entry := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, entry.img); err != nil {
			return uris, fmt.Errorf("encode %s: %w", entry.name, err)
		}
		uri, err := r.artifacts.PutObject(ctx, prefix+"/"+entry.name, "image/png", &buf)
		if err != nil {
			return uris, fmt.Errorf("store %s: %w", entry.name, err)
		}
		uris = append(uris, uri)
	}
	return uris, nil
}
