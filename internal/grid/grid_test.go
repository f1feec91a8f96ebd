package grid

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crossword-scraper/internal/hash/sha256"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

type fakeDownloader struct {
	data []byte
	err  error
}

func (f fakeDownloader) Download(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBlobStore) PutObject(_ context.Context, path, _ string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[path] = b
	return "mem://" + path, nil
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type cell struct{ r, c int }

// drawPuzzle renders an n x n grid with square cells of the given size whose
// top-left corner sits at origin. Lines are two pixels wide.
func drawPuzzle(w, h int, origin image.Point, size, n int, blocked []cell) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	fill := func(x0, y0, x1, y1 int) {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	span := size * n
	for i := 0; i <= n; i++ {
		off := i * size
		fill(origin.X+off, origin.Y, origin.X+off+2, origin.Y+span+2)
		fill(origin.X, origin.Y+off, origin.X+span+2, origin.Y+off+2)
	}
	for _, b := range blocked {
		x := origin.X + b.c*size
		y := origin.Y + b.r*size
		fill(x, y, x+size+2, y+size+2)
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func expectedMatrix(n int, blocked []cell) puzzle.GridMatrix {
	m := DefaultGrid(n, n)
	for _, b := range blocked {
		m[b.r][b.c] = puzzle.Blocked
	}
	return m
}

func requireRectangular(t *testing.T, m puzzle.GridMatrix, rows, cols int) {
	t.Helper()
	require.Len(t, m, rows)
	for _, row := range m {
		require.Len(t, row, cols)
		for _, v := range row {
			require.Contains(t, []int{puzzle.Blocked, puzzle.Playable}, v)
		}
	}
}

func newReconstructor(t *testing.T, cfg Config) *Reconstructor {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRequiresDownloader(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestDefaultGrid(t *testing.T) {
	t.Parallel()

	m := DefaultGrid(15, 15)
	requireRectangular(t, m, 15, 15)
	for _, row := range m {
		for _, v := range row {
			require.Equal(t, puzzle.Playable, v)
		}
	}
	require.Empty(t, DefaultGrid(0, 0))
}

func TestProcessDetectsStandardGrid(t *testing.T) {
	t.Parallel()

	blocked := []cell{{0, 0}, {0, 14}, {3, 5}, {7, 7}, {14, 0}, {11, 9}}
	img := drawPuzzle(400, 400, image.Pt(50, 50), 20, 15, blocked)
	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: encodePNG(t, img)}})

	out, err := r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.NoError(t, err)
	require.Equal(t, PathContour, out.Path)
	require.False(t, out.Fallback)
	require.Equal(t, image.Rect(53, 53, 349, 349), out.Bounds)
	require.Equal(t, expectedMatrix(15, blocked), out.Grid)
	require.Len(t, out.Means, 15)
	require.Less(t, out.Means[7][7], 60.0)
	require.Greater(t, out.Means[7][8], 200.0)
}

func TestProcessDetectsSundayGrid(t *testing.T) {
	t.Parallel()

	blocked := []cell{{0, 4}, {10, 10}, {20, 20}, {5, 15}}
	img := drawPuzzle(500, 500, image.Pt(40, 40), 20, 21, blocked)
	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: encodePNG(t, img)}})

	out, err := r.Process(context.Background(), "https://example.com/sunday.png", 21, 21)
	require.NoError(t, err)
	require.Equal(t, PathContour, out.Path)
	require.Equal(t, expectedMatrix(21, blocked), out.Grid)
}

func TestProcessCenterCropFallback(t *testing.T) {
	t.Parallel()

	blank := image.NewGray(image.Rect(0, 0, 300, 200))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: encodePNG(t, blank)}})

	out, err := r.Process(context.Background(), "https://example.com/blank.png", 15, 15)
	require.NoError(t, err)
	require.Equal(t, PathCenterCrop, out.Path)
	require.True(t, out.Fallback)
	require.Equal(t, image.Rect(50, 0, 250, 200), out.Bounds)
	require.Equal(t, DefaultGrid(15, 15), out.Grid)
}

func TestProcessRejectsNonSquareRegion(t *testing.T) {
	t.Parallel()

	// A 15x5 lattice is large but far from square.
	img := drawPuzzle(400, 400, image.Pt(20, 150), 24, 5, nil)
	for y := 150; y < 272; y++ {
		for x := 140; x < 382; x++ {
			if (x-20)%24 < 2 || (y-150)%24 < 2 {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: encodePNG(t, img)}})

	out, err := r.Process(context.Background(), "https://example.com/wide.png", 15, 15)
	require.NoError(t, err)
	require.Equal(t, PathCenterCrop, out.Path)
	requireRectangular(t, out.Grid, 15, 15)
}

func TestProcessDecodeFailureDegrades(t *testing.T) {
	t.Parallel()

	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: []byte("definitely not an image")}})

	out, err := r.Process(context.Background(), "https://example.com/broken.png", 21, 21)
	require.ErrorIs(t, err, puzzle.ErrImageDecode)
	require.Equal(t, PathDefault, out.Path)
	require.Equal(t, DefaultGrid(21, 21), out.Grid)
}

func TestProcessDownloadFailureDegrades(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	r := newReconstructor(t, Config{Downloader: fakeDownloader{err: boom}})

	out, err := r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.ErrorIs(t, err, boom)
	require.Equal(t, PathDefault, out.Path)
	requireRectangular(t, out.Grid, 15, 15)

	_, err = r.Process(context.Background(), "https://example.com/grid.png", 0, 15)
	require.Error(t, err)
}

func TestProcessRecordsImageDigest(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, drawPuzzle(400, 400, image.Pt(50, 50), 20, 15, nil))
	want, err := sha256.New().Hash(data)
	require.NoError(t, err)

	r := newReconstructor(t, Config{Downloader: fakeDownloader{data: data}, Hasher: sha256.New()})
	out, err := r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.NoError(t, err)
	require.Equal(t, want, out.ImageDigest)

	broken := []byte("not an image")
	want, err = sha256.New().Hash(broken)
	require.NoError(t, err)
	r = newReconstructor(t, Config{Downloader: fakeDownloader{data: broken}, Hasher: sha256.New()})
	out, err = r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.ErrorIs(t, err, puzzle.ErrImageDecode)
	require.Equal(t, want, out.ImageDigest)

	r = newReconstructor(t, Config{Downloader: fakeDownloader{data: data}})
	out, err = r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.NoError(t, err)
	require.Empty(t, out.ImageDigest)
}

func TestProcessWritesDebugArtifacts(t *testing.T) {
	t.Parallel()

	img := drawPuzzle(400, 400, image.Pt(50, 50), 20, 15, []cell{{1, 1}})
	store := &fakeBlobStore{}
	r := newReconstructor(t, Config{
		Downloader: fakeDownloader{data: encodePNG(t, img)},
		Artifacts:  store,
		IDs:        fixedIDs{id: "run-1"},
	})

	out, err := r.Process(context.Background(), "https://example.com/grid.png", 15, 15)
	require.NoError(t, err)
	require.Equal(t, []string{
		"mem://grid-debug/run-1/original.png",
		"mem://grid-debug/run-1/grid_view.png",
	}, out.Artifacts)

	view, err := png.Decode(bytes.NewReader(store.objects["grid-debug/run-1/grid_view.png"]))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, CanvasSize, CanvasSize), view.Bounds())

	cx, cy := cellCenter(1, 1, 15, 15)
	red, green, _, _ := view.At(cx, cy).RGBA()
	require.Equal(t, uint32(0xffff), red)
	require.Zero(t, green)

	cx, cy = cellCenter(0, 0, 15, 15)
	red, green, _, _ = view.At(cx, cy).RGBA()
	require.Zero(t, red)
	require.Equal(t, uint32(0xffff), green)
}

func TestGaussianKernel(t *testing.T) {
	t.Parallel()

	k := gaussianKernel(blockSize, 0)
	require.Len(t, k, blockSize)
	var sum float64
	for i, v := range k {
		sum += v
		require.InDelta(t, v, k[len(k)-1-i], 1e-12)
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.Greater(t, k[7], k[6])
}

func TestAdaptiveThresholdUniformImage(t *testing.T) {
	t.Parallel()

	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for _, fg := range adaptiveThreshold(img, blockSize, thresholdBias) {
		require.False(t, fg)
	}

	img.SetGray(16, 16, color.Gray{Y: 0})
	mask := adaptiveThreshold(img, blockSize, thresholdBias)
	require.True(t, mask[16*32+16])
	require.False(t, mask[0])
}

func TestExternalRegions(t *testing.T) {
	t.Parallel()

	const w, h = 20, 12
	mask := make([]bool, w*h)
	set := func(x, y int) { mask[y*w+x] = true }
	// Ring occupying x 1..6, y 1..6 with a hole, and a nested dot inside it.
	for i := 1; i <= 6; i++ {
		set(i, 1)
		set(i, 6)
		set(1, i)
		set(6, i)
	}
	set(3, 3)
	// Solid bar touching the right edge.
	for x := 15; x < w; x++ {
		set(x, 9)
	}

	regions := externalRegions(mask, w, h)
	require.Len(t, regions, 2)
	require.Equal(t, 36, regions[0].area)
	require.Equal(t, image.Rect(1, 1, 7, 7), regions[0].bounds)
	require.InDelta(t, 1.0, regions[0].aspect(), 1e-9)
	require.Equal(t, 5, regions[1].area)
	require.Equal(t, image.Rect(15, 9, 20, 10), regions[1].bounds)
}

func TestSelectGrid(t *testing.T) {
	t.Parallel()

	square := region{bounds: image.Rect(0, 0, 200, 200), area: 40000}
	wide := region{bounds: image.Rect(0, 0, 400, 100), area: 40000}
	small := region{bounds: image.Rect(0, 0, 50, 50), area: 2500}

	got, ok := selectGrid([]region{wide, square})
	require.True(t, ok)
	require.Equal(t, square, got)

	_, ok = selectGrid([]region{wide, small})
	require.False(t, ok)

	// Only the five largest are examined.
	_, ok = selectGrid([]region{wide, wide, wide, wide, wide, square})
	require.False(t, ok)
}

func TestCropHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, image.Rect(13, 23, 307, 317),
		cropToRegion(region{bounds: image.Rect(10, 20, 310, 320)}))
	require.Equal(t, image.Rect(0, 0, 1, 1), cropToRegion(region{bounds: image.Rect(0, 0, 1, 1)}))
	require.Equal(t, image.Rect(50, 0, 250, 200), centerSquare(image.Rect(0, 0, 300, 200)))
	require.Equal(t, image.Rect(0, 25, 100, 125), centerSquare(image.Rect(0, 0, 100, 150)))
}

func TestSampleWindow(t *testing.T) {
	t.Parallel()

	canvas := image.NewGray(image.Rect(0, 0, CanvasSize, CanvasSize))
	for i := range canvas.Pix {
		canvas.Pix[i] = 255
	}
	cx, cy := cellCenter(2, 3, 15, 15)
	require.Equal(t, 3*56+28, cx)
	require.Equal(t, 2*56+28, cy)
	for y := cy - 5; y < cy+5; y++ {
		for x := cx - 5; x < cx+5; x++ {
			canvas.SetGray(x, y, color.Gray{Y: 30})
		}
	}
	m, means := sample(canvas, 15, 15)
	require.Equal(t, puzzle.Blocked, m[2][3])
	require.InDelta(t, 30, means[2][3], 1e-9)
	require.Equal(t, puzzle.Playable, m[2][4])
	require.False(t, math.IsNaN(means[0][0]))
}
