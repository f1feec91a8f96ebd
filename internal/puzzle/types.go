package puzzle

import (
	"net/http"
	"time"
)

// Grid dimensions supported by the source.
const (
	StandardSize = 15
	SundaySize   = 21
)

// DateLayout is the ISO calendar date accepted from callers.
const DateLayout = "2006-01-02"

// Request selects a puzzle. A nil Date means "latest".
type Request struct {
	Date *time.Time
}

// Latest reports whether the request targets the most recent puzzle.
func (r Request) Latest() bool {
	return r.Date == nil
}

// FetchResult is the raw outcome of one remote fetch.
type FetchResult struct {
	URL              string
	StatusCode       int
	Headers          http.Header
	Body             []byte
	DeclaredEncoding string
	DetectedEncoding string
	Duration         time.Duration
}

// Direction is a clue direction.
type Direction string

// Clue directions.
const (
	Across Direction = "across"
	Down   Direction = "down"
)

// ClueEntry is one parsed clue.
type ClueEntry struct {
	Clue   string `json:"clue" yaml:"clue"`
	Answer string `json:"answer" yaml:"answer"`
}

// Clues groups clue entries by direction, keyed by clue number.
type Clues struct {
	Across map[int]ClueEntry `json:"across" yaml:"across"`
	Down   map[int]ClueEntry `json:"down" yaml:"down"`
}

// NewClues returns an empty clue set.
func NewClues() Clues {
	return Clues{
		Across: map[int]ClueEntry{},
		Down:   map[int]ClueEntry{},
	}
}

// Set stores an entry, replacing any previous entry with the same number.
func (c Clues) Set(dir Direction, number int, entry ClueEntry) {
	switch dir {
	case Across:
		c.Across[number] = entry
	case Down:
		c.Down[number] = entry
	}
}

// ImageCandidate is a scored grid image URL.
type ImageCandidate struct {
	URL   string
	Score int
}

// GridMatrix holds cell states; 0 is blocked, 1 is playable.
type GridMatrix [][]int

// Cell states.
const (
	Blocked  = 0
	Playable = 1
)

// Rows returns the row count.
func (g GridMatrix) Rows() int {
	return len(g)
}

// Cols returns the column count of the first row.
func (g GridMatrix) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// NumberMap maps "row,col" keys to clue numbers.
type NumberMap map[string]int

// Result is the assembled puzzle returned to callers.
type Result struct {
	Title    string     `json:"title" yaml:"title"`
	ImageURL string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Grid     GridMatrix `json:"grid" yaml:"grid"`
	Numbers  NumberMap  `json:"numbers" yaml:"numbers"`
	Clues    Clues      `json:"clues" yaml:"clues"`
	Date     *string    `json:"date,omitempty" yaml:"date,omitempty"`
}
