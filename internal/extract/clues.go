package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// sectionHeaderMaxLen bounds the lines treated as "Across"/"Down" headers.
const sectionHeaderMaxLen = 20

// clueLine matches "12A. Clue text: ANSWER". The separator may also be a
// non-breaking space or a tab.
var clueLine = regexp.MustCompile(`(?i)^\s*(\d+)([AD]?)\.?\s*(.+?)[:\x{00A0}\t]+(.+)$`)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ParseClues scans text line by line. Section headers switch the current
// direction; an explicit A/D after the number overrides it. Lines with no
// resolvable direction are dropped, and a repeated number in the same
// direction replaces the earlier entry.
func ParseClues(text string) puzzle.Clues {
	clues := puzzle.NewClues()
	var section puzzle.Direction

	for _, raw := range strings.Split(lineBreaks.Replace(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		section = sectionFor(line, section)

		m := clueLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		dir := directionFor(m[2], section)
		if dir == "" {
			continue
		}
		clues.Set(dir, number, puzzle.ClueEntry{
			Clue:   strings.TrimSpace(m[3]),
			Answer: strings.ToUpper(strings.TrimSpace(m[4])),
		})
	}
	return clues
}

// sectionFor matches "Across" and "Down" case-sensitively, so "3 Sundown:
// DUSK" keeps the section while a short "Downtown: 5" still flips it.
func sectionFor(line string, current puzzle.Direction) puzzle.Direction {
	if utf8.RuneCountInString(line) >= sectionHeaderMaxLen {
		return current
	}
	if strings.Contains(line, "Across") {
		current = puzzle.Across
	}
	if strings.Contains(line, "Down") {
		current = puzzle.Down
	}
	return current
}

func directionFor(letter string, section puzzle.Direction) puzzle.Direction {
	switch letter {
	case "A":
		return puzzle.Across
	case "D":
		return puzzle.Down
	}
	return section
}
