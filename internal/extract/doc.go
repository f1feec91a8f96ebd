// Package extract pulls the grid image URL and the across/down clues out of
// a puzzle's HTML payload.
//
// Both extractions are single-pass heuristics. Image candidates are scored by
// their source path and declared width; clues are matched line by line while
// tracking the current section header.
package extract
