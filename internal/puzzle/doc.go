// Package puzzle defines the data model shared by the acquisition and grid
// reconstruction pipeline: requests, fetch results, clues, grids, and the
// assembled puzzle returned to callers.
package puzzle
