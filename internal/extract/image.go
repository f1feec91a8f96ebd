package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

const (
	keywordScore   = 50
	wideImageScore = 20
	wideImageWidth = 200
)

// excludedImageMarkers mark tracking pixels and decorative icons.
var excludedImageMarkers = []string{"pixel", "icon"}

var gridImageKeywords = []string{"grid", "crossword"}

// ImageCandidates scores every usable <img> in document order.
func ImageCandidates(doc *goquery.Document) []puzzle.ImageCandidate {
	var candidates []puzzle.ImageCandidate
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := imageSource(img)
		if src == "" || excluded(src) {
			return
		}
		candidates = append(candidates, puzzle.ImageCandidate{
			URL:   src,
			Score: scoreImage(src, img.AttrOr("width", "")),
		})
	})
	return candidates
}

// BestImage returns the highest-scoring candidate. Equal scores keep
// document order, so the first image seen wins.
func BestImage(doc *goquery.Document) (string, bool) {
	candidates := ImageCandidates(doc)
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates[0].URL, true
}

func imageSource(img *goquery.Selection) string {
	if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" {
		return src
	}
	return strings.TrimSpace(img.AttrOr("data-src", ""))
}

func excluded(src string) bool {
	for _, marker := range excludedImageMarkers {
		if strings.Contains(src, marker) {
			return true
		}
	}
	return false
}

func scoreImage(src, width string) int {
	score := 0
	lower := strings.ToLower(src)
	for _, keyword := range gridImageKeywords {
		if strings.Contains(lower, keyword) {
			score += keywordScore
			break
		}
	}
	if w, err := strconv.Atoi(strings.TrimSpace(width)); err == nil && w > wideImageWidth {
		score += wideImageScore
	}
	return score
}
