package puzzle

import "errors"

// Pipeline failure classes. Callers match them with errors.Is.
var (
	// ErrTransport means every fetch and decode strategy was exhausted.
	ErrTransport = errors.New("transport failure")
	// ErrExtraction means the document held no feed item or no grid image.
	ErrExtraction = errors.New("extraction failure")
	// ErrImageDecode means the downloaded grid image could not be decoded.
	ErrImageDecode = errors.New("image decode failure")
)
