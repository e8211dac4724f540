package processor

import "errors"

const (
	DefaultMaxBytes  = 10 << 20 // 10MB
	DefaultMaxPixels = 40_000_000
)

var (
	ErrInvalidBase64 = errors.New("invalid base64 payload")
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image too large")
	ErrEmptyDepth    = errors.New("empty depth map")
)

// ImageProcessor converts between job payloads and images.
type ImageProcessor struct {
	maxBytes  int64
	maxPixels int64
}

// NewImageProcessor limits payloads to maxBytes encoded bytes and
// maxPixels decoded pixels. Non-positive values select the defaults.
func NewImageProcessor(maxBytes, maxPixels int64) *ImageProcessor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &ImageProcessor{maxBytes: maxBytes, maxPixels: maxPixels}
}
