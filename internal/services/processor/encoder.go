package processor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
)

// EncodeDepth renders d as a base64 grayscale PNG.
func (p *ImageProcessor) EncodeDepth(d depth.DepthMap) (string, error) {
	buffer, err := p.EncodeDepthPNG(d)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}

// EncodeDepthPNG min-max normalizes d into 0..255. A constant map encodes
// as all zeros and non-finite samples encode as 0.
func (p *ImageProcessor) EncodeDepthPNG(d depth.DepthMap) (*bytes.Buffer, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyDepth, err)
	}

	gray := Normalize(d)

	buffer := &bytes.Buffer{}
	if err := png.Encode(buffer, gray); err != nil {
		return nil, fmt.Errorf("failed to encode depth map: %w", err)
	}
	return buffer, nil
}

// Normalize maps d linearly onto an 8-bit grayscale image.
func Normalize(d depth.DepthMap) *image.Gray {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range d.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}

	gray := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	span := hi - lo
	if !(span > 0) {
		return gray
	}

	for i, v := range d.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		gray.Pix[i] = uint8((f - lo) / span * 255)
	}
	return gray
}
