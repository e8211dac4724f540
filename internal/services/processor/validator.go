package processor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage turns a base64 payload (bare or as a data: URL) into an
// opaque RGB image. It returns the source format name.
func (p *ImageProcessor) DecodeImage(payload string) (image.Image, string, error) {
	raw, err := p.decodePayload(payload)
	if err != nil {
		return nil, "", err
	}

	if int64(len(raw)) > p.maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds maximum allowed size %d", ErrImageTooLarge, len(raw), p.maxBytes)
	}

	// Compressed formats expand far beyond their encoded size.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds maximum of %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return toRGB(img), format, nil
}

func (p *ImageProcessor) decodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBase64)
	}

	if strings.HasPrefix(payload, "data:") {
		du, err := dataurl.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
		return du.Data, nil
	}

	// Clients wrap long base64 lines; strip all whitespace first.
	payload = strings.Join(strings.Fields(payload), "")

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, lastErr)
}

// toRGB copies img into a zero-origin NRGBA and drops the alpha channel,
// keeping the stored color values.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
