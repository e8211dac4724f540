package depth

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	ErrModelLoad = errors.New("model load failed")
	ErrInference = errors.New("inference failed")
)

// Model is a loaded depth estimator in inference mode.
type Model interface {
	Inference(ctx context.Context, images []image.Image) (*Prediction, error)
}

// Factory creates a pretrained model, placed on device and switched to
// inference mode.
type Factory interface {
	FromPretrained(ctx context.Context, name string, device Device) (Model, error)
}

// Prediction holds one depth map per input image, in input order.
type Prediction struct {
	Depth []DepthMap
}

// DepthMap is a row-major Height x Width array of estimated depth values.
type DepthMap struct {
	Width  int
	Height int
	Data   []float32
}

// Shape follows array convention: rows first.
func (d DepthMap) Shape() []int {
	return []int{d.Height, d.Width}
}

func (d DepthMap) At(x, y int) float32 {
	return d.Data[y*d.Width+x]
}

// MaxDepthSide bounds each depth map dimension so Width*Height cannot overflow.
const MaxDepthSide = 1 << 15

func (d DepthMap) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Width > MaxDepthSide || d.Height > MaxDepthSide {
		return fmt.Errorf("invalid depth map dimensions %dx%d", d.Width, d.Height)
	}
	if len(d.Data) != d.Width*d.Height {
		return fmt.Errorf("depth map has %d values, expected %d", len(d.Data), d.Width*d.Height)
	}
	return nil
}

// NewDepthMap builds a map from an array shape as returned by the model
// server. Leading singleton batch dimensions are dropped.
func NewDepthMap(shape []int, data []float32) (DepthMap, error) {
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return DepthMap{}, fmt.Errorf("unsupported depth shape %v", shape)
	}

	d := DepthMap{Height: shape[0], Width: shape[1], Data: data}
	if err := d.Validate(); err != nil {
		return DepthMap{}, err
	}
	return d, nil
}
