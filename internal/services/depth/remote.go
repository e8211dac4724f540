package depth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// RemoteFactory loads models into a model server process that hosts the
// pretrained network.
type RemoteFactory struct {
	baseURL          string
	client           *http.Client
	loadTimeout      time.Duration
	inferenceTimeout time.Duration
}

func NewRemoteFactory(baseURL string, loadTimeout, inferenceTimeout time.Duration) *RemoteFactory {
	return &RemoteFactory{
		baseURL:          strings.TrimRight(baseURL, "/"),
		client:           &http.Client{},
		loadTimeout:      loadTimeout,
		inferenceTimeout: inferenceTimeout,
	}
}

type loadRequest struct {
	Model  string `json:"model"`
	Device string `json:"device"`
	Mode   string `json:"mode"`
}

type loadResponse struct {
	Model  string `json:"model"`
	Device string `json:"device"`
}

type inferenceRequest struct {
	Images []string `json:"images"`
}

type inferenceResponse struct {
	Depth []struct {
		Shape []int     `json:"shape"`
		Data  []float32 `json:"data"`
	} `json:"depth"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (f *RemoteFactory) FromPretrained(ctx context.Context, name string, device Device) (Model, error) {
	if f.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.loadTimeout)
		defer cancel()
	}

	var resp loadResponse
	req := loadRequest{Model: name, Device: string(device), Mode: "inference"}
	if err := f.post(ctx, "/load", req, &resp); err != nil {
		return nil, err
	}

	placed := Device(resp.Device)
	if placed == "" {
		placed = device
	}

	return &RemoteModel{factory: f, name: name, device: placed}, nil
}

// Health checks that the model server answers.
func (f *RemoteFactory) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("model server health returned status %d", resp.StatusCode)
	}
	return nil
}

func (f *RemoteFactory) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call model server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("model server %s returned status %d: %s", path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("model server %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// RemoteModel is a model instance resident in the model server.
type RemoteModel struct {
	factory *RemoteFactory
	name    string
	device  Device
}

func (m *RemoteModel) Device() Device {
	return m.device
}

func (m *RemoteModel) Inference(ctx context.Context, images []image.Image) (*Prediction, error) {
	if m.factory.inferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.factory.inferenceTimeout)
		defer cancel()
	}

	req := inferenceRequest{Images: make([]string, 0, len(images))}
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: failed to encode image %d: %v", ErrInference, i, err)
		}
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}

	var resp inferenceResponse
	if err := m.factory.post(ctx, "/inference", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	pred := &Prediction{Depth: make([]DepthMap, 0, len(resp.Depth))}
	for i, d := range resp.Depth {
		dm, err := NewDepthMap(d.Shape, d.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %v", ErrInference, i, err)
		}
		pred.Depth = append(pred.Depth, dm)
	}

	return pred, nil
}
