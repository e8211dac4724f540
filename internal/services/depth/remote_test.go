package depth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestRemoteFactory(t *testing.T) {
	t.Parallel()

	t.Run("loads and runs inference", func(t *testing.T) {
		t.Parallel()

		server := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			switch r.URL.Path {
			case "/load":
				var req loadRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "depth-anything/DA3-LARGE", req.Model)
				assert.Equal(t, "cuda", req.Device)
				assert.Equal(t, "inference", req.Mode)
				_ = json.NewEncoder(w).Encode(map[string]string{"model": req.Model, "device": req.Device})
			case "/inference":
				var req inferenceRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				if !assert.Len(t, req.Images, 1) {
					return
				}
				raw, err := base64.StdEncoding.DecodeString(req.Images[0])
				assert.NoError(t, err)
				assert.True(t, strings.HasPrefix(string(raw), "\x89PNG"))
				_, _ = w.Write([]byte(`{"depth":[{"shape":[1,2,3],"data":[0,1,2,3,4,5]}]}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})

		factory := NewRemoteFactory(server.URL+"/", time.Second, time.Second)
		model, err := factory.FromPretrained(context.Background(), "depth-anything/DA3-LARGE", DeviceCUDA)
		require.NoError(t, err)
		assert.Equal(t, DeviceCUDA, model.(*RemoteModel).Device())

		img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
		img.Set(1, 1, color.NRGBA{R: 255, A: 255})

		pred, err := model.Inference(context.Background(), []image.Image{img})
		require.NoError(t, err)
		require.Len(t, pred.Depth, 1)
		assert.Equal(t, []int{2, 3}, pred.Depth[0].Shape())
		assert.Equal(t, float32(4), pred.Depth[0].At(1, 1))
	})

	t.Run("reports server-side load errors", func(t *testing.T) {
		t.Parallel()

		server := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"CUDA out of memory"}`))
		})

		_, err := NewRemoteFactory(server.URL, time.Second, time.Second).
			FromPretrained(context.Background(), "m", DeviceCUDA)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "CUDA out of memory")
	})

	t.Run("wraps inference failures", func(t *testing.T) {
		t.Parallel()

		server := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/load" {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			http.Error(w, "bad tensor", http.StatusBadRequest)
		})

		factory := NewRemoteFactory(server.URL, time.Second, time.Second)
		model, err := factory.FromPretrained(context.Background(), "m", DeviceCPU)
		require.NoError(t, err)
		assert.Equal(t, DeviceCPU, model.(*RemoteModel).Device())

		_, err = model.Inference(context.Background(), []image.Image{image.NewGray(image.Rect(0, 0, 1, 1))})
		require.ErrorIs(t, err, ErrInference)
		assert.Contains(t, err.Error(), "bad tensor")
	})

	t.Run("rejects malformed depth arrays", func(t *testing.T) {
		t.Parallel()

		server := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/load" {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			_, _ = w.Write([]byte(`{"depth":[{"shape":[2,2],"data":[1]}]}`))
		})

		model, err := NewRemoteFactory(server.URL, 0, 0).FromPretrained(context.Background(), "m", DeviceCPU)
		require.NoError(t, err)

		_, err = model.Inference(context.Background(), []image.Image{image.NewGray(image.Rect(0, 0, 2, 2))})
		require.ErrorIs(t, err, ErrInference)
	})

	t.Run("health", func(t *testing.T) {
		t.Parallel()

		server := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, NewRemoteFactory(server.URL, 0, 0).Health(context.Background()))
	})
}
