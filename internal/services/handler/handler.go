package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/processor"
)

var ErrMissingImage = errors.New("'image' parameter is required (base64 string)")

// ModelProvider hands out the shared model, loading it on first use.
type ModelProvider interface {
	Get(ctx context.Context) (depth.Model, error)
}

// DepthUploader stores rendered depth maps and returns a public URL.
type DepthUploader interface {
	UploadDepthMap(ctx context.Context, jobID string, data []byte) (string, error)
}

type Handler struct {
	loader    ModelProvider
	processor *processor.ImageProcessor
	uploader  DepthUploader
	logger    *zap.Logger
}

func NewHandler(loader ModelProvider, imageProcessor *processor.ImageProcessor, logger *zap.Logger) *Handler {
	return &Handler{
		loader:    loader,
		processor: imageProcessor,
		logger:    logger,
	}
}

// WithUploader enables depth_map_url in results.
func (h *Handler) WithUploader(uploader DepthUploader) *Handler {
	h.uploader = uploader
	return h
}

// Process runs one job. Every failure is reported in the returned Result.
// The error is non-nil only when the model could not be loaded, which
// leaves the worker unable to serve any job.
func (h *Handler) Process(ctx context.Context, job models.Job) (result *models.Result, fatal error) {
	if job.Input.Image == "" {
		h.logger.Warn("Rejected job without image", zap.String("job_id", job.ID))
		return models.Failure(ErrMissingImage.Error()), nil
	}

	log := h.logger.With(zap.String("job_id", job.ID))
	log.Info("Processing job")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = models.Failure(fmt.Sprintf("internal error: %v", r))
			fatal = nil
		}
	}()

	res, err := h.run(ctx, log, job, start)
	if err != nil {
		log.Error("Job failed", zap.Error(err))
		if errors.Is(err, depth.ErrModelLoad) {
			return models.Failure(err.Error()), err
		}
		return models.Failure(err.Error()), nil
	}

	return res, nil
}

func (h *Handler) run(ctx context.Context, log *zap.Logger, job models.Job, start time.Time) (*models.Result, error) {
	img, format, err := h.processor.DecodeImage(job.Input.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	log.Info("Decoded image",
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()))

	model, err := h.loader.Get(ctx)
	if err != nil {
		return nil, err
	}

	inferenceStart := time.Now()
	prediction, err := model.Inference(ctx, []image.Image{img})
	inferenceTime := time.Since(inferenceStart)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if prediction == nil || len(prediction.Depth) == 0 {
		return nil, fmt.Errorf("inference failed: %w", processor.ErrEmptyDepth)
	}

	depthMap := prediction.Depth[0]
	buffer, err := h.processor.EncodeDepthPNG(depthMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode depth map: %w", err)
	}

	result := &models.Result{
		Success:      true,
		DepthMap:     base64.StdEncoding.EncodeToString(buffer.Bytes()),
		OriginalSize: []int{bounds.Dx(), bounds.Dy()},
		DepthShape:   depthMap.Shape(),
	}

	if h.uploader != nil {
		result.DepthMapURL = h.upload(ctx, log, job.ID, buffer)
	}

	totalTime := time.Since(start)
	result.InferenceTime = models.Seconds(inferenceTime.Seconds())
	result.TotalTime = models.Seconds(totalTime.Seconds())

	log.Info("Job completed",
		zap.Duration("inference_time", inferenceTime),
		zap.Duration("total_time", totalTime))

	return result, nil
}

func (h *Handler) upload(ctx context.Context, log *zap.Logger, jobID string, buffer *bytes.Buffer) string {
	url, err := h.uploader.UploadDepthMap(ctx, jobID, buffer.Bytes())
	if err != nil {
		log.Warn("Failed to upload depth map", zap.Error(err))
		return ""
	}
	return url
}
