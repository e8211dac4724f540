package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/depth"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/handler"
	"github.com/tyndreus1/depth-anything-3-serverless/internal/services/processor"
)

var (
	modelServer string
	modelDevice string
	localOut    string
)

func newLocalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local IMAGE",
		Short: "Run one job in-process",
		Long: `Run one job in-process against the model server.

IMAGE is a file path or an http(s) URL. Model settings come from the
environment (.env is honoured) unless overridden by flags.`,
		Args: cobra.ExactArgs(1),
		RunE: cmdLocal,
	}
	cmd.Flags().StringVarP(&localOut, "output", "o", "test_depth_output.png", "Where to write the depth map")
	cmd.Flags().StringVar(&modelServer, "model-server", "", "Model server URL (default MODEL_SERVER_URL)")
	cmd.Flags().StringVar(&modelDevice, "device", "", "auto, cuda, mps or cpu (default MODEL_DEVICE)")

	return cmd
}

func cmdLocal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if modelServer != "" {
		cfg.Model.ServerURL = modelServer
	}
	if modelDevice != "" {
		cfg.Model.Device = modelDevice
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	image, err := readImage(ctx, args[0], cfg.Image.MaxBytes)
	if err != nil {
		return err
	}

	factory := depth.NewRemoteFactory(cfg.Model.ServerURL, cfg.Model.LoadTimeout, cfg.Model.InferenceTimeout)
	loader := depth.NewLoader(factory, cfg.Model.Name, cfg.Model.Device, depth.DetectAccelerator, logger)
	h := handler.NewHandler(loader, processor.NewImageProcessor(cfg.Image.MaxBytes, cfg.Image.MaxPixels), logger)

	fmt.Fprintln(cmd.OutOrStdout(), "Running local job...")
	result, fatal := h.Process(ctx, models.Job{ID: "test-job-123", Input: models.JobInput{Image: image}})
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if fatal != nil {
		return fatal
	}
	if !result.Success {
		return fmt.Errorf("job failed: %s", result.Error)
	}

	if loader.Loaded() {
		fmt.Fprintf(cmd.OutOrStdout(), "Model loaded on %s in %.2fs\n", loader.Device(), loader.LoadTime().Seconds())
	}
	if err := saveDepthMap(result, localOut); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Depth map saved: %s\n", localOut)
	return nil
}
