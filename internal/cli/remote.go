package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
)

var (
	endpoint      string
	apiKey        string
	remoteTimeout time.Duration
	remoteOut     string
)

func newRemoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote IMAGE",
		Short: "Send one job to a deployed endpoint",
		Long: `Send one job to a deployed /runsync endpoint, for example
https://api.runpod.ai/v2/<endpoint-id>/runsync or http://localhost:8080/runsync.

The API key defaults to $RUNPOD_API_KEY.`,
		Args: cobra.ExactArgs(1),
		RunE: cmdRemote,
	}
	cmd.Flags().StringVarP(&remoteOut, "output", "o", "runpod_depth_output.png", "Where to write the depth map")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint /runsync URL")
	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "API key sent as a bearer token")
	cmd.Flags().DurationVar(&remoteTimeout, "timeout", 5*time.Minute, "Request timeout")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

func cmdRemote(cmd *cobra.Command, args []string) error {
	if strings.Contains(endpoint, "YOUR_") {
		return fmt.Errorf("--endpoint still contains a placeholder: %s", endpoint)
	}
	key := apiKey
	if key == "" {
		key = os.Getenv("RUNPOD_API_KEY")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	image, err := readImage(ctx, args[0], defaultMaxImageBytes)
	if err != nil {
		return err
	}

	client := resty.New().SetTimeout(remoteTimeout)
	if key != "" {
		client.SetAuthToken(key)
	}

	var status models.JobStatus
	fmt.Fprintf(cmd.OutOrStdout(), "Sending request: %s\n", endpoint)
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.Job{Input: models.JobInput{Image: image}}).
		SetResult(&status).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode(), resp.String())
	}

	if err := printJSON(cmd.OutOrStdout(), &status); err != nil {
		return err
	}
	if status.Output == nil || !status.Output.Success {
		reason := status.Error
		if status.Output != nil && status.Output.Error != "" {
			reason = status.Output.Error
		}
		return fmt.Errorf("job %s ended %s: %s", status.ID, status.Status, reason)
	}

	if err := saveDepthMap(status.Output, remoteOut); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Depth map saved: %s\n", remoteOut)
	return nil
}
