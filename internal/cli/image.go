package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/models"
	"github.com/tyndreus1/depth-anything-3-serverless/pkg/utils"
)

// readImage returns the base64 payload for a local path or an http(s) URL.
func readImage(ctx context.Context, source string, maxBytes int64) (string, error) {
	var data []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, contentType, err := utils.DownloadImage(ctx, source, maxBytes)
		if err != nil {
			return "", err
		}
		if !utils.IsValidImageType(contentType) {
			return "", fmt.Errorf("unsupported content type %q", contentType)
		}
		data = body
	} else {
		body, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("failed to read image: %w", err)
		}
		data = body
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// saveDepthMap writes the PNG carried in the result to path.
func saveDepthMap(result *models.Result, path string) error {
	if result == nil || !result.Success {
		return fmt.Errorf("job did not succeed")
	}
	data, err := base64.StdEncoding.DecodeString(result.DepthMap)
	if err != nil {
		return fmt.Errorf("failed to decode depth map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write depth map: %w", err)
	}
	return nil
}

// printJSON prints v with the depth map elided.
func printJSON(w io.Writer, v any) error {
	var buf map[string]any
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &buf); err != nil {
		return err
	}
	elide(buf)

	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func elide(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			elide(val)
		case string:
			if k == "depth_map" && len(val) > 64 {
				m[k] = fmt.Sprintf("%s... (%d chars)", val[:64], len(val))
			}
		}
	}
}
