// Package bootstrap prepares a fresh container before the worker starts:
// installing Python packages, fetching model code, launching the model server.
package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyndreus1/depth-anything-3-serverless/internal/config"
)

var ErrCommandsFailed = errors.New("bootstrap commands failed")

// CommandResult is the outcome of one setup command.
type CommandResult struct {
	Command  string
	Duration time.Duration
	Output   string
	Err      error
}

// Report summarises a bootstrap run.
type Report struct {
	Skipped bool
	Results []CommandResult
}

// Failed returns the commands that did not succeed.
func (r *Report) Failed() []CommandResult {
	var failed []CommandResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

type Runner struct {
	commands []string
	marker   string
	timeout  time.Duration
	shell    string
	logger   *zap.Logger
}

func NewRunner(cfg config.BootstrapConfig, logger *zap.Logger) *Runner {
	return &Runner{
		commands: cfg.Commands,
		marker:   cfg.Marker,
		timeout:  cfg.Timeout,
		shell:    "sh",
		logger:   logger,
	}
}

// Run executes every command in order. A failing command is logged and the
// next one still runs. The marker file is written only when all succeed, so
// a restarted container retries the whole sequence.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	if len(r.commands) == 0 {
		return report, nil
	}

	if r.marker != "" {
		if _, err := os.Stat(r.marker); err == nil {
			r.logger.Info("Bootstrap already done", zap.String("marker", r.marker))
			report.Skipped = true
			return report, nil
		}
	}

	for i, command := range r.commands {
		log := r.logger.With(zap.Int("step", i+1), zap.String("command", command))
		log.Info("Running bootstrap command")

		res := r.runOne(ctx, command)
		report.Results = append(report.Results, res)

		if res.Err != nil {
			log.Error("Bootstrap command failed",
				zap.Duration("duration", res.Duration),
				zap.String("output", tail(res.Output, 2048)),
				zap.Error(res.Err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Info("Bootstrap command finished", zap.Duration("duration", res.Duration))
	}

	if failed := report.Failed(); len(failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrCommandsFailed, len(failed), len(r.commands))
	}

	if err := r.writeMarker(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, command string) CommandResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}

	return CommandResult{
		Command:  command,
		Duration: time.Since(start),
		Output:   output.String(),
		Err:      err,
	}
}

func (r *Runner) writeMarker() error {
	if r.marker == "" {
		return nil
	}
	if dir := filepath.Dir(r.marker); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create marker directory: %w", err)
		}
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(r.marker, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("failed to write bootstrap marker: %w", err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
