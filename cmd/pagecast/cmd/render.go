package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagecast/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render [job.json]",
	Short: "Render a job to a video file",
	Long: `Render a page (or a multi-scene job file) into a video.

With a job file argument the full request is read from JSON. Without one, a
single-scene job is assembled from the --url, --duration and --output flags.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("url", "", "page to capture (single-scene mode)")
	renderCmd.Flags().String("output", "", "output file path")
	renderCmd.Flags().Int("width", 1280, "output width")
	renderCmd.Flags().Int("height", 720, "output height")
	renderCmd.Flags().Float64("fps", 30, "output frame rate")
	renderCmd.Flags().Int64("duration", 5000, "scene duration in milliseconds")
	renderCmd.Flags().String("format", "mp4", "output container (mp4, webm)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	req, err := renderRequest(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	lastReported := -10.0
	out, err := st.renderer.Render(ctx, req, st.paths, func(percent float64) {
		if percent-lastReported >= 5 || percent >= 100 {
			lastReported = percent
			logger.Info("render progress", slog.Float64("percent", percent))
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func renderRequest(cmd *cobra.Command, args []string) (*render.Request, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading job file: %w", err)
		}
		var req render.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parsing job file: %w", err)
		}
		return &req, nil
	}

	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		return nil, errors.New("either a job file or --url is required")
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return nil, errors.New("--output is required in single-scene mode")
	}
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	fps, _ := cmd.Flags().GetFloat64("fps")
	duration, _ := cmd.Flags().GetInt64("duration")
	format, _ := cmd.Flags().GetString("format")

	return &render.Request{
		OutputPath: output,
		Width:      width,
		Height:     height,
		FPS:        fps,
		Format:     format,
		Scenes:     []render.Scene{{URL: url, Duration: duration}},
	}, nil
}
