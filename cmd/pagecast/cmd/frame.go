package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Capture a single frame of a page",
	Long: `Capture one still of a page at a given virtual timestamp. The page
runs on the same deterministic clock as a full render, so the frame matches
what that render would contain at that instant.`,
	RunE: runFrame,
}

func init() {
	frameCmd.Flags().String("url", "", "page to capture")
	frameCmd.Flags().String("output", "", "output image path")
	frameCmd.Flags().Int("width", 1280, "capture width")
	frameCmd.Flags().Int("height", 720, "capture height")
	frameCmd.Flags().Float64("fps", 30, "virtual clock tick rate")
	frameCmd.Flags().Int64("at", 0, "virtual timestamp in milliseconds")
	rootCmd.AddCommand(frameCmd)
}

func runFrame(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	url, _ := cmd.Flags().GetString("url")
	output, _ := cmd.Flags().GetString("output")
	if url == "" || output == "" {
		return errors.New("--url and --output are required")
	}
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	fps, _ := cmd.Flags().GetFloat64("fps")
	at, _ := cmd.Flags().GetInt64("at")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	frame, err := st.renderer.RenderFrame(ctx, url, width, height, fps, at)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, frame, 0o644); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
