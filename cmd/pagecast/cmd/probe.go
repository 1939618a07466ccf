package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagecast/internal/ffmpeg"
	"github.com/jmylchreest/pagecast/internal/synthesis"
)

var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "Inspect a media file, chunk intermediate or the FFmpeg install",
	Long: `Print stream information for a media file. MPEG-TS chunk
intermediates are parsed directly (PAT/PMT, elementary streams, PTS range);
everything else goes through ffprobe. With --binaries the detected FFmpeg
installation (version, encoders, hardware accelerators) is printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().Bool("ts", false, "force transport stream parsing")
	probeCmd.Flags().Bool("binaries", false, "print detected ffmpeg binary info")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg)

	if binaries, _ := cmd.Flags().GetBool("binaries"); binaries {
		detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
		info, err := detector.Detect(cmd.Context())
		if err != nil {
			return fmt.Errorf("detecting ffmpeg: %w", err)
		}
		return printJSON(cmd, info)
	}

	if len(args) == 0 {
		return errors.New("a file argument is required unless --binaries is set")
	}
	path := args[0]

	forceTS, _ := cmd.Flags().GetBool("ts")
	if forceTS || hasTSExtension(path) {
		info, err := synthesis.ProbeChunk(cmd.Context(), path)
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	}

	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	bins, err := detector.Detect(cmd.Context())
	if err != nil {
		return fmt.Errorf("detecting ffprobe: %w", err)
	}
	prober := ffmpeg.NewProber(bins.FFprobePath)
	info, err := prober.Probe(cmd.Context(), path)
	if err != nil {
		return err
	}
	return printJSON(cmd, info)
}

func hasTSExtension(path string) bool {
	return len(path) > 3 && path[len(path)-3:] == ".ts"
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Join(errors.New("encoding probe result"), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
