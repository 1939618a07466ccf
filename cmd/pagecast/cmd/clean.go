package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagecast/internal/storage"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached working files",
	Long: `Remove the temporary working tree: browser profiles, preprocessed
media, synthesizer intermediates and cached fonts. Without flags everything
is cleaned.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("browser", false, "clean browser profiles only")
	cleanCmd.Flags().Bool("media", false, "clean preprocessed media only")
	cleanCmd.Flags().Bool("chunks", false, "clean synthesizer intermediates only")
	cleanCmd.Flags().Bool("fonts", false, "clean cached fonts only")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg)
	paths := storage.NewPaths(cfg.Storage)

	browserOnly, _ := cmd.Flags().GetBool("browser")
	mediaOnly, _ := cmd.Flags().GetBool("media")
	chunksOnly, _ := cmd.Flags().GetBool("chunks")
	fontsOnly, _ := cmd.Flags().GetBool("fonts")

	if !browserOnly && !mediaOnly && !chunksOnly && !fontsOnly {
		return paths.CleanAll()
	}
	if browserOnly {
		if err := paths.CleanBrowser(); err != nil {
			return err
		}
	}
	if mediaOnly {
		if err := paths.CleanPreprocessor(); err != nil {
			return err
		}
	}
	if chunksOnly {
		if err := paths.CleanSynthesizer(); err != nil {
			return err
		}
	}
	if fontsOnly {
		if err := paths.CleanFonts(); err != nil {
			return err
		}
	}
	return nil
}
