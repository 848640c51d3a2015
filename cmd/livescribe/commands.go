package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/annotate"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/config"
)

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start capturing, transcribing and serving the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, path)
		},
	}
}

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the annotation prompt for every ordinal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			book := annotate.PromptBookFromMap(cfg.Completion.Prompts)
			out := cmd.OutOrStdout()
			for _, e := range book.Entries() {
				fmt.Fprintln(out, e.String())
			}
			fmt.Fprintf(out, "default: %s\n", annotate.DefaultPrompt)
			return nil
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (source=%s, engine=%s, conversion=%s, streaming=%t)\n",
				path, cfg.Capture.Source, cfg.Transcription.Engine, cfg.Conversion.Backend, cfg.Completion.Streaming)
			return nil
		},
	}
}
