package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "livescribe"
	serviceVersion    = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Live transcription with operator annotations",
		Long:          "Captures audio, cuts it into utterances on silence, transcribes them and lets an operator annotate the running transcript with a chat model.",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPromptsCmd())
	root.AddCommand(newCheckConfigCmd())
	return root
}
