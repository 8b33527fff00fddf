package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:          "stickerwatch",
	Short:        "stickerwatch watches a sticker catalog for new collections and buys them as soon as they appear.",
	SilenceUsage: true,
}

func init() {
	configPath = rootCmd.PersistentFlags().String(
		"config",
		"config.json5",
		"The config file to read, a `.local` variant next to it overrides its values.",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
