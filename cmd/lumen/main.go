package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumen bytecode virtual machine",
	Long:  `Lumen runs compiled chunk files on a fuel-metered, incrementally collected VM`,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("log-level", "", "enable diagnostics at this zerolog level (debug|info|warn)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the diagnostics logger from the --log-level flag. An
// empty level yields a disabled logger.
func newLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return zerolog.Nop(), err
	}
	if levelName == "" {
		return zerolog.Nop(), nil
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), err
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !useColor(cmd, os.Stderr)}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
