package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lumenvm/lumen/internal/chunk"
	"github.com/lumenvm/lumen/internal/config"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file" + config.ChunkFileExt + ">",
	Short: "Print a human-readable listing of a compiled chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  disasmChunk,
}

func disasmChunk(cmd *cobra.Command, args []string) error {
	proto, err := chunk.LoadFile(args[0])
	if err != nil {
		return err
	}

	listing := chunk.Disassemble(proto)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	if !useColor(cmd, os.Stdout) {
		out.WriteString(listing)
		return nil
	}

	header := color.New(color.FgCyan, color.Bold)
	opname := color.New(color.FgYellow)
	for _, line := range strings.SplitAfter(listing, "\n") {
		switch {
		case strings.HasPrefix(line, "== "):
			header.Fprint(out, line)
		case len(line) > 10 && line[0] >= '0' && line[0] <= '9':
			// offset and line columns stay plain, the mnemonic gets color
			out.WriteString(line[:10])
			end := 10
			for end < len(line) && (line[end] == '_' || (line[end] >= 'A' && line[end] <= 'Z') || (line[end] >= '0' && line[end] <= '9')) {
				end++
			}
			opname.Fprint(out, line[10:end])
			out.WriteString(line[end:])
		default:
			out.WriteString(line)
		}
	}
	return nil
}

// useColor resolves the --color flag against the output stream.
func useColor(cmd *cobra.Command, f *os.File) bool {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		mode = "auto"
	}
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
}
