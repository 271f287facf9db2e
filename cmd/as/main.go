// Command as assembles a single WRAMP source file into a relocatable
// object module.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wandwramp/toolchain/internal/assembler"
	"github.com/wandwramp/toolchain/internal/config"
	"github.com/wandwramp/toolchain/internal/diag"
)

var outputFlag string

var rootCmd = &cobra.Command{
	Use:   "as <input.s>",
	Short: "Assemble a WRAMP source file into a relocatable object module",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssemble,
}

func init() {
	defaults, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defaultOutput := ""
	if defaults.Output != "" {
		defaultOutput = defaults.Output
	}
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", defaultOutput, "output object file (default: input with .o extension)")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("as: %w", err)
	}
	defer f.Close()

	mod, warnings, err := assembler.Assemble(inputPath, f)
	for _, w := range warnings {
		diag.Warn(os.Stderr, w)
	}
	if err != nil {
		return err
	}

	outPath := outputFlag
	if outPath == "" {
		outPath = defaultObjectName(inputPath)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("as: %w", err)
	}
	defer out.Close()

	if err := mod.Write(out); err != nil {
		return fmt.Errorf("as: writing %s: %w", outPath, err)
	}
	return nil
}

func defaultObjectName(inputPath string) string {
	base := inputPath
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return base + ".o"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, diag.Diagnostic{Message: err.Error()}.Error())
		os.Exit(1)
	}
}
