// Command ld links one or more WRAMP object modules into an absolute
// Motorola S-record load image.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wandwramp/toolchain/internal/config"
	"github.com/wandwramp/toolchain/internal/diag"
	"github.com/wandwramp/toolchain/internal/linker"
	"github.com/wandwramp/toolchain/internal/objfmt"
	"github.com/wandwramp/toolchain/internal/srec"
)

var (
	outputFlag   string
	verboseFlag  bool
	textBaseFlag string
	dataBaseFlag string
	bssBaseFlag  string
	bssEndFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "ld <module.o> [module2.o ...]",
	Short: "Link WRAMP object modules into an S-record load image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLink,
}

func init() {
	defaults, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", defaults.Output, "output S-record file (default: link.out)")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", defaults.Verbose, "print a disassembled layout report")
	rootCmd.Flags().StringVar(&textBaseFlag, "Ttext", hexDefault(defaults.TextBase), "absolute base address of the text segment (hex)")
	rootCmd.Flags().StringVar(&dataBaseFlag, "Tdata", hexDefault(defaults.DataBase), "absolute base address of the data segment (hex)")
	rootCmd.Flags().StringVar(&bssBaseFlag, "Tbss", hexDefault(defaults.BssBase), "absolute base address of the bss segment (hex)")
	rootCmd.Flags().StringVar(&bssEndFlag, "Ebss", hexDefault(defaults.BssEnd), "end-justify the bss segment at this address (hex)")
}

func hexDefault(v *uint32) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%x", *v)
}

func parseHexFlag(name, value string) (*uint32, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("ld: -%s: invalid hex address %q", name, value)
	}
	addr := uint32(n)
	return &addr, nil
}

func runLink(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	l := linker.New(out, verboseFlag)

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("ld: %w", err)
		}
		mod, err := objfmt.Read(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("ld: %s: %w", path, err)
		}
		l.AddModule(path, mod)
	}

	img, err := l.Link(opts)
	if err != nil {
		return err
	}

	outPath := outputFlag
	if outPath == "" {
		outPath = "link.out"
	}
	outFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("ld: %w", err)
	}
	defer outFile.Close()

	if err := srec.EmitS3Sequence(outFile, img.TextBase, img.Text); err != nil {
		return fmt.Errorf("ld: %w", err)
	}
	if err := srec.EmitS3Sequence(outFile, img.DataBase, img.Data); err != nil {
		return fmt.Errorf("ld: %w", err)
	}
	if err := srec.EmitTermination(outFile, img.Entry); err != nil {
		return fmt.Errorf("ld: %w", err)
	}
	return nil
}

func buildOptions() (linker.Options, error) {
	var opts linker.Options
	var err error
	if opts.TextBase, err = parseHexFlag("Ttext", textBaseFlag); err != nil {
		return opts, err
	}
	if opts.DataBase, err = parseHexFlag("Tdata", dataBaseFlag); err != nil {
		return opts, err
	}
	if opts.BssBase, err = parseHexFlag("Tbss", bssBaseFlag); err != nil {
		return opts, err
	}
	if opts.BssEnd, err = parseHexFlag("Ebss", bssEndFlag); err != nil {
		return opts, err
	}
	opts.Verbose = verboseFlag
	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, diag.Diagnostic{Message: err.Error()}.Error())
		os.Exit(1)
	}
}
